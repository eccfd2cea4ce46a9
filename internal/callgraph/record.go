package callgraph

import (
	"strings"
	"time"
)

// Role identifies who spoke a transcript entry.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry. Entries are append-only.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Customer info field keys as they appear in AI tool arguments and admin payloads.
const (
	FieldName               = "name"
	FieldEmail              = "email"
	FieldMoveDate           = "moveDate"
	FieldOriginAddress      = "originAddress"
	FieldDestinationAddress = "destinationAddress"
	FieldPropertyType       = "propertyType"
	FieldAccessDetails      = "accessDetails"
	FieldSpecialItems       = "specialItems"
	FieldAdditionalStops    = "additionalStops"
)

// FieldNames lists every customer info field in a stable order.
var FieldNames = []string{
	FieldName,
	FieldEmail,
	FieldMoveDate,
	FieldOriginAddress,
	FieldDestinationAddress,
	FieldPropertyType,
	FieldAccessDetails,
	FieldSpecialItems,
	FieldAdditionalStops,
}

// CustomerInfo is the fixed set of move details collected during a call.
// An empty string means the field is unset.
type CustomerInfo struct {
	Name               string `json:"name,omitempty"`
	Email              string `json:"email,omitempty"`
	MoveDate           string `json:"moveDate,omitempty"`
	OriginAddress      string `json:"originAddress,omitempty"`
	DestinationAddress string `json:"destinationAddress,omitempty"`
	PropertyType       string `json:"propertyType,omitempty"`
	AccessDetails      string `json:"accessDetails,omitempty"`
	SpecialItems       string `json:"specialItems,omitempty"`
	AdditionalStops    string `json:"additionalStops,omitempty"`
}

func (c *CustomerInfo) field(name string) *string {
	switch name {
	case FieldName:
		return &c.Name
	case FieldEmail:
		return &c.Email
	case FieldMoveDate:
		return &c.MoveDate
	case FieldOriginAddress:
		return &c.OriginAddress
	case FieldDestinationAddress:
		return &c.DestinationAddress
	case FieldPropertyType:
		return &c.PropertyType
	case FieldAccessDetails:
		return &c.AccessDetails
	case FieldSpecialItems:
		return &c.SpecialItems
	case FieldAdditionalStops:
		return &c.AdditionalStops
	default:
		return nil
	}
}

// Get returns the value of a named field and whether the name is known.
func (c CustomerInfo) Get(name string) (string, bool) {
	p := c.field(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set overwrites a known field with a non-empty value. Empty values and
// unknown names are ignored so a set field is never cleared.
func (c *CustomerInfo) Set(name, value string) bool {
	p := c.field(name)
	if p == nil || strings.TrimSpace(value) == "" {
		return false
	}
	*p = value
	return true
}

// FillFrom copies every field that is empty on c and non-empty on other.
func (c *CustomerInfo) FillFrom(other CustomerInfo) int {
	filled := 0
	for _, name := range FieldNames {
		dst := c.field(name)
		src := other.field(name)
		if *dst == "" && *src != "" {
			*dst = *src
			filled++
		}
	}
	return filled
}

// Map returns the set fields keyed by field name.
func (c CustomerInfo) Map() map[string]string {
	out := make(map[string]string, len(FieldNames))
	for _, name := range FieldNames {
		if v := *c.field(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// Missing returns the names of fields that are still unset.
func (c CustomerInfo) Missing() []string {
	var out []string
	for _, name := range FieldNames {
		if *c.field(name) == "" {
			out = append(out, name)
		}
	}
	return out
}

// Refs are the optional call-graph identifiers presented when a call is created.
type Refs struct {
	MasterCallID     string
	EntryPointCallID string
	OperatorCallID   string
}

func (r Refs) ordered() []string {
	return []string{r.MasterCallID, r.EntryPointCallID, r.OperatorCallID}
}

// Record is the conversation state for one logical call graph. Values returned
// by the Registry are deep copies; mutating them does not affect the registry.
type Record struct {
	CallID           string       `json:"callId"`
	MasterCallID     string       `json:"masterCallId,omitempty"`
	EntryPointCallID string       `json:"entryPointCallId,omitempty"`
	OperatorCallID   string       `json:"operatorCallId,omitempty"`
	RelatedCallIDs   []string     `json:"relatedCallIds"`
	Transcript       []Message    `json:"transcript"`
	CustomerInfo     CustomerInfo `json:"customerInfo"`
	State            State        `json:"currentState"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Identifiers returns every identifier known to refer to this conversation,
// primary first, without blanks or duplicates.
func (r *Record) Identifiers() []string {
	seen := make(map[string]struct{}, 4+len(r.RelatedCallIDs))
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(r.CallID)
	add(r.MasterCallID)
	add(r.EntryPointCallID)
	add(r.OperatorCallID)
	for _, id := range r.RelatedCallIDs {
		add(id)
	}
	return out
}

// HasRelated reports whether id is already in RelatedCallIDs.
func (r *Record) HasRelated(id string) bool {
	for _, existing := range r.RelatedCallIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (r *Record) addRelated(id string) {
	if id == "" || id == r.CallID || r.HasRelated(id) {
		return
	}
	r.RelatedCallIDs = append(r.RelatedCallIDs, id)
}

func (r *Record) clone() Record {
	out := *r
	out.RelatedCallIDs = append([]string{}, r.RelatedCallIDs...)
	out.Transcript = append([]Message{}, r.Transcript...)
	return out
}

// Update is one atomic fold-back of an AI turn.
type Update struct {
	Fields map[string]string
	State  State
	// Reply, when non-empty, is appended as an assistant message.
	Reply string
}
