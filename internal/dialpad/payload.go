// Package dialpad decodes Dialpad call webhooks and renders the call-control
// directives Dialpad expects in the response body.
package dialpad

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers unsigned, badly signed or unparsable webhook bodies.
	ErrInvalidToken = errors.New("dialpad: invalid webhook token")
	// ErrMissingCallID is returned when no call identifier can be found.
	ErrMissingCallID = errors.New("dialpad: missing call id")
)

// ContentTypeJWT is the content type of signed Dialpad webhooks.
const ContentTypeJWT = "application/jwt"

// Payload is a decoded webhook body. Dialpad nests the interesting values
// inconsistently across event types so fields are looked up by path.
type Payload map[string]any

// IsJWT reports whether contentType announces a signed webhook.
func IsJWT(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), ContentTypeJWT)
	}
	return mediaType == ContentTypeJWT
}

// Decode verifies and decodes a webhook body. Signed bodies are HS256 JWTs
// checked against secret. Plain JSON is only accepted when no secret is
// configured.
func Decode(body []byte, contentType, secret string) (Payload, error) {
	if IsJWT(contentType) {
		return decodeJWT(strings.TrimSpace(string(body)), secret)
	}
	if secret != "" {
		return nil, fmt.Errorf("%w: unsigned body while a webhook secret is configured", ErrInvalidToken)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Payload{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("dialpad: decode payload: %w", err)
	}
	if payload == nil {
		payload = Payload{}
	}
	return payload, nil
}

func decodeJWT(token, secret string) (Payload, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidToken)
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithJSONNumber())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return Payload(claims), nil
}

// String returns the value at path as a string. Numbers are formatted
// without exponent; missing or non-scalar values yield "".
func (p Payload) String(path ...string) string {
	var cur any = map[string]any(p)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[key]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return ""
}

func (p Payload) first(paths ...[]string) string {
	for _, path := range paths {
		if v := p.String(path...); v != "" {
			return v
		}
	}
	return ""
}

// CallID looks in call_id, call.id, data.call_id and data.call.id.
func (p Payload) CallID() string {
	return p.first(
		[]string{"call_id"},
		[]string{"call", "id"},
		[]string{"data", "call_id"},
		[]string{"data", "call", "id"},
	)
}

func (p Payload) State() string {
	return strings.ToLower(p.String("state"))
}

// Speech returns recognized caller speech, if any.
func (p Payload) Speech() string {
	return p.first(
		[]string{"speech_text"},
		[]string{"transcript"},
		[]string{"data", "speech_text"},
		[]string{"data", "transcript"},
	)
}

// Recap returns the text of a recap_summary event.
func (p Payload) Recap() string {
	return p.first([]string{"recap_summary"}, []string{"transcription_text"})
}

func (p Payload) MasterCallID() string     { return p.String("master_call_id") }
func (p Payload) EntryPointCallID() string { return p.String("entry_point_call_id") }
func (p Payload) OperatorCallID() string   { return p.String("operator_call_id") }

var hangupFields = []string{"talk_time", "duration", "total_duration", "voicemail_link"}

// Fields returns the call summary values Dialpad sends on hangup.
func (p Payload) Fields() map[string]string {
	out := make(map[string]string)
	for _, key := range hangupFields {
		if v := p.String(key); v != "" {
			out[key] = v
		}
	}
	return out
}
