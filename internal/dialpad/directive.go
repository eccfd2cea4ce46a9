package dialpad

import "github.com/wolfman30/moving-call-relay/internal/relay"

// DefaultCallRouterID is the call router prompts loop back to when none is
// configured.
const DefaultCallRouterID = "5983474916573184"

// MenuAction plays a message and bridges back to the call router when the
// caller stops talking, which delivers the next speech event.
type MenuAction struct {
	Action                      string   `json:"action"`
	MenuMessage                 string   `json:"menu_message"`
	MenuOptions                 []string `json:"menu_options"`
	MenuMaxTries                int      `json:"menu_max_tries"`
	MenuNoInputAction           string   `json:"menu_no_input_action"`
	MenuNoInputActionTargetType string   `json:"menu_no_input_action_target_type"`
	MenuNoInputActionTargetID   string   `json:"menu_no_input_action_target_id"`
}

// BridgeAction connects the call to a department.
type BridgeAction struct {
	Action           string `json:"action"`
	ActionTargetType string `json:"action_target_type"`
	ActionTargetID   string `json:"action_target_id"`
}

// DefaultAction hands the call back to Dialpad's own routing.
type DefaultAction struct {
	Action string `json:"action"`
}

// Ack acknowledges an event without changing the call.
type Ack struct {
	Success bool `json:"success"`
}

// Renderer turns relay directives into Dialpad response bodies.
type Renderer struct {
	CallRouterID string
}

// NewRenderer returns a Renderer that routes calls through callRouterID,
// falling back to DefaultCallRouterID.
func NewRenderer(callRouterID string) Renderer {
	if callRouterID == "" {
		callRouterID = DefaultCallRouterID
	}
	return Renderer{CallRouterID: callRouterID}
}

// Render returns the JSON-serializable body for dir.
func (r Renderer) Render(dir relay.Directive) any {
	switch dir.Kind {
	case relay.DirectivePrompt:
		return r.Menu(dir.Message)
	case relay.DirectiveTransfer:
		if dir.Target == "" {
			return Default()
		}
		return Bridge(dir.Target)
	case relay.DirectiveDefault:
		return Default()
	}
	return Ack{Success: true}
}

func (r Renderer) Menu(message string) MenuAction {
	return MenuAction{
		Action:                      "menu",
		MenuMessage:                 message,
		MenuOptions:                 []string{},
		MenuMaxTries:                1,
		MenuNoInputAction:           "bridge",
		MenuNoInputActionTargetType: "callrouter",
		MenuNoInputActionTargetID:   r.CallRouterID,
	}
}

func Bridge(departmentID string) BridgeAction {
	return BridgeAction{
		Action:           "bridge",
		ActionTargetType: "department",
		ActionTargetID:   departmentID,
	}
}

func Default() DefaultAction {
	return DefaultAction{Action: "default"}
}
