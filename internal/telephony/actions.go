// Package telephony drives live calls on the carrier side: answering,
// playing synthesized audio and transferring to a human.
package telephony

import "context"

// Result mirrors the carrier response shape. Actions never return errors;
// failures are reported with Success=false.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ok() Result { return Result{Success: true} }

func failed(err error) Result { return Result{Success: false, Error: err.Error()} }

// Actions is the carrier-agnostic call control surface.
type Actions interface {
	Answer(ctx context.Context, callID string) Result
	PlayAudio(ctx context.Context, callID string, audio []byte) Result
	Transfer(ctx context.Context, callID, target string) Result
}
