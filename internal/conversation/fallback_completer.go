package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// ErrCompleterUnavailable is returned by UnavailableCompleter.
var ErrCompleterUnavailable = errors.New("conversation: no completion model configured")

// FallbackCompleter wraps a primary completer with a secondary one.
// If the primary fails, the turn is retried once against the fallback.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
	logger   *logging.Logger
}

// NewFallbackCompleter returns primary unchanged when fallback is nil.
func NewFallbackCompleter(primary, fallback Completer, logger *logging.Logger) Completer {
	if fallback == nil {
		return primary
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackCompleter{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackCompleter) Complete(ctx context.Context, req Request) (Result, error) {
	res, err := c.primary.Complete(ctx, req)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, err
	}

	c.logger.Warn("primary completer failed, attempting fallback", "call_id", req.CallID, "error", err)
	res, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback completer also failed",
			"call_id", req.CallID,
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Result{}, fallbackErr
	}
	return res, nil
}

// UnavailableCompleter fails every turn, so each caller who speaks is
// handed straight to a specialist. Used when no API key is configured.
type UnavailableCompleter struct{}

func (UnavailableCompleter) Complete(context.Context, Request) (Result, error) {
	return Result{}, ErrCompleterUnavailable
}
