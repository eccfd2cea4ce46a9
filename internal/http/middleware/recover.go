package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// RecoverWebhook turns a panic into a 200 reply. Telephony providers treat
// any other status as a failed call step, so a bug in one event should not
// drop the caller.
func RecoverWebhook(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("webhook panic recovered",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
