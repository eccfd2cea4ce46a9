package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

func TestRecoverWebhook(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoverWebhook(logging.NewWithWriter(&buf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/speech", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"success":false}` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "webhook panic recovered") {
		t.Fatalf("expected panic to be logged, got %s", buf.String())
	}
}
