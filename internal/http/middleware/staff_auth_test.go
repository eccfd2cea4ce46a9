package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

func staffToken(t *testing.T, method jwt.SigningMethod, secret, role string, expires time.Time) string {
	t.Helper()
	claims := StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dispatch-lead",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminJWTRejections(t *testing.T) {
	valid := time.Now().Add(5 * time.Minute)
	cases := []struct {
		name   string
		secret string
		header string
	}{
		{"auth disabled", "", "Bearer " + staffToken(t, jwt.SigningMethodHS256, "secret", "", valid)},
		{"missing header", "secret", ""},
		{"wrong scheme", "secret", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "secret", "Bearer "},
		{"wrong secret", "secret", "Bearer " + staffToken(t, jwt.SigningMethodHS256, "wrong", "", valid)},
		{"other algorithm", "secret", "Bearer " + staffToken(t, jwt.SigningMethodHS512, "secret", "", valid)},
		{"expired", "secret", "Bearer " + staffToken(t, jwt.SigningMethodHS256, "secret", "", time.Now().Add(-time.Minute))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mw := AdminJWT(tc.secret, logging.NewWithWriter(io.Discard, "error"))
			req := httptest.NewRequest(http.MethodGet, "/admin/calls", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"`+errorMessage(tc.secret, tc.header)+`"}`, rec.Body.String())
		})
	}
}

func errorMessage(secret, header string) string {
	switch {
	case secret == "":
		return "admin auth disabled"
	case header == "" || header == "Basic dXNlcjpwYXNz" || header == "Bearer ":
		return "missing authorization header"
	default:
		return "invalid token"
	}
}

func TestAdminJWTStoresClaims(t *testing.T) {
	mw := AdminJWT("secret", nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/calls", nil)
	req.Header.Set("Authorization", "bearer "+staffToken(t, jwt.SigningMethodHS256, "secret", "", time.Now().Add(time.Minute)))
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := StaffClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "dispatch-lead", claims.Subject)
		assert.Equal(t, RoleViewer, claims.Role)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	chain := func(h http.Handler) http.Handler {
		return AdminJWT("secret", nil)(RequireRole(RoleDispatcher)(h))
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	expires := time.Now().Add(time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/admin/calls/C1/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t, jwt.SigningMethodHS256, "secret", RoleViewer, expires))
	rec := httptest.NewRecorder()
	chain(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/calls/C1/transfer", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t, jwt.SigningMethodHS256, "secret", RoleDispatcher, expires))
	rec = httptest.NewRecorder()
	chain(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	RequireRole(RoleDispatcher)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
