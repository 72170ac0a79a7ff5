package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{Secret: "test-secret", Issuer: "clipforge", TTL: time.Hour})
	require.NoError(t, err)
	return i
}

func TestIssueAndParse(t *testing.T) {
	i := newTestIssuer(t)

	token, err := i.Issue("user-1", "a@example.com")
	require.NoError(t, err)

	p, err := i.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "a@example.com", p.Email)
}

func TestParseRejects(t *testing.T) {
	i := newTestIssuer(t)
	good, err := i.Issue("user-1", "")
	require.NoError(t, err)

	other, _ := NewIssuer(Config{Secret: "another-secret", Issuer: "clipforge"})
	forged, err := other.Issue("user-1", "")
	require.NoError(t, err)

	wrongIssuer, _ := NewIssuer(Config{Secret: "test-secret", Issuer: "someone-else"})
	foreign, err := wrongIssuer.Issue("user-1", "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	expired := newTestIssuer(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue("user-1", "")
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong_secret": forged,
		"wrong_issuer": foreign,
		"alg_none":     none,
		"expired":      stale,
		"truncated":    good[:len(good)-4],
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := i.Parse(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer(Config{})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	i := newTestIssuer(t)
	token, _ := i.Issue("user-9", "")

	var seen string
	h := Middleware(i, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if ok {
			seen = p.UserID
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase_scheme", "bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic_scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bad_token", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "user-9", seen)
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
