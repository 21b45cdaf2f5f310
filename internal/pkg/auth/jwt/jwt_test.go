package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1", Email: "ann@example.com"}, "secret", time.Minute)
	require.NoError(t, err)

	payload, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", payload.ID)
	assert.Equal(t, "u1", payload.Subject)
	assert.Equal(t, TokenIssuer, payload.Issuer)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.Error(t, err)
}

func TestExpiresAtDoesNotNeedTheSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, "secret", time.Hour)
	require.NoError(t, err)

	exp, err := ExpiresAt(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)

	_, err = ExpiresAt("opaque-token")
	assert.Error(t, err)
}

func TestRequireAuthMiddleware(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1"}, "secret", time.Minute)
	require.NoError(t, err)

	var seen *Payload
	h := RequireAuthMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + token, status: http.StatusOK},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.ID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
