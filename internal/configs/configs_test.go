package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfig_Defaults(t *testing.T) {
	t.Setenv("API_URL", "")
	t.Setenv("SOCKET_URL", "")
	os.Unsetenv("API_URL")
	os.Unsetenv("SOCKET_URL")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:4000", cfg.APIURL)
	assert.Equal(t, "ws://localhost:4000", cfg.SocketURL)
	assert.Equal(t, "ws://localhost:4000/socket", cfg.PublicSocketURL())
	assert.Equal(t, "ws://localhost:4000/socket/chat", cfg.ChatSocketURL())
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 60*time.Second, cfg.PresenceInterval)
}

func TestLoadClientConfig_DerivesSecureSocketURL(t *testing.T) {
	t.Setenv("API_URL", "https://api.movies.example/")
	t.Setenv("SOCKET_URL", "")

	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.movies.example", cfg.APIURL)
	assert.Equal(t, "wss://api.movies.example", cfg.SocketURL)
}

func TestLoadClientConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"environment", "ENVIRONMENT", "staging"},
		{"api url scheme", "API_URL", "ftp://example.com"},
		{"socket url scheme", "SOCKET_URL", "http://example.com"},
		{"attempts", "RECONNECT_ATTEMPTS", "0"},
		{"delay", "RECONNECT_DELAY", "-1s"},
		{"presence interval", "PRESENCE_INTERVAL", "0s"},
		{"unparsable attempts", "RECONNECT_ATTEMPTS", "five"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := LoadClientConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "4100")
	t.Setenv("ALLOWED_ORIGINS", " http://localhost:3000 , ,http://127.0.0.1:3000")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000", "http://127.0.0.1:3000"}, cfg.AllowedOrigins)
	assert.NotEmpty(t, cfg.JWTSecret, "development falls back to a default secret")
}

func TestLoadServerConfig_RequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadServerConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadServerConfig_RejectsPrivilegedPort(t *testing.T) {
	t.Setenv("PORT", "80")

	_, err := LoadServerConfig()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MOVIECHAT_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MOVIECHAT_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("MOVIECHAT_DOTENV_PROBE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
