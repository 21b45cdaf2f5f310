/*
Package configs is responsible for loading and parsing the application's configuration settings.

Both binaries read operating system environment variables, optionally seeded from a .env file:
the chat client needs the backend and socket URLs plus the reconnect and presence timings,
the development server needs its port, CORS origins and JWT secret.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ClientConfig contains the parameters of the chat client.
type ClientConfig struct {
	// General Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Backend Settings
	APIURL    string `env:"API_URL" envDefault:"http://localhost:4000"`
	SocketURL string `env:"SOCKET_URL"`

	// Realtime Settings
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"1s"`
	PresenceInterval  time.Duration `env:"PRESENCE_INTERVAL" envDefault:"60s"`

	// Account Settings
	Email    string `env:"CHAT_EMAIL"`
	Password string `env:"CHAT_PASSWORD"`
}

// ServerConfig contains the parameters of the development backend.
type ServerConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"4000"`

	// Security Settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	JWTSecret      string   `env:"JWT_SECRET"`
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *ClientConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// PublicSocketURL is the endpoint of the broadcast connection.
func (c *ClientConfig) PublicSocketURL() string {
	return c.SocketURL + "/socket"
}

// ChatSocketURL is the endpoint of the authenticated chat connection.
func (c *ClientConfig) ChatSocketURL() string {
	return c.SocketURL + "/socket/chat"
}

// LoadDotEnv loads variables from the given files (".env" when none) without overriding the
// environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadClientConfig reads and validates the client configuration from the environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validateEnvironment(cfg.Environment); err != nil {
		return nil, err
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	apiURL, err := url.Parse(cfg.APIURL)
	if err != nil || (apiURL.Scheme != "http" && apiURL.Scheme != "https") || apiURL.Host == "" {
		return nil, fmt.Errorf("invalid API_URL %q: expected an http(s) URL", cfg.APIURL)
	}

	if cfg.SocketURL == "" {
		derived := *apiURL
		if apiURL.Scheme == "https" {
			derived.Scheme = "wss"
		} else {
			derived.Scheme = "ws"
		}
		cfg.SocketURL = derived.String()
	}
	cfg.SocketURL = strings.TrimRight(cfg.SocketURL, "/")

	socketURL, err := url.Parse(cfg.SocketURL)
	if err != nil || (socketURL.Scheme != "ws" && socketURL.Scheme != "wss") || socketURL.Host == "" {
		return nil, fmt.Errorf("invalid SOCKET_URL %q: expected a ws(s) URL", cfg.SocketURL)
	}

	if cfg.ReconnectAttempts < 1 {
		return nil, fmt.Errorf("RECONNECT_ATTEMPTS must be at least 1, got %d", cfg.ReconnectAttempts)
	}
	if cfg.ReconnectDelay < 0 {
		return nil, fmt.Errorf("RECONNECT_DELAY must not be negative, got %s", cfg.ReconnectDelay)
	}
	if cfg.PresenceInterval <= 0 {
		return nil, fmt.Errorf("PRESENCE_INTERVAL must be positive, got %s", cfg.PresenceInterval)
	}

	return cfg, nil
}

// LoadServerConfig reads and validates the development server configuration from the environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validateEnvironment(cfg.Environment); err != nil {
		return nil, err
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	return cfg, nil
}

func validateEnvironment(environment string) error {
	switch environment {
	case "development", "production", "test":
		return nil
	}
	return fmt.Errorf("invalid ENVIRONMENT %q: expected development, production or test", environment)
}
