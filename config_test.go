package main

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		bind:           "127.0.0.1",
		dbDriver:       "sqlite",
		dbDSN:          ":memory:",
		port:           8080,
		sendBuffer:     4,
		sessionTimeout: time.Minute,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"postgres", func(c *Config) { c.dbDriver = "postgres"; c.dbDSN = "host=localhost" }, false},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, true},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }, true},
		{"port zero", func(c *Config) { c.port = 0 }, true},
		{"port too high", func(c *Config) { c.port = 65536 }, true},
		{"unknown driver", func(c *Config) { c.dbDriver = "mysql" }, true},
		{"empty dsn", func(c *Config) { c.dbDSN = "" }, true},
		{"no send buffer", func(c *Config) { c.sendBuffer = 0 }, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		tt.mutate(&cfg)

		err := cfg.validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestScheme(t *testing.T) {
	cfg := validConfig()
	if cfg.scheme() != "http" {
		t.Errorf("scheme = %s", cfg.scheme())
	}

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	if cfg.scheme() != "https" {
		t.Errorf("scheme = %s with tls", cfg.scheme())
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("QUIZBOX_PORT", "9090")
	t.Setenv("QUIZBOX_SEND_BUFFER", "32")
	t.Setenv("QUIZBOX_SESSION_TIMEOUT", "5m")

	cfg := &Config{}
	newCmd(cfg)

	if cfg.port != 9090 || cfg.sendBuffer != 32 || cfg.sessionTimeout != 5*time.Minute {
		t.Errorf("cfg = port %d, send buffer %d, timeout %s", cfg.port, cfg.sendBuffer, cfg.sessionTimeout)
	}
	if cfg.dbDriver != "sqlite" {
		t.Errorf("db driver = %q, want default", cfg.dbDriver)
	}
}
