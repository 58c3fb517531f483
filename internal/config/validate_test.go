package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Default()
	cfg.Upstream.APIKey = "sk-test"
	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}

func TestValidateEmptyAPIKeyWarns(t *testing.T) {
	cfg := Default()
	cfg.Upstream.APIKey = ""
	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "api_key") {
		t.Fatalf("expected api_key warning, got %v", warnings)
	}
}

func TestValidateRejectsNonLoopbackListen(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty endpoint", func(c *Config) { c.Upstream.Endpoint = "" }, "upstream.endpoint"},
		{"bad scheme", func(c *Config) { c.Upstream.Endpoint = "ftp://x" }, "http://"},
		{"empty model", func(c *Config) { c.Upstream.Model = " " }, "upstream.model"},
		{"empty listen", func(c *Config) { c.HTTP.Listen = "" }, "http.listen"},
		{"no port", func(c *Config) { c.HTTP.Listen = "127.0.0.1" }, "host:port"},
		{"public listen", func(c *Config) { c.HTTP.Listen = "0.0.0.0:9000" }, "loopback"},
		{"tiny poll interval", func(c *Config) { c.HTTP.PollIntervalMS = 100 }, "poll_interval_ms"},
		{"telemetry endpoint", func(c *Config) { c.Telemetry.Endpoint = "" }, "telemetry.endpoint"},
		{"max words", func(c *Config) { c.Dictionary.MaxWords = 0 }, "max_words"},
		{"notify app name", func(c *Config) { c.Notify.AppName = "" }, "notify.app_name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Upstream.APIKey = "sk-test"
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAcceptsLocalhostAndIPv6Loopback(t *testing.T) {
	for _, listen := range []string{"localhost:9000", "[::1]:9000"} {
		cfg := Default()
		cfg.Upstream.APIKey = "sk-test"
		cfg.HTTP.Listen = listen
		if _, err := Validate(cfg); err != nil {
			t.Fatalf("Validate(%q) error = %v", listen, err)
		}
	}
}
