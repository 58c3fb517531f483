package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	endpoint := strings.TrimSpace(cfg.Upstream.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("upstream.endpoint must not be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("upstream.endpoint must start with http:// or https://")
	}
	if strings.TrimSpace(cfg.Upstream.Model) == "" {
		return nil, fmt.Errorf("upstream.model must not be empty")
	}
	if strings.TrimSpace(cfg.Upstream.APIKey) == "" {
		warnings = append(warnings, Warning{Message: "upstream.api_key is empty; transcription requests will be rejected"})
	}

	listen := strings.TrimSpace(cfg.HTTP.Listen)
	if listen == "" {
		return nil, fmt.Errorf("http.listen must not be empty")
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, fmt.Errorf("http.listen %q is not host:port: %w", listen, err)
	}
	if !isLoopbackHost(host) {
		return nil, fmt.Errorf("http.listen host %q must be loopback (the state API carries no auth)", host)
	}
	if cfg.HTTP.PollIntervalMS < 250 {
		return nil, fmt.Errorf("http.poll_interval_ms must be >= 250")
	}

	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return nil, fmt.Errorf("telemetry.endpoint must not be empty when telemetry.enabled=true")
	}

	if cfg.Dictionary.MaxWords <= 0 {
		return nil, fmt.Errorf("dictionary.max_words must be > 0")
	}
	if cfg.Notify.Enable && strings.TrimSpace(cfg.Notify.AppName) == "" {
		return nil, fmt.Errorf("notify.app_name must not be empty when notify.enable=true")
	}

	_, promptWarnings, err := BuildPrompt(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, promptWarnings...)

	return warnings, nil
}

// BuildPrompt merges dictionary words into the deterministic recognizer prompt.
//
// The prompt guides the recognizer toward custom vocabulary; duplicate words
// are dropped with a warning so the user can clean the list.
func BuildPrompt(cfg Config) (string, []Warning, error) {
	if !cfg.Dictionary.Enabled || len(cfg.Dictionary.Words) == 0 {
		return "", nil, nil
	}

	warnings := make([]Warning, 0)
	seen := make(map[string]struct{}, len(cfg.Dictionary.Words))
	words := make([]string, 0, len(cfg.Dictionary.Words))

	for _, word := range cfg.Dictionary.Words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		key := strings.ToLower(word)
		if _, dup := seen[key]; dup {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("dictionary word %q appears more than once; keeping the first", word)})
			continue
		}
		seen[key] = struct{}{}
		words = append(words, word)
	}

	if len(words) > cfg.Dictionary.MaxWords {
		return "", nil, fmt.Errorf("dictionary word count %d exceeds dictionary.max_words=%d", len(words), cfg.Dictionary.MaxWords)
	}

	return strings.Join(words, ", "), warnings, nil
}

// isLoopbackHost accepts 127.0.0.0/8, ::1, and the literal localhost.
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
