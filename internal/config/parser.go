package config

import (
	"fmt"
	"strconv"
	"strings"
)

const legacyFormatWarning = "legacy key=value config format is deprecated; migrate to JSONC"

// Parse reads configuration content as JSONC (preferred) or legacy key/value format.
//
// JSONC is selected when the first non-whitespace character is `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseJSONC(content, base)
	}

	cfg, warnings, err := parseLegacy(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append([]Warning{{Message: legacyFormatWarning}}, warnings...)
	return cfg, warnings, nil
}

// parseLegacy reads the original `section.key = value` line format.
func parseLegacy(content string, base Config) (Config, []Warning, error) {
	cfg := base
	warnings := make([]Warning, 0)

	for lineNo, rawLine := range strings.Split(content, "\n") {
		line := stripLineComment(rawLine)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return Config{}, nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo+1, strings.TrimSpace(rawLine))
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if err := applyLegacyKey(&cfg, key, value); err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func applyLegacyKey(cfg *Config, key, value string) error {
	switch key {
	case "upstream.endpoint":
		cfg.Upstream.Endpoint = value
	case "upstream.api_key":
		cfg.Upstream.APIKey = value
	case "upstream.model":
		cfg.Upstream.Model = value
	case "upstream.language":
		cfg.Upstream.Language = value
	case "http.listen":
		cfg.HTTP.Listen = value
	case "http.poll_interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("http.poll_interval_ms must be an integer: %w", err)
		}
		cfg.HTTP.PollIntervalMS = n
	case "telemetry.endpoint":
		cfg.Telemetry.Endpoint = value
	case "telemetry.enabled":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("telemetry.enabled: %w", err)
		}
		cfg.Telemetry.Enabled = b
	case "audio.input":
		cfg.Audio.Input = value
	case "audio.fallback":
		cfg.Audio.Fallback = value
	case "dictionary.enabled":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("dictionary.enabled: %w", err)
		}
		cfg.Dictionary.Enabled = b
	case "dictionary.words":
		cfg.Dictionary.Words = splitCommaList(value)
	case "dictionary.max_words":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("dictionary.max_words must be an integer: %w", err)
		}
		cfg.Dictionary.MaxWords = n
	case "notify.enable":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("notify.enable: %w", err)
		}
		cfg.Notify.Enable = b
	case "notify.app_name":
		cfg.Notify.AppName = value
	case "notify.sound":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("notify.sound: %w", err)
		}
		cfg.Notify.Sound = b
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// stripLineComment removes a trailing # comment unless it sits inside quotes.
func stripLineComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %q", value)
	}
}

func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
