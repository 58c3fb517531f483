package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Upstream   *jsoncUpstream   `json:"upstream"`
	HTTP       *jsoncHTTP       `json:"http"`
	Telemetry  *jsoncTelemetry  `json:"telemetry"`
	Audio      *jsoncAudio      `json:"audio"`
	Dictionary *jsoncDictionary `json:"dictionary"`
	Notify     *jsoncNotify     `json:"notify"`
}

type jsoncUpstream struct {
	Endpoint *string `json:"endpoint"`
	APIKey   *string `json:"api_key"`
	Model    *string `json:"model"`
	Language *string `json:"language"`
}

type jsoncHTTP struct {
	Listen         *string `json:"listen"`
	PollIntervalMS *int    `json:"poll_interval_ms"`
}

type jsoncTelemetry struct {
	Endpoint *string `json:"endpoint"`
	Enabled  *bool   `json:"enabled"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncDictionary struct {
	Enabled  *bool            `json:"enabled"`
	Words    *jsoncStringList `json:"words"`
	MaxWords *int             `json:"max_words"`
}

type jsoncNotify struct {
	Enable  *bool   `json:"enable"`
	AppName *string `json:"app_name"`
	Sound   *bool   `json:"sound"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, validatedWarnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if payload.Upstream != nil {
		if payload.Upstream.Endpoint != nil {
			cfg.Upstream.Endpoint = strings.TrimSpace(*payload.Upstream.Endpoint)
		}
		if payload.Upstream.APIKey != nil {
			cfg.Upstream.APIKey = strings.TrimSpace(*payload.Upstream.APIKey)
		}
		if payload.Upstream.Model != nil {
			cfg.Upstream.Model = strings.TrimSpace(*payload.Upstream.Model)
		}
		if payload.Upstream.Language != nil {
			cfg.Upstream.Language = strings.TrimSpace(*payload.Upstream.Language)
		}
	}

	if payload.HTTP != nil {
		if payload.HTTP.Listen != nil {
			cfg.HTTP.Listen = strings.TrimSpace(*payload.HTTP.Listen)
		}
		if payload.HTTP.PollIntervalMS != nil {
			cfg.HTTP.PollIntervalMS = *payload.HTTP.PollIntervalMS
		}
	}

	if payload.Telemetry != nil {
		if payload.Telemetry.Endpoint != nil {
			cfg.Telemetry.Endpoint = strings.TrimSpace(*payload.Telemetry.Endpoint)
		}
		if payload.Telemetry.Enabled != nil {
			cfg.Telemetry.Enabled = *payload.Telemetry.Enabled
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Dictionary != nil {
		if payload.Dictionary.Enabled != nil {
			cfg.Dictionary.Enabled = *payload.Dictionary.Enabled
		}
		if payload.Dictionary.Words != nil {
			words := make([]string, 0, len(*payload.Dictionary.Words))
			for _, word := range *payload.Dictionary.Words {
				word = strings.TrimSpace(word)
				if word == "" {
					continue
				}
				words = append(words, word)
			}
			cfg.Dictionary.Words = words
		}
		if payload.Dictionary.MaxWords != nil {
			cfg.Dictionary.MaxWords = *payload.Dictionary.MaxWords
		}
	}

	if payload.Notify != nil {
		if payload.Notify.Enable != nil {
			cfg.Notify.Enable = *payload.Notify.Enable
		}
		if payload.Notify.AppName != nil {
			cfg.Notify.AppName = strings.TrimSpace(*payload.Notify.AppName)
		}
		if payload.Notify.Sound != nil {
			cfg.Notify.Sound = *payload.Notify.Sound
		}
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
