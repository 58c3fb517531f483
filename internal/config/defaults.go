package config

import "os"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Upstream: UpstreamConfig{
			Endpoint: "https://api.openai.com/v1",
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			Model:    "whisper-1",
			Language: "en",
		},
		HTTP: HTTPConfig{
			Listen:         "127.0.0.1:8675",
			PollIntervalMS: 2000,
		},
		Telemetry: TelemetryConfig{
			Endpoint: "https://telemetry.stories.app",
			Enabled:  true,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Dictionary: DictionaryConfig{
			Enabled:  true,
			Words:    nil,
			MaxWords: 256,
		},
		Notify: NotifyConfig{
			Enable:  true,
			AppName: "stories",
			Sound:   true,
		},
	}
}
