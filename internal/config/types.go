// Package config resolves, parses, validates, and defaults stories configuration.
package config

// Config is the fully materialized runtime configuration used by stories.
// It is resolved once at process start and threaded through construction;
// no component re-reads configuration at call time.
type Config struct {
	Upstream   UpstreamConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
	Audio      AudioConfig
	Dictionary DictionaryConfig
	Notify     NotifyConfig
}

// UpstreamConfig locates the transcription provider.
type UpstreamConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Language string
}

// HTTPConfig controls the loopback state/transcribe API served by the daemon.
type HTTPConfig struct {
	Listen         string
	PollIntervalMS int
}

// TelemetryConfig controls usage-event batching and crash reporting targets.
type TelemetryConfig struct {
	Endpoint string
	Enabled  bool
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// DictionaryConfig carries custom vocabulary used to prompt the recognizer.
type DictionaryConfig struct {
	Enabled  bool
	Words    []string
	MaxWords int
}

// NotifyConfig controls the desktop-notification watch surface.
type NotifyConfig struct {
	Enable  bool
	AppName string
	Sound   bool
}

// Warning is one non-fatal configuration finding surfaced to the user.
type Warning struct {
	Line    int
	Message string
}
