// Package doctor runs runtime readiness diagnostics for config, the daemon
// socket, audio, and the transcription provider.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/stories/internal/audio"
	"github.com/rbright/stories/internal/config"
	"github.com/rbright/stories/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, checkConfig(cfg))
	checks = append(checks, checkDaemonSocket(ctx))

	if cfg.Config.Notify.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications require busctl"))
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkUpstream(cfg.Config.Upstream))

	if cfg.Config.Telemetry.Enabled {
		checks = append(checks, checkTelemetryEndpoint(cfg.Config.Telemetry))
	}

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("no file at %q, using defaults", cfg.Path)
	}
	if len(cfg.Warnings) > 0 {
		return Check{
			Name:    "config",
			Pass:    false,
			Message: fmt.Sprintf("%s with %d warning(s): %s", message, len(cfg.Warnings), cfg.Warnings[0].Message),
		}
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkDaemonSocket probes the runtime socket for a live daemon.
func checkDaemonSocket(ctx context.Context) Check {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: "daemon.socket", Pass: false, Message: err.Error()}
	}

	alive, err := ipc.Probe(ctx, path, 2*time.Second)
	if err != nil {
		return Check{Name: "daemon.socket", Pass: false, Message: fmt.Sprintf("probe failed: %v", err)}
	}
	if !alive {
		return Check{Name: "daemon.socket", Pass: false, Message: fmt.Sprintf("no daemon listening at %s", path)}
	}
	return Check{Name: "daemon.socket", Pass: true, Message: fmt.Sprintf("daemon responding at %s", path)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkUpstream validates provider settings and probes the endpoint.
func checkUpstream(cfg config.UpstreamConfig) Check {
	base := strings.TrimSpace(cfg.Endpoint)
	if base == "" {
		return Check{Name: "upstream.endpoint", Pass: false, Message: "upstream endpoint is empty"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Check{Name: "upstream.endpoint", Pass: false, Message: "API key is empty; set upstream.api_key or OPENAI_API_KEY"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	url := strings.TrimRight(base, "/") + "/models"
	client := http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "upstream.endpoint", Pass: false, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "upstream.endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Check{Name: "upstream.endpoint", Pass: false, Message: fmt.Sprintf("provider rejected the API key (HTTP %d)", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return Check{Name: "upstream.endpoint", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	default:
		return Check{Name: "upstream.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", base, resp.StatusCode)}
	}
}

// checkTelemetryEndpoint probes the telemetry ingest host. Telemetry is
// best-effort at runtime, so this only reports reachability.
func checkTelemetryEndpoint(cfg config.TelemetryConfig) Check {
	base := strings.TrimSpace(cfg.Endpoint)
	if base == "" {
		return Check{Name: "telemetry.endpoint", Pass: false, Message: "telemetry endpoint is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Head(base)
	if err != nil {
		return Check{Name: "telemetry.endpoint", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Check{Name: "telemetry.endpoint", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}
	return Check{Name: "telemetry.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", base, resp.StatusCode)}
}
