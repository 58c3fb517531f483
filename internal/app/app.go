package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/stories/internal/audio"
	"github.com/rbright/stories/internal/broadcast"
	"github.com/rbright/stories/internal/cli"
	"github.com/rbright/stories/internal/config"
	"github.com/rbright/stories/internal/doctor"
	"github.com/rbright/stories/internal/executor"
	"github.com/rbright/stories/internal/httpapi"
	"github.com/rbright/stories/internal/indicator"
	"github.com/rbright/stories/internal/ipc"
	"github.com/rbright/stories/internal/logging"
	"github.com/rbright/stories/internal/pipeline"
	"github.com/rbright/stories/internal/session"
	"github.com/rbright/stories/internal/telemetry"
	"github.com/rbright/stories/internal/version"
	"github.com/rbright/stories/internal/whisper"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("stories"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("stories"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStart:
		return r.forwardOrFail(ctx, ipc.Request{Command: "start", Source: parsed.Source})
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: "stop"})
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.Request{Command: "cancel"})
	case cli.CommandRetry:
		return r.forwardOrFail(ctx, ipc.Request{Command: "retry"})
	case cli.CommandDismiss:
		return r.forwardOrFail(ctx, ipc.Request{Command: "dismiss"})
	case cli.CommandWatch:
		return r.commandWatch(ctx, cfgLoaded.Config, logger)
	case cli.CommandDaemon:
		return r.commandDaemon(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status"})
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		if resp.SessionID != "" {
			fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, resp.SessionID)
		} else {
			fmt.Fprintln(r.Stdout, resp.State)
		}
		if resp.State == "error" && resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no stories daemon running (start one with `stories daemon`)")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	broadcaster := broadcast.New(logger)
	store := session.NewStore(logger, func(rec session.Record) {
		broadcaster.Publish(broadcast.StateMessage(string(rec.To), rec.SessionID))
	})

	recorder := pipeline.NewRecorder(cfg, logger)
	transcriber := executor.New(logger, whisper.New(logger, cfg))
	tele := buildTelemetry(logger, cfg.Telemetry)
	controller := session.NewController(logger, store, recorder, transcriber, tele)

	defer func() {
		if cause := recover(); cause != nil {
			logger.Error("daemon panicked", "cause", fmt.Sprint(cause))
			tele.CrashNow(fmt.Sprint(cause), map[string]any{"command": "daemon"})
			panic(cause)
		}
	}()

	logger.Info("daemon listening", "socket", socketPath, "http", cfg.HTTP.Listen)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ipc.Serve(runCtx, listener, controller, broadcaster)
	})
	g.Go(func() error {
		return httpapi.New(logger, store, transcriber).Run(runCtx, cfg.HTTP.Listen)
	})
	g.Go(func() error {
		return tele.Run(runCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon exited", "error", err.Error())
		return 1
	}

	logger.Info("daemon stopped")
	return 0
}

func (r Runner) commandWatch(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	notifier := indicator.NewNotifier(cfg.Notify, logger)
	baseURL := "http://" + cfg.HTTP.Listen
	surfaceID := "watch-" + uuid.NewString()

	watcher := indicator.NewWatcher(logger, notifier, socketPath, baseURL, surfaceID)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// buildTelemetry degrades to a disabled pipeline when no stable user
// identity can be stored.
func buildTelemetry(logger *slog.Logger, cfg config.TelemetryConfig) *telemetry.Pipeline {
	sender := telemetry.NewHTTPSender(cfg.Endpoint)

	stateDir, err := logging.StateDir()
	if err != nil {
		logger.Warn("telemetry identity unavailable", "error", err)
		return telemetry.NewPipeline(logger, sender, "", false)
	}

	userID, err := telemetry.LoadOrCreateUserID(stateDir)
	if err != nil {
		logger.Warn("telemetry identity unavailable", "error", err)
		return telemetry.NewPipeline(logger, sender, "", false)
	}

	return telemetry.NewPipeline(logger, sender, userID, cfg.Enabled)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
