package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandDaemon  Command = "daemon"
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandRetry   Command = "retry"
	CommandDismiss Command = "dismiss"
	CommandStatus  Command = "status"
	CommandWatch   Command = "watch"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandDaemon:  {},
	CommandStart:   {},
	CommandStop:    {},
	CommandCancel:  {},
	CommandRetry:   {},
	CommandDismiss: {},
	CommandStatus:  {},
	CommandWatch:   {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

var validSources = map[string]struct{}{
	"main":     {},
	"widget":   {},
	"shortcut": {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Source     string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--source":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--source requires a value")
			}
			source := strings.ToLower(strings.TrimSpace(args[i]))
			if _, ok := validSources[source]; !ok {
				return Parsed{}, fmt.Errorf("unknown source %q (want main, widget, or shortcut)", args[i])
			}
			parsed.Source = source
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	if parsed.Source != "" && parsed.Command != CommandStart {
		return Parsed{}, fmt.Errorf("--source only applies to start, not %q", parsed.Command)
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  daemon    Run the recording daemon in the foreground
  start     Start a new recording session
  stop      Stop the active recording and transcribe it
  cancel    Cancel the active recording and discard audio
  retry     Retry transcription of the last failed recording
  dismiss   Dismiss the current error state
  status    Print current session state
  watch     Follow session state and show desktop notifications
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH                    Config file path (default: $XDG_CONFIG_HOME/stories/config.jsonc)
  --source main|widget|shortcut    Surface starting the recording (start only, default: main)
  -h, --help                       Show help
  --version                        Show version
`, binaryName)
}
