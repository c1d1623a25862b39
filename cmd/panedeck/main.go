// Command panedeck runs AI coding agents side by side, one pane per git
// worktree, and tracks each agent through hook events.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/session"
)

// Version is set at build time with -ldflags.
var Version = "0.1.0"

// EnvSocket tells hook commands inside panes where the dashboard listens.
const EnvSocket = "PANEDECK_SOCKET"

// globalFlags precede the subcommand.
type globalFlags struct {
	configDir string
	socket    string
	debug     bool
	backend   string
	web       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobalFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		printHelp(stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", err)
		printHelp(stderr)
		return 2
	}
	if g.configDir != "" {
		session.SetPanedeckDir(g.configDir)
	}

	if len(rest) > 0 {
		switch rest[0] {
		case "version", "--version":
			fmt.Fprintf(stdout, "panedeck v%s\n", Version)
			return 0
		case "help":
			printHelp(stdout)
			return 0
		case "notify":
			return runNotify(g, rest[1:], stdin, stderr)
		case "codex-notify":
			return runCodexNotify(g, rest[1:], stdin, stderr)
		case "events":
			return runEvents(rest[1:], stdout, stderr)
		case "providers":
			return runProviders(rest[1:], stdout, stderr)
		default:
			fmt.Fprintf(stderr, "panedeck: unknown command %q\n", rest[0])
			printHelp(stderr)
			return 2
		}
	}
	return runDashboard(g, stderr)
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var g globalFlags
	fs := pflag.NewFlagSet("panedeck", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	// Everything after the first positional belongs to the subcommand.
	fs.SetInterspersed(false)
	fs.StringVar(&g.configDir, "config-dir", "", "data and config directory (default ~/.panedeck)")
	fs.StringVar(&g.socket, "socket", "", "hook socket path")
	fs.BoolVar(&g.debug, "debug", false, "write structured logs to debug.log")
	fs.StringVar(&g.backend, "backend", "", "terminal engine: midterm or vt10x")
	fs.BoolVar(&g.web, "web", false, "serve the read-only status mirror")
	if err := fs.Parse(args); err != nil {
		return g, nil, err
	}
	return g, fs.Args(), nil
}

// socketPath resolves the hook socket: flag, environment, config, default.
func socketPath(g globalFlags) string {
	if g.socket != "" {
		return g.socket
	}
	if env := os.Getenv(EnvSocket); env != "" {
		return env
	}
	if p := session.GetHookSettings().SocketPath; p != "" {
		return p
	}
	return hook.DefaultSocketPath()
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `panedeck - AI coding agents side by side, one pane per git worktree

Usage:
  panedeck [global flags]                 start the dashboard
  panedeck [global flags] <command> ...

Commands:
  notify --event E --task ID [--data JSON]   send a hook event (used by agent hooks)
  codex-notify --task ID <payload>           translate a Codex notify payload
  events [--limit N] [--unmatched]           show recent hook events
  providers list                             list agent providers
  providers files --task ID [--provider P] [--dir D] [--write]
                                             show or write a provider's hook files
  version                                    print the version

Global flags:
  --config-dir DIR   data and config directory (default ~/.panedeck)
  --socket PATH      hook socket path
  --debug            write structured logs to debug.log
  --backend NAME     terminal engine: midterm or vt10x
  --web              serve the read-only status mirror
`)
}
