package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/twistedxcom/panedeck/internal/git"
	"github.com/twistedxcom/panedeck/internal/hook"
	"github.com/twistedxcom/panedeck/internal/logging"
	"github.com/twistedxcom/panedeck/internal/platform"
	"github.com/twistedxcom/panedeck/internal/provider"
	"github.com/twistedxcom/panedeck/internal/session"
	"github.com/twistedxcom/panedeck/internal/statedb"
	"github.com/twistedxcom/panedeck/internal/ui"
	"github.com/twistedxcom/panedeck/internal/web"
)

const (
	// EnvDebug enables file logging like --debug.
	EnvDebug = "PANEDECK_DEBUG"
	// EnvWebToken protects the status mirror.
	EnvWebToken = "PANEDECK_WEB_TOKEN"

	webShutdownTimeout = 3 * time.Second
)

var mainLog = logging.ForComponent(logging.CompUI)

func runDashboard(g globalFlags, stderr io.Writer) int {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(stderr, "panedeck: the dashboard needs an interactive terminal")
		return 1
	}

	if _, err := session.LoadUserConfig(); err != nil {
		fmt.Fprintf(stderr, "panedeck: warning: config: %v (using defaults)\n", err)
	}
	initColorProfile()
	ui.InitTheme(session.ResolveTheme())

	dataDir, err := session.GetPanedeckDir()
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", err)
		return 1
	}

	debug := g.debug || os.Getenv(EnvDebug) != ""
	logCfg := session.GetLogSettings()
	lc := logging.Config{
		Level:      logCfg.Level,
		Format:     logCfg.Format,
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		Debug:      debug,
	}
	if debug {
		lc.LogDir = dataDir
		lc.Level = "debug"
	}
	logging.Init(lc)
	defer logging.Shutdown()
	// Libraries that use the standard logger must not scribble on the screen.
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter(logging.CompUI))
	stopDump := handleDumpSignal(dataDir)
	defer stopDump()

	if plat := platform.Detect(); !plat.SupportsUnixSockets() {
		fmt.Fprintf(stderr, "panedeck: warning: unix sockets are unreliable on %s; agent status may not update\n", plat)
	}

	hookCfg := session.GetHookSettings()
	listener, err := hook.Listen(hook.ListenerConfig{
		SocketPath:   socketPath(g),
		MaxLineBytes: hookCfg.MaxLineBytes,
	})
	if err != nil {
		if errors.Is(err, hook.ErrSocketInUse) {
			fmt.Fprintf(stderr, "panedeck: another dashboard is listening on %s\n", socketPath(g))
		} else {
			fmt.Fprintf(stderr, "panedeck: hook socket: %v\n", err)
		}
		return 1
	}
	defer listener.Close()
	// Panes inherit this so their hook commands find us.
	_ = os.Setenv(EnvSocket, listener.Path())

	journal, closeJournal := openJournal(stderr)
	defer closeJournal()

	storage, err := session.NewStorage("")
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", err)
		return 1
	}
	defaults := session.PaneDefaults()
	if g.backend != "" {
		defaults.Backend = g.backend
	}
	doc, err := storage.Load()
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: warning: layout: %v (starting empty)\n", err)
		doc = nil
	}
	panes, err := session.Restore(doc, defaults)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: warning: restore: %v (starting empty)\n", err)
		panes = session.NewCollection()
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", err)
		return 1
	}
	repoDir := ""
	if git.IsGitRepo(cwd) {
		if root, err := git.GetRepoRoot(cwd); err == nil {
			repoDir = root
		}
	}

	watcher, err := git.NewWatcher()
	if err != nil {
		mainLog.Warn("worktree_watcher_unavailable", slog.String("error", err.Error()))
		watcher = nil
	} else {
		defer watcher.Close()
	}

	var mirror *web.Server
	webCfg := session.GetWebSettings()
	if webCfg.Enabled || g.web {
		mirror = web.NewServer(web.Config{ListenAddr: webCfg.Listen, Token: os.Getenv(EnvWebToken)})
		if err := mirror.Listen(); err != nil {
			fmt.Fprintf(stderr, "panedeck: warning: %v (status mirror disabled)\n", err)
			mirror = nil
		} else {
			go func() {
				if err := mirror.Serve(); err != nil {
					mainLog.Error("web_serve_failed", slog.String("error", err.Error()))
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
				defer cancel()
				_ = mirror.Shutdown(ctx)
			}()
		}
	}

	var prov provider.Provider
	if p, err := provider.Get(session.GetDefaultProvider()); err == nil {
		prov = p
	} else {
		fmt.Fprintf(stderr, "panedeck: warning: %v (worktree agents disabled)\n", err)
	}

	home := ui.NewHome(ui.Options{
		Collection: panes,
		Engine: session.NewEngine(session.EngineOptions{
			ActivityTransitions: session.GetStatusSettings().ActivityTransitions,
		}),
		Storage:          storage,
		Hooks:            listener.Events(),
		Journal:          journal,
		Watcher:          watcher,
		Web:              mirror,
		RepoDir:          repoDir,
		BaseDir:          cwd,
		Provider:         prov,
		PaneDefaults:     defaults,
		WorktreeLocation: session.GetWorktreeSettings().Location,
		Theme:            session.GetTheme(),
	})

	p := tea.NewProgram(home, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			p.Quit()
		}
	}()

	mainLog.Info("dashboard_started",
		slog.String("socket", listener.Path()),
		slog.String("repo", repoDir),
		slog.Int("restored_panes", panes.Len()))

	_, runErr := p.Run()
	home.Shutdown()
	if runErr != nil {
		fmt.Fprintf(stderr, "panedeck: %v\n", runErr)
		return 1
	}
	return 0
}

// openJournal opens the hook event journal. The dashboard runs without one
// when the database is unavailable.
func openJournal(stderr io.Writer) (*statedb.Journal, func()) {
	path, err := session.GetJournalPath()
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: warning: journal: %v\n", err)
		return nil, func() {}
	}
	db, err := statedb.Open(path)
	if err == nil {
		err = db.Migrate()
		if err != nil {
			db.Close()
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "panedeck: warning: journal disabled: %v\n", err)
		return nil, func() {}
	}
	_ = db.SetMeta("last_start", time.Now().UTC().Format(time.RFC3339))
	j := statedb.NewJournal(db, statedb.JournalOptions{})
	return j, func() {
		j.Close()
		_ = db.Touch()
		db.Close()
	}
}

// dumpFileName names a ring buffer dump taken at t.
func dumpFileName(t time.Time) string {
	return "crash-" + strings.ReplaceAll(t.UTC().Format("20060102T150405.000"), ".", "") + ".log"
}
