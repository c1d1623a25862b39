package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"
)

// UserConfigFileName is the name of the user configuration file
const UserConfigFileName = "config.toml"

// UserConfig is ~/.panedeck/config.toml.
type UserConfig struct {
	// DefaultProvider is the agent started in new worktree panes ("claude" or "codex")
	DefaultProvider string `toml:"default_provider"`

	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	PTY      PTYSettings      `toml:"pty"`
	Screen   ScreenSettings   `toml:"screen"`
	Hooks    HookSettings     `toml:"hooks"`
	Status   StatusSettings   `toml:"status"`
	Worktree WorktreeSettings `toml:"worktree"`
	Logs     LogSettings      `toml:"logs"`
	Web      WebSettings      `toml:"web"`
}

// PTYSettings controls spawned processes.
type PTYSettings struct {
	// Shell runs in restored panes and panes without a provider. Defaults to $SHELL.
	Shell string `toml:"shell"`

	// GracePeriodMS is how long Terminate waits after SIGTERM (default: 3000)
	GracePeriodMS int `toml:"grace_period_ms"`

	// OutputBufferKB bounds each pane's raw output history (default: 256)
	OutputBufferKB int `toml:"output_buffer_kb"`
}

// GracePeriod returns the grace period as a duration.
func (p PTYSettings) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodMS) * time.Millisecond
}

// ScreenSettings picks the terminal engine.
type ScreenSettings struct {
	// Backend is "midterm" (default) or "vt10x"
	Backend string `toml:"backend"`

	// ScrollbackLines is kept per pane by backends that support it (default: 2000)
	ScrollbackLines int `toml:"scrollback_lines"`
}

// HookSettings configures the hook socket.
type HookSettings struct {
	// SocketPath defaults to $TMPDIR/panedeck-<uid>.sock
	SocketPath string `toml:"socket_path"`

	// MaxLineBytes caps one event line (default: 65536)
	MaxLineBytes int `toml:"max_line_bytes"`
}

// StatusSettings tunes the state engine.
type StatusSettings struct {
	// ActivityTransitions lets "task completed" output end a running pane
	// when the agent never sends its end hook.
	ActivityTransitions bool `toml:"activity_transitions"`
}

// WorktreeSettings controls where new worktrees go.
type WorktreeSettings struct {
	// Location is "sibling" (../<repo>-<branch>, default) or "subdirectory"
	// (<repo>/.worktrees/<branch>)
	Location string `toml:"location"`
}

// LogSettings mirrors logging.Config.
type LogSettings struct {
	// Level is "debug", "info" (default), "warn" or "error"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
}

// WebSettings configures the read-only status mirror.
type WebSettings struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

const (
	defaultProvider     = "claude"
	defaultWebListen    = "127.0.0.1:8765"
	defaultWorktreeLoc  = "sibling"
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
	defaultLogSizeMB    = 10
	defaultLogBackups   = 3
	defaultGracePeriod  = 3000
	defaultOutputKB     = 256
	defaultScrollback   = 2000
	defaultMaxLineBytes = 64 * 1024
)

var defaultUserConfig = UserConfig{}

// Cache for user config (loaded once per session)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	dir, err := GetPanedeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads the user configuration from TOML file.
// Returns cached config after first load. A parse error still caches
// the defaults so the caller can report it once.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	userConfigCache = &config
	return userConfigCache, nil
}

// ReloadUserConfig forces a reload of the user config
func ReloadUserConfig() (*UserConfig, error) {
	ClearUserConfigCache()
	return LoadUserConfig()
}

// SaveUserConfig writes the config to config.toml atomically and clears the
// cache so the next LoadUserConfig reads fresh values.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# panedeck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearUserConfigCache()
	return nil
}

// ClearUserConfigCache drops the cached config. The next LoadUserConfig
// reads from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

func loadOrDefault() *UserConfig {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return &defaultUserConfig
	}
	return config
}

// GetDefaultProvider returns the configured provider name, defaulting to "claude"
func GetDefaultProvider() string {
	if p := loadOrDefault().DefaultProvider; p != "" {
		return p
	}
	return defaultProvider
}

// GetTheme returns the current theme, defaulting to "dark"
func GetTheme() string {
	switch t := loadOrDefault().Theme; t {
	case "dark", "light", "system":
		return t
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// "system" asks the OS and falls back to "dark" when detection fails.
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

// GetPTYSettings returns PTY settings with defaults applied
func GetPTYSettings() PTYSettings {
	settings := loadOrDefault().PTY
	if settings.Shell == "" {
		settings.Shell = os.Getenv("SHELL")
	}
	if settings.Shell == "" {
		settings.Shell = "/bin/sh"
	}
	if settings.GracePeriodMS <= 0 {
		settings.GracePeriodMS = defaultGracePeriod
	}
	if settings.OutputBufferKB <= 0 {
		settings.OutputBufferKB = defaultOutputKB
	}
	return settings
}

// GetScreenSettings returns screen settings with defaults applied
func GetScreenSettings() ScreenSettings {
	settings := loadOrDefault().Screen
	if settings.Backend == "" {
		settings.Backend = "midterm"
	}
	if settings.ScrollbackLines <= 0 {
		settings.ScrollbackLines = defaultScrollback
	}
	return settings
}

// GetHookSettings returns hook settings with defaults applied. An empty
// SocketPath is left for the listener to resolve.
func GetHookSettings() HookSettings {
	settings := loadOrDefault().Hooks
	if settings.MaxLineBytes <= 0 {
		settings.MaxLineBytes = defaultMaxLineBytes
	}
	return settings
}

// GetStatusSettings returns the state engine settings.
func GetStatusSettings() StatusSettings {
	return loadOrDefault().Status
}

// GetWorktreeSettings returns worktree settings with defaults applied
func GetWorktreeSettings() WorktreeSettings {
	settings := loadOrDefault().Worktree
	switch settings.Location {
	case "sibling", "subdirectory":
	default:
		settings.Location = defaultWorktreeLoc
	}
	return settings
}

// GetLogSettings returns log settings with defaults applied
func GetLogSettings() LogSettings {
	settings := loadOrDefault().Logs
	if settings.Level == "" {
		settings.Level = defaultLogLevel
	}
	if settings.Format == "" {
		settings.Format = defaultLogFormat
	}
	if settings.MaxSizeMB <= 0 {
		settings.MaxSizeMB = defaultLogSizeMB
	}
	if settings.MaxBackups <= 0 {
		settings.MaxBackups = defaultLogBackups
	}
	return settings
}

// GetWebSettings returns web settings with defaults applied
func GetWebSettings() WebSettings {
	settings := loadOrDefault().Web
	if settings.Listen == "" {
		settings.Listen = defaultWebListen
	}
	return settings
}

// PaneDefaults builds the PaneOptions shared by every pane from config.
func PaneDefaults() PaneOptions {
	ptySettings := GetPTYSettings()
	scr := GetScreenSettings()
	return PaneOptions{
		Command:     []string{ptySettings.Shell},
		Backend:     scr.Backend,
		Scrollback:  scr.ScrollbackLines,
		OutputBytes: ptySettings.OutputBufferKB * 1024,
		GracePeriod: ptySettings.GracePeriod(),
	}
}
