// Package clipboard copies pane text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"

	"github.com/twistedxcom/panedeck/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("no content to copy")

// Result describes a completed copy.
type Result struct {
	Method string // "clip.exe", "system" or "osc52"
	Bytes  int
	Lines  int
}

// Copy tries the native clipboard first and falls back to an OSC 52
// sequence written to the controlling terminal.
func Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, ErrEmpty
	}
	res := Result{Bytes: len(text), Lines: countLines(text)}

	nativeErr := copyNative(text, &res)
	if nativeErr == nil {
		return res, nil
	}

	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return Result{}, fmt.Errorf("clipboard: %v; no terminal for OSC 52: %w", nativeErr, err)
	}
	defer tty.Close()
	if err := writeOSC52(tty, text, os.Getenv("TMUX") != ""); err != nil {
		return Result{}, fmt.Errorf("clipboard: OSC 52: %w", err)
	}
	res.Method = "osc52"
	return res, nil
}

func copyNative(text string, res *Result) error {
	// WSL has no X server clipboard but can reach the Windows one.
	if platform.IsWSL() {
		if path, err := exec.LookPath("clip.exe"); err == nil {
			cmd := exec.Command(path)
			cmd.Stdin = strings.NewReader(text)
			if err := cmd.Run(); err != nil {
				return err
			}
			res.Method = "clip.exe"
			return nil
		}
	}
	if clipboard.Unsupported {
		return errors.New("no clipboard utility installed")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return err
	}
	res.Method = "system"
	return nil
}

// writeOSC52 emits the set-clipboard sequence, wrapped for tmux
// passthrough when inTmux is set.
func writeOSC52(w io.Writer, text string, inTmux bool) error {
	seq := osc52.New(text)
	if inTmux {
		seq = seq.Tmux()
	}
	_, err := seq.WriteTo(w)
	return err
}

// countLines counts lines; a trailing newline does not start a new one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
