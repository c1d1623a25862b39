package logging

import (
	"bytes"
	"log/slog"
	"strings"
)

// BridgeWriter routes output from the standard library "log" package (used by
// some dependencies) into slog. A leading "[name] " prefix becomes the
// component attribute.
type BridgeWriter struct {
	component string
}

// NewBridgeWriter returns a writer that logs each write as one info record.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{component: defaultComponent}
}

func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := stripLogTimestamp(string(bytes.TrimSpace(p)))
	if msg == "" {
		return n, nil
	}

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = strings.ToLower(msg[1:idx])
			msg = msg[idx+2:]
		}
	}

	Logger().Info(msg, slog.String("component", component))
	return n, nil
}

// stripLogTimestamp removes the "15:04:05 " or "15:04:05.000000 " prefix the
// log package adds; slog stamps its own time.
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}
