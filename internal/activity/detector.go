// Package activity pulls best-effort activity summaries out of raw pane
// output. Detections are advisory: misses are fine, false alarms are
// tolerated, and no input may make Detect panic.
package activity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Kind labels a detection.
type Kind int

const (
	CommandExecuted Kind = iota
	FileChanged
	TaskCompleted
	ErrorOccurred
	ProviderNotification
)

func (k Kind) String() string {
	switch k {
	case CommandExecuted:
		return "command"
	case FileChanged:
		return "file"
	case TaskCompleted:
		return "completed"
	case ErrorOccurred:
		return "error"
	case ProviderNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Detection is one finding. Text is empty for TaskCompleted and for the
// generic diff fallback of FileChanged.
type Detection struct {
	Kind Kind
	Text string
}

const (
	// MaxExcerpt caps captured text, in runes.
	MaxExcerpt = 200
	// maxPerKind caps how many detections of one kind a chunk can yield.
	maxPerKind = 16
)

var (
	commandRe = regexp.MustCompile(`^(?:[\w.@~:/\-]+\s*)?[$❯]\s+(\S.*)$`)

	fileVerbRe = regexp.MustCompile(`(?i)\b(?:created|modified|updated|edited|edit|wrote|write|writing|deleted|renamed|saved|patched)\s+(?:file\s+)?[` + "`" + `'"]?([\w./\-]+\.[A-Za-z0-9]{1,8})\b`)
	filePathRe = regexp.MustCompile(`(?:^|[\s(` + "`" + `'"])((?:[\w.\-]+/)*[\w.\-]+\.(?:go|rs|py|js|jsx|ts|tsx|java|kt|rb|c|h|cc|cpp|hpp|cs|swift|php|lua|sh|sql|md|json|toml|yaml|yml|html|css|scss|vue|svelte|proto))\b`)
	diffKeywordRe = regexp.MustCompile(`(?m)^(?:diff --git |\+\+\+ |--- a/|@@ )`)

	errorRe    = regexp.MustCompile(`(?i)\b(?:error|exception|failed):\s*(\S.*)$`)
	exitCodeRe = regexp.MustCompile(`(?i)\bexit(?:ed with)? code:?\s*(-?\d+)`)

	notifyRe = regexp.MustCompile(`(?i)^(?:claude|agent|assistant):\s*(\S.*)$`)
)

var completionPhrases = []string{
	"all tests passed",
	"all tests pass",
	"all checks passed",
	"task completed",
	"task complete",
	"completed successfully",
	"finished successfully",
	"successfully completed",
	"build succeeded",
	"build successful",
	"done!",
	"✓ done",
}

// Detect scans one chunk of pane output.
func Detect(chunk string) []Detection {
	text := normalize(chunk)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")

	var out []Detection
	out = append(out, detectCommands(lines)...)
	out = append(out, detectFiles(lines, text)...)
	if detectCompletion(text) {
		out = append(out, Detection{Kind: TaskCompleted})
	}
	out = append(out, detectErrors(lines)...)
	out = append(out, detectNotifications(lines)...)
	return out
}

// normalize strips escapes, repairs UTF-8, folds CR line endings and drops
// remaining control characters.
func normalize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func detectCommands(lines []string) []Detection {
	var out []Detection
	for _, line := range lines {
		m := commandRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		out = appendUnique(out, CommandExecuted, m[1])
		if len(out) >= maxPerKind {
			break
		}
	}
	return out
}

func detectFiles(lines []string, text string) []Detection {
	var out []Detection
	for _, line := range lines {
		for _, m := range fileVerbRe.FindAllStringSubmatch(line, -1) {
			out = appendUnique(out, FileChanged, m[1])
		}
	}
	if len(out) == 0 {
		for _, line := range lines {
			for _, m := range filePathRe.FindAllStringSubmatch(line, -1) {
				out = appendUnique(out, FileChanged, m[1])
			}
		}
	}
	if len(out) == 0 && diffKeywordRe.MatchString(text) {
		out = append(out, Detection{Kind: FileChanged})
	}
	if len(out) > maxPerKind {
		out = out[:maxPerKind]
	}
	return out
}

func detectCompletion(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func detectErrors(lines []string) []Detection {
	var out []Detection
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := errorRe.FindStringSubmatch(line); m != nil {
			out = appendUnique(out, ErrorOccurred, m[1])
		} else if m := exitCodeRe.FindStringSubmatch(line); m != nil && strings.TrimLeft(m[1], "0") != "" {
			out = appendUnique(out, ErrorOccurred, "exit code "+m[1])
		}
		if len(out) >= maxPerKind {
			break
		}
	}
	return out
}

func detectNotifications(lines []string) []Detection {
	var out []Detection
	for _, line := range lines {
		if m := notifyRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = appendUnique(out, ProviderNotification, m[1])
		}
		if len(out) >= maxPerKind {
			break
		}
	}
	return out
}

func appendUnique(out []Detection, kind Kind, text string) []Detection {
	text = excerpt(text)
	if text == "" {
		return out
	}
	for _, d := range out {
		if d.Kind == kind && d.Text == text {
			return out
		}
	}
	return append(out, Detection{Kind: kind, Text: text})
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxExcerpt {
		return s
	}
	r := []rune(s)
	return string(r[:MaxExcerpt])
}
