package activity

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(ds []Detection) map[Kind][]string {
	out := map[Kind][]string{}
	for _, d := range ds {
		out[d.Kind] = append(out[d.Kind], d.Text)
	}
	return out
}

func TestCommandAndCompletion(t *testing.T) {
	got := Detect("$ npm test\nAll tests passed\n")

	require.Len(t, got, 2)
	assert.Contains(t, got, Detection{Kind: CommandExecuted, Text: "npm test"})
	assert.Contains(t, got, Detection{Kind: TaskCompleted})
}

func TestErrorExcerpt(t *testing.T) {
	got := Detect("writing snapshot\nError: disk full\n")
	assert.Equal(t, []string{"disk full"}, kinds(got)[ErrorOccurred])
}

func TestNoMarkers(t *testing.T) {
	for _, in := range []string{
		"",
		"   \n\n",
		"hello world\nthinking about the problem\n",
		"exit code 0\n",
	} {
		assert.Empty(t, Detect(in), "input %q", in)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
		want  []string
	}{
		{"prompt with host", "dev@box:~/repo$ go test ./...\n", CommandExecuted, []string{"go test ./..."}},
		{"fancy prompt", "❯ cargo build\n", CommandExecuted, []string{"cargo build"}},
		{"verb file", "Updated file internal/ui/home.go with new keys\n", FileChanged, []string{"internal/ui/home.go"}},
		{"wrote", "Wrote `README.md`\n", FileChanged, []string{"README.md"}},
		{"extension path", "looking at cmd/panedeck/main.go now\n", FileChanged, []string{"cmd/panedeck/main.go"}},
		{"diff fallback", "diff --git a/x b/x\n@@ -1 +1 @@\n", FileChanged, []string{""}},
		{"exception", "java.lang.Exception: boom\n", ErrorOccurred, []string{"boom"}},
		{"failed prefix", "FAILED: lint\n", ErrorOccurred, []string{"lint"}},
		{"exit code", "process exited with code 2\n", ErrorOccurred, []string{"exit code 2"}},
		{"exit code colon", "Exit code: 127\n", ErrorOccurred, []string{"exit code 127"}},
		{"claude note", "Claude: waiting for your input\n", ProviderNotification, []string{"waiting for your input"}},
		{"assistant note", "  assistant: done planning\n", ProviderNotification, []string{"done planning"}},
		{"completion phrase case", "BUILD SUCCEEDED in 3s\n", TaskCompleted, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Detect(tt.input))
			assert.Equal(t, tt.want, got[tt.kind])
		})
	}
}

func TestMultipleDetectionsInOneChunk(t *testing.T) {
	in := "$ make\nerror: undefined: foo\nCreated main_test.go\nagent: retrying\n"
	got := kinds(Detect(in))

	assert.Equal(t, []string{"make"}, got[CommandExecuted])
	assert.Equal(t, []string{"undefined: foo"}, got[ErrorOccurred])
	assert.Equal(t, []string{"main_test.go"}, got[FileChanged])
	assert.Equal(t, []string{"retrying"}, got[ProviderNotification])
	assert.Empty(t, got[TaskCompleted])
}

func TestStripsEscapes(t *testing.T) {
	in := "\x1b[1;31mError:\x1b[0m \x1b[33mdisk full\x1b[0m\r\n"
	assert.Equal(t, []string{"disk full"}, kinds(Detect(in))[ErrorOccurred])
}

func TestDuplicatesCollapse(t *testing.T) {
	in := strings.Repeat("Error: disk full\n", 50)
	assert.Len(t, Detect(in), 1)
}

func TestExcerptCapped(t *testing.T) {
	in := "Error: " + strings.Repeat("é", 5000) + "\n"
	got := kinds(Detect(in))[ErrorOccurred]
	require.Len(t, got, 1)
	assert.Equal(t, MaxExcerpt, utf8.RuneCountInString(got[0]))
}

func TestPerKindCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("Error: case ")
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteByte('\n')
	}
	assert.Len(t, kinds(Detect(sb.String()))[ErrorOccurred], maxPerKind)
}

func TestBinaryInputNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	buf := make([]byte, 4096)
	for i := 0; i < 200; i++ {
		rng.Read(buf)
		assert.NotPanics(t, func() {
			for _, d := range Detect(string(buf)) {
				assert.True(t, utf8.ValidString(d.Text))
			}
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "command", CommandExecuted.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
