package hook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
		kind    string
		data    string
	}{
		{"full", `{"event":"start","worktree_id":"a","timestamp":1700000000000,"hook_data":{"x":1}}`, false, "start", `{"x":1}`},
		{"unknown kind kept", `{"event":"compacting","worktree_id":"a","timestamp":1}`, false, "compacting", "null"},
		{"explicit null", `{"event":"end","worktree_id":"a","timestamp":1,"hook_data":null}`, false, "end", "null"},
		{"extra fields", `{"event":"end","worktree_id":"a","timestamp":1,"pid":4}`, false, "end", "null"},
		{"garbage", `}{`, true, "", ""},
		{"binary", "\x00\xff\xfe", true, "", ""},
		{"no event", `{"worktree_id":"a"}`, true, "", ""},
		{"no worktree", `{"event":"start"}`, true, "", ""},
		{"string timestamp", `{"event":"start","worktree_id":"a","timestamp":"now"}`, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.JSONEq(t, tt.data, string(ev.HookData))
		})
	}
}

func TestMarshalLine(t *testing.T) {
	ev := Event{Kind: "start", WorktreeID: "a", Timestamp: 42, HookData: json.RawMessage("{\n  \"k\": 1\n}")}
	line, err := ev.MarshalLine()
	require.NoError(t, err)

	assert.Equal(t, byte('\n'), line[len(line)-1])
	assert.NotContains(t, string(line[:len(line)-1]), "\n")

	back, err := ParseLine(line[:len(line)-1])
	require.NoError(t, err)
	assert.Equal(t, int64(42), back.Timestamp)
}

func TestQueueUnboundedFIFO(t *testing.T) {
	quit := make(chan struct{})
	q := newQueue(quit)

	for i := 0; i < 1000; i++ {
		require.True(t, q.push(Event{Timestamp: int64(i)}))
	}
	for i := 0; i < 1000; i++ {
		assert.Equal(t, int64(i), (<-q.out).Timestamp)
	}

	close(quit)
	_, ok := <-q.out
	assert.False(t, ok)
	assert.False(t, q.push(Event{}))
}
