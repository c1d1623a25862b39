package statedb

import (
	"log/slog"
	"sync"
	"time"

	"github.com/twistedxcom/panedeck/internal/logging"
)

var journalLog = logging.ForComponent(logging.CompStorage)

const (
	// DefaultJournalBuffer is how many rows may wait for the writer.
	DefaultJournalBuffer = 256
	// DefaultJournalKeep bounds the table; older rows are pruned.
	DefaultJournalKeep = 10000

	journalBatch      = 64
	journalFlushEvery = 250 * time.Millisecond
	pruneEvery        = 500
)

// Journal writes hook event rows on a background goroutine. Record never
// blocks: when the buffer is full the row is dropped.
type Journal struct {
	db      *StateDB
	keep    int
	rows    chan HookEventRow
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	written int
}

// JournalOptions tunes a Journal. Zero values use the defaults.
type JournalOptions struct {
	Buffer int
	Keep   int
}

// NewJournal starts the writer goroutine.
func NewJournal(db *StateDB, opts JournalOptions) *Journal {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultJournalBuffer
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultJournalKeep
	}
	j := &Journal{
		db:   db,
		keep: opts.Keep,
		rows: make(chan HookEventRow, opts.Buffer),
		done: make(chan struct{}),
	}
	go j.run()
	return j
}

// Record queues a row. It returns false when the row was dropped.
func (j *Journal) Record(r HookEventRow) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return false
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now()
	}
	select {
	case j.rows <- r:
		return true
	default:
		logging.Aggregate(logging.CompStorage, "journal_row_dropped", slog.String("worktree", r.WorktreeID))
		return false
	}
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(journalFlushEvery)
	defer ticker.Stop()

	batch := make([]HookEventRow, 0, journalBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.db.InsertHookEvents(batch); err != nil {
			journalLog.Warn("journal_write_failed", slog.Int("rows", len(batch)), slog.String("error", err.Error()))
		} else {
			j.written += len(batch)
			_ = j.db.Touch()
			if j.written >= pruneEvery {
				j.written = 0
				if n, err := j.db.PruneHookEvents(j.keep); err == nil && n > 0 {
					journalLog.Debug("journal_pruned", slog.Int64("rows", n))
				}
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-j.rows:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= journalBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting rows, writes what is queued and waits for the
// writer. It does not close the database.
func (j *Journal) Close() {
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.rows)
		j.mu.Unlock()
	})
	<-j.done
}
