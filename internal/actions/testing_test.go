package actions

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hooktrace/internal/hooks"
	"github.com/dotcommander/hooktrace/internal/metrics"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/publisher"
	"github.com/dotcommander/hooktrace/internal/store"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// setupTestDB creates a migrated database in a temp dir and returns it with
// its path so tests can open additional connections.
func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.InitDBWithPath(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db, dbPath
}

type sentEvent struct {
	Handle string
	Event  publisher.Event
}

type sentScore struct {
	Handle string
	Score  publisher.Score
}

// fakePublisher records everything the pipeline buffers.
type fakePublisher struct {
	mu     sync.Mutex
	traces []publisher.TraceRecord
	events []sentEvent
	scores []sentScore
}

func (f *fakePublisher) NewHandle() string { return uuid.NewString() }

func (f *fakePublisher) CreateRemoteTrace(rec publisher.TraceRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces = append(f.traces, rec)
	return rec.ID, nil
}

func (f *fakePublisher) AppendEvent(handle string, ev publisher.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Handle: handle, Event: ev})
	return nil
}

func (f *fakePublisher) AppendScore(handle string, s publisher.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, sentScore{Handle: handle, Score: s})
	return nil
}

func (f *fakePublisher) eventNames() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event.Name)
	}
	return out
}

func newTestPipeline(db *sql.DB, pub Publisher, policy hooks.Policy) *Pipeline {
	return NewPipeline(db, hooks.NewRouter(policy, hooks.Capture{}), pub, metrics.DefaultThresholds(), nil)
}

func event(t *testing.T, js string) *models.Event {
	t.Helper()
	ev, err := models.ParseEvent([]byte(js), t0)
	require.NoError(t, err)
	return ev
}
