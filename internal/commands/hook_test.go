package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hooktrace/internal/hooks"
	"github.com/dotcommander/hooktrace/internal/metrics"
	"github.com/dotcommander/hooktrace/internal/publisher"
)

type ingestItem struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Body map[string]any `json:"body"`
}

// backend is an httptest ingestion endpoint that records every item.
type backend struct {
	mu     sync.Mutex
	items  []ingestItem
	status int
	calls  int
}

func newBackend(t *testing.T, status int) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls++
		if b.status >= 300 {
			w.WriteHeader(b.status)
			return
		}
		var batch struct {
			Batch []ingestItem `json:"batch"`
		}
		if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.items = append(b.items, batch.Batch...)
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"successes":[],"errors":[]}`))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) ofType(typ string) []ingestItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ingestItem
	for _, it := range b.items {
		if it.Type == typ {
			out = append(out, it)
		}
	}
	return out
}

func (b *backend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestRunner(t *testing.T, host string) *hookRunner {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "hooktrace.db")
	return &hookRunner{
		dbPath: func() (string, error) { return dbPath, nil },
		backend: publisher.Config{
			Host:         host,
			PublicKey:    "pk-test",
			SecretKey:    "sk-test",
			Environment:  "test",
			FlushTimeout: 2 * time.Second,
		},
		thresholds: metrics.DefaultThresholds(),
		now:        time.Now,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func runHook(t *testing.T, r *hookRunner, stdin string) (string, int) {
	t.Helper()
	var out bytes.Buffer
	code := runHookGuarded(context.Background(), r, strings.NewReader(stdin), &out)
	return out.String(), code
}

func TestHook_ConversationScenario(t *testing.T) {
	b, srv := newBackend(t, http.StatusMultiStatus)
	r := newTestRunner(t, srv.URL)

	out, code := runHook(t, r, `{"hook_event_name":"conversationStart","conversation_id":"C1","workspace_id":"W1"}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"continue":true}`, out)

	out, code = runHook(t, r, `{"hook_event_name":"toolCallPre","conversation_id":"C1","workspace_id":"W1","tool_call_id":"t1","tool_name":"search"}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"continue":true,"permission":"allow"}`, out)

	out, code = runHook(t, r, `{"hook_event_name":"toolCallPost","conversation_id":"C1","workspace_id":"W1","tool_call_id":"t1","tool_name":"search","accepted":true}`)
	require.Equal(t, 0, code)
	require.Empty(t, out)

	out, code = runHook(t, r, `{"hook_event_name":"conversationEnd","conversation_id":"C1","workspace_id":"W1"}`)
	require.Equal(t, 0, code)
	require.Empty(t, out)

	traces := b.ofType(publisher.TypeTraceCreate)
	require.Len(t, traces, 1)
	handle, _ := traces[0].Body["id"].(string)
	require.NotEmpty(t, handle)

	events := b.ofType(publisher.TypeEventCreate)
	require.GreaterOrEqual(t, len(events), 3)
	for _, e := range events {
		require.Equal(t, handle, e.Body["traceId"])
	}
	scores := b.ofType(publisher.TypeScoreCreate)
	require.NotEmpty(t, scores)
	for _, s := range scores {
		require.Equal(t, handle, s.Body["traceId"])
	}
}

func TestHook_UnknownHookWritesNothing(t *testing.T) {
	b, srv := newBackend(t, http.StatusMultiStatus)
	r := newTestRunner(t, srv.URL)

	out, code := runHook(t, r, `{"hook_event_name":"somethingNew","conversation_id":"c"}`)
	require.Equal(t, 0, code)
	require.Empty(t, out)
	require.Zero(t, b.callCount(), "nothing buffered, nothing sent")

	path, err := r.dbPath()
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "unknown hooks never open the store")
}

func TestHook_MalformedInputFallsBack(t *testing.T) {
	_, srv := newBackend(t, http.StatusMultiStatus)
	r := newTestRunner(t, srv.URL)

	for name, stdin := range map[string]string{
		"empty":        "",
		"whitespace":   "  \n",
		"invalid json": "{",
		"not object":   "[1,2]",
		"no hook name": `{"conversation_id":"c"}`,
		"oversized":    `{"hook_event_name":"promptSubmit","prompt":"` + strings.Repeat("x", maxHookStdinBytes) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			out, code := runHook(t, r, stdin)
			require.Equal(t, 1, code)
			require.Equal(t, "{\"continue\":true,\"permission\":\"allow\"}\n", out)
		})
	}
}

func TestHook_StoreFailureFallsBack(t *testing.T) {
	_, srv := newBackend(t, http.StatusMultiStatus)
	r := newTestRunner(t, srv.URL)
	r.dbPath = func() (string, error) { return "", errors.New("no home") }

	out, code := runHook(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","command":"ls"}`)
	require.Equal(t, 1, code)
	require.JSONEq(t, `{"continue":true,"permission":"allow"}`, out)
	require.Equal(t, 1, strings.Count(out, "\n"), "exactly one response line")
}

func TestHook_DenyResponse(t *testing.T) {
	_, srv := newBackend(t, http.StatusMultiStatus)
	r := newTestRunner(t, srv.URL)
	r.policy = hooks.Policy{DenyCommands: []string{"rm -rf *"}, DenyMessage: "nope"}

	out, code := runHook(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","command":"rm -rf /"}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"continue":true,"permission":"deny","user_message":"nope","agent_message":"nope"}`, out)
}

func TestHook_BackendFailureKeepsResponseAndStatus(t *testing.T) {
	b, srv := newBackend(t, http.StatusUnauthorized)
	r := newTestRunner(t, srv.URL)

	out, code := runHook(t, r, `{"hook_event_name":"beforeSubmitPrompt","conversation_id":"c","prompt":"hi"}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"continue":true}`, out)
	require.Equal(t, 1, b.callCount(), "client errors are not retried")
}

func TestHook_DisabledBackendStillCorrelates(t *testing.T) {
	r := newTestRunner(t, "")
	r.backend = publisher.Config{}

	out, code := runHook(t, r, `{"hook_event_name":"sessionStart","conversation_id":"c","workspace_roots":["/w"]}`)
	require.Equal(t, 0, code)
	require.JSONEq(t, `{"continue":true}`, out)

	path, err := r.dbPath()
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 1, ExitCode(errors.New("boom")))
	require.Equal(t, 1, ExitCode(exitError{code: 1}))
}
