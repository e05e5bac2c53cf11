package publisher

import (
	"time"
)

// Ingestion item types.
const (
	TypeTraceCreate = "trace-create"
	TypeEventCreate = "event-create"
	TypeScoreCreate = "score-create"
)

// TraceRecord describes a trace at creation.
type TraceRecord struct {
	ID        string
	Name      string
	SessionID string
	UserID    string
	Timestamp time.Time
	Tags      []string
	Metadata  map[string]any
}

// Event is one observability event under a trace. An empty ID gets a fresh
// one; a fixed ID makes a resend update the same record.
type Event struct {
	ID            string
	Name          string
	Level         string
	StartTime     time.Time
	Input         any
	Output        any
	Metadata      map[string]any
	StatusMessage string
}

// Score is a numeric score attached to a trace. ID behaves as in Event.
type Score struct {
	ID        string
	Name      string
	Value     float64
	Comment   string
	Timestamp time.Time
}

// FlushResult summarizes one Flush.
type FlushResult struct {
	Items    int  `json:"items"`
	Batches  int  `json:"batches"`
	Accepted int  `json:"accepted"`
	Rejected int  `json:"rejected"`
	Skipped  bool `json:"skipped"`
}

type item struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Body      any    `json:"body"`
}

type batchRequest struct {
	Batch    []item         `json:"batch"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type batchResponse struct {
	Successes []itemStatus `json:"successes"`
	Errors    []itemStatus `json:"errors"`
}

type itemStatus struct {
	ID      string `json:"id"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

type traceBody struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Name        string         `json:"name,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Release     string         `json:"release,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type eventBody struct {
	ID            string         `json:"id"`
	TraceID       string         `json:"traceId"`
	Name          string         `json:"name"`
	StartTime     string         `json:"startTime"`
	Level         string         `json:"level,omitempty"`
	StatusMessage string         `json:"statusMessage,omitempty"`
	Input         any            `json:"input,omitempty"`
	Output        any            `json:"output,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Environment   string         `json:"environment,omitempty"`
	Version       string         `json:"version,omitempty"`
}

type scoreBody struct {
	ID          string  `json:"id"`
	TraceID     string  `json:"traceId"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	DataType    string  `json:"dataType"`
	Comment     string  `json:"comment,omitempty"`
	Environment string  `json:"environment,omitempty"`
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
