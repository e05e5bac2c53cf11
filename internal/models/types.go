package models

import (
	"encoding/json"
	"time"
)

// Permission is the decision returned to the host for permission-bearing hooks.
type Permission string

// Permission values.
const (
	PermissionAllow Permission = "allow"
	PermissionDeny  Permission = "deny"
)

// EndStatus is the terminal state reported by the conversationEnd hook.
type EndStatus string

// End status values. An empty EndStatus means the conversation is still open.
const (
	EndStatusCompleted EndStatus = "completed"
	EndStatusAborted   EndStatus = "aborted"
	EndStatusError     EndStatus = "error"
)

// ParseEndStatus normalizes a host-reported status. Unknown values map to
// completed since the end hook firing is itself a terminal state.
func ParseEndStatus(raw string) EndStatus {
	switch EndStatus(raw) {
	case EndStatusAborted, EndStatusError:
		return EndStatus(raw)
	default:
		return EndStatusCompleted
	}
}

// Response is the JSON object written to stdout for the host.
type Response struct {
	Continue     bool       `json:"continue"`
	Permission   Permission `json:"permission,omitempty"`
	UserMessage  string     `json:"user_message,omitempty"`
	AgentMessage string     `json:"agent_message,omitempty"`
}

// FallbackResponse is the fixed permissive response emitted on internal failure.
func FallbackResponse() Response {
	return Response{Continue: true, Permission: PermissionAllow}
}

// Edit is one old/new replacement reported by an edit hook.
type Edit struct {
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// Payload is the typed view of hook-specific fields. Every field is optional;
// malformed values decode as zero.
type Payload struct {
	ToolCallID   string
	ToolName     string
	ToolInput    json.RawMessage
	ToolOutput   json.RawMessage
	Command      string
	CWD          string
	Output       string
	ExitCode     *int
	Accepted     *bool
	Error        string
	Status       string
	DurationMS   *int64
	FilePath     string
	Content      string
	Edits        []Edit
	Diff         string
	LinesAdded   *int
	LinesRemoved *int
	Prompt       string
	Text         string
	Model        string
	UserEmail    string
}

// Event is one hook invocation's input. It is never mutated after ParseEvent.
type Event struct {
	HookEventName  string
	Hook           HookName
	Known          bool
	ConversationID string
	WorkspaceID    string
	GenerationID   string
	Timestamp      time.Time
	Payload        Payload
	Raw            map[string]any
}

// TraceStats are the accumulated per-conversation counters.
type TraceStats struct {
	Prompts        int       `json:"prompts"`
	Responses      int       `json:"responses"`
	Thoughts       int       `json:"thoughts"`
	ToolCalls      int       `json:"tool_calls"`
	ToolSuccesses  int       `json:"tool_successes"`
	ToolFailures   int       `json:"tool_failures"`
	ToolDenials    int       `json:"tool_denials"`
	ShellCalls     int       `json:"shell_calls"`
	FileReads      int       `json:"file_reads"`
	Edits          int       `json:"edits"`
	LinesAdded     int       `json:"lines_added"`
	LinesRemoved   int       `json:"lines_removed"`
	FilesTouched   int       `json:"files_touched"`
	TimedToolCalls int       `json:"timed_tool_calls"`
	ToolDurationMS int64     `json:"tool_duration_ms"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndStatus      EndStatus `json:"end_status,omitempty"`
}

// Trace is the aggregated record of one conversation.
type Trace struct {
	ConversationID string     `json:"conversation_id"`
	WorkspaceID    string     `json:"workspace_id"`
	Handle         string     `json:"handle"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndStatus      EndStatus  `json:"end_status,omitempty"`
	Stats          TraceStats `json:"stats"`
	Tags           []string   `json:"tags"`
	Score          *float64   `json:"score,omitempty"`
	EventCount     int        `json:"event_count"`
}

// Session is the aggregated record of one workspace.
type Session struct {
	WorkspaceID     string    `json:"workspace_id"`
	RemoteSessionID string    `json:"remote_session_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	ConversationIDs []string  `json:"conversation_ids"`
}

// ToolCallStart opens a tool invocation for duration pairing. Derived marks a
// key computed locally rather than supplied by the host; such keys repeat when
// the same command runs twice in one generation.
type ToolCallStart struct {
	Key     string
	At      time.Time
	Derived bool
}

// ToolCallFinish closes a tool invocation.
type ToolCallFinish struct {
	Key     string
	At      time.Time
	Success bool
	Derived bool
}

// StateDelta is the change a handler asks the store to apply. Counter fields
// are increments, never absolute values.
type StateDelta struct {
	Prompts      int
	Responses    int
	Thoughts     int
	ToolCalls    int
	ToolDenials  int
	ShellCalls   int
	FileReads    int
	Edits        int
	LinesAdded   int
	LinesRemoved int
	FilePath     string
	StartCall    *ToolCallStart
	FinishCall   *ToolCallFinish
	End          EndStatus
}

// IsZero reports whether the delta changes nothing beyond activity time.
func (d StateDelta) IsZero() bool {
	return d == StateDelta{}
}

// ToolCallResult is what the store observed when finishing a tool call.
// DurationMS is nil when no matching start was recorded. Duplicate is set when
// the call had already been finished by an earlier event; its outcome is not
// counted twice.
type ToolCallResult struct {
	Key        string
	Success    bool
	DurationMS *int64
	Duplicate  bool
}
