package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultWorkspaceID is used when the host reports no workspace at all.
const DefaultWorkspaceID = "default"

// OrphanConversationPrefix marks synthetic conversation ids for events that
// carry no conversation identity.
const OrphanConversationPrefix = "orphan_"

// ParseEvent decodes one hook payload. Only a missing document or a missing
// hook_event_name is an error; every other field degrades to its zero value.
// The hook tag is resolved but an unknown tag is not an error here: the router
// decides that.
func ParseEvent(data []byte, now time.Time) (*Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &MalformedInputError{Reason: "empty input", Bytes: len(data)}
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &MalformedInputError{Reason: "invalid JSON object", Bytes: len(data), Err: err}
	}
	if raw == nil {
		return nil, &MalformedInputError{Reason: "null document", Bytes: len(data)}
	}

	name := strings.TrimSpace(stringField(raw, "hook_event_name"))
	if name == "" {
		return nil, &MalformedInputError{Reason: "missing hook_event_name", Bytes: len(data)}
	}

	ev := &Event{
		HookEventName: name,
		GenerationID:  stringField(raw, "generation_id"),
		Timestamp:     timeField(raw, "timestamp", now),
		Raw:           raw,
	}
	ev.Hook, ev.Known = ResolveHookName(name)
	ev.ConversationID = resolveConversationID(raw)
	ev.WorkspaceID = resolveWorkspaceID(raw)
	ev.Payload = decodePayload(raw)
	return ev, nil
}

func resolveConversationID(raw map[string]any) string {
	for _, key := range []string{"conversation_id", "session_id", "generation_id"} {
		if v := strings.TrimSpace(stringField(raw, key)); v != "" {
			return v
		}
	}
	return OrphanConversationPrefix + uuid.NewString()
}

func resolveWorkspaceID(raw map[string]any) string {
	if v := strings.TrimSpace(stringField(raw, "workspace_id")); v != "" {
		return v
	}
	if roots, ok := raw["workspace_roots"].([]any); ok {
		for _, r := range roots {
			if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	if v := strings.TrimSpace(stringField(raw, "cwd")); v != "" {
		return v
	}
	return DefaultWorkspaceID
}

func decodePayload(raw map[string]any) Payload {
	p := Payload{
		ToolCallID:   firstString(raw, "tool_call_id", "tool_use_id"),
		ToolName:     firstString(raw, "tool_name", "server"),
		ToolInput:    rawField(raw, "tool_input"),
		ToolOutput:   firstRaw(raw, "result_json", "tool_output", "tool_response"),
		Command:      stringField(raw, "command"),
		CWD:          stringField(raw, "cwd"),
		Output:       stringField(raw, "output"),
		ExitCode:     intField(raw, "exit_code"),
		Accepted:     boolField(raw, "accepted"),
		Error:        stringField(raw, "error"),
		Status:       stringField(raw, "status"),
		DurationMS:   int64Field(raw, "duration_ms"),
		FilePath:     firstString(raw, "file_path", "path"),
		Content:      stringField(raw, "content"),
		Diff:         stringField(raw, "diff"),
		LinesAdded:   intField(raw, "lines_added"),
		LinesRemoved: intField(raw, "lines_removed"),
		Prompt:       stringField(raw, "prompt"),
		Text:         firstString(raw, "text", "response"),
		Model:        stringField(raw, "model"),
		UserEmail:    stringField(raw, "user_email"),
	}

	if edits, ok := raw["edits"].([]any); ok {
		for _, e := range edits {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			p.Edits = append(p.Edits, Edit{
				OldString: stringField(m, "old_string"),
				NewString: stringField(m, "new_string"),
			})
		}
	}
	return p
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringField(raw, k); v != "" {
			return v
		}
	}
	return ""
}

func intField(raw map[string]any, key string) *int {
	v := int64Field(raw, key)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func int64Field(raw map[string]any, key string) *int64 {
	switch v := raw[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		n := int64(v)
		return &n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

func boolField(raw map[string]any, key string) *bool {
	switch v := raw[key].(type) {
	case bool:
		return &v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return &b
	default:
		return nil
	}
}

func rawField(raw map[string]any, key string) json.RawMessage {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func firstRaw(raw map[string]any, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v := rawField(raw, k); v != nil {
			return v
		}
	}
	return nil
}

// timeField accepts RFC3339 strings and unix timestamps in seconds or
// milliseconds. Anything else falls back to now.
func timeField(raw map[string]any, key string, now time.Time) time.Time {
	switch v := raw[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
			return t.UTC()
		}
	case float64:
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return now
		}
		if v >= 1e12 {
			return time.UnixMilli(int64(v)).UTC()
		}
		return time.Unix(int64(v), 0).UTC()
	}
	return now
}
