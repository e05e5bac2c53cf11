package hooks

import (
	"encoding/json"
	"fmt"
)

const (
	defaultPreviewChars = 2000
	// maxEventBytes caps one serialized observability record.
	maxEventBytes = 32 * 1024
	redacted      = "[redacted]"
)

// Capture controls how much payload text reaches the backend.
type Capture struct {
	PreviewChars  int
	RedactPrompts bool
}

func (c Capture) normalized() Capture {
	if c.PreviewChars <= 0 {
		c.PreviewChars = defaultPreviewChars
	}
	return c
}

// text truncates s to the preview length and reports whether it was cut.
func (c Capture) text(s string) (string, bool) {
	return truncateString(s, c.PreviewChars)
}

// prompt returns the prompt as it may be sent.
func (c Capture) prompt(s string) string {
	if c.RedactPrompts && s != "" {
		return redacted
	}
	out, _ := c.text(s)
	return out
}

// raw returns a JSON payload as-is when it fits the preview, else a
// truncated string.
func (c Capture) raw(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	if len([]rune(string(b))) <= c.PreviewChars && json.Valid(b) {
		return b
	}
	out, _ := c.text(string(b))
	return out
}

func truncateString(raw string, limit int) (string, bool) {
	if limit <= 0 {
		return raw, false
	}
	runes := []rune(raw)
	if len(runes) <= limit {
		return raw, false
	}
	return string(runes[:limit]), true
}

// fitEvent sheds previews until the record fits maxEventBytes: output first,
// then input, then everything but the identifying metadata.
func fitEvent(e *EventDesc) {
	if eventSize(e) <= maxEventBytes {
		return
	}
	if e.Output != nil {
		e.Output = fmt.Sprintf("[omitted: %d bytes]", jsonSize(e.Output))
		e.Metadata["output_omitted"] = true
		if eventSize(e) <= maxEventBytes {
			return
		}
	}
	if e.Input != nil {
		e.Input = fmt.Sprintf("[omitted: %d bytes]", jsonSize(e.Input))
		e.Metadata["input_omitted"] = true
		if eventSize(e) <= maxEventBytes {
			return
		}
	}
	keep := map[string]any{"metadata_omitted": true}
	for _, k := range []string{"hook", "host_hook", "conversation_id", "workspace_id", "generation_id", "handler_version", "schema_version"} {
		if v, ok := e.Metadata[k]; ok {
			keep[k] = v
		}
	}
	e.Metadata = keep
}

func eventSize(e *EventDesc) int {
	return jsonSize(e.Input) + jsonSize(e.Output) + jsonSize(e.Metadata) + len(e.StatusMessage)
}

func jsonSize(v any) int {
	if v == nil {
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
