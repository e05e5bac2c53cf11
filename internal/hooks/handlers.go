package hooks

import (
	"github.com/dotcommander/hooktrace/internal/models"
)

func defaultHandlers() map[models.HookName]Handler {
	return map[models.HookName]Handler{
		models.HookConversationStart:  handleConversationStart,
		models.HookConversationEnd:    handleConversationEnd,
		models.HookPromptSubmit:       handlePromptSubmit,
		models.HookAgentResponse:      handleAgentResponse,
		models.HookAgentThought:       handleAgentThought,
		models.HookToolCallPre:        handleToolCallPre,
		models.HookToolCallPost:       handleToolCallPost,
		models.HookShellExecutionPre:  handleShellExecutionPre,
		models.HookShellExecutionPost: handleShellExecutionPost,
		models.HookFileRead:           handleFileRead,
		models.HookFileEdit:           handleFileEdit,
		models.HookFileCreate:         handleFileCreate,
	}
}

func proceed() *models.Response {
	return &models.Response{Continue: true}
}

func handleConversationStart(in Input) (Result, error) {
	meta := map[string]any{}
	if in.Event.Payload.UserEmail != "" {
		meta["user_email"] = in.Event.Payload.UserEmail
	}
	if in.Session != nil {
		meta["session_conversations"] = len(in.Session.ConversationIDs)
	}
	return Result{
		Response: proceed(),
		Event: EventDesc{
			Name:     "conversation-start",
			Metadata: meta,
		},
	}, nil
}

func handleConversationEnd(in Input) (Result, error) {
	status := models.ParseEndStatus(in.Event.Payload.Status)
	level := models.LevelDefault
	switch status {
	case models.EndStatusAborted:
		level = models.LevelWarning
	case models.EndStatusError:
		level = models.LevelError
	}
	return Result{
		Delta: models.StateDelta{End: status},
		Event: EventDesc{
			Name:          "conversation-end",
			Level:         level,
			StatusMessage: string(status),
			Metadata:      map[string]any{"end_status": string(status)},
		},
	}, nil
}

func handlePromptSubmit(in Input) (Result, error) {
	p := in.Event.Payload
	meta := map[string]any{
		"prompt_chars": len([]rune(p.Prompt)),
		"redacted":     in.Capture.RedactPrompts,
	}
	if attachments, ok := in.Event.Raw["attachments"].([]any); ok {
		meta["attachments"] = len(attachments)
	}
	return Result{
		Delta:    models.StateDelta{Prompts: 1},
		Response: proceed(),
		Event: EventDesc{
			Name:     "prompt",
			Input:    in.Capture.prompt(p.Prompt),
			Metadata: meta,
		},
	}, nil
}

func handleAgentResponse(in Input) (Result, error) {
	text, truncated := in.Capture.text(in.Event.Payload.Text)
	return Result{
		Delta: models.StateDelta{Responses: 1},
		Event: EventDesc{
			Name:   "agent-response",
			Output: text,
			Metadata: map[string]any{
				"response_chars":     len([]rune(in.Event.Payload.Text)),
				"response_truncated": truncated,
			},
		},
	}, nil
}

func handleAgentThought(in Input) (Result, error) {
	text, truncated := in.Capture.text(in.Event.Payload.Text)
	meta := map[string]any{
		"thought_chars":     len([]rune(in.Event.Payload.Text)),
		"thought_truncated": truncated,
	}
	if d := in.Event.Payload.DurationMS; d != nil {
		meta["duration_ms"] = *d
	}
	return Result{
		Delta: models.StateDelta{Thoughts: 1},
		Event: EventDesc{
			Name:     "agent-thought",
			Level:    models.LevelDebug,
			Output:   text,
			Metadata: meta,
		},
	}, nil
}

func handleToolCallPre(in Input) (Result, error) {
	p := in.Event.Payload
	decision := in.Policy.CheckTool(p.ToolName)
	return toolPre(in, decision, models.StateDelta{ToolCalls: 1}, "tool:"+nameOr(p.ToolName, "unknown"), in.Capture.raw(p.ToolInput), map[string]any{
		"tool_name": p.ToolName,
	})
}

func handleShellExecutionPre(in Input) (Result, error) {
	p := in.Event.Payload
	decision := in.Policy.CheckCommand(p.Command)
	command, _ := in.Capture.text(p.Command)
	meta := map[string]any{}
	if p.CWD != "" {
		meta["cwd"] = p.CWD
	}
	return toolPre(in, decision, models.StateDelta{ToolCalls: 1, ShellCalls: 1}, "shell", command, meta)
}

// toolPre is shared by the two permission-bearing tool hooks. A denied call
// never runs, so it opens no pairing row.
func toolPre(in Input, d Decision, delta models.StateDelta, name string, input any, meta map[string]any) (Result, error) {
	key, derived := callKey(in.Event)
	meta["call_key"] = key
	meta["permission"] = string(d.Permission)

	level := models.LevelDefault
	status := ""
	if d.Denied() {
		delta.ToolDenials = 1
		level = models.LevelWarning
		status = "denied by rule " + d.Rule
		meta["deny_rule"] = d.Rule
	} else if key != "" {
		delta.StartCall = &models.ToolCallStart{Key: key, At: in.Event.Timestamp, Derived: derived}
	}

	return Result{
		Delta:    delta,
		Response: in.Policy.response(d),
		Event: EventDesc{
			Name:          name + ":pre",
			Level:         level,
			Input:         input,
			Metadata:      meta,
			StatusMessage: status,
		},
	}, nil
}

func handleToolCallPost(in Input) (Result, error) {
	p := in.Event.Payload
	return toolPost(in, "tool:"+nameOr(p.ToolName, "unknown"), in.Capture.raw(p.ToolOutput), map[string]any{
		"tool_name": p.ToolName,
	})
}

func handleShellExecutionPost(in Input) (Result, error) {
	p := in.Event.Payload
	output, truncated := in.Capture.text(p.Output)
	meta := map[string]any{"output_truncated": truncated}
	if p.ExitCode != nil {
		meta["exit_code"] = *p.ExitCode
	}
	return toolPost(in, "shell", output, meta)
}

func toolPost(in Input, name string, output any, meta map[string]any) (Result, error) {
	p := in.Event.Payload
	key, derived := callKey(in.Event)
	success := outcome(p)

	meta["call_key"] = key
	meta["success"] = success
	if p.DurationMS != nil {
		meta["host_duration_ms"] = *p.DurationMS
	}

	level := models.LevelDefault
	status := ""
	if !success {
		level = models.LevelWarning
		status = failureReason(p)
	}

	return Result{
		Delta: models.StateDelta{
			FinishCall: &models.ToolCallFinish{Key: key, At: in.Event.Timestamp, Success: success, Derived: derived},
		},
		Event: EventDesc{
			Name:          name + ":post",
			Level:         level,
			Output:        output,
			Metadata:      meta,
			StatusMessage: status,
		},
	}, nil
}

func failureReason(p models.Payload) string {
	switch {
	case p.Error != "":
		s, _ := truncateString(p.Error, 500)
		return s
	case p.Accepted != nil && !*p.Accepted:
		return "rejected"
	case p.ExitCode != nil && *p.ExitCode != 0:
		return "non-zero exit"
	default:
		return "error"
	}
}

func handleFileRead(in Input) (Result, error) {
	p := in.Event.Payload
	d := in.Policy.CheckRead(p.FilePath)
	delta := models.StateDelta{FileReads: 1}
	meta := map[string]any{
		"file_path":  p.FilePath,
		"permission": string(d.Permission),
	}
	if p.Content != "" {
		meta["content_chars"] = len([]rune(p.Content))
	}

	level := models.LevelDefault
	status := ""
	if d.Denied() {
		delta.ToolDenials = 1
		level = models.LevelWarning
		status = "denied by rule " + d.Rule
		meta["deny_rule"] = d.Rule
	}
	return Result{
		Delta:    delta,
		Response: in.Policy.response(d),
		Event: EventDesc{
			Name:          "file-read",
			Level:         level,
			Input:         p.FilePath,
			Metadata:      meta,
			StatusMessage: status,
		},
	}, nil
}

func handleFileEdit(in Input) (Result, error) {
	p := in.Event.Payload
	added, removed := editLines(p)
	meta := map[string]any{
		"file_path":     p.FilePath,
		"lines_added":   added,
		"lines_removed": removed,
		"edit_count":    len(p.Edits),
	}
	var output any
	if p.Diff != "" {
		output, _ = in.Capture.text(p.Diff)
	}
	return Result{
		Delta: models.StateDelta{
			Edits:        1,
			LinesAdded:   added,
			LinesRemoved: removed,
			FilePath:     p.FilePath,
		},
		Event: EventDesc{
			Name:     "file-edit",
			Input:    p.FilePath,
			Output:   output,
			Metadata: meta,
		},
	}, nil
}

func handleFileCreate(in Input) (Result, error) {
	p := in.Event.Payload
	added := createLines(p)
	return Result{
		Delta: models.StateDelta{
			Edits:      1,
			LinesAdded: added,
			FilePath:   p.FilePath,
		},
		Event: EventDesc{
			Name:  "file-create",
			Input: p.FilePath,
			Metadata: map[string]any{
				"file_path":   p.FilePath,
				"lines_added": added,
			},
		},
	}, nil
}

func nameOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
