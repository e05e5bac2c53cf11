package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hooktrace/internal/models"
)

func dispatch(t *testing.T, r *Router, js string) Result {
	t.Helper()
	res, err := r.Dispatch(parse(t, js), &models.Trace{}, &models.Session{})
	require.NoError(t, err)
	return res
}

func TestHandlers_ResponsesByCategory(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	cases := []struct {
		js       string
		respond  bool
		permPres bool
	}{
		{`{"hook_event_name":"sessionStart","conversation_id":"c"}`, true, false},
		{`{"hook_event_name":"stop","conversation_id":"c"}`, false, false},
		{`{"hook_event_name":"beforeSubmitPrompt","conversation_id":"c","prompt":"p"}`, true, false},
		{`{"hook_event_name":"afterAgentResponse","conversation_id":"c","text":"t"}`, false, false},
		{`{"hook_event_name":"afterAgentThought","conversation_id":"c","text":"t"}`, false, false},
		{`{"hook_event_name":"beforeMCPExecution","conversation_id":"c","tool_name":"x"}`, true, true},
		{`{"hook_event_name":"afterMCPExecution","conversation_id":"c","tool_name":"x"}`, false, false},
		{`{"hook_event_name":"beforeShellExecution","conversation_id":"c","command":"ls"}`, true, true},
		{`{"hook_event_name":"afterShellExecution","conversation_id":"c","command":"ls"}`, false, false},
		{`{"hook_event_name":"beforeReadFile","conversation_id":"c","file_path":"a.go"}`, true, true},
		{`{"hook_event_name":"afterFileEdit","conversation_id":"c","file_path":"a.go"}`, false, false},
		{`{"hook_event_name":"fileCreate","conversation_id":"c","file_path":"a.go"}`, false, false},
	}
	for _, tc := range cases {
		res := dispatch(t, r, tc.js)
		if !tc.respond {
			require.Nil(t, res.Response, tc.js)
			continue
		}
		require.NotNil(t, res.Response, tc.js)
		require.True(t, res.Response.Continue, tc.js)
		if tc.permPres {
			require.Equal(t, models.PermissionAllow, res.Response.Permission, tc.js)
		} else {
			require.Empty(t, res.Response.Permission, tc.js)
		}
	}
}

func TestHandlers_CounterDeltas(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	require.Equal(t, 1, dispatch(t, r, `{"hook_event_name":"promptSubmit","conversation_id":"c"}`).Delta.Prompts)
	require.Equal(t, 1, dispatch(t, r, `{"hook_event_name":"agentResponse","conversation_id":"c"}`).Delta.Responses)
	require.Equal(t, 1, dispatch(t, r, `{"hook_event_name":"agentThought","conversation_id":"c"}`).Delta.Thoughts)
	require.Equal(t, 1, dispatch(t, r, `{"hook_event_name":"fileRead","conversation_id":"c"}`).Delta.FileReads)

	shell := dispatch(t, r, `{"hook_event_name":"shellExecutionPre","conversation_id":"c","command":"go test"}`).Delta
	require.Equal(t, 1, shell.ToolCalls)
	require.Equal(t, 1, shell.ShellCalls)

	start := dispatch(t, r, `{"hook_event_name":"conversationStart","conversation_id":"c"}`)
	require.True(t, start.Delta.IsZero())
}

func TestHandlers_ConversationEndStatus(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	res := dispatch(t, r, `{"hook_event_name":"stop","conversation_id":"c"}`)
	require.Equal(t, models.EndStatusCompleted, res.Delta.End)
	require.Equal(t, models.LevelDefault, res.Event.Level)

	res = dispatch(t, r, `{"hook_event_name":"stop","conversation_id":"c","status":"aborted"}`)
	require.Equal(t, models.EndStatusAborted, res.Delta.End)
	require.Equal(t, models.LevelWarning, res.Event.Level)

	res = dispatch(t, r, `{"hook_event_name":"sessionEnd","conversation_id":"c","status":"error"}`)
	require.Equal(t, models.EndStatusError, res.Delta.End)
	require.Equal(t, models.LevelError, res.Event.Level)
}

func TestHandlers_ToolPairing(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	pre := dispatch(t, r, `{"hook_event_name":"toolCallPre","conversation_id":"c","tool_call_id":"t1","tool_name":"search","tool_input":{"q":"x"}}`)
	require.Equal(t, 1, pre.Delta.ToolCalls)
	require.NotNil(t, pre.Delta.StartCall)
	require.Equal(t, "t1", pre.Delta.StartCall.Key)
	require.False(t, pre.Delta.StartCall.Derived, "host ids are not derived")
	require.Equal(t, now, pre.Delta.StartCall.At)
	require.Equal(t, "tool:search:pre", pre.Event.Name)

	post := dispatch(t, r, `{"hook_event_name":"toolCallPost","conversation_id":"c","tool_call_id":"t1","tool_name":"search","accepted":true}`)
	require.NotNil(t, post.Delta.FinishCall)
	require.Equal(t, "t1", post.Delta.FinishCall.Key)
	require.True(t, post.Delta.FinishCall.Success)
	require.Equal(t, 0, post.Delta.ToolCalls, "a post does not count a second call")
}

func TestHandlers_DerivedKeyMatchesAcrossPrePost(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	pre := dispatch(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","generation_id":"g1","command":"make test"}`)
	post := dispatch(t, r, `{"hook_event_name":"afterShellExecution","conversation_id":"c","generation_id":"g1","command":"make test","exit_code":2}`)

	require.NotEmpty(t, pre.Delta.StartCall.Key)
	require.Equal(t, pre.Delta.StartCall.Key, post.Delta.FinishCall.Key)
	require.True(t, pre.Delta.StartCall.Derived)
	require.True(t, post.Delta.FinishCall.Derived)
	require.False(t, post.Delta.FinishCall.Success)
	require.Equal(t, models.LevelWarning, post.Event.Level)
	require.Equal(t, "non-zero exit", post.Event.StatusMessage)

	other := dispatch(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","generation_id":"g2","command":"make test"}`)
	require.NotEqual(t, pre.Delta.StartCall.Key, other.Delta.StartCall.Key)

	unpaired := dispatch(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","command":"make test"}`)
	require.Nil(t, unpaired.Delta.StartCall)
}

func TestOutcome(t *testing.T) {
	f, tr := false, true
	one, zero := 1, 0
	require.True(t, outcome(models.Payload{}))
	require.True(t, outcome(models.Payload{Accepted: &tr, ExitCode: &zero}))
	require.False(t, outcome(models.Payload{Accepted: &f}))
	require.False(t, outcome(models.Payload{ExitCode: &one}))
	require.False(t, outcome(models.Payload{Error: "timeout"}))
	require.False(t, outcome(models.Payload{Status: "error"}))
}

func TestHandlers_PolicyDenials(t *testing.T) {
	r := NewRouter(Policy{
		DenyCommands:  []string{"rm -rf *"},
		DenyTools:     []string{"github.delete_*"},
		DenyReadPaths: []string{"*.pem", "secrets/**"},
		DenyMessage:   "nope",
	}, Capture{})

	res := dispatch(t, r, `{"hook_event_name":"beforeShellExecution","conversation_id":"c","generation_id":"g","command":"rm -rf /"}`)
	require.Equal(t, models.PermissionDeny, res.Response.Permission)
	require.Equal(t, "nope", res.Response.UserMessage)
	require.Equal(t, "nope", res.Response.AgentMessage)
	require.True(t, res.Response.Continue)
	require.Equal(t, 1, res.Delta.ToolDenials)
	require.Equal(t, 1, res.Delta.ToolCalls)
	require.Nil(t, res.Delta.StartCall, "denied calls never run")
	require.Equal(t, models.LevelWarning, res.Event.Level)

	res = dispatch(t, r, `{"hook_event_name":"beforeMCPExecution","conversation_id":"c","tool_name":"github.delete_repo"}`)
	require.Equal(t, models.PermissionDeny, res.Response.Permission)

	res = dispatch(t, r, `{"hook_event_name":"beforeMCPExecution","conversation_id":"c","tool_name":"github.get_repo"}`)
	require.Equal(t, models.PermissionAllow, res.Response.Permission)
	require.Empty(t, res.Response.UserMessage)

	res = dispatch(t, r, `{"hook_event_name":"beforeReadFile","conversation_id":"c","file_path":"/home/u/keys/id.pem"}`)
	require.Equal(t, models.PermissionDeny, res.Response.Permission)
	require.Equal(t, 1, res.Delta.ToolDenials)
	require.Equal(t, 1, res.Delta.FileReads)

	res = dispatch(t, r, `{"hook_event_name":"beforeReadFile","conversation_id":"c","file_path":"secrets/prod/db.yaml"}`)
	require.Equal(t, models.PermissionDeny, res.Response.Permission)

	res = dispatch(t, r, `{"hook_event_name":"beforeReadFile","conversation_id":"c","file_path":"src/main.go"}`)
	require.Equal(t, models.PermissionAllow, res.Response.Permission)
	require.Equal(t, 0, res.Delta.ToolDenials)
}

func TestHandlers_EditAndCreateStats(t *testing.T) {
	r := NewRouter(Policy{}, Capture{})

	res := dispatch(t, r, `{"hook_event_name":"afterFileEdit","conversation_id":"c","file_path":"a.go","edits":[{"old_string":"a\nb\nc","new_string":"a\nB\nB2\nc"}]}`)
	require.Equal(t, 1, res.Delta.Edits)
	require.Equal(t, 2, res.Delta.LinesAdded)
	require.Equal(t, 1, res.Delta.LinesRemoved)
	require.Equal(t, "a.go", res.Delta.FilePath)

	res = dispatch(t, r, `{"hook_event_name":"fileCreate","conversation_id":"c","file_path":"new.go","content":"package x\n\nfunc f() {}\n"}`)
	require.Equal(t, 1, res.Delta.Edits)
	require.Equal(t, 3, res.Delta.LinesAdded)
	require.Equal(t, "new.go", res.Delta.FilePath)

	// Garbage fields count as zero rather than failing.
	res = dispatch(t, r, `{"hook_event_name":"fileEdit","conversation_id":"c","edits":"nonsense","lines_added":"x"}`)
	require.Equal(t, 1, res.Delta.Edits)
	require.Zero(t, res.Delta.LinesAdded)
	require.Zero(t, res.Delta.LinesRemoved)
	require.Empty(t, res.Delta.FilePath)
}

func TestHandlers_PromptRedaction(t *testing.T) {
	r := NewRouter(Policy{}, Capture{RedactPrompts: true})
	res := dispatch(t, r, `{"hook_event_name":"promptSubmit","conversation_id":"c","prompt":"my api key is hunter2"}`)
	require.Equal(t, "[redacted]", res.Event.Input)
	require.Equal(t, true, res.Event.Metadata["redacted"])
}
