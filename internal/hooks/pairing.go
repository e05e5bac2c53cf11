package hooks

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/dotcommander/hooktrace/internal/models"
)

// callKey pairs a pre hook with its post. The host's tool_call_id wins.
// Without one, a key is derived from the hook family, the generation id and
// the tool name or command, which the host repeats on both sides; derived
// reports that case. With no generation id the call stays unpaired ("").
func callKey(ev *models.Event) (key string, derived bool) {
	p := ev.Payload
	if p.ToolCallID != "" {
		return p.ToolCallID, false
	}
	if ev.GenerationID == "" {
		return "", false
	}

	var family, subject string
	switch ev.Hook {
	case models.HookShellExecutionPre, models.HookShellExecutionPost:
		family, subject = "shell", p.Command
	default:
		family, subject = "tool", p.ToolName
	}

	h := blake3.New()
	_, _ = h.Write([]byte(family))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(ev.GenerationID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(subject))
	return "k_" + hex.EncodeToString(h.Sum(nil)[:16]), true
}

// outcome reports whether a post hook describes a successful call.
func outcome(p models.Payload) bool {
	switch {
	case p.Accepted != nil && !*p.Accepted:
		return false
	case p.ExitCode != nil && *p.ExitCode != 0:
		return false
	case p.Error != "":
		return false
	case p.Status == "error":
		return false
	default:
		return true
	}
}
