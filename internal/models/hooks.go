package models

import "sort"

// HookSchemaVersion versions the closed hook enumeration below. Any tag outside
// it is an UnknownHookError.
const HookSchemaVersion = "hooks.v1"

// HandlerVersion is reported to the backend with every batch and trace.
const HandlerVersion = "1.1.0"

// HookName is a canonical hook tag.
type HookName string

// The twelve recognized hooks.
const (
	HookConversationStart  HookName = "conversationStart"
	HookConversationEnd    HookName = "conversationEnd"
	HookPromptSubmit       HookName = "promptSubmit"
	HookAgentResponse      HookName = "agentResponse"
	HookAgentThought       HookName = "agentThought"
	HookToolCallPre        HookName = "toolCallPre"
	HookToolCallPost       HookName = "toolCallPost"
	HookShellExecutionPre  HookName = "shellExecutionPre"
	HookShellExecutionPost HookName = "shellExecutionPost"
	HookFileRead           HookName = "fileRead"
	HookFileEdit           HookName = "fileEdit"
	HookFileCreate         HookName = "fileCreate"
)

// AllHooks lists the canonical hooks in a stable order.
var AllHooks = []HookName{ //nolint:gochecknoglobals // closed enumeration
	HookConversationStart,
	HookConversationEnd,
	HookPromptSubmit,
	HookAgentResponse,
	HookAgentThought,
	HookToolCallPre,
	HookToolCallPost,
	HookShellExecutionPre,
	HookShellExecutionPost,
	HookFileRead,
	HookFileEdit,
	HookFileCreate,
}

// hostAliases maps Cursor hook names onto canonical tags.
var hostAliases = map[string]HookName{ //nolint:gochecknoglobals // closed enumeration
	"sessionStart":         HookConversationStart,
	"sessionEnd":           HookConversationEnd,
	"stop":                 HookConversationEnd,
	"beforeSubmitPrompt":   HookPromptSubmit,
	"afterAgentResponse":   HookAgentResponse,
	"afterAgentThought":    HookAgentThought,
	"beforeMCPExecution":   HookToolCallPre,
	"afterMCPExecution":    HookToolCallPost,
	"beforeShellExecution": HookShellExecutionPre,
	"afterShellExecution":  HookShellExecutionPost,
	"beforeReadFile":       HookFileRead,
	"beforeTabFileRead":    HookFileRead,
	"afterFileEdit":        HookFileEdit,
	"afterTabFileEdit":     HookFileEdit,
}

// ResolveHookName maps a raw hook_event_name to its canonical tag.
func ResolveHookName(raw string) (HookName, bool) {
	for _, h := range AllHooks {
		if string(h) == raw {
			return h, true
		}
	}
	h, ok := hostAliases[raw]
	return h, ok
}

// HostAliases returns the host hook names that resolve to h, sorted.
func HostAliases(h HookName) []string {
	var out []string
	for alias, target := range hostAliases {
		if target == h {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// IsPermissionHook reports whether the host honors a permission decision for h.
func (h HookName) IsPermissionHook() bool {
	switch h {
	case HookToolCallPre, HookShellExecutionPre, HookFileRead:
		return true
	default:
		return false
	}
}

// IsToolPre reports whether h opens a tool invocation.
func (h HookName) IsToolPre() bool {
	return h == HookToolCallPre || h == HookShellExecutionPre
}

// IsToolPost reports whether h closes a tool invocation.
func (h HookName) IsToolPost() bool {
	return h == HookToolCallPost || h == HookShellExecutionPost
}
