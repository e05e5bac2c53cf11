package hooks

import (
	"github.com/dotcommander/hooktrace/internal/models"
)

// DefaultDenyMessage is shown to the user and the agent when a rule matches.
const DefaultDenyMessage = "blocked by hooktrace policy"

// Policy holds the deny rules for permission-bearing hooks. The zero Policy
// allows everything.
type Policy struct {
	DenyCommands  []string
	DenyTools     []string
	DenyReadPaths []string
	DenyMessage   string
}

// Decision is the outcome of a policy check.
type Decision struct {
	Permission models.Permission
	Rule       string
}

// Denied reports whether the decision blocks the action.
func (d Decision) Denied() bool {
	return d.Permission == models.PermissionDeny
}

var allow = Decision{Permission: models.PermissionAllow}

// CheckCommand decides a shell command.
func (p Policy) CheckCommand(command string) Decision {
	for _, rule := range p.DenyCommands {
		if matchCommand(rule, command) {
			return Decision{Permission: models.PermissionDeny, Rule: rule}
		}
	}
	return allow
}

// CheckTool decides a tool invocation by tool name.
func (p Policy) CheckTool(tool string) Decision {
	for _, rule := range p.DenyTools {
		if tool != "" && matchGlob(rule, tool) {
			return Decision{Permission: models.PermissionDeny, Rule: rule}
		}
	}
	return allow
}

// CheckRead decides a file read by path.
func (p Policy) CheckRead(filePath string) Decision {
	for _, rule := range p.DenyReadPaths {
		if matchPath(rule, filePath) {
			return Decision{Permission: models.PermissionDeny, Rule: rule}
		}
	}
	return allow
}

// response builds the host response for a permission hook.
func (p Policy) response(d Decision) *models.Response {
	resp := &models.Response{Continue: true, Permission: d.Permission}
	if d.Denied() {
		msg := p.DenyMessage
		if msg == "" {
			msg = DefaultDenyMessage
		}
		resp.UserMessage = msg
		resp.AgentMessage = msg
	}
	return resp
}
