package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
)

// effectsAnnotation lists, comma separated, what a command touches.
const effectsAnnotation = "hooktrace.effects"

// Command effects.
const (
	effectReadsStdin       = "reads-stdin"
	effectReadsStore       = "reads-store"
	effectWritesStore      = "writes-store"
	effectCallsBackend     = "calls-backend"
	effectWritesHostConfig = "writes-host-config"
)

func withEffects(cmd *cobra.Command, effects ...string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[effectsAnnotation] = strings.Join(effects, ",")
	return cmd
}

func commandEffects(cmd *cobra.Command) []string {
	raw := cmd.Annotations[effectsAnnotation]
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

// NewSchemaCmd creates the schema command. root is walked by schema commands.
func NewSchemaCmd(root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the command tree and the accepted hook tags",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "commands",
		Short: "Show each command's arguments, flags and side effects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Commands []commandSchema `json:"commands"`
			}
			schemas := []commandSchema{}
			collectCommandSchemas(root, &schemas)
			return output.PrintSuccess(resp{Commands: schemas})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "hooks",
		Short: "Show the canonical hook tags and the host names that map onto them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Schema         string       `json:"schema"`
				HandlerVersion string       `json:"handler_version"`
				Hooks          []hookSchema `json:"hooks"`
			}
			return output.PrintSuccess(resp{
				Schema:         models.HookSchemaVersion,
				HandlerVersion: models.HandlerVersion,
				Hooks:          hookSchemas(),
			})
		},
	})
	namespaceIndex(cmd)
	return cmd
}

type flagSchema struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Default   any    `json:"default,omitempty"`
	Usage     string `json:"usage,omitempty"`
	Inherited bool   `json:"inherited,omitempty"`
}

type hookSchema struct {
	Tag         string   `json:"tag"`
	Aliases     []string `json:"aliases"`
	Permission  bool     `json:"permission"`
	Pairing     string   `json:"pairing,omitempty"`
	ClosesTrace bool     `json:"closes_trace,omitempty"`
}

type commandSchema struct {
	Command     string       `json:"command"`
	Description string       `json:"description,omitempty"`
	Args        []string     `json:"args"`
	Flags       []flagSchema `json:"flags"`
	Effects     []string     `json:"effects"`
	Hooks       []hookSchema `json:"hooks,omitempty"`
}

// collectCommandSchemas walks the tree below cmd. The root itself, the schema
// subtree, cobra's help and completion commands and hidden commands are left
// out.
func collectCommandSchemas(cmd *cobra.Command, out *[]commandSchema) {
	switch {
	case cmd.Hidden:
		return
	case cmd.HasParent() && (cmd.Name() == "schema" || cmd.Name() == "help" || cmd.Name() == "completion"):
		return
	case cmd.HasParent():
		*out = append(*out, buildCommandSchema(cmd))
	}
	for _, child := range cmd.Commands() {
		collectCommandSchemas(child, out)
	}
}

func buildCommandSchema(cmd *cobra.Command) commandSchema {
	s := commandSchema{
		Command:     cmd.CommandPath(),
		Description: cmd.Short,
		Args:        useArgs(cmd.Use),
		Flags:       []flagSchema{},
		Effects:     commandEffects(cmd),
	}
	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Hidden || f.Name == "help" {
				return
			}
			fs := flagSchema{
				Name:      f.Name,
				Type:      flagType(f.Value.Type()),
				Usage:     f.Usage,
				Inherited: inherited,
			}
			if f.DefValue != "" {
				fs.Default = flagDefault(f.Value.Type(), f.DefValue)
			}
			s.Flags = append(s.Flags, fs)
		}
	}
	cmd.NonInheritedFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))

	if cmd.CommandPath() == "hooktrace hook" {
		s.Hooks = hookSchemas()
	}
	return s
}

// useArgs returns the positional placeholders of a Use line.
func useArgs(use string) []string {
	fields := strings.Fields(use)
	if len(fields) <= 1 {
		return []string{}
	}
	return fields[1:]
}

func hookSchemas() []hookSchema {
	out := make([]hookSchema, 0, len(models.AllHooks))
	for _, h := range models.AllHooks {
		hs := hookSchema{
			Tag:         string(h),
			Aliases:     models.HostAliases(h),
			Permission:  h.IsPermissionHook(),
			ClosesTrace: h == models.HookConversationEnd,
		}
		if hs.Aliases == nil {
			hs.Aliases = []string{}
		}
		switch {
		case h.IsToolPre():
			hs.Pairing = "pre"
		case h.IsToolPost():
			hs.Pairing = "post"
		}
		out = append(out, hs)
	}
	return out
}

func flagType(t string) string {
	switch t {
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		return "integer"
	case "bool":
		return "boolean"
	default:
		return "string"
	}
}

func flagDefault(t, raw string) any {
	switch flagType(t) {
	case "boolean":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case "integer":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return raw
}
