package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hooktrace/internal/commands/hookcmd"
	"github.com/dotcommander/hooktrace/internal/models"
)

func TestFlagTypeAndDefault(t *testing.T) {
	require.Equal(t, "integer", flagType("int64"))
	require.Equal(t, "boolean", flagType("bool"))
	require.Equal(t, "string", flagType("duration"))

	require.Equal(t, true, flagDefault("bool", "true"))
	require.Equal(t, 20, flagDefault("int", "20"))
	require.Equal(t, "oops", flagDefault("int", "oops"))
	require.Equal(t, "W1", flagDefault("string", "W1"))
}

func TestUseArgs(t *testing.T) {
	require.Equal(t, []string{"<conversation-id>"}, useArgs("show <conversation-id>"))
	require.Equal(t, []string{"[file.jsonl]"}, useArgs("replay [file.jsonl]"))
	require.Equal(t, []string{}, useArgs("status"))
}

func TestBuildCommandSchema_FlagsArgsAndEffects(t *testing.T) {
	root := &cobra.Command{Use: "hooktrace"}
	root.PersistentFlags().String("db-path", "", "Override database path")

	child := withEffects(&cobra.Command{Use: "list", Short: "List traces"}, effectReadsStore)
	child.Flags().Int("limit", 20, "Max traces to return")
	child.Flags().String("hidden-flag", "x", "hidden")
	require.NoError(t, child.Flags().MarkHidden("hidden-flag"))
	root.AddCommand(child)

	s := buildCommandSchema(child)
	require.Equal(t, "hooktrace list", s.Command)
	require.Equal(t, "List traces", s.Description)
	require.Equal(t, []string{effectReadsStore}, s.Effects)
	require.Empty(t, s.Hooks)

	byName := map[string]flagSchema{}
	for _, f := range s.Flags {
		byName[f.Name] = f
	}
	require.NotContains(t, byName, "hidden-flag")
	require.Equal(t, flagSchema{Name: "limit", Type: "integer", Default: 20, Usage: "Max traces to return"}, byName["limit"])
	require.True(t, byName["db-path"].Inherited)
	require.Nil(t, byName["db-path"].Default)
}

func TestCollectCommandSchemas_SkipsRootSchemaAndHidden(t *testing.T) {
	root := &cobra.Command{Use: "hooktrace"}
	schemaCmd := &cobra.Command{Use: "schema"}
	schemaCmd.AddCommand(&cobra.Command{Use: "commands"})
	visible := &cobra.Command{Use: "trace", Short: "Trace"}
	hidden := &cobra.Command{Use: "secret", Hidden: true}
	root.AddCommand(schemaCmd, visible, hidden)

	var out []commandSchema
	collectCommandSchemas(root, &out)

	require.Len(t, out, 1)
	require.Equal(t, "hooktrace trace", out[0].Command)
	require.Equal(t, []string{}, out[0].Effects)
}

func TestHookSchemas_CoverEveryTag(t *testing.T) {
	hs := hookSchemas()
	require.Len(t, hs, len(models.AllHooks))

	byTag := map[string]hookSchema{}
	aliases := 0
	for _, h := range hs {
		byTag[h.Tag] = h
		aliases += len(h.Aliases)
	}
	require.Equal(t, len(hookcmd.HookEventNames()), aliases, "every installable host name maps to one tag")

	end := byTag[string(models.HookConversationEnd)]
	require.True(t, end.ClosesTrace)
	require.Equal(t, []string{"sessionEnd", "stop"}, end.Aliases)

	pre := byTag[string(models.HookShellExecutionPre)]
	require.True(t, pre.Permission)
	require.Equal(t, "pre", pre.Pairing)
	require.Equal(t, []string{"beforeShellExecution"}, pre.Aliases)

	post := byTag[string(models.HookToolCallPost)]
	require.False(t, post.Permission)
	require.Equal(t, "post", post.Pairing)

	create := byTag[string(models.HookFileCreate)]
	require.Equal(t, []string{}, create.Aliases)
}

func TestRootCommandTree_Schemas(t *testing.T) {
	root := newRootCmd("test")

	var out []commandSchema
	collectCommandSchemas(root, &out)

	byCmd := map[string]commandSchema{}
	for _, s := range out {
		byCmd[s.Command] = s
	}
	for _, want := range []string{
		"hooktrace hook",
		"hooktrace hook install",
		"hooktrace hook uninstall",
		"hooktrace status",
		"hooktrace trace show",
		"hooktrace trace list",
		"hooktrace session show",
		"hooktrace replay",
	} {
		require.Contains(t, byCmd, want)
	}
	require.NotContains(t, byCmd, "hooktrace schema commands")

	hook := byCmd["hooktrace hook"]
	require.Equal(t, []string{effectReadsStdin, effectWritesStore, effectCallsBackend}, hook.Effects)
	require.Len(t, hook.Hooks, len(models.AllHooks))

	require.Equal(t, []string{effectWritesHostConfig}, byCmd["hooktrace hook install"].Effects)
	require.Empty(t, byCmd["hooktrace hook install"].Hooks)
	require.Equal(t, []string{effectReadsStore}, byCmd["hooktrace trace show"].Effects)
	require.Equal(t, []string{"<conversation-id>"}, byCmd["hooktrace trace show"].Args)
	require.Contains(t, byCmd["hooktrace replay"].Effects, effectCallsBackend)
}

func TestNamespaceEntries_ListArgsAndEffects(t *testing.T) {
	entries := namespaceEntries(NewTraceCmd())
	require.Len(t, entries, 2)
	require.Equal(t, "list", entries[0].Name, "cobra sorts subcommands")
	require.Equal(t, []string{}, entries[0].Args)
	require.Equal(t, "show", entries[1].Name)
	require.Equal(t, []string{"<conversation-id>"}, entries[1].Args)
	require.Equal(t, []string{effectReadsStore}, entries[1].Effects)
}
