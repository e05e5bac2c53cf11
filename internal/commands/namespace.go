package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/output"
)

type namespaceEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Args        []string `json:"args"`
	Effects     []string `json:"effects"`
}

// namespaceIndex makes a bare parent such as `hooktrace trace` print its
// subcommands, their arguments and their effects as JSON.
func namespaceIndex(cmd *cobra.Command) {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		type resp struct {
			Namespace   string           `json:"namespace"`
			Subcommands []namespaceEntry `json:"subcommands"`
		}
		return output.PrintSuccess(resp{
			Namespace:   c.CommandPath(),
			Subcommands: namespaceEntries(c),
		})
	}
}

func namespaceEntries(c *cobra.Command) []namespaceEntry {
	subs := []namespaceEntry{}
	for _, child := range c.Commands() {
		if child.Hidden || child.Name() == "help" {
			continue
		}
		subs = append(subs, namespaceEntry{
			Name:        child.Name(),
			Description: child.Short,
			Args:        useArgs(child.Use),
			Effects:     commandEffects(child),
		})
	}
	return subs
}
