package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	level, file := app.EffectiveLogSettings()
	logger, closeLog, logErr := newLogger(os.Stderr, level, file)
	defer closeLog()
	slog.SetDefault(logger)
	if logErr != nil {
		logger.Warn("log file unavailable", "log_file", file, "error", logErr)
	}

	root := newRootCmd(version)
	err := root.Execute()
	if err != nil {
		var pe printedError
		var ee exitError
		if !errors.As(err, &pe) && !errors.As(err, &ee) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "hooktrace",
		Short:         "Turn agent hook events into correlated observability traces",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version        string `json:"version"`
					HandlerVersion string `json:"handler_version"`
				}
				return output.PrintSuccess(resp{Version: version, HandlerVersion: models.HandlerVersion})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}
			applyDBPathFlag(cmd)
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.Flags().BoolP("version", "v", false, "version for hooktrace")

	root.AddCommand(NewHookCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewTraceCmd())
	root.AddCommand(NewSessionCmd())
	root.AddCommand(NewReplayCmd())
	root.AddCommand(NewSchemaCmd(root))
	return root
}

// applyDBPathFlag wires --db-path into the app-level resolver.
func applyDBPathFlag(cmd *cobra.Command) {
	if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
		app.SetDBPathOverride(dbPath)
	}
}
