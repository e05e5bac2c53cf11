package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/metrics"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
	"github.com/dotcommander/hooktrace/internal/store"
)

// NewTraceCmd creates the trace parent command.
func NewTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect stored conversation traces",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newTraceShowCmd())
	cmd.AddCommand(newTraceListCmd())
	namespaceIndex(cmd)
	return cmd
}

// traceView is a stored trace plus the metrics it would publish now.
type traceView struct {
	*models.Trace
	Efficiency map[string]float64 `json:"efficiency"`
	Preview    float64            `json:"score_preview"`
}

func newTraceView(t *models.Trace, th metrics.Thresholds) traceView {
	s := metrics.Summarize(t.Stats, th)
	return traceView{Trace: t, Efficiency: s.Efficiency, Preview: s.Score}
}

func newTraceShowCmd() *cobra.Command {
	return withEffects(&cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show one trace with its counters, tags and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view traceView
			if err := withDB(cmd.Context(), func(db *DB) error {
				t, err := store.GetTrace(cmd.Context(), db, args[0])
				if err != nil {
					return err
				}
				view = newTraceView(t, thresholdsFrom(app.EffectiveMetricsSettings()))
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(view)
		},
	}, effectReadsStore)
}

func newTraceListCmd() *cobra.Command {
	var (
		workspace string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently active traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			var traces []models.Trace
			if err := withDB(cmd.Context(), func(db *DB) error {
				t, err := store.ListTraces(cmd.Context(), db, workspace, limit)
				traces = t
				return err
			}); err != nil {
				return err
			}
			if traces == nil {
				traces = []models.Trace{}
			}
			type resp struct {
				Workspace string         `json:"workspace,omitempty"`
				Count     int            `json:"count"`
				Traces    []models.Trace `json:"traces"`
			}
			return output.PrintSuccess(resp{Workspace: workspace, Count: len(traces), Traces: traces})
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "Only traces of this workspace id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max traces to return")
	return withEffects(cmd, effectReadsStore)
}

// NewSessionCmd creates the session command.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect workspace sessions",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(withEffects(&cobra.Command{
		Use:   "show <workspace-id>",
		Short: "Show a workspace session and its conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s *models.Session
			if err := withDB(cmd.Context(), func(db *DB) error {
				var err error
				s, err = store.GetSession(cmd.Context(), db, args[0])
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(s)
		},
	}, effectReadsStore))
	namespaceIndex(cmd)
	return cmd
}
