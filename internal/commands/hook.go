package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hooktrace/internal/actions"
	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/commands/hookcmd"
	"github.com/dotcommander/hooktrace/internal/hooks"
	"github.com/dotcommander/hooktrace/internal/metrics"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/output"
	"github.com/dotcommander/hooktrace/internal/publisher"
	"github.com/dotcommander/hooktrace/internal/store"
)

// maxHookStdinBytes caps stdin reads. Hook payloads are small JSON objects.
const maxHookStdinBytes = 1 << 20

// exitError carries a non-zero exit status whose cause was already logged.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// ExitCode returns the process status for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// NewHookCmd creates the hook command. Run bare, it handles one host event
// from stdin; install and uninstall manage the host registration.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Handle one host hook event read from stdin",
		Long: `Reads one hook event as JSON from stdin, correlates it with its
conversation and workspace, writes the host response to stdout and sends
the buffered trace data to the observability backend.

Register with 'hooktrace hook install'. Any internal failure still prints
{"continue":true,"permission":"allow"} so the agent is never blocked.`,
		Args: cobra.NoArgs,
		// Replaces the root hook: a missing config dir must not fail an event.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				slog.Default().Warn("config dir unavailable", "error", err)
			}
			applyDBPathFlag(cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := hookRunnerFromSettings(slog.Default())
			if code := runHookGuarded(cmd.Context(), runner, cmd.InOrStdin(), cmd.OutOrStdout()); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}

	cmd.AddCommand(withEffects(hookcmd.NewInstallCmd(), effectWritesHostConfig))
	cmd.AddCommand(withEffects(hookcmd.NewUninstallCmd(), effectWritesHostConfig))
	return withEffects(cmd, effectReadsStdin, effectWritesStore, effectCallsBackend)
}

// hookRunner holds everything one invocation needs. Fields are resolved from
// settings once so tests can build a runner directly.
type hookRunner struct {
	dbPath     func() (string, error)
	backend    publisher.Config
	policy     hooks.Policy
	capture    hooks.Capture
	thresholds metrics.Thresholds
	now        func() time.Time
	logger     *slog.Logger
}

func thresholdsFrom(ms app.MetricsSettings) metrics.Thresholds {
	return metrics.Thresholds{
		ToolHeavyCalls:  ms.ToolHeavyCalls,
		MultiFileFiles:  ms.MultiFileFiles,
		SmallEditLines:  ms.SmallEditLines,
		MediumEditLines: ms.MediumEditLines,
		ShortDuration:   time.Duration(ms.ShortDurationSeconds) * time.Second,
		MediumDuration:  time.Duration(ms.MediumDurationSeconds) * time.Second,
	}
}

func hookRunnerFromSettings(logger *slog.Logger) *hookRunner {
	pol := app.EffectivePolicySettings()
	cs := app.EffectiveCaptureSettings()

	return &hookRunner{
		dbPath:  app.GetDBPath,
		backend: publisher.ConfigFromSettings(app.EffectiveBackendSettings()),
		policy: hooks.Policy{
			DenyCommands:  pol.DenyCommands,
			DenyTools:     pol.DenyTools,
			DenyReadPaths: pol.DenyReadPaths,
			DenyMessage:   pol.DenyMessage,
		},
		capture: hooks.Capture{
			PreviewChars:  cs.PreviewChars,
			RedactPrompts: cs.RedactPrompts,
		},
		thresholds: thresholdsFrom(app.EffectiveMetricsSettings()),
		now:        time.Now,
		logger:     logger,
	}
}

// runHookGuarded processes one event and returns the exit status. Every
// failure, panics included, ends with the fallback response on stdout unless a
// response was already written. The publisher is flushed exactly once in all
// cases; a flush failure is logged and does not change the status.
func runHookGuarded(ctx context.Context, r *hookRunner, stdin io.Reader, stdout io.Writer) (code int) {
	pub := publisher.New(r.backend)
	var (
		ev        *models.Event
		responded bool
	)

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				hook := models.HookName("")
				if ev != nil {
					hook = ev.Hook
				}
				err = &models.HandlerError{Hook: hook, Err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		return r.run(ctx, pub, stdin, stdout, &ev, &responded)
	}()

	if err != nil {
		attrs := []any{"error", err.Error()}
		var re models.RecoverableError
		if errors.As(err, &re) {
			attrs = append(attrs, "error_code", re.ErrorCode())
		}
		if ev != nil {
			attrs = append(attrs, "hook_event_name", ev.HookEventName, "conversation_id", ev.ConversationID)
		}
		r.logger.Error("hook failed", attrs...)

		if !responded {
			if werr := output.WriteFallback(stdout); werr != nil {
				r.logger.Error("write fallback response", "error", werr)
			}
		}
		code = 1
	}

	r.flush(ctx, pub)
	return code
}

func (r *hookRunner) run(ctx context.Context, pub *publisher.Client, stdin io.Reader, stdout io.Writer, evOut **models.Event, responded *bool) error {
	data, err := io.ReadAll(io.LimitReader(stdin, maxHookStdinBytes+1))
	if err != nil {
		return &models.MalformedInputError{Reason: "read stdin", Bytes: len(data), Err: err}
	}
	if len(data) > maxHookStdinBytes {
		return &models.MalformedInputError{Reason: "payload exceeds 1 MiB", Bytes: len(data)}
	}

	ev, err := models.ParseEvent(data, r.now())
	if err != nil {
		return err
	}
	*evOut = ev

	// Unknown hooks never open the store.
	if !ev.Known {
		r.logger.Warn("unknown hook ignored",
			"hook_event_name", ev.HookEventName,
			"error_code", (&models.UnknownHookError{HookEventName: ev.HookEventName}).ErrorCode(),
		)
		return nil
	}

	dbPath, err := r.dbPath()
	if err != nil {
		return &models.CorrelationStoreError{Op: "resolve path", Err: err}
	}
	db, err := store.InitDBWithPath(ctx, dbPath)
	if err != nil {
		return &models.CorrelationStoreError{Op: "open", Key: dbPath, Err: err}
	}
	defer func() { _ = db.Close() }()

	pipeline := actions.NewPipeline(db, hooks.NewRouter(r.policy, r.capture), pub, r.thresholds, r.logger)
	res, err := pipeline.Ingest(ctx, ev)
	if err != nil {
		return err
	}
	if res.Response == nil {
		return nil
	}
	if err := output.WriteHookResponse(stdout, *res.Response); err != nil {
		return err
	}
	*responded = true
	return nil
}

func (r *hookRunner) flush(ctx context.Context, pub *publisher.Client) {
	res, err := pub.Flush(ctx)
	if err != nil {
		r.logger.Warn("flush failed",
			"error", err.Error(),
			"items", res.Items,
			"accepted", res.Accepted,
			"rejected", res.Rejected,
		)
		return
	}
	r.logger.Debug("flushed",
		"items", res.Items,
		"batches", res.Batches,
		"accepted", res.Accepted,
		"skipped", res.Skipped,
	)
}
