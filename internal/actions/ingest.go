package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dotcommander/hooktrace/internal/hooks"
	"github.com/dotcommander/hooktrace/internal/metrics"
	"github.com/dotcommander/hooktrace/internal/models"
	"github.com/dotcommander/hooktrace/internal/publisher"
	"github.com/dotcommander/hooktrace/internal/store"
)

// Publisher buffers observability records for the current invocation.
type Publisher interface {
	TraceCreator
	AppendEvent(handle string, ev publisher.Event) error
	AppendScore(handle string, s publisher.Score) error
}

// Pipeline runs one parsed event through resolve, dispatch, persist and
// publish.
type Pipeline struct {
	db         *sql.DB
	router     *hooks.Router
	pub        Publisher
	thresholds metrics.Thresholds
	logger     *slog.Logger
}

// NewPipeline wires a pipeline. A nil logger uses slog.Default.
func NewPipeline(db *sql.DB, router *hooks.Router, pub Publisher, th metrics.Thresholds, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{db: db, router: router, pub: pub, thresholds: th, logger: logger}
}

// IngestResult describes what one invocation did.
type IngestResult struct {
	Hook         models.HookName        `json:"hook"`
	Ignored      bool                   `json:"ignored,omitempty"`
	TraceCreated bool                   `json:"trace_created"`
	Handle       string                 `json:"handle,omitempty"`
	Response     *models.Response       `json:"response,omitempty"`
	Trace        *models.Trace          `json:"trace,omitempty"`
	ToolCall     *models.ToolCallResult `json:"tool_call,omitempty"`
}

// Ingest processes ev. Unknown hooks are logged and ignored: the result has
// Ignored set, no response and no state is touched. Every other failure is
// returned for the caller's guard.
func (p *Pipeline) Ingest(ctx context.Context, ev *models.Event) (*IngestResult, error) {
	if ev == nil {
		return nil, errors.New("ingest: nil event")
	}
	if !ev.Known || !p.router.Handles(ev.Hook) {
		p.logger.Warn("unknown hook ignored",
			"hook_event_name", ev.HookEventName,
			"error_code", (&models.UnknownHookError{HookEventName: ev.HookEventName}).ErrorCode(),
		)
		return &IngestResult{Hook: ev.Hook, Ignored: true}, nil
	}

	session, err := ResolveSession(ctx, p.db, ev.WorkspaceID, ev.Timestamp)
	if err != nil {
		return nil, err
	}
	trace, created, err := ResolveTrace(ctx, p.db, p.pub, ev, session)
	if err != nil {
		return nil, err
	}

	res, err := p.router.Dispatch(ev, trace, session)
	if err != nil {
		if errors.Is(err, models.ErrUnknownHook) {
			p.logger.Warn("unknown hook ignored", "hook_event_name", ev.HookEventName)
			return &IngestResult{Hook: ev.Hook, Ignored: true, Handle: trace.Handle}, nil
		}
		return nil, err
	}

	// Tags and the closing score are derived inside the delta's transaction,
	// from counters that already include every concurrent commit.
	closing := res.Delta.End != ""
	var summary metrics.Summary
	applied, err := store.ApplyDeltaSummarized(ctx, p.db, ev.ConversationID, ev.Timestamp, res.Delta,
		func(t *models.Trace) ([]string, *float64) {
			summary = metrics.Summarize(t.Stats, p.thresholds)
			if !closing {
				return summary.Tags, nil
			}
			score := summary.Score
			return summary.Tags, &score
		})
	if err != nil {
		return nil, err
	}
	trace = applied.Trace

	event := res.Event
	event.Metadata["tags"] = summary.Tags
	annotateToolCall(event.Metadata, applied.ToolCall)
	if err := p.pub.AppendEvent(trace.Handle, publisher.Event{
		Name:          event.Name,
		Level:         event.Level,
		StartTime:     ev.Timestamp,
		Input:         event.Input,
		Output:        event.Output,
		Metadata:      event.Metadata,
		StatusMessage: event.StatusMessage,
	}); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	if closing {
		if err := p.closeOut(ev, trace, summary); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("hook ingested",
		"hook", ev.Hook,
		"conversation_id", ev.ConversationID,
		"workspace_id", trace.WorkspaceID,
		"trace_created", created,
		"event_count", trace.EventCount,
	)

	return &IngestResult{
		Hook:         ev.Hook,
		TraceCreated: created,
		Handle:       trace.Handle,
		Response:     res.Response,
		Trace:        trace,
		ToolCall:     applied.ToolCall,
	}, nil
}

func annotateToolCall(meta map[string]any, tc *models.ToolCallResult) {
	if tc == nil {
		return
	}
	switch {
	case tc.Duplicate:
		meta["duplicate_post"] = true
	case tc.DurationMS != nil:
		meta["duration_ms"] = *tc.DurationMS
	default:
		meta["duration_unknown"] = true
	}
}

// closeOut emits the conversation summary and its scores. Their ids are
// derived from the handle, so a later close (the host fires stop after every
// agent turn) replaces them rather than adding another set.
func (p *Pipeline) closeOut(ev *models.Event, trace *models.Trace, s metrics.Summary) error {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	if err := p.pub.AppendEvent(trace.Handle, publisher.Event{
		ID:        publisher.StableID(trace.Handle, models.EventNameConversationSummary),
		Name:      models.EventNameConversationSummary,
		Level:     models.LevelDefault,
		StartTime: at,
		Output: map[string]any{
			"stats":      trace.Stats,
			"tags":       s.Tags,
			"score":      s.Score,
			"efficiency": s.Efficiency,
		},
		Metadata: map[string]any{
			"conversation_id": trace.ConversationID,
			"workspace_id":    trace.WorkspaceID,
			"end_status":      string(trace.EndStatus),
			"event_count":     trace.EventCount,
			"handler_version": models.HandlerVersion,
		},
	}); err != nil {
		return fmt.Errorf("append summary: %w", err)
	}

	if err := p.pub.AppendScore(trace.Handle, publisher.Score{
		ID:        publisher.StableID(trace.Handle, models.ScoreNameCompletion),
		Name:      models.ScoreNameCompletion,
		Value:     s.Score,
		Comment:   "end status " + string(trace.EndStatus),
		Timestamp: at,
	}); err != nil {
		return fmt.Errorf("append completion score: %w", err)
	}
	for _, k := range metrics.EfficiencyKeys(s.Efficiency) {
		name := models.ScoreNamePrefixEfficiency + k
		if err := p.pub.AppendScore(trace.Handle, publisher.Score{
			ID:        publisher.StableID(trace.Handle, name),
			Name:      name,
			Value:     s.Efficiency[k],
			Timestamp: at,
		}); err != nil {
			return fmt.Errorf("append efficiency score %s: %w", k, err)
		}
	}
	return nil
}
