// Package hooks routes one parsed hook event to its handler. Handlers are pure:
// they read the event plus the current trace and session and return the state
// change, the host response and the observability record to emit. Persistence
// and publishing happen in the caller.
package hooks

import (
	"errors"
	"fmt"

	"github.com/dotcommander/hooktrace/internal/models"
)

// Input is everything a handler may look at.
type Input struct {
	Event   *models.Event
	Trace   *models.Trace
	Session *models.Session
	Policy  Policy
	Capture Capture
}

// EventDesc describes the observability record a handler wants emitted.
type EventDesc struct {
	Name          string
	Level         string
	Input         any
	Output        any
	Metadata      map[string]any
	StatusMessage string
}

// Result is a handler's complete answer. A nil Response means nothing is
// written to stdout.
type Result struct {
	Delta    models.StateDelta
	Response *models.Response
	Event    EventDesc
}

// Handler handles one canonical hook.
type Handler func(Input) (Result, error)

// Router dispatches events through a closed handler table.
type Router struct {
	handlers map[models.HookName]Handler
	policy   Policy
	capture  Capture
}

// NewRouter builds the router for every hook in models.AllHooks.
func NewRouter(policy Policy, capture Capture) *Router {
	return &Router{
		handlers: defaultHandlers(),
		policy:   policy,
		capture:  capture.normalized(),
	}
}

// Handles reports whether h has a handler.
func (r *Router) Handles(h models.HookName) bool {
	_, ok := r.handlers[h]
	return ok
}

// Dispatch runs the handler for ev. Unknown tags return *models.UnknownHookError.
// Handler errors and panics come back as *models.HandlerError.
func (r *Router) Dispatch(ev *models.Event, trace *models.Trace, session *models.Session) (res Result, err error) {
	if ev == nil {
		return Result{}, &models.HandlerError{Err: errors.New("nil event")}
	}
	h, ok := r.handlers[ev.Hook]
	if !ev.Known || !ok {
		return Result{}, &models.UnknownHookError{HookEventName: ev.HookEventName}
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = Result{}
			err = &models.HandlerError{Hook: ev.Hook, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	res, err = h(Input{
		Event:   ev,
		Trace:   trace,
		Session: session,
		Policy:  r.policy,
		Capture: r.capture,
	})
	if err != nil {
		var he *models.HandlerError
		if errors.As(err, &he) {
			return Result{}, err
		}
		return Result{}, &models.HandlerError{Hook: ev.Hook, Err: err}
	}
	if res.Event.Name == "" {
		res.Event.Name = string(ev.Hook)
	}
	if res.Event.Level == "" {
		res.Event.Level = models.LevelDefault
	}
	res.Event.Metadata = mergeMetadata(baseMetadata(ev, trace), res.Event.Metadata)
	fitEvent(&res.Event)
	return res, nil
}

func baseMetadata(ev *models.Event, trace *models.Trace) map[string]any {
	m := map[string]any{
		"hook":            string(ev.Hook),
		"host_hook":       ev.HookEventName,
		"conversation_id": ev.ConversationID,
		"workspace_id":    ev.WorkspaceID,
		"handler_version": models.HandlerVersion,
		"schema_version":  models.HookSchemaVersion,
	}
	if ev.GenerationID != "" {
		m["generation_id"] = ev.GenerationID
	}
	if ev.Payload.Model != "" {
		m["model"] = ev.Payload.Model
	}
	if trace != nil {
		m["trace_event_index"] = trace.EventCount + 1
	}
	return m
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
