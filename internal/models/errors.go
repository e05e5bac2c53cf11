package models

import (
	"errors"
	"fmt"
	"strconv"
)

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. The commands and store packages both use this
// interface to log errors without importing each other.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Sentinels for errors.Is checks against the structured error types below.
var (
	ErrMalformedInput   = errors.New("malformed input")
	ErrUnknownHook      = errors.New("unknown hook")
	ErrCorrelationStore = errors.New("correlation store failure")
	ErrPublisher        = errors.New("publisher failure")
	ErrHandler          = errors.New("handler failure")
)

// MalformedInputError is returned when stdin is empty or not a JSON object
// carrying a hook_event_name.
type MalformedInputError struct {
	Reason string
	Bytes  int
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed hook input: %s: %v", e.Reason, e.Err)
	}
	return "malformed hook input: " + e.Reason
}
func (e *MalformedInputError) Unwrap() error     { return e.Err }
func (e *MalformedInputError) ErrorCode() string { return "MALFORMED_INPUT" }
func (e *MalformedInputError) Context() map[string]string {
	return map[string]string{
		"reason": e.Reason,
		"bytes":  strconv.Itoa(e.Bytes),
	}
}
func (e *MalformedInputError) SuggestedAction() string {
	return "check that the host pipes one JSON object with hook_event_name on stdin"
}
func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// UnknownHookError is returned by the router for tags outside the closed
// enumeration. It is logged and ignored, never surfaced to the host.
type UnknownHookError struct {
	HookEventName string
}

func (e *UnknownHookError) Error() string {
	return fmt.Sprintf("unknown hook %q (schema %s)", e.HookEventName, HookSchemaVersion)
}
func (e *UnknownHookError) ErrorCode() string { return "UNKNOWN_HOOK" }
func (e *UnknownHookError) Context() map[string]string {
	return map[string]string{
		"hook_event_name": e.HookEventName,
		"schema_version":  HookSchemaVersion,
	}
}
func (e *UnknownHookError) SuggestedAction() string {
	return "upgrade hooktrace or remove the hook entry from the host configuration"
}
func (e *UnknownHookError) Is(target error) bool { return target == ErrUnknownHook }

// CorrelationStoreError wraps read, write and lock failures against the
// persisted trace/session state.
type CorrelationStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *CorrelationStoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("correlation store %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("correlation store %s: %v", e.Op, e.Err)
}
func (e *CorrelationStoreError) Unwrap() error     { return e.Err }
func (e *CorrelationStoreError) ErrorCode() string { return "CORRELATION_STORE" }
func (e *CorrelationStoreError) Context() map[string]string {
	return map[string]string{
		"op":  e.Op,
		"key": e.Key,
	}
}
func (e *CorrelationStoreError) SuggestedAction() string {
	return "run 'hooktrace status' to check the database; raise HOOKTRACE_BUSY_TIMEOUT_MS under heavy contention"
}
func (e *CorrelationStoreError) Is(target error) bool { return target == ErrCorrelationStore }

// PublisherError reports an unreachable or rejecting backend.
type PublisherError struct {
	Endpoint   string
	StatusCode int
	Rejected   int
	Err        error
}

func (e *PublisherError) Error() string {
	switch {
	case e.Rejected > 0:
		return fmt.Sprintf("publisher: backend rejected %d item(s)", e.Rejected)
	case e.StatusCode != 0:
		return fmt.Sprintf("publisher: backend returned status %d: %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("publisher: %v", e.Err)
	}
}
func (e *PublisherError) Unwrap() error     { return e.Err }
func (e *PublisherError) ErrorCode() string { return "PUBLISHER" }
func (e *PublisherError) Context() map[string]string {
	return map[string]string{
		"endpoint":    e.Endpoint,
		"status_code": strconv.Itoa(e.StatusCode),
		"rejected":    strconv.Itoa(e.Rejected),
	}
}
func (e *PublisherError) SuggestedAction() string {
	return "verify LANGFUSE_HOST and the public/secret key pair"
}
func (e *PublisherError) Is(target error) bool { return target == ErrPublisher }

// HandlerError wraps an unexpected failure (error or panic) inside one hook
// handler.
type HandlerError struct {
	Hook HookName
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Hook, e.Err)
}
func (e *HandlerError) Unwrap() error     { return e.Err }
func (e *HandlerError) ErrorCode() string { return "HANDLER" }
func (e *HandlerError) Context() map[string]string {
	return map[string]string{"hook": string(e.Hook)}
}
func (e *HandlerError) SuggestedAction() string {
	return "rerun with HOOKTRACE_LOG_LEVEL=debug and report the payload"
}
func (e *HandlerError) Is(target error) bool { return target == ErrHandler }
