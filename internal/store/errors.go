package store

import (
	"errors"

	"github.com/dotcommander/hooktrace/internal/models"
)

// RecoverableError is an alias for models.RecoverableError so callers holding
// a store error can inspect it without importing models.
type RecoverableError = models.RecoverableError

// ErrTraceNotFound is returned when a conversation has no stored trace.
var ErrTraceNotFound = errors.New("trace not found")

// ErrSessionNotFound is returned when a workspace has no stored session.
var ErrSessionNotFound = errors.New("session not found")

// storeErr wraps err as a CorrelationStoreError unless it already is one.
func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var cse *models.CorrelationStoreError
	if errors.As(err, &cse) {
		return err
	}
	return &models.CorrelationStoreError{Op: op, Key: key, Err: err}
}
