package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/hooktrace/internal/models"
)

func TestIsRetryableError(t *testing.T) {
	require.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.True(t, isRetryableError(errors.New("SQLITE_BUSY")))
	require.False(t, isRetryableError(errors.New("UNIQUE constraint failed: traces.handle")))
	require.False(t, isRetryableError(errors.New("no such table: traces")))
}

func TestRetryWithBackoff_RetriesBusyThenSucceeds(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("FOREIGN KEY constraint failed")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	require.LessOrEqual(t, attempts, 1)
}

func TestStoreErr_WrapsOnce(t *testing.T) {
	require.NoError(t, storeErr("op", "k", nil))

	err := storeErr("apply delta", "c1", errors.New("disk I/O error"))
	require.True(t, errors.Is(err, models.ErrCorrelationStore))

	again := storeErr("outer", "c2", err)
	var cse *models.CorrelationStoreError
	require.True(t, errors.As(again, &cse))
	require.Equal(t, "apply delta", cse.Op)
}
