package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}
