package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create payable: %w", Invalid("description", "must not be empty"))
	require.ErrorIs(t, err, ErrValidation)
	require.NotErrorIs(t, err, ErrNotFound)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "description", verr.Field)
	require.Equal(t, "description: must not be empty", verr.Error())
}

func TestPersistenceKeepsDomainErrors(t *testing.T) {
	notFound := NotFound("payable")
	require.Same(t, notFound, Persistence("get payable", notFound))
	require.Nil(t, Persistence("noop", nil))

	raw := errors.New("connection reset")
	err := Persistence("update payable", raw)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, raw)
	require.Equal(t, "update payable: connection reset", err.Error())
}

func TestNewPaginationOffset(t *testing.T) {
	p := NewPagination(3, 25, 120)
	require.Equal(t, 50, p.Offset())
	require.Equal(t, 5, p.TotalPages)

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 0, p.Offset())
}
