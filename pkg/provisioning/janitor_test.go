package provisioning

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

func TestJanitorSweep(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	janitor := NewJanitor(db, "@hourly", 30*24*time.Hour, nil, logger)

	t.Run("sweeps stale unaccepted invitations", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invitations\s*SET deleted_at = \$1\s*WHERE accepted_at IS NULL`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 3))

		removed, err := janitor.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
	})

	t.Run("nothing to sweep", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invitations\s*SET deleted_at = \$1\s*WHERE accepted_at IS NULL`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		removed, err := janitor.Sweep(context.Background())
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
