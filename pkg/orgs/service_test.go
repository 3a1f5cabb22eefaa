package orgs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewService(db), mock, db
}

func TestCreateOrganization(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		createdBy := int64(1)

		mock.ExpectQuery(`INSERT INTO organizations`).
			WithArgs("acme", &createdBy, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

		org := &Organization{Name: "acme", CreatedBy: &createdBy}
		require.NoError(t, service.CreateOrganization(context.Background(), org))
		assert.Equal(t, int64(10), org.ID)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := service.CreateOrganization(context.Background(), &Organization{Name: "  "})
		assert.True(t, apperrors.IsKind(err, apperrors.ValidationFailed))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrganization(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("soft delete", func(t *testing.T) {
		mock.ExpectExec(`UPDATE organizations SET deleted_at`).
			WithArgs(sqlmock.AnyArg(), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.DeleteOrganization(context.Background(), 10))
	})

	t.Run("missing organization", func(t *testing.T) {
		mock.ExpectExec(`UPDATE organizations SET deleted_at`).
			WithArgs(sqlmock.AnyArg(), int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.DeleteOrganization(context.Background(), 99)
		assert.True(t, apperrors.IsKind(err, apperrors.NotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWorkspace(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs(int64(10), "design", "", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		ws := &Workspace{OrganizationID: 10, Name: "design"}
		require.NoError(t, service.CreateWorkspace(context.Background(), ws))
		assert.Equal(t, int64(3), ws.ID)
	})

	t.Run("duplicate name in organization conflicts", func(t *testing.T) {
		// The unique index compares lowercased names, so Design
		// collides with design.
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs(int64(10), "Design", "", nil, sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505"})

		err := service.CreateWorkspace(context.Background(), &Workspace{OrganizationID: 10, Name: "Design"})
		assert.True(t, apperrors.IsKind(err, apperrors.AlreadyExists))
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := service.CreateWorkspace(context.Background(), &Workspace{OrganizationID: 10})
		assert.True(t, apperrors.IsKind(err, apperrors.ValidationFailed))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWorkspaces(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "name", "description", "created_by", "created_at", "updated_at",
	}).
		AddRow(3, 10, "design", "design docs", 1, now, now).
		AddRow(4, 10, "platform", nil, nil, now, now)

	mock.ExpectQuery(`FROM workspaces\s*WHERE organization_id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	workspaces, err := service.ListWorkspaces(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, workspaces, 2)
	assert.Equal(t, "design docs", workspaces[0].Description)
	assert.Empty(t, workspaces[1].Description)
	assert.Nil(t, workspaces[1].CreatedBy)

	require.NoError(t, mock.ExpectationsWereMet())
}
