package orgs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

func TestAddMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("new membership created", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO org_memberships`).
			WithArgs(int64(1), int64(10), nil, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(50))

		m := &Membership{UserID: 1, OrganizationID: 10}
		created, err := service.AddMember(context.Background(), m)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(50), m.ID)
	})

	t.Run("existing membership is a no-op", func(t *testing.T) {
		joinedAt := time.Now().Add(-24 * time.Hour)

		mock.ExpectQuery(`INSERT INTO org_memberships`).
			WithArgs(int64(1), int64(10), nil, nil, sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT id, created_at\s*FROM org_memberships`).
			WithArgs(int64(1), int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(50, joinedAt))

		m := &Membership{UserID: 1, OrganizationID: 10}
		created, err := service.AddMember(context.Background(), m)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(50), m.ID)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("soft delete", func(t *testing.T) {
		mock.ExpectExec(`UPDATE org_memberships SET deleted_at`).
			WithArgs(sqlmock.AnyArg(), int64(1), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.RemoveMember(context.Background(), 1, 10))
	})

	t.Run("not a member", func(t *testing.T) {
		mock.ExpectExec(`UPDATE org_memberships SET deleted_at`).
			WithArgs(sqlmock.AnyArg(), int64(2), int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.RemoveMember(context.Background(), 2, 10)
		assert.True(t, apperrors.IsKind(err, apperrors.NotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddTeamMember(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("org member joins team", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO team_members`).
			WithArgs(int64(5), int64(1), nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(70))

		tm := &TeamMember{TeamID: 5, UserID: 1}
		require.NoError(t, service.AddTeamMember(context.Background(), tm))
		assert.Equal(t, int64(70), tm.ID)
	})

	t.Run("non-member rejected", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(5), int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := service.AddTeamMember(context.Background(), &TeamMember{TeamID: 5, UserID: 2})
		assert.True(t, apperrors.IsKind(err, apperrors.ValidationFailed))
	})

	t.Run("already in team is a no-op", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(5), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`INSERT INTO team_members`).
			WithArgs(int64(5), int64(1), nil, sqlmock.AnyArg()).
			WillReturnError(sql.ErrNoRows)

		require.NoError(t, service.AddTeamMember(context.Background(), &TeamMember{TeamID: 5, UserID: 1}))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembers(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "organization_id", "invitation_id", "added_by", "created_at",
	}).
		AddRow(50, 1, 10, nil, nil, now).
		AddRow(51, 2, 10, 30, 1, now)

	mock.ExpectQuery(`FROM org_memberships\s*WHERE organization_id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	members, err := service.ListMembers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Nil(t, members[0].InvitationID)
	require.NotNil(t, members[1].InvitationID)
	assert.Equal(t, int64(30), *members[1].InvitationID)

	require.NoError(t, mock.ExpectationsWereMet())
}
