package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/models"
)

const testWorkspaceID = "0b6b6d7e-3d0e-4c1b-9a3f-5c8e2f1d4a77"

func TestWorkspaceRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO workspaces`)).
		WithArgs(sqlmock.AnyArg(), "Team", "desc", "#FF5733", testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO workspace_members`)).
		WithArgs(sqlmock.AnyArg(), testUserID, "owner", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := &models.Workspace{
		Name: "Team", Description: "desc", Color: "#FF5733", OwnerID: testUserID,
		Members: []models.WorkspaceMember{{UserID: testUserID, Role: models.RoleOwner, JoinedAt: now}},
	}
	require.NoError(t, repo.Create(context.Background(), w))
	assert.NotEmpty(t, w.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepository_CreateRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO workspaces`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO workspace_members`)).
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	w := &models.Workspace{
		Name: "Team", Description: "desc", OwnerID: testUserID,
		Members: []models.WorkspaceMember{{UserID: testUserID, Role: models.RoleOwner, JoinedAt: now}},
	}
	require.Error(t, repo.Create(context.Background(), w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepository_ListByMember(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)
	now := time.Now()

	wsCols := []string{"id", "name", "description", "color", "owner_id", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM workspaces`)).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(wsCols).AddRow(testWorkspaceID, "Team", "desc", "#FF5733", testUserID, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM workspace_members`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "user_id", "role", "joined_at"}).
			AddRow(testWorkspaceID, testUserID, "owner", now))

	list, err := repo.ListByMember(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Members, 1)
	assert.Equal(t, models.RoleOwner, list[0].Members[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepository_GetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepository_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE workspaces`)).
		WithArgs(testWorkspaceID, "Renamed", "Desc", "#000000").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	w := &models.Workspace{ID: testWorkspaceID, Name: "Renamed", Description: "Desc", Color: "#000000"}
	require.NoError(t, repo.Update(context.Background(), w))
	assert.Equal(t, now, w.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkspaceRepository_UpdateNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewWorkspaceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE workspaces`)).
		WithArgs(testWorkspaceID, "N", "D", "#FF5733").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.Update(context.Background(), &models.Workspace{ID: testWorkspaceID, Name: "N", Description: "D", Color: "#FF5733"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.Update(context.Background(), &models.Workspace{ID: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
