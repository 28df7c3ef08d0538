package faq

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-concierge/internal/conversation"
)

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLRepository(db), mock
}

func TestSQLRepository_FAQsByOrganizationUnit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM faqs\\s+WHERE LOWER\\(organization_unit\\) = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "answer", "organization_unit"}).
			AddRow("f-1", "Payday?", "Last Friday", "Finance").
			AddRow("f-2", "Expense form?", "Intranet", "Finance"))

	faqs, err := repo.FAQsByOrganizationUnit(context.Background(), " Finance ")
	require.NoError(t, err)
	require.Len(t, faqs, 2)
	assert.Equal(t, "Payday?", faqs[0].Question)
	assert.Equal(t, "Intranet", faqs[1].Answer)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListAll(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM faqs\\s+ORDER BY").
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "answer", "organization_unit"}))

	faqs, err := repo.List(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	assert.Empty(t, faqs)
	assert.NotNil(t, faqs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_ListError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM faqs").WillReturnError(errors.New("connection reset"))

	_, err := repo.List(context.Background(), nil)
	assert.ErrorContains(t, err, "connection reset")
}

func TestSQLRepository_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO faqs").
		WithArgs(sqlmock.AnyArg(), "Where is HR?", "Floor 3", "Human Resources", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"organization_unit"}).AddRow(nil))

	entry := &conversation.FAQ{Question: "Where is HR?", Answer: "Floor 3", OrganizationUnit: "Human Resources"}
	previous, err := repo.Upsert(context.Background(), entry)
	require.NoError(t, err)
	assert.Empty(t, previous, "new entry has no previous unit")
	assert.NotEmpty(t, entry.ID, "id is generated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_UpsertReturnsPreviousUnit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("WITH prev AS \\(SELECT organization_unit FROM faqs WHERE id = \\$1\\)").
		WithArgs("f-1", "Payday?", "Last Friday", "Operations", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"organization_unit"}).AddRow("Finance"))

	entry := &conversation.FAQ{ID: "f-1", Question: "Payday?", Answer: "Last Friday", OrganizationUnit: "Operations"}
	previous, err := repo.Upsert(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "Finance", previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_BlankUnitMatchesNothing(t *testing.T) {
	repo, mock := newMockRepo(t)

	faqs, err := repo.FAQsByOrganizationUnit(context.Background(), "  ")
	require.NoError(t, err)
	assert.NotNil(t, faqs)
	assert.Empty(t, faqs)
	assert.NoError(t, mock.ExpectationsWereMet(), "no query is issued")
}

func TestSQLRepository_UpsertRejectsIncompleteEntry(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.Upsert(context.Background(), &conversation.FAQ{Question: "q"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
	_, err = repo.Upsert(context.Background(), nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("DELETE FROM faqs").
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_unit"}).AddRow("Finance"))
	mock.ExpectQuery("DELETE FROM faqs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	unit, err := repo.Delete(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "Finance", unit)

	_, err = repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
