package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyson-yobot/command-center-sub002/models"
	"go.uber.org/zap"
)

func newMockRepository(t *testing.T) (*KnowledgeRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewKnowledgeRepository(&DB{DB: db, logger: zap.NewNop()}, zap.NewNop())
	return repo.(*KnowledgeRepository), mock
}

func entryColumns() []string {
	return []string{
		"id", "name", "content", "category", "tags", "trigger_conditions",
		"confidence", "priority", "status", "override_behavior",
		"role_visibility", "usage_count", "last_used_at", "created_at", "updated_at",
	}
}

func entryRow(id uuid.UUID, triggers []byte) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id.String(), "Refund policy", "Refunds within 30 days", "billing",
		[]byte("{billing,refunds}"), triggers,
		95, 90, "enabled", "append",
		[]byte("{}"), 12, nil, now, now,
	}
}

func TestListEnabled(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	t.Run("scans and normalizes triggers", func(t *testing.T) {
		rows := sqlmock.NewRows(entryColumns()).
			AddRow(entryRow(id, []byte(`{"textContains":["  REFUND "]}`))...)

		mock.ExpectQuery(`SELECT (.+) FROM knowledge_entries\s+WHERE status = \$1`).
			WithArgs(models.EntryStatusEnabled).
			WillReturnRows(rows)

		entries, err := repo.ListEnabled(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, id, entries[0].ID)
		require.NotNil(t, entries[0].TriggerConditions)
		assert.Equal(t, []string{"refund"}, entries[0].TriggerConditions.TextContains)
		assert.Equal(t, []string{"billing", "refunds"}, entries[0].Tags)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null triggers stay nil", func(t *testing.T) {
		rows := sqlmock.NewRows(entryColumns()).AddRow(entryRow(id, nil)...)

		mock.ExpectQuery(`SELECT (.+) FROM knowledge_entries\s+WHERE status = \$1`).
			WithArgs(models.EntryStatusEnabled).
			WillReturnRows(rows)

		entries, err := repo.ListEnabled(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].TriggerConditions)
	})

	t.Run("propagates query failure", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM knowledge_entries`).
			WillReturnError(errors.New("connection refused"))

		_, err := repo.ListEnabled(context.Background())
		require.Error(t, err)
	})
}

func TestGetByID(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows(entryColumns()).AddRow(entryRow(id, nil)...)
		mock.ExpectQuery(`SELECT (.+) FROM knowledge_entries\s+WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(rows)

		entry, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, entry.ID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM knowledge_entries\s+WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(entryColumns()))

		_, err := repo.GetByID(context.Background(), id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestCreate(t *testing.T) {
	repo, mock := newMockRepository(t)

	entry := models.NewKnowledgeEntry("Refund policy", "Refunds within 30 days", "billing")
	entry.TriggerConditions = &models.TriggerConditions{TextContains: []string{"refund"}}

	mock.ExpectExec(`INSERT INTO knowledge_entries`).
		WithArgs(
			entry.ID, entry.Name, entry.Content, entry.Category,
			sqlmock.AnyArg(), sqlmock.AnyArg(),
			entry.Confidence, entry.Priority, entry.Status, entry.OverrideBehavior,
			sqlmock.AnyArg(), entry.UsageCount, entry.LastUsedAt,
			entry.CreatedAt, entry.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	repo, mock := newMockRepository(t)
	entry := models.NewKnowledgeEntry("Refund policy", "Refunds within 30 days", "billing")

	t.Run("updated", func(t *testing.T) {
		mock.ExpectExec(`UPDATE knowledge_entries`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Update(context.Background(), entry))
	})

	t.Run("missing row reported as not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE knowledge_entries`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.Update(context.Background(), entry)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	t.Run("deleted", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM knowledge_entries WHERE id = \$1`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), id))
	})

	t.Run("missing row reported as not found", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM knowledge_entries WHERE id = \$1`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.Delete(context.Background(), id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestIncrementUsage(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE knowledge_entries\s+SET usage_count = usage_count \+ 1`).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementUsage(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
