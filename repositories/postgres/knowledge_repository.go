package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tyson-yobot/command-center-sub002/models"
	"github.com/tyson-yobot/command-center-sub002/repositories"
	"go.uber.org/zap"
)

const knowledgeColumns = `id, name, content, category, tags, trigger_conditions, confidence,
		priority, status, override_behavior, role_visibility, usage_count,
		last_used_at, created_at, updated_at`

// KnowledgeRepository implements repositories.KnowledgeRepository against
// PostgreSQL
type KnowledgeRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewKnowledgeRepository creates a new knowledge repository
func NewKnowledgeRepository(db *DB, logger *zap.Logger) repositories.KnowledgeRepository {
	return &KnowledgeRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new knowledge entry
func (r *KnowledgeRepository) Create(ctx context.Context, entry *models.KnowledgeEntry) error {
	query := `
		INSERT INTO knowledge_entries (id, name, content, category, tags, trigger_conditions,
			confidence, priority, status, override_behavior, role_visibility,
			usage_count, last_used_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	triggers, err := marshalTriggers(entry.TriggerConditions)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Name,
		entry.Content,
		entry.Category,
		pq.Array(entry.Tags),
		triggers,
		entry.Confidence,
		entry.Priority,
		entry.Status,
		entry.OverrideBehavior,
		pq.Array(entry.RoleVisibility),
		entry.UsageCount,
		entry.LastUsedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create knowledge entry: %w", err)
	}

	r.logger.Debug("knowledge entry created", zap.String("id", entry.ID.String()))
	return nil
}

// GetByID retrieves an entry by ID
func (r *KnowledgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntry, error) {
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		WHERE id = $1
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("knowledge entry not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get knowledge entry: %w", err)
	}

	return entry, nil
}

// List retrieves all entries regardless of status
func (r *KnowledgeRepository) List(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		ORDER BY created_at ASC
	`

	return r.queryEntries(ctx, query)
}

// ListEnabled retrieves all enabled entries in collection order
func (r *KnowledgeRepository) ListEnabled(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_entries
		WHERE status = $1
		ORDER BY created_at ASC
	`

	return r.queryEntries(ctx, query, models.EntryStatusEnabled)
}

// Update updates an existing entry
func (r *KnowledgeRepository) Update(ctx context.Context, entry *models.KnowledgeEntry) error {
	query := `
		UPDATE knowledge_entries
		SET name = $2,
		    content = $3,
		    category = $4,
		    tags = $5,
		    trigger_conditions = $6,
		    confidence = $7,
		    priority = $8,
		    status = $9,
		    override_behavior = $10,
		    role_visibility = $11,
		    updated_at = $12
		WHERE id = $1
	`

	triggers, err := marshalTriggers(entry.TriggerConditions)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Name,
		entry.Content,
		entry.Category,
		pq.Array(entry.Tags),
		triggers,
		entry.Confidence,
		entry.Priority,
		entry.Status,
		entry.OverrideBehavior,
		pq.Array(entry.RoleVisibility),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("knowledge entry not found: %s", entry.ID)
	}

	r.logger.Debug("knowledge entry updated", zap.String("id", entry.ID.String()))
	return nil
}

// Delete removes an entry
func (r *KnowledgeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM knowledge_entries WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("knowledge entry not found: %s", id)
	}

	r.logger.Debug("knowledge entry deleted", zap.String("id", id.String()))
	return nil
}

// IncrementUsage bumps the usage counter and last-used timestamp
func (r *KnowledgeRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE knowledge_entries
		SET usage_count = usage_count + 1,
		    last_used_at = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to increment usage count: %w", err)
	}
	return nil
}

// queryEntries executes a query and scans all resulting entries
func (r *KnowledgeRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*models.KnowledgeEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.KnowledgeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge entries: %w", err)
	}

	return entries, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a single knowledge entry row and normalizes its trigger
// conditions so the retrieval path never re-lowers them
func scanEntry(row rowScanner) (*models.KnowledgeEntry, error) {
	entry := &models.KnowledgeEntry{}
	var triggers []byte
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&entry.ID,
		&entry.Name,
		&entry.Content,
		&entry.Category,
		pq.Array(&entry.Tags),
		&triggers,
		&entry.Confidence,
		&entry.Priority,
		&entry.Status,
		&entry.OverrideBehavior,
		pq.Array(&entry.RoleVisibility),
		&entry.UsageCount,
		&lastUsedAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		entry.LastUsedAt = &lastUsedAt.Time
	}

	if len(triggers) > 0 {
		tc := &models.TriggerConditions{}
		if err := json.Unmarshal(triggers, tc); err != nil {
			return nil, fmt.Errorf("invalid trigger conditions for entry %s: %w", entry.ID, err)
		}
		tc.Normalize()
		if !tc.IsEmpty() {
			entry.TriggerConditions = tc
		}
	}

	return entry, nil
}

// marshalTriggers serializes trigger conditions for the JSONB column; nil
// conditions are stored as NULL
func marshalTriggers(tc *models.TriggerConditions) (interface{}, error) {
	if tc.IsEmpty() {
		return nil, nil
	}
	data, err := json.Marshal(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger conditions: %w", err)
	}
	return data, nil
}
