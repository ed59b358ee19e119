package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/tyson-yobot/command-center-sub002/models"
)

// KnowledgeRepository defines the persistence contract for knowledge
// entries. The retrieval service only reads through ListEnabled and writes
// through IncrementUsage; the remaining operations back the dashboard's
// entry-authoring API.
type KnowledgeRepository interface {
	// Create persists a new knowledge entry
	Create(ctx context.Context, entry *models.KnowledgeEntry) error

	// GetByID retrieves an entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntry, error)

	// List retrieves all entries regardless of status
	List(ctx context.Context) ([]*models.KnowledgeEntry, error)

	// ListEnabled retrieves all entries with status=enabled in collection
	// order. This is the snapshot source for the retrieval cache.
	ListEnabled(ctx context.Context) ([]*models.KnowledgeEntry, error)

	// Update updates an existing entry
	Update(ctx context.Context, entry *models.KnowledgeEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, id uuid.UUID) error

	// IncrementUsage bumps the usage counter and last-used timestamp of an
	// entry after a successful retrieval. Callers treat failures as
	// best-effort.
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}
