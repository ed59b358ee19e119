package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryStatus represents the lifecycle state of a knowledge entry
type EntryStatus string

const (
	EntryStatusEnabled  EntryStatus = "enabled"
	EntryStatusDisabled EntryStatus = "disabled"
)

// OverrideBehavior hints how an entry's content should be blended into a
// synthesized answer
type OverrideBehavior string

const (
	// OverrideReplace uses the entry content verbatim
	OverrideReplace OverrideBehavior = "replace"
	// OverrideAppend splices the entry content into a generated answer
	OverrideAppend OverrideBehavior = "append"
	// OverrideConditional uses the entry only when no stronger entry applies
	OverrideConditional OverrideBehavior = "conditional"
)

// TriggerConditions holds the three independent match facets of an entry.
// Satisfying ANY facet makes the entry a relevance candidate (OR across
// facets, OR across items within a facet). All fields are optional.
type TriggerConditions struct {
	// TextContains lists substrings matched against the lowercased query
	TextContains []string `json:"textContains,omitempty"`
	// EventTypes lists situational event labels (e.g. "chat", "voice_call")
	EventTypes []string `json:"eventType,omitempty"`
	// Intents lists conversation intent labels
	Intents []string `json:"intent,omitempty"`
}

// IsEmpty reports whether no facet carries any condition
func (tc *TriggerConditions) IsEmpty() bool {
	if tc == nil {
		return true
	}
	return len(tc.TextContains) == 0 && len(tc.EventTypes) == 0 && len(tc.Intents) == 0
}

// Normalize lowercases and trims all facet items in place, dropping blanks.
// Called once at load time so match-time comparisons stay case-insensitive
// without re-lowering on every request.
func (tc *TriggerConditions) Normalize() {
	if tc == nil {
		return
	}
	tc.TextContains = normalizeList(tc.TextContains)
	tc.EventTypes = normalizeList(tc.EventTypes)
	tc.Intents = normalizeList(tc.Intents)
}

// Validate checks facet items for structural problems
func (tc *TriggerConditions) Validate() error {
	if tc == nil {
		return nil
	}
	for _, s := range tc.TextContains {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("triggerConditions.textContains must not contain blank items")
		}
	}
	for _, s := range tc.EventTypes {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("triggerConditions.eventType must not contain blank items")
		}
	}
	for _, s := range tc.Intents {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("triggerConditions.intent must not contain blank items")
		}
	}
	return nil
}

func normalizeList(items []string) []string {
	if len(items) == 0 {
		return items
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// KnowledgeEntry represents a single entry in the knowledge base. Entries
// are authored through the dashboard API; the retriever treats them as
// read-mostly input.
type KnowledgeEntry struct {
	ID                uuid.UUID          `json:"id" db:"id"`
	Name              string             `json:"name" db:"name"`
	Content           string             `json:"content" db:"content"`
	Category          string             `json:"category" db:"category"`
	Tags              []string           `json:"tags" db:"tags"`
	TriggerConditions *TriggerConditions `json:"trigger_conditions,omitempty" db:"trigger_conditions"`
	Confidence        int                `json:"confidence" db:"confidence"` // 0-100 author-assigned trust
	Priority          int                `json:"priority" db:"priority"`     // higher wins ties
	Status            EntryStatus        `json:"status" db:"status"`
	OverrideBehavior  OverrideBehavior   `json:"override_behavior" db:"override_behavior"`
	RoleVisibility    []string           `json:"role_visibility" db:"role_visibility"`
	UsageCount        int                `json:"usage_count" db:"usage_count"`
	LastUsedAt        *time.Time         `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the KnowledgeEntry model
func (KnowledgeEntry) TableName() string {
	return "knowledge_entries"
}

// NewKnowledgeEntry creates an enabled entry with defaults applied
func NewKnowledgeEntry(name, content, category string) *KnowledgeEntry {
	now := time.Now()
	return &KnowledgeEntry{
		ID:               uuid.New(),
		Name:             name,
		Content:          content,
		Category:         category,
		Status:           EntryStatusEnabled,
		OverrideBehavior: OverrideAppend,
		Confidence:       50,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsEnabled reports whether the entry may be considered for retrieval
func (e *KnowledgeEntry) IsEnabled() bool {
	return e.Status == EntryStatusEnabled
}

// VisibleTo reports whether the entry is visible to the given caller role.
// An empty RoleVisibility list means no restriction; an unset role is never
// filtered.
func (e *KnowledgeEntry) VisibleTo(role string) bool {
	if role == "" || len(e.RoleVisibility) == 0 {
		return true
	}
	for _, r := range e.RoleVisibility {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Validate checks the entry for structural problems before it is persisted
// or admitted into the retrieval snapshot
func (e *KnowledgeEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entry name is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("entry content is required")
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return fmt.Errorf("entry confidence must be between 0 and 100, got %d", e.Confidence)
	}
	switch e.Status {
	case EntryStatusEnabled, EntryStatusDisabled:
	default:
		return fmt.Errorf("invalid entry status %q", e.Status)
	}
	switch e.OverrideBehavior {
	case OverrideReplace, OverrideAppend, OverrideConditional, "":
	default:
		return fmt.Errorf("invalid override behavior %q", e.OverrideBehavior)
	}
	return e.TriggerConditions.Validate()
}
