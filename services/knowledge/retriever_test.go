package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tyson-yobot/command-center-sub002/config"
	"github.com/tyson-yobot/command-center-sub002/models"
	"github.com/tyson-yobot/command-center-sub002/services"
	"go.uber.org/zap"
)

// MockKnowledgeRepository is a mock implementation of KnowledgeRepository
type MockKnowledgeRepository struct {
	mock.Mock
}

func (m *MockKnowledgeRepository) Create(ctx context.Context, entry *models.KnowledgeEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.KnowledgeEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) List(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) ListEnabled(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeRepository) Update(ctx context.Context, entry *models.KnowledgeEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockKnowledgeRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// testRetrievalConfig mirrors the production defaults
func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		CacheTTL:              5 * time.Minute,
		SearchTopK:            3,
		AnswerTopK:            5,
		ConfidenceWeight:      0.3,
		PriorityWeight:        0.2,
		WordMatchWeight:       50,
		UsageWeight:           0.1,
		UsageBonusCap:         5,
		MinWordLength:         4,
		PriorityBonusWeight:   0.001,
		EmptyResultConfidence: 0.3,
		EscalationThreshold:   0.65,
		EscalationKeywords:    []string{"refund", "cancel", "urgent", "broken", "not working"},
		HandoffPhrases:        []string{"support ticket", "contact support"},
	}
}

// newTestService builds a service with a synchronous side-effect runner
func newTestService(repo *MockKnowledgeRepository, cfg config.RetrievalConfig) *Service {
	svc := NewService(repo, nil, cfg, zap.NewNop())
	svc.runAsync = func(fn func()) { fn() }
	return svc
}

func enabledEntry(name, content string, tc *models.TriggerConditions) *models.KnowledgeEntry {
	tc.Normalize()
	entry := models.NewKnowledgeEntry(name, content, "support")
	entry.TriggerConditions = tc
	return entry
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	_, err := svc.Retrieve(context.Background(), "   ", QueryContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrEmptyQuery)
	assert.True(t, services.IsValidationError(err))
	repo.AssertNotCalled(t, "ListEnabled")
}

func TestRetrieve_DisabledEntriesNeverReturned(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	disabled := enabledEntry("Refund policy", "Refunds within 30 days",
		&models.TriggerConditions{TextContains: []string{"refund"}})
	disabled.Status = models.EntryStatusDisabled
	disabled.Confidence = 100
	disabled.Priority = 100

	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{disabled}, nil)

	result, err := svc.Retrieve(context.Background(), "I want a refund", QueryContext{})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.InDelta(t, 0.3, result.ConfidenceEstimate, 1e-9)
}

func TestRetrieve_TriggerFacetsAreOrSemantics(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	entry := enabledEntry("Voicemail drop", "Leaving a voicemail automatically",
		&models.TriggerConditions{
			TextContains: []string{"voicemail"},
			EventTypes:   []string{"voice_call"},
			Intents:      []string{"leave_message"},
		})
	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{entry}, nil)

	t.Run("event type matches without text match", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "zzzz", QueryContext{EventType: "voice_call"})
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, entry.ID, result.Candidates[0].ID)
	})

	t.Run("intent matches without text match", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "zzzz", QueryContext{Intent: "leave_message"})
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
	})

	t.Run("no facet matches", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "zzzz", QueryContext{EventType: "chat"})
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)
	})
}

func TestRetrieve_WordFallbackReachesUntaggedEntries(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	entry := enabledEntry("Calendar sync", "How to reconnect a stuck calendar integration", nil)
	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{entry}, nil)

	t.Run("significant word matches content", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "my calendar is stuck", QueryContext{})
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
	})

	t.Run("only short words never match", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "log in to it", QueryContext{})
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)
	})
}

func TestRetrieve_RoleVisibility(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	adminOnly := enabledEntry("Billing override", "How to override an invoice total",
		&models.TriggerConditions{TextContains: []string{"invoice"}})
	adminOnly.RoleVisibility = []string{"admin"}

	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{adminOnly}, nil)

	t.Run("excluded for non-listed role", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "fix this invoice", QueryContext{Role: "client"})
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)
	})

	t.Run("included for listed role", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "fix this invoice", QueryContext{Role: "admin"})
		require.NoError(t, err)
		assert.Len(t, result.Candidates, 1)
	})

	t.Run("included when role unset", func(t *testing.T) {
		result, err := svc.Retrieve(context.Background(), "fix this invoice", QueryContext{})
		require.NoError(t, err)
		assert.Len(t, result.Candidates, 1)
	})
}

func TestRetrieve_PriorityDominatesScore(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	lowPriority := enabledEntry("High score", "refund refund refund details",
		&models.TriggerConditions{TextContains: []string{"refund"}})
	lowPriority.Priority = 10
	lowPriority.Confidence = 100
	lowPriority.UsageCount = 100

	highPriority := enabledEntry("Low score", "escalation path",
		&models.TriggerConditions{TextContains: []string{"refund"}})
	highPriority.Priority = 20
	highPriority.Confidence = 10

	repo.On("ListEnabled", mock.Anything).
		Return([]*models.KnowledgeEntry{lowPriority, highPriority}, nil)

	result, err := svc.Retrieve(context.Background(), "refund please", QueryContext{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, highPriority.ID, result.Candidates[0].ID)
	assert.Equal(t, lowPriority.ID, result.Candidates[1].ID)
}

func TestRetrieve_TopKTruncation(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	entries := make([]*models.KnowledgeEntry, 0, 5)
	for i := 0; i < 5; i++ {
		e := enabledEntry("Refund policy", "Refund terms and conditions",
			&models.TriggerConditions{TextContains: []string{"refund"}})
		e.Priority = i
		entries = append(entries, e)
	}
	repo.On("ListEnabled", mock.Anything).Return(entries, nil)

	result, err := svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 3)
	// Highest priority first
	assert.Equal(t, 4, result.Candidates[0].Priority)
}

func TestRetrieve_CacheFreshness(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	first := enabledEntry("Refund policy", "Refunds within 30 days",
		&models.TriggerConditions{TextContains: []string{"refund"}})
	second := enabledEntry("Refund exceptions", "Refund exceptions for annual plans",
		&models.TriggerConditions{TextContains: []string{"refund"}})

	now := time.Now()
	svc.cache.nowFn = func() time.Time { return now }

	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{first}, nil).Once()

	result, err := svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	// Store gains a new entry; within the window the stale read is expected
	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{first, second}, nil)

	now = now.Add(time.Minute)
	result, err = svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)

	// After the window elapses the next call reloads
	now = now.Add(5 * time.Minute)
	result, err = svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestRetrieve_StoreFailureServesStaleSnapshot(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	entry := enabledEntry("Refund policy", "Refunds within 30 days",
		&models.TriggerConditions{TextContains: []string{"refund"}})

	now := time.Now()
	svc.cache.nowFn = func() time.Time { return now }

	repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{entry}, nil).Once()

	_, err := svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)

	repo.On("ListEnabled", mock.Anything).Return(nil, errors.New("connection refused"))

	now = now.Add(10 * time.Minute)
	result, err := svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, entry.ID, result.Candidates[0].ID)

	stats := svc.CacheStats()
	assert.Equal(t, uint64(1), stats.Failures)
}

func TestRetrieve_StoreFailureOnEmptyCache(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	repo.On("ListEnabled", mock.Anything).Return(nil, errors.New("connection refused"))

	result, err := svc.Retrieve(context.Background(), "refund", QueryContext{})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.InDelta(t, 0.3, result.ConfidenceEstimate, 1e-9)
}

func TestRetrieve_ObservedScenario(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	refundEntry := enabledEntry("Refund policy", "Refunds within 30 days",
		&models.TriggerConditions{TextContains: []string{"refund"}})
	refundEntry.Confidence = 95
	refundEntry.Priority = 90

	humanEntry := enabledEntry("Escalation", "Escalate to human on request",
		&models.TriggerConditions{TextContains: []string{"speak to human"}})
	humanEntry.Confidence = 100
	humanEntry.Priority = 100

	repo.On("ListEnabled", mock.Anything).
		Return([]*models.KnowledgeEntry{refundEntry, humanEntry}, nil)

	result, err := svc.Retrieve(context.Background(), "I want a refund please", QueryContext{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, refundEntry.ID, result.Candidates[0].ID)
	// avg confidence 0.95 plus priority bonus 90*0.001, clamped
	assert.InDelta(t, 1.0, result.ConfidenceEstimate, 1e-9)
}

func TestRefreshNow(t *testing.T) {
	repo := new(MockKnowledgeRepository)
	svc := newTestService(repo, testRetrievalConfig())

	t.Run("forces reload before window elapses", func(t *testing.T) {
		entry := enabledEntry("Refund policy", "Refunds within 30 days",
			&models.TriggerConditions{TextContains: []string{"refund"}})
		repo.On("ListEnabled", mock.Anything).Return([]*models.KnowledgeEntry{entry}, nil).Once()

		require.NoError(t, svc.RefreshNow(context.Background()))
		assert.Equal(t, 1, svc.CacheStats().EntryCount)
	})

	t.Run("surfaces store failure", func(t *testing.T) {
		repo.On("ListEnabled", mock.Anything).Return(nil, errors.New("connection refused"))
		err := svc.RefreshNow(context.Background())
		require.Error(t, err)
	})
}
