package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/tyson-yobot/command-center-sub002/config"
	"github.com/tyson-yobot/command-center-sub002/models"
	"github.com/tyson-yobot/command-center-sub002/repositories"
	"github.com/tyson-yobot/command-center-sub002/services"
	"github.com/tyson-yobot/command-center-sub002/services/providers"
	"go.uber.org/zap"
)

// QueryContext carries the optional situational context of a retrieval call
type QueryContext struct {
	EventType string `json:"event_type,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Role      string `json:"role,omitempty"`
}

// RankedResult is the outcome of a retrieval call. An empty candidate list
// is a valid, non-exceptional result.
type RankedResult struct {
	Candidates         []*models.KnowledgeEntry `json:"candidates"`
	ConfidenceEstimate float64                  `json:"confidence_estimate"`
}

// Service implements knowledge retrieval, ranking and answer synthesis over
// a time-boxed snapshot of the knowledge store. A nil completer is valid and
// means every answer is produced by the rule-based fallback.
type Service struct {
	repo      repositories.KnowledgeRepository
	completer providers.Completer
	cfg       config.RetrievalConfig
	cache     *entryCache
	rules     []answerRule
	logger    *zap.Logger

	// runAsync dispatches best-effort side effects; replaced in tests to run
	// synchronously
	runAsync func(fn func())
}

// NewService creates a knowledge service. completer may be nil when no
// language-model credential is configured.
func NewService(
	repo repositories.KnowledgeRepository,
	completer providers.Completer,
	cfg config.RetrievalConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:      repo,
		completer: completer,
		cfg:       cfg,
		cache:     newEntryCache(cfg.CacheTTL),
		rules:     defaultAnswerRules(),
		logger:    logger,
		runAsync:  func(fn func()) { go fn() },
	}
}

// Retrieve returns a ranked shortlist of knowledge entries matching the
// query and optional context. The only error it returns is the empty-query
// precondition; store failures degrade to the last-known-good snapshot.
func (s *Service) Retrieve(ctx context.Context, query string, qc QueryContext) (*RankedResult, error) {
	return s.retrieve(ctx, query, qc, s.cfg.SearchTopK)
}

func (s *Service) retrieve(ctx context.Context, query string, qc QueryContext, topK int) (*RankedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, services.ErrEmptyQuery
	}

	s.refreshIfStale(ctx)

	loweredQuery := strings.ToLower(query)
	words := queryWords(loweredQuery, s.cfg.MinWordLength)

	type scored struct {
		entry *models.KnowledgeEntry
		score float64
	}

	var candidates []scored
	for _, entry := range s.cache.entries() {
		if !entry.IsEnabled() {
			continue
		}
		if !s.isCandidate(entry, loweredQuery, words, qc) {
			continue
		}
		if !entry.VisibleTo(qc.Role) {
			continue
		}
		candidates = append(candidates, scored{
			entry: entry,
			score: s.score(entry, words),
		})
	}

	// Priority dominates, then score, then confidence
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.entry.Priority != b.entry.Priority {
			return a.entry.Priority > b.entry.Priority
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.entry.Confidence > b.entry.Confidence
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	result := &RankedResult{
		Candidates: make([]*models.KnowledgeEntry, 0, len(candidates)),
	}
	for _, c := range candidates {
		result.Candidates = append(result.Candidates, c.entry)
	}
	result.ConfidenceEstimate = s.confidenceEstimate(result.Candidates)

	s.logger.Debug("knowledge retrieval completed",
		zap.Int("candidates", len(result.Candidates)),
		zap.Float64("confidence", result.ConfidenceEstimate))

	return result, nil
}

// refreshIfStale reloads the entry snapshot from the store once the
// freshness window has elapsed. A reload failure is a degraded-mode event,
// not an error: retrieval continues on the stale snapshot.
func (s *Service) refreshIfStale(ctx context.Context) {
	if !s.cache.refreshDue() {
		return
	}

	entries, err := s.repo.ListEnabled(ctx)
	if err != nil {
		s.cache.markFailure()
		s.logger.Warn("knowledge reload failed, serving stale snapshot",
			zap.String("reason", "store_unavailable"),
			zap.Error(err))
		return
	}

	for _, entry := range entries {
		entry.TriggerConditions.Normalize()
	}
	s.cache.publish(entries)

	s.logger.Info("knowledge snapshot reloaded", zap.Int("entries", len(entries)))
}

// RefreshNow forces a snapshot reload regardless of freshness and reports
// whether the store could be reached
func (s *Service) RefreshNow(ctx context.Context) error {
	entries, err := s.repo.ListEnabled(ctx)
	if err != nil {
		s.cache.markFailure()
		return services.WrapInternal("knowledge reload failed", err)
	}
	for _, entry := range entries {
		entry.TriggerConditions.Normalize()
	}
	s.cache.publish(entries)
	return nil
}

// CacheStats exposes the snapshot state for the cache endpoint
func (s *Service) CacheStats() CacheStats {
	return s.cache.stats()
}

// isCandidate applies the OR-semantics of the trigger facets, falling back
// to a literal word match against name+content when no facet matched
func (s *Service) isCandidate(entry *models.KnowledgeEntry, loweredQuery string, words []string, qc QueryContext) bool {
	tc := entry.TriggerConditions
	if tc != nil {
		for _, sub := range tc.TextContains {
			if strings.Contains(loweredQuery, sub) {
				return true
			}
		}
		if qc.EventType != "" && containsFold(tc.EventTypes, qc.EventType) {
			return true
		}
		if qc.Intent != "" && containsFold(tc.Intents, qc.Intent) {
			return true
		}
	}

	// Fallback keeps entries without matching trigger metadata reachable
	haystack := strings.ToLower(entry.Name + " " + entry.Content)
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

// score ranks a candidate that already passed filtering; it never admits new
// candidates
func (s *Service) score(entry *models.KnowledgeEntry, words []string) float64 {
	usageBonus := float64(entry.UsageCount) * s.cfg.UsageWeight
	if usageBonus > s.cfg.UsageBonusCap {
		usageBonus = s.cfg.UsageBonusCap
	}

	return float64(entry.Confidence)*s.cfg.ConfidenceWeight +
		float64(entry.Priority)*s.cfg.PriorityWeight +
		matchingWordFraction(entry, words)*s.cfg.WordMatchWeight +
		usageBonus
}

// confidenceEstimate scales the average candidate confidence to 0-1 with a
// small bonus for the highest candidate priority, clamped to [0,1]
func (s *Service) confidenceEstimate(candidates []*models.KnowledgeEntry) float64 {
	if len(candidates) == 0 {
		return s.cfg.EmptyResultConfidence
	}

	sum := 0
	maxPriority := candidates[0].Priority
	for _, c := range candidates {
		sum += c.Confidence
		if c.Priority > maxPriority {
			maxPriority = c.Priority
		}
	}

	estimate := float64(sum)/float64(len(candidates))/100.0 +
		float64(maxPriority)*s.cfg.PriorityBonusWeight

	if estimate > 1 {
		estimate = 1
	}
	if estimate < 0 {
		estimate = 0
	}
	return estimate
}

// matchingWordFraction is the fraction of significant query words literally
// present in the entry's name+content
func matchingWordFraction(entry *models.KnowledgeEntry, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	haystack := strings.ToLower(entry.Name + " " + entry.Content)
	matched := 0
	for _, w := range words {
		if strings.Contains(haystack, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// queryWords tokenizes the lowercased query keeping words of at least
// minLength runes
func queryWords(loweredQuery string, minLength int) []string {
	fields := strings.FieldsFunc(loweredQuery, func(r rune) bool {
		return !isWordRune(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= minLength {
			out = append(out, f)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '\'' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
		r > 127
}

// containsFold reports whether list contains value, case-insensitively. The
// list side is already lowercased at load time.
func containsFold(list []string, value string) bool {
	value = strings.ToLower(value)
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
