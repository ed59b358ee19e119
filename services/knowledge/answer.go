package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tyson-yobot/command-center-sub002/models"
	"github.com/tyson-yobot/command-center-sub002/services/providers"
	"go.uber.org/zap"
)

// AnswerSource identifies which path produced the reply text
type AnswerSource string

const (
	AnswerSourceLLM  AnswerSource = "llm"
	AnswerSourceRule AnswerSource = "rule"
)

// Answer is the outcome of answer synthesis. EscalationNeeded is advisory
// output only; ticket creation is the caller's responsibility.
type Answer struct {
	Reply            string       `json:"reply"`
	Confidence       float64      `json:"confidence"`
	Sources          []uuid.UUID  `json:"sources"`
	EscalationNeeded bool         `json:"escalation_needed"`
	Source           AnswerSource `json:"answer_source"`
}

const answerSystemPrompt = "You are the YoBot Command Center support assistant. " +
	"Answer the operator's question using only the knowledge entries provided. " +
	"Be concise and practical. If the entries do not cover the question, say so " +
	"and suggest opening a support ticket."

// usageRecordTimeout bounds the detached usage-increment writes
const usageRecordTimeout = 5 * time.Second

// Answer retrieves matching entries and synthesizes a reply, preferring the
// language model and degrading to the deterministic rule chain when the
// model is unconfigured, fails or times out. The only returned error is the
// empty-query precondition.
func (s *Service) Answer(ctx context.Context, query string, qc QueryContext) (*Answer, error) {
	result, err := s.retrieve(ctx, query, qc, s.cfg.AnswerTopK)
	if err != nil {
		return nil, err
	}

	loweredQuery := strings.ToLower(query)

	reply, source := s.synthesize(ctx, query, loweredQuery, result)

	answer := &Answer{
		Reply:      reply,
		Confidence: result.ConfidenceEstimate,
		Sources:    entryIDs(result.Candidates),
		Source:     source,
	}
	answer.EscalationNeeded = s.needsEscalation(loweredQuery, reply, result.ConfidenceEstimate)

	s.recordUsage(result.Candidates)

	return answer, nil
}

// synthesize produces the reply text, trying the language model first
func (s *Service) synthesize(ctx context.Context, query, loweredQuery string, result *RankedResult) (string, AnswerSource) {
	if s.completer != nil && len(result.Candidates) > 0 {
		resp, err := s.completer.Complete(ctx, &providers.CompletionRequest{
			System: answerSystemPrompt,
			Prompt: buildPrompt(query, result.Candidates),
		})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			return resp.Text, AnswerSourceLLM
		}
		if err != nil {
			s.logger.Warn("language model call failed, using rule-based answer",
				zap.String("reason", "provider_unavailable"),
				zap.Error(err))
		}
	}

	reply, ruleName := evaluateRules(s.rules, ruleInput{
		loweredQuery: loweredQuery,
		candidates:   result.Candidates,
	})
	s.logger.Debug("rule-based answer rendered", zap.String("rule", ruleName))
	return reply, AnswerSourceRule
}

// needsEscalation flags answers that should be routed to a human: low
// overall confidence, an urgent/billing keyword in the query, or a reply
// that itself suggests a handoff
func (s *Service) needsEscalation(loweredQuery, reply string, confidence float64) bool {
	if confidence < s.cfg.EscalationThreshold {
		return true
	}
	for _, kw := range s.cfg.EscalationKeywords {
		if strings.Contains(loweredQuery, kw) {
			return true
		}
	}
	loweredReply := strings.ToLower(reply)
	for _, phrase := range s.cfg.HandoffPhrases {
		if strings.Contains(loweredReply, phrase) {
			return true
		}
	}
	return false
}

// recordUsage dispatches best-effort usage increments for every candidate
// used. Failures are logged and never surface to the caller, and the
// detached write cannot add latency to the response.
func (s *Service) recordUsage(candidates []*models.KnowledgeEntry) {
	if len(candidates) == 0 {
		return
	}
	ids := entryIDs(candidates)

	s.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageRecordTimeout)
		defer cancel()

		for _, id := range ids {
			if err := s.repo.IncrementUsage(ctx, id); err != nil {
				s.logger.Warn("usage increment failed",
					zap.String("reason", "store_unavailable"),
					zap.String("entry_id", id.String()),
					zap.Error(err))
			}
		}
	})
}

// buildPrompt embeds each candidate as contextual grounding for the model
func buildPrompt(query string, candidates []*models.KnowledgeEntry) string {
	var b strings.Builder
	b.WriteString("Knowledge entries:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n--- Entry %d: %s ---\n%s\n", i+1, c.Name, c.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

func entryIDs(candidates []*models.KnowledgeEntry) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}
