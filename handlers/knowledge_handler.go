package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tyson-yobot/command-center-sub002/services/knowledge"
	"github.com/tyson-yobot/command-center-sub002/utils"
	"go.uber.org/zap"
)

// KnowledgeService defines the retrieval operations the handlers depend on
type KnowledgeService interface {
	Retrieve(ctx context.Context, query string, qc knowledge.QueryContext) (*knowledge.RankedResult, error)
	Answer(ctx context.Context, query string, qc knowledge.QueryContext) (*knowledge.Answer, error)
	RefreshNow(ctx context.Context) error
	CacheStats() knowledge.CacheStats
}

// KnowledgeQueryRequest is the shared payload of the search and query
// endpoints
type KnowledgeQueryRequest struct {
	Query     string `json:"query" validate:"required"`
	EventType string `json:"event_type,omitempty"`
	Intent    string `json:"intent,omitempty"`
	Role      string `json:"role,omitempty"`
}

// QueryContext converts the payload's optional context fields
func (r *KnowledgeQueryRequest) QueryContext() knowledge.QueryContext {
	return knowledge.QueryContext{
		EventType: r.EventType,
		Intent:    r.Intent,
		Role:      r.Role,
	}
}

// KnowledgeHandler handles retrieval and answer-synthesis HTTP requests
type KnowledgeHandler struct {
	service KnowledgeService
	logger  *zap.Logger
}

// NewKnowledgeHandler creates a new KnowledgeHandler
func NewKnowledgeHandler(service KnowledgeService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSearch handles POST /api/v1/knowledge/search
func (h *KnowledgeHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Retrieve(r.Context(), req.Query, req.QueryContext())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleQuery handles POST /api/v1/knowledge/query
func (h *KnowledgeHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeQueryRequest(w, r)
	if !ok {
		return
	}

	answer, err := h.service.Answer(r.Context(), req.Query, req.QueryContext())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, answer)
}

// HandleCacheStats handles GET /api/v1/knowledge/cache
func (h *KnowledgeHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.service.CacheStats())
}

// HandleCacheRefresh handles POST /api/v1/knowledge/cache/refresh
func (h *KnowledgeHandler) HandleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshNow(r.Context()); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, h.service.CacheStats())
}

// decodeQueryRequest parses and validates the shared query payload
func (h *KnowledgeHandler) decodeQueryRequest(w http.ResponseWriter, r *http.Request) (*KnowledgeQueryRequest, bool) {
	var req KnowledgeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return nil, false
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	return &req, true
}
