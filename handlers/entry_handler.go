package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tyson-yobot/command-center-sub002/models"
	"github.com/tyson-yobot/command-center-sub002/repositories"
	"github.com/tyson-yobot/command-center-sub002/utils"
	"go.uber.org/zap"
)

// EntryRequest is the payload for creating or updating a knowledge entry
type EntryRequest struct {
	Name              string                    `json:"name" validate:"required,max=255"`
	Content           string                    `json:"content" validate:"required"`
	Category          string                    `json:"category,omitempty" validate:"max=100"`
	Tags              []string                  `json:"tags,omitempty"`
	TriggerConditions *models.TriggerConditions `json:"trigger_conditions,omitempty"`
	Confidence        *int                      `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=100"`
	Priority          int                       `json:"priority,omitempty"`
	Status            string                    `json:"status,omitempty" validate:"omitempty,oneof=enabled disabled"`
	OverrideBehavior  string                    `json:"override_behavior,omitempty" validate:"omitempty,oneof=replace append conditional"`
	RoleVisibility    []string                  `json:"role_visibility,omitempty"`
}

// EntryHandler handles the dashboard's knowledge-entry authoring API
type EntryHandler struct {
	repo   repositories.KnowledgeRepository
	logger *zap.Logger
}

// NewEntryHandler creates a new EntryHandler
func NewEntryHandler(repo repositories.KnowledgeRepository, logger *zap.Logger) *EntryHandler {
	return &EntryHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/knowledge/entries
func (h *EntryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list knowledge entries", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if entries == nil {
		entries = []*models.KnowledgeEntry{}
	}
	_ = utils.WriteOK(w, entries)
}

// HandleGet handles GET /api/v1/knowledge/entries/{id}
func (h *EntryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}

	entry, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			_ = utils.WriteNotFound(w, "Knowledge entry not found")
			return
		}
		h.logger.Error("failed to get knowledge entry", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, entry)
}

// HandleCreate handles POST /api/v1/knowledge/entries
func (h *EntryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEntryRequest(w, r)
	if !ok {
		return
	}

	entry := models.NewKnowledgeEntry(req.Name, req.Content, req.Category)
	applyEntryRequest(entry, req)

	if err := entry.Validate(); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.repo.Create(r.Context(), entry); err != nil {
		h.logger.Error("failed to create knowledge entry", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	h.logger.Info("knowledge entry created",
		zap.String("id", entry.ID.String()),
		zap.String("name", entry.Name))
	_ = utils.WriteCreated(w, entry)
}

// HandleUpdate handles PUT /api/v1/knowledge/entries/{id}
func (h *EntryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeEntryRequest(w, r)
	if !ok {
		return
	}

	entry, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			_ = utils.WriteNotFound(w, "Knowledge entry not found")
			return
		}
		h.logger.Error("failed to load knowledge entry", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	entry.Name = req.Name
	entry.Content = req.Content
	entry.Category = req.Category
	applyEntryRequest(entry, req)

	if err := entry.Validate(); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.repo.Update(r.Context(), entry); err != nil {
		if isNotFound(err) {
			_ = utils.WriteNotFound(w, "Knowledge entry not found")
			return
		}
		h.logger.Error("failed to update knowledge entry", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, entry)
}

// HandleDelete handles DELETE /api/v1/knowledge/entries/{id}
func (h *EntryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if isNotFound(err) {
			_ = utils.WriteNotFound(w, "Knowledge entry not found")
			return
		}
		h.logger.Error("failed to delete knowledge entry", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	utils.WriteNoContent(w)
}

// entryID parses the {id} route parameter
func (h *EntryHandler) entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid entry ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeEntryRequest parses and validates the entry payload
func (h *EntryHandler) decodeEntryRequest(w http.ResponseWriter, r *http.Request) (*EntryRequest, bool) {
	var req EntryRequest
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

// applyEntryRequest copies the optional payload fields onto the entry
func applyEntryRequest(entry *models.KnowledgeEntry, req *EntryRequest) {
	entry.Tags = req.Tags
	entry.RoleVisibility = req.RoleVisibility
	entry.Priority = req.Priority
	if req.TriggerConditions != nil {
		tc := *req.TriggerConditions
		tc.Normalize()
		entry.TriggerConditions = &tc
	} else {
		entry.TriggerConditions = nil
	}
	if req.Confidence != nil {
		entry.Confidence = *req.Confidence
	}
	if req.Status != "" {
		entry.Status = models.EntryStatus(req.Status)
	}
	if req.OverrideBehavior != "" {
		entry.OverrideBehavior = models.OverrideBehavior(req.OverrideBehavior)
	}
}

// isNotFound matches the repository's not-found errors
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
