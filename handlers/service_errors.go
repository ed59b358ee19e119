package handlers

import (
	"errors"
	"net/http"

	"github.com/tyson-yobot/command-center-sub002/services"
	"github.com/tyson-yobot/command-center-sub002/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps a service-layer error to the appropriate HTTP
// response
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Type {
		case services.ErrorTypeValidation:
			_ = utils.WriteBadRequest(w, domainErr.Message, domainErr.Details)
			return
		case services.ErrorTypeNotFound:
			_ = utils.WriteNotFound(w, domainErr.Message)
			return
		}
	}

	logger.Error("unhandled service error", zap.Error(err))
	_ = utils.WriteInternalServerError(w, "")
}

// HandleValidationError maps a payload validation failure to a 400 response
// with per-field details
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	fields := utils.GetValidationFields(err)
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	logger.Debug("request validation failed", zap.Any("fields", fields))
	_ = utils.WriteBadRequest(w, "Validation failed", details)
}
