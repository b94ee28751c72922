package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/services"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// checked in order; the first match wins
var errorMappings = []errorMapping{
	{services.ErrFileRequired, http.StatusBadRequest, "FILE_REQUIRED"},
	{spreadsheet.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
	{spreadsheet.ErrEmptySheet, http.StatusBadRequest, "EMPTY_FILE"},
	{spreadsheet.ErrMalformedFile, http.StatusBadRequest, "PARSE_ERROR"},
	{spreadsheet.ErrDuplicateHeader, http.StatusBadRequest, "PARSE_ERROR"},
	{services.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{spreadsheet.ErrTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{services.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{mapping.ErrTemplateNotFound, http.StatusNotFound, "TEMPLATE_NOT_FOUND"},
	{mapping.ErrInvalidStep, http.StatusConflict, "INVALID_STEP"},
	{services.ErrNotRunning, http.StatusConflict, "INVALID_STEP"},
	{mapping.ErrNoSkuMapped, http.StatusUnprocessableEntity, "NO_SKU_MAPPED"},
	{mapping.ErrMultipleSkuMapped, http.StatusUnprocessableEntity, "MULTIPLE_SKU_MAPPED"},
	{mapping.ErrUnknownColumn, http.StatusBadRequest, "UNKNOWN_COLUMN"},
	{mapping.ErrUnknownTarget, http.StatusBadRequest, "UNKNOWN_TARGET"},
	{mapping.ErrTemplateName, http.StatusBadRequest, "VALIDATION_ERROR"},
}

func errorResponse(code, message string) models.ErrorResponse {
	return models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", message))
}

// respondError maps a service error onto the error envelope. Unknown errors
// are logged and hidden behind INTERNAL_ERROR.
func respondError(c *gin.Context, logger *logrus.Entry, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, errorResponse(m.code, err.Error()))
			return
		}
	}

	logger.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, errorResponse("INTERNAL_ERROR", "internal server error"))
}
