package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service errors to HTTP statuses. Authentication failures on
// code verification share 400 with validation errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorAuthFailure):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorLinkUnavailable):
		return http.StatusGone
	case errors.Is(err, common.ErrorNoNodes):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with {"error": "..."}. Internal details of
// 5xx errors are logged, not returned.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
		if errors.Is(err, common.ErrorStorage) {
			msg = common.ErrorStorage.Error()
		}
	case http.StatusServiceUnavailable:
		msg = common.ErrorNoNodes.Error()
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func bindError(c *gin.Context, logger logging.Logger, err error) {
	logger.Debug(c.Request.Context(), "malformed request body", "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
}
