package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/suggest/internal/core/domain"
)

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMalformedAddress):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSuggestionNotFound):
		return http.StatusGone
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrLayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGenerationInProgress),
		errors.Is(err, domain.ErrStaleGeneration),
		errors.Is(err, domain.ErrAnchorNotFound):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEvaluationUnsupported), errors.Is(err, domain.ErrEngineUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	case domain.IsTimeout(err):
		return http.StatusGatewayTimeout
	case domain.IsAPIError(err), errors.Is(err, domain.ErrSyncProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}
