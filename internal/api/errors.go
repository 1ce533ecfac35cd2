package api

import (
	"errors"

	"oficiogen/backend/internal/adgate"
	"oficiogen/backend/internal/chat"
	"oficiogen/backend/internal/session"
	"oficiogen/backend/internal/usage"
	apperrors "oficiogen/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// domainError maps workspace errors onto transport errors
func domainError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return apperrors.NewNotFoundError("SESSION_NOT_FOUND", "Session not found")
	case errors.Is(err, chat.ErrEmptyMessage):
		return apperrors.NewBadRequestError("EMPTY_MESSAGE", "Message content must not be empty")
	case errors.Is(err, chat.ErrGenerationInProgress):
		return apperrors.NewConflictError("GENERATION_IN_PROGRESS", "A document is already being generated")
	case errors.Is(err, adgate.ErrGateClosed):
		return apperrors.NewConflictError("GATE_CLOSED", "No ad sequence is running")
	case errors.Is(err, adgate.ErrNotReady):
		return apperrors.NewConflictError("GATE_NOT_READY", "The current ad step has not finished")
	case errors.Is(err, usage.ErrQuotaExceeded):
		return apperrors.NewPaymentRequiredError("QUOTA_EXCEEDED", "Weekly generation limit reached")
	default:
		return apperrors.FromError(err)
	}
}

func abortWith(c *gin.Context, err error) {
	c.Error(domainError(err))
	c.Abort()
}
