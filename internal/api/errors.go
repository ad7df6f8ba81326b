package api

import (
	"errors"

	"textreply/backend/internal/service"
	apperrors "textreply/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// fail translates a service error into an AppError and aborts the request.
// fallback is the public message used when the error is unexpected.
func fail(c *gin.Context, err error, fallback string) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, service.ErrPageIDRequired):
		appErr = apperrors.NewBadRequestError(apperrors.CodeValidation, "pageId is required")
	case errors.Is(err, service.ErrPageNotManaged):
		appErr = apperrors.NewNotFoundError(apperrors.CodePageNotManaged, "Page not found or you do not have access")
	case errors.Is(err, service.ErrPageAlreadyConnected):
		appErr = apperrors.NewConflictError(apperrors.CodePageAlreadyConnected, "Page is already connected")
	case errors.Is(err, service.ErrPageNotFound):
		appErr = apperrors.NewNotFoundError(apperrors.CodePageNotFound, "Page not found")
	case errors.Is(err, service.ErrConversationNotFound):
		appErr = apperrors.NewNotFoundError(apperrors.CodeConversationNotFound, "Conversation not found")
	case errors.Is(err, service.ErrAccountNotFound):
		appErr = apperrors.NewNotFoundError(apperrors.CodeUserNotFound, "User not found")
	default:
		appErr = apperrors.NewInternalServerError(apperrors.CodeInternal, fallback).WithCause(err)
	}
	_ = c.Error(appErr)
	c.Abort()
}
