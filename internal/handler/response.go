package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/draft"
	"github.com/skybase-int/tarmac-sub003/internal/service"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps a service error onto its HTTP status.
func Fail(c *gin.Context, err error) {
	Error(c, errorStatus(err), err.Error(), nil)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrBadOwner),
		errors.Is(err, service.ErrUnknownCommand),
		errors.Is(err, service.ErrMissingIndex),
		errors.Is(err, draft.ErrNegativeAmount),
		errors.Is(err, draft.ErrBadAddress),
		errors.Is(err, draft.ErrBadCollateral),
		errors.Is(err, chain.ErrBadHash):
		return http.StatusBadRequest
	case errors.Is(err, chain.ErrUnknownAttempt):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoAnchor),
		errors.Is(err, txdriver.ErrBusy),
		errors.Is(err, txdriver.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
