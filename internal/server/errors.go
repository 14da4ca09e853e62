package server

import (
	"errors"
	"net/http"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error     string      `json:"error"`
	Kind      apperr.Kind `json:"kind,omitempty"`
	Step      string      `json:"step,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidFrequency, apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.InsufficientAllowance:
		return http.StatusPaymentRequired
	case apperr.ValidatorPoolExhausted:
		return http.StatusTooManyRequests
	case apperr.AccountUnavailable:
		return http.StatusConflict
	case apperr.UpstreamTimeout:
		return http.StatusGatewayTimeout
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// writeAppError maps a checkout failure to its HTTP status. Untyped errors are
// reported as internal without their message.
func writeAppError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.AbortWithStatusJSON(statusFor(ae.Kind), ErrorResponse{
		Error:     ae.Error(),
		Kind:      ae.Kind,
		Step:      ae.Step,
		Retryable: apperr.Retryable(err),
	})
}
