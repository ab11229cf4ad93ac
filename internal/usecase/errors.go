package usecase

import (
	"context"
	"errors"

	"UniAD/internal/domain/models"
)

// Error codes shared by every transport.
const (
	CodeInvalidInput      = "ERR_INVALID_INPUT"
	CodeInsufficientData  = "ERR_INSUFFICIENT_DATA"
	CodeKernelUnavailable = "ERR_KERNEL_UNAVAILABLE"
	CodeCanceled          = "ERR_CANCELED"
	CodeRateLimited       = "ERR_RATE_LIMITED"
	CodeInternal          = "ERR_INTERNAL"
)

// ErrorCode classifies err for responses, events and audit rows.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, models.ErrInsufficientData):
		return CodeInsufficientData
	case errors.Is(err, models.ErrKernelUnavailable):
		return CodeKernelUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch ErrorCode(err) {
	case "":
		return "ok"
	case CodeInvalidInput:
		return "invalid_input"
	case CodeInsufficientData:
		return "insufficient_data"
	case CodeKernelUnavailable:
		return "kernel_unavailable"
	case CodeCanceled:
		return "canceled"
	default:
		return "internal"
	}
}
