package server

import (
	"errors"
	"net/http"

	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/repository"
	"go.uber.org/zap"
)

// errEmptyBody is wrapped by the requestError returned for a request without
// a body, so handlers whose fields are all optional can accept one.
var errEmptyBody = errors.New("request body is empty")

// requestError is a failure to read the request itself.
type requestError struct {
	status int
	msg    string
	err    error
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return e.err }

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInstallment):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOverpayment),
		errors.Is(err, domain.ErrCreditLimitExceeded),
		errors.Is(err, domain.ErrLoanInactive),
		errors.Is(err, domain.ErrLoanPaidOff),
		errors.Is(err, domain.ErrCardInactive):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	msg := err.Error()

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.Int("status", status),
			zap.Error(err),
		)
		msg = http.StatusText(status)
	} else {
		h.logger.Info("request rejected",
			zap.String("op", op),
			zap.Int("status", status),
			zap.String("error", msg),
		)
	}

	h.writeJSON(w, status, map[string]string{"error": msg})
}
