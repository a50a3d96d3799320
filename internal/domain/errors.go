package domain

import (
	"errors"

	"github.com/iwvelando/loan-engine/pkg/validation"
)

// Validation failures. All are local and synchronous; callers surface them to
// the user and never retry.
var (
	ErrInvalidInput       = validation.ErrInvalidInput
	ErrInvalidAmount      = validation.ErrInvalidAmount
	ErrInvalidInstallment = validation.ErrInvalidInstallment
	ErrOverpayment        = validation.ErrOverpayment
)

// State failures.
var (
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrLoanInactive        = errors.New("loan is inactive")
	ErrLoanPaidOff         = errors.New("loan is paid off")
	ErrCardInactive        = errors.New("credit card is inactive")
)
