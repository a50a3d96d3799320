package validation

import (
	"errors"
	"fmt"

	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/shopspring/decimal"
)

// Error kinds returned by the engine. Callers match them with errors.Is; the
// wrapped message carries the offending value.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidInstallment = errors.New("invalid installment count")
	ErrOverpayment        = errors.New("payment exceeds outstanding balance")
)

// ValidateLoanTerms checks the static parameters of a fixed-rate loan.
func ValidateLoanTerms(principal, annualRatePercent decimal.Decimal, termMonths int) error {
	if !principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidInput, principal)
	}
	if annualRatePercent.IsNegative() {
		return fmt.Errorf("%w: interest rate must not be negative, got %s", ErrInvalidInput, annualRatePercent)
	}
	if termMonths <= 0 || termMonths > constants.MaxTermMonths {
		return fmt.Errorf("%w: term must be between 1 and %d months, got %d",
			ErrInvalidInput, constants.MaxTermMonths, termMonths)
	}
	return nil
}

// ValidateDayOfMonth checks a payment, closing or due day.
func ValidateDayOfMonth(field string, day int) error {
	if day < constants.MinDayOfMonth || day > constants.MaxDayOfMonth {
		return fmt.Errorf("%w: %s must be between %d and %d, got %d",
			ErrInvalidInput, field, constants.MinDayOfMonth, constants.MaxDayOfMonth, day)
	}
	return nil
}

// ValidateAmount checks that a payment or purchase amount is positive.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateInstallmentCount checks the number of installments of a card purchase.
func ValidateInstallmentCount(count int) error {
	if count < constants.MinInstallments || count > constants.MaxInstallments {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidInstallment, constants.MinInstallments, constants.MaxInstallments, count)
	}
	return nil
}
