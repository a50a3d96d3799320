// Package domain holds the loan and credit-card entities and the invariants
// they guard.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanPaidOff  LoanStatus = "paid-off"
	LoanInactive LoanStatus = "inactive"
	LoanOverdue  LoanStatus = "overdue"
)

// LoanAccount is a fixed-rate, fully amortizing loan. Its balance changes only
// through payment application.
type LoanAccount struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	PrincipalAmount    decimal.Decimal `json:"principalAmount"`
	CurrentBalance     decimal.Decimal `json:"currentBalance"`
	InterestRateAnnual decimal.Decimal `json:"interestRateAnnual"`
	TermMonths         int             `json:"termMonths"`
	StartDate          time.Time       `json:"startDate"`
	PaymentDayOfMonth  int             `json:"paymentDayOfMonth"`
	IsActive           bool            `json:"isActive"`
	PaymentsMade       int             `json:"paymentsMade"`
	LastPaymentDate    *time.Time      `json:"lastPaymentDate,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// NewLoanParams are the caller-supplied terms of a new loan.
type NewLoanParams struct {
	Name               string
	Principal          decimal.Decimal
	InterestRateAnnual decimal.Decimal
	TermMonths         int
	StartDate          time.Time
	// PaymentDayOfMonth defaults to the start date's day when zero.
	PaymentDayOfMonth int
}

// NewLoanAccount validates the terms and opens a loan with its full principal
// outstanding.
func NewLoanAccount(p NewLoanParams, now time.Time) (LoanAccount, error) {
	if err := validation.ValidateLoanTerms(p.Principal, p.InterestRateAnnual, p.TermMonths); err != nil {
		return LoanAccount{}, err
	}
	if p.StartDate.IsZero() {
		return LoanAccount{}, fmt.Errorf("%w: start date is required", ErrInvalidInput)
	}

	day := p.PaymentDayOfMonth
	if day == 0 {
		day = p.StartDate.Day()
	}
	if err := validation.ValidateDayOfMonth("payment day", day); err != nil {
		return LoanAccount{}, err
	}

	return LoanAccount{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(p.Name),
		PrincipalAmount:    p.Principal,
		CurrentBalance:     p.Principal,
		InterestRateAnnual: p.InterestRateAnnual,
		TermMonths:         p.TermMonths,
		StartDate:          datetime.Midnight(p.StartDate),
		PaymentDayOfMonth:  day,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (l LoanAccount) EntityID() uuid.UUID   { return l.ID }
func (l LoanAccount) OwnerID() uuid.UUID    { return uuid.Nil }
func (l LoanAccount) OccurredAt() time.Time { return l.CreatedAt }

// MonthlyRate is the periodic interest rate.
func (l LoanAccount) MonthlyRate() decimal.Decimal {
	return amortization.MonthlyRate(l.InterestRateAnnual)
}

// MonthlyPayment is the scheduled payment rounded up to the cent, so the loan
// always retires within its term.
func (l LoanAccount) MonthlyPayment() decimal.Decimal {
	payment, err := amortization.MonthlyPayment(l.PrincipalAmount, l.InterestRateAnnual, l.TermMonths)
	if err != nil {
		return decimal.Zero
	}
	return payment.RoundCeil(constants.CurrencyPlaces)
}

// ScheduleParams returns the static terms the amortization schedule is built from.
func (l LoanAccount) ScheduleParams() amortization.Params {
	return amortization.Params{
		Principal:         l.PrincipalAmount,
		AnnualRatePercent: l.InterestRateAnnual,
		TermMonths:        l.TermMonths,
		StartDate:         l.StartDate,
		PaymentDay:        l.PaymentDayOfMonth,
	}
}

// EndDate is the start date advanced by the term.
func (l LoanAccount) EndDate() time.Time {
	return datetime.AddMonths(l.StartDate, l.TermMonths)
}

// ProgressPercentage is the share of principal already repaid.
func (l LoanAccount) ProgressPercentage() decimal.Decimal {
	return mathutil.CalculatePercentage(l.PrincipalAmount.Sub(l.CurrentBalance), l.PrincipalAmount)
}

// NextDueDate is the due date of the next unpaid installment.
func (l LoanAccount) NextDueDate() time.Time {
	return datetime.MonthlyOccurrence(l.StartDate, l.PaymentsMade+1, l.PaymentDayOfMonth)
}

// RemainingPayments is the number of scheduled payments not yet made.
func (l LoanAccount) RemainingPayments() int {
	if l.CurrentBalance.IsZero() {
		return 0
	}
	remaining := l.TermMonths - l.PaymentsMade
	if remaining < 1 {
		return 1
	}
	return remaining
}

// InterestDue is one period of interest on the current balance, in cents.
func (l LoanAccount) InterestDue() decimal.Decimal {
	return mathutil.Round(l.CurrentBalance.Mul(l.MonthlyRate()))
}

// PayoffAmount is the amount that retires the loan with the next payment.
func (l LoanAccount) PayoffAmount() decimal.Decimal {
	return l.CurrentBalance.Add(l.InterestDue())
}

// Status derives the lifecycle state without regard to due dates.
func (l LoanAccount) Status() LoanStatus {
	switch {
	case !l.IsActive:
		return LoanInactive
	case l.CurrentBalance.IsZero():
		return LoanPaidOff
	default:
		return LoanActive
	}
}

// StatusAt is Status with the overdue check: an active loan whose next
// installment fell due before asOf is overdue.
func (l LoanAccount) StatusAt(asOf time.Time) LoanStatus {
	status := l.Status()
	if status == LoanActive && l.NextDueDate().Before(datetime.Midnight(asOf)) {
		return LoanOverdue
	}
	return status
}

// CanAcceptPayment reports why a payment would be refused, if it would.
func (l LoanAccount) CanAcceptPayment() error {
	switch l.Status() {
	case LoanInactive:
		return fmt.Errorf("%w: %s", ErrLoanInactive, l.ID)
	case LoanPaidOff:
		return fmt.Errorf("%w: %s", ErrLoanPaidOff, l.ID)
	}
	return nil
}

// Deactivate retires the loan from tracking. It is the only transition into
// the inactive state.
func (l *LoanAccount) Deactivate(now time.Time) {
	l.IsActive = false
	l.UpdatedAt = now
}

// ApplyPrincipal lowers the balance by principal, never below zero, and
// records the payment date. It returns the principal actually applied.
func (l *LoanAccount) ApplyPrincipal(principal decimal.Decimal, paidAt, now time.Time) decimal.Decimal {
	applied := mathutil.Min(principal, l.CurrentBalance)
	l.CurrentBalance = mathutil.Max(decimal.Zero, l.CurrentBalance.Sub(principal))
	l.PaymentsMade++
	paid := paidAt
	l.LastPaymentDate = &paid
	l.UpdatedAt = now
	return applied
}

// Validate checks the entity invariants.
func (l LoanAccount) Validate() error {
	if err := validation.ValidateLoanTerms(l.PrincipalAmount, l.InterestRateAnnual, l.TermMonths); err != nil {
		return err
	}
	if l.CurrentBalance.IsNegative() || l.CurrentBalance.GreaterThan(l.PrincipalAmount) {
		return fmt.Errorf("%w: balance %s outside [0, %s]", ErrInvalidInput, l.CurrentBalance, l.PrincipalAmount)
	}
	return validation.ValidateDayOfMonth("payment day", l.PaymentDayOfMonth)
}

// PaymentType selects how the payment amount is derived.
type PaymentType string

const (
	PaymentScheduled      PaymentType = "scheduled"
	PaymentExtraPrincipal PaymentType = "extraPrincipal"
	PaymentCustom         PaymentType = "custom"
)

// ParsePaymentType validates a payment type name.
func ParsePaymentType(s string) (PaymentType, error) {
	switch t := PaymentType(s); t {
	case PaymentScheduled, PaymentExtraPrincipal, PaymentCustom:
		return t, nil
	case "":
		return PaymentScheduled, nil
	}
	return "", fmt.Errorf("%w: unknown payment type %q", ErrInvalidInput, s)
}

// LoanPayment is one immutable entry of a loan's payment ledger.
type LoanPayment struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loanId"`
	Type             PaymentType     `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	PrincipalPortion decimal.Decimal `json:"principalPortion"`
	InterestPortion  decimal.Decimal `json:"interestPortion"`
	BalanceAfter     decimal.Decimal `json:"balanceAfter"`
	PaymentDate      time.Time       `json:"paymentDate"`
	Method           string          `json:"method,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

func (p LoanPayment) EntityID() uuid.UUID   { return p.ID }
func (p LoanPayment) OwnerID() uuid.UUID    { return p.LoanID }
func (p LoanPayment) OccurredAt() time.Time { return p.PaymentDate }
