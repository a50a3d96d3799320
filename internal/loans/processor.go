// Package loans applies payments to loan accounts and serves loan queries.
package loans

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentRequest describes one payment against a loan.
type PaymentRequest struct {
	Type domain.PaymentType
	// Amount is the full payment for custom payments.
	Amount decimal.Decimal
	// Extra is added to the scheduled payment for extraPrincipal payments.
	Extra decimal.Decimal
	// Date defaults to the processing time when zero.
	Date   time.Time
	Method string
	Notes  string
}

// Processor turns payment requests into ledger entries. It holds no account
// state; callers serialize calls per loan.
type Processor struct {
	logger *zap.Logger
	clock  func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger, clock: time.Now}
}

// Amount resolves the amount a request would pay against loan.
func (p *Processor) Amount(loan domain.LoanAccount, req PaymentRequest) (decimal.Decimal, error) {
	payoff := loan.PayoffAmount()

	var amount decimal.Decimal
	switch req.Type {
	case domain.PaymentScheduled, "":
		return mathutil.Min(loan.MonthlyPayment(), payoff), nil
	case domain.PaymentExtraPrincipal:
		if err := validation.ValidateAmount(req.Extra); err != nil {
			return decimal.Zero, fmt.Errorf("extra principal: %w", err)
		}
		amount = loan.MonthlyPayment().Add(req.Extra)
	case domain.PaymentCustom:
		if err := validation.ValidateAmount(req.Amount); err != nil {
			return decimal.Zero, err
		}
		amount = req.Amount
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown payment type %q", domain.ErrInvalidInput, req.Type)
	}

	if !amount.Equal(mathutil.Round(amount)) {
		return decimal.Zero, fmt.Errorf("%w: %s is not a whole number of cents", domain.ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(payoff) {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds payoff amount %s", domain.ErrOverpayment, amount, payoff)
	}
	return amount, nil
}

// Apply applies req to loan and returns the updated loan with its new ledger
// entry. The input loan is never modified; on error nothing is returned.
func (p *Processor) Apply(loan domain.LoanAccount, req PaymentRequest) (domain.LoanAccount, domain.LoanPayment, error) {
	if err := loan.CanAcceptPayment(); err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, err
	}

	amount, err := p.Amount(loan, req)
	if err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, err
	}

	now := p.clock()
	paidAt := req.Date
	if paidAt.IsZero() {
		paidAt = now
	}

	split := amortization.SplitPayment(loan.CurrentBalance, loan.InterestRateAnnual, amount)
	interest := mathutil.Round(split.Interest)
	principal := amount.Sub(interest)

	updated := loan
	applied := updated.ApplyPrincipal(principal, paidAt, now)

	paymentType := req.Type
	if paymentType == "" {
		paymentType = domain.PaymentScheduled
	}
	payment := domain.LoanPayment{
		ID:               uuid.New(),
		LoanID:           loan.ID,
		Type:             paymentType,
		Amount:           amount,
		PrincipalPortion: applied,
		InterestPortion:  amount.Sub(applied),
		BalanceAfter:     updated.CurrentBalance,
		PaymentDate:      paidAt,
		Method:           req.Method,
		Notes:            req.Notes,
		CreatedAt:        now,
	}

	p.logger.Debug("applied loan payment",
		zap.String("op", "loans.Apply"),
		zap.String("loan", loan.ID.String()),
		zap.String("type", string(paymentType)),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("principal", payment.PrincipalPortion.StringFixed(2)),
		zap.String("interest", payment.InterestPortion.StringFixed(2)),
		zap.String("balance", updated.CurrentBalance.StringFixed(2)),
	)
	return updated, payment, nil
}
