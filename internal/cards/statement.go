package cards

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StatementBuilder derives statements from a card's transactions and applies
// payments against them.
type StatementBuilder struct {
	logger *zap.Logger
	clock  func() time.Time
}

// NewStatementBuilder creates a StatementBuilder.
func NewStatementBuilder(logger *zap.Logger) *StatementBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementBuilder{logger: logger, clock: time.Now}
}

func sameDay(a, b time.Time) bool {
	return datetime.Midnight(a).Equal(datetime.Midnight(b))
}

// settled reports whether a statement with charges has been paid in full.
// A cycle without charges has nothing to settle.
func settled(s domain.CreditCardStatement) bool {
	return s.TotalAmount.IsPositive() && s.PaidAmount.GreaterThanOrEqual(s.TotalAmount)
}

// BuildStatement totals the card's transactions in the cycle closing on
// billingDate. Payments already made against that cycle are folded into
// PaidAmount; payments for other cycles are ignored.
func (b *StatementBuilder) BuildStatement(card domain.CreditCard, transactions []domain.CreditCardTransaction, billingDate time.Time, prior ...domain.StatementPayment) domain.CreditCardStatement {
	cycle := card.Cycle(billingDate)

	statement := domain.CreditCardStatement{
		CardID:       card.ID,
		Period:       cycle,
		Transactions: []domain.CreditCardTransaction{},
		TotalAmount:  decimal.Zero,
		DueDate:      card.DueDateFor(cycle.End),
		PaidAmount:   decimal.Zero,
	}

	for _, tx := range transactions {
		if tx.CardID != card.ID || !cycle.Contains(tx.AccountingDate()) {
			continue
		}
		statement.Transactions = append(statement.Transactions, tx)
		statement.TotalAmount = statement.TotalAmount.Add(tx.Amount)
	}

	for _, p := range prior {
		if p.CardID != card.ID || !sameDay(p.BillingDate, cycle.End) {
			continue
		}
		statement.PaidAmount = statement.PaidAmount.Add(p.Amount)
		if statement.PaidDate == nil || p.PaidAt.After(*statement.PaidDate) {
			paidAt := p.PaidAt
			statement.PaidDate = &paidAt
		}
	}

	statement.MinimumPayment = mathutil.Min(card.MinimumPayment, statement.TotalAmount)
	statement.IsPaid = settled(statement)
	if !statement.IsPaid {
		statement.PaidDate = nil
	}

	b.logger.Debug("built statement",
		zap.String("op", "cards.BuildStatement"),
		zap.String("card", card.ID.String()),
		zap.String("billing_date", cycle.End.Format(datetime.DateLayout)),
		zap.Int("transactions", len(statement.Transactions)),
		zap.String("total", statement.TotalAmount.StringFixed(2)),
	)
	return statement
}

// ApplyStatementPayment pays amount against the statement. The amount may not
// exceed what is still owed on the statement nor the card balance, since
// credit balances are not modelled. Inputs are never modified; on error
// nothing is returned.
func (b *StatementBuilder) ApplyStatementPayment(statement domain.CreditCardStatement, card domain.CreditCard, amount decimal.Decimal, paidAt time.Time) (domain.CreditCardStatement, domain.CreditCard, domain.StatementPayment, error) {
	fail := func(err error) (domain.CreditCardStatement, domain.CreditCard, domain.StatementPayment, error) {
		return domain.CreditCardStatement{}, domain.CreditCard{}, domain.StatementPayment{}, err
	}

	if statement.CardID != card.ID {
		return fail(fmt.Errorf("%w: statement belongs to card %s, not %s", domain.ErrInvalidInput, statement.CardID, card.ID))
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return fail(err)
	}
	if !amount.Equal(mathutil.Round(amount)) {
		return fail(fmt.Errorf("%w: %s is not a whole number of cents", domain.ErrInvalidAmount, amount))
	}
	if outstanding := statement.Outstanding(); amount.GreaterThan(outstanding) {
		return fail(fmt.Errorf("%w: payment %s, statement outstanding %s", domain.ErrOverpayment, amount, outstanding))
	}
	if amount.GreaterThan(card.CurrentBalance) {
		return fail(fmt.Errorf("%w: payment %s, card balance %s", domain.ErrOverpayment, amount, card.CurrentBalance))
	}

	now := b.clock()
	if paidAt.IsZero() {
		paidAt = now
	}

	updatedCard := card
	updatedCard.Credit(amount, now)

	updated := statement
	updated.PaidAmount = statement.PaidAmount.Add(amount)
	updated.IsPaid = settled(updated)
	updated.Transactions = make([]domain.CreditCardTransaction, len(statement.Transactions))
	copy(updated.Transactions, statement.Transactions)
	if updated.IsPaid {
		paid := paidAt
		updated.PaidDate = &paid
		for i := range updated.Transactions {
			if !updated.Transactions[i].IsPaid {
				updated.Transactions[i].MarkPaid(paidAt)
			}
		}
	}

	payment := domain.StatementPayment{
		ID:          uuid.New(),
		CardID:      card.ID,
		BillingDate: statement.Period.End,
		Amount:      amount,
		PaidAt:      paidAt,
	}

	b.logger.Debug("applied statement payment",
		zap.String("op", "cards.ApplyStatementPayment"),
		zap.String("card", card.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("paid", updated.PaidAmount.StringFixed(2)),
		zap.Bool("is_paid", updated.IsPaid),
	)
	return updated, updatedCard, payment, nil
}
