package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
)

// CreditCard is a revolving account. AvailableCredit always equals
// CreditLimit minus CurrentBalance.
type CreditCard struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	CreditLimit        decimal.Decimal `json:"creditLimit"`
	AvailableCredit    decimal.Decimal `json:"availableCredit"`
	CurrentBalance     decimal.Decimal `json:"currentBalance"`
	DueDateDay         int             `json:"dueDateDay"`
	ClosingDateDay     int             `json:"closingDateDay"`
	MinimumPayment     decimal.Decimal `json:"minimumPayment"`
	InterestRateAnnual decimal.Decimal `json:"interestRateAnnual"`
	IsActive           bool            `json:"isActive"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// NewCardParams are the caller-supplied settings of a new card.
type NewCardParams struct {
	Name               string
	CreditLimit        decimal.Decimal
	DueDateDay         int
	ClosingDateDay     int
	MinimumPayment     decimal.Decimal
	InterestRateAnnual decimal.Decimal
}

// NewCreditCard validates the settings and opens a card with no balance.
func NewCreditCard(p NewCardParams, now time.Time) (CreditCard, error) {
	if !p.CreditLimit.IsPositive() {
		return CreditCard{}, fmt.Errorf("%w: credit limit must be positive, got %s", ErrInvalidInput, p.CreditLimit)
	}
	if p.MinimumPayment.IsNegative() {
		return CreditCard{}, fmt.Errorf("%w: minimum payment must not be negative, got %s", ErrInvalidInput, p.MinimumPayment)
	}
	if p.InterestRateAnnual.IsNegative() {
		return CreditCard{}, fmt.Errorf("%w: interest rate must not be negative, got %s", ErrInvalidInput, p.InterestRateAnnual)
	}
	if err := validation.ValidateDayOfMonth("due day", p.DueDateDay); err != nil {
		return CreditCard{}, err
	}
	if err := validation.ValidateDayOfMonth("closing day", p.ClosingDateDay); err != nil {
		return CreditCard{}, err
	}

	return CreditCard{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(p.Name),
		CreditLimit:        p.CreditLimit,
		AvailableCredit:    p.CreditLimit,
		CurrentBalance:     decimal.Zero,
		DueDateDay:         p.DueDateDay,
		ClosingDateDay:     p.ClosingDateDay,
		MinimumPayment:     p.MinimumPayment,
		InterestRateAnnual: p.InterestRateAnnual,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

func (c CreditCard) EntityID() uuid.UUID   { return c.ID }
func (c CreditCard) OwnerID() uuid.UUID    { return uuid.Nil }
func (c CreditCard) OccurredAt() time.Time { return c.CreatedAt }

// Charge books amount against the card.
func (c *CreditCard) Charge(amount decimal.Decimal, now time.Time) {
	c.CurrentBalance = c.CurrentBalance.Add(amount)
	c.AvailableCredit = c.CreditLimit.Sub(c.CurrentBalance)
	c.UpdatedAt = now
}

// Credit books a payment against the card.
func (c *CreditCard) Credit(amount decimal.Decimal, now time.Time) {
	c.CurrentBalance = c.CurrentBalance.Sub(amount)
	c.AvailableCredit = c.CreditLimit.Sub(c.CurrentBalance)
	c.UpdatedAt = now
}

// Utilization is the balance as a percentage of the limit.
func (c CreditCard) Utilization() decimal.Decimal {
	return mathutil.CalculatePercentage(c.CurrentBalance, c.CreditLimit)
}

// ClosingDateFor returns the closing date of the billing cycle a transaction
// dated t belongs to: the first closing day on or after t.
func (c CreditCard) ClosingDateFor(t time.Time) time.Time {
	return datetime.NextOnOrAfter(t, c.ClosingDateDay)
}

// DueDateFor returns the payment due date of the cycle closing on closing.
func (c CreditCard) DueDateFor(closing time.Time) time.Time {
	return datetime.NextAfter(closing, c.DueDateDay)
}

// Cycle returns the billing window that contains billingDate. A date that
// is not a closing date is snapped forward to the closing date of its cycle,
// so every date maps onto exactly one non-overlapping window.
func (c CreditCard) Cycle(billingDate time.Time) datetime.Range {
	return datetime.CycleClosingOn(c.ClosingDateFor(billingDate), c.ClosingDateDay)
}

// Validate checks the entity invariants.
func (c CreditCard) Validate() error {
	if c.CurrentBalance.IsNegative() {
		return fmt.Errorf("%w: balance %s is negative", ErrInvalidInput, c.CurrentBalance)
	}
	if !c.AvailableCredit.Equal(c.CreditLimit.Sub(c.CurrentBalance)) {
		return fmt.Errorf("%w: available credit %s does not match limit %s minus balance %s",
			ErrInvalidInput, c.AvailableCredit, c.CreditLimit, c.CurrentBalance)
	}
	return nil
}

// CreditCardTransaction is one installment of a purchase. A purchase of N
// installments is stored as N records sharing PurchaseGroupID.
type CreditCardTransaction struct {
	ID                 uuid.UUID       `json:"id"`
	CardID             uuid.UUID       `json:"cardId"`
	PurchaseGroupID    uuid.UUID       `json:"purchaseGroupId"`
	Description        string          `json:"description,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	PurchaseAmount     decimal.Decimal `json:"purchaseAmount"`
	Date               time.Time       `json:"date"`
	BillingDate        time.Time       `json:"billingDate"`
	DueDate            time.Time       `json:"dueDate"`
	Installments       int             `json:"installments"`
	CurrentInstallment int             `json:"currentInstallment"`
	IsPaid             bool            `json:"isPaid"`
	PaymentDate        *time.Time      `json:"paymentDate,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

func (t CreditCardTransaction) EntityID() uuid.UUID   { return t.ID }
func (t CreditCardTransaction) OwnerID() uuid.UUID    { return t.CardID }
func (t CreditCardTransaction) OccurredAt() time.Time { return t.AccountingDate() }

// AccountingDate is the date that places the installment in a billing cycle:
// its billing date, or the posting date when no billing date was assigned.
func (t CreditCardTransaction) AccountingDate() time.Time {
	if t.BillingDate.IsZero() {
		return t.Date
	}
	return t.BillingDate
}

// MarkPaid flags the installment as settled on paidAt.
func (t *CreditCardTransaction) MarkPaid(paidAt time.Time) {
	t.IsPaid = true
	paid := paidAt
	t.PaymentDate = &paid
}

// CreditCardStatement is the derived bill of one billing cycle.
type CreditCardStatement struct {
	CardID         uuid.UUID               `json:"cardId"`
	Period         datetime.Range          `json:"period"`
	Transactions   []CreditCardTransaction `json:"transactions"`
	TotalAmount    decimal.Decimal         `json:"totalAmount"`
	MinimumPayment decimal.Decimal         `json:"minimumPayment"`
	DueDate        time.Time               `json:"dueDate"`
	IsPaid         bool                    `json:"isPaid"`
	PaidAmount     decimal.Decimal         `json:"paidAmount"`
	PaidDate       *time.Time              `json:"paidDate,omitempty"`
}

// BillingDate is the closing date of the statement's cycle.
func (s CreditCardStatement) BillingDate() time.Time {
	return s.Period.End
}

// Outstanding is what remains to be paid on the statement.
func (s CreditCardStatement) Outstanding() decimal.Decimal {
	return s.TotalAmount.Sub(s.PaidAmount)
}

// StatementPayment records a payment made against one billing cycle.
type StatementPayment struct {
	ID          uuid.UUID       `json:"id"`
	CardID      uuid.UUID       `json:"cardId"`
	BillingDate time.Time       `json:"billingDate"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paidAt"`
}

func (p StatementPayment) EntityID() uuid.UUID   { return p.ID }
func (p StatementPayment) OwnerID() uuid.UUID    { return p.CardID }
func (p StatementPayment) OccurredAt() time.Time { return p.BillingDate }
