// Package cards books installment purchases and builds credit-card statements.
package cards

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseRequest describes a purchase split into monthly installments.
type PurchaseRequest struct {
	Amount       decimal.Decimal
	Installments int
	// Date defaults to the processing time when zero.
	Date        time.Time
	Description string
}

// InstallmentTracker splits purchases into installments and tracks which
// installments have been settled.
type InstallmentTracker struct {
	logger *zap.Logger
	clock  func() time.Time
}

// NewInstallmentTracker creates an InstallmentTracker.
func NewInstallmentTracker(logger *zap.Logger) *InstallmentTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstallmentTracker{logger: logger, clock: time.Now}
}

// SplitAmount divides amount into count equal cent amounts, rounding down,
// with the remainder on the last installment.
func SplitAmount(amount decimal.Decimal, count int) []decimal.Decimal {
	n := decimal.NewFromInt(int64(count))
	each := mathutil.FloorCents(amount.Div(n))

	parts := make([]decimal.Decimal, count)
	for i := range parts {
		parts[i] = each
	}
	parts[count-1] = amount.Sub(each.Mul(decimal.NewFromInt(int64(count - 1))))
	return parts
}

// CreateInstallmentPurchase books the full purchase on the card and returns
// one transaction per installment. Installment k posts k-1 months after the
// purchase and bills on the k-th closing date on or after it. The input card
// is never modified.
func (t *InstallmentTracker) CreateInstallmentPurchase(card domain.CreditCard, req PurchaseRequest) (domain.CreditCard, []domain.CreditCardTransaction, error) {
	if !card.IsActive {
		return domain.CreditCard{}, nil, fmt.Errorf("%w: %s", domain.ErrCardInactive, card.ID)
	}
	if err := validation.ValidateInstallmentCount(req.Installments); err != nil {
		return domain.CreditCard{}, nil, err
	}
	if err := validation.ValidateAmount(req.Amount); err != nil {
		return domain.CreditCard{}, nil, err
	}
	if !req.Amount.Equal(mathutil.Round(req.Amount)) {
		return domain.CreditCard{}, nil, fmt.Errorf("%w: %s is not a whole number of cents", domain.ErrInvalidAmount, req.Amount)
	}
	if req.Amount.GreaterThan(card.AvailableCredit) {
		return domain.CreditCard{}, nil, fmt.Errorf("%w: purchase %s, available %s",
			domain.ErrCreditLimitExceeded, req.Amount, card.AvailableCredit)
	}

	now := t.clock()
	purchaseDate := req.Date
	if purchaseDate.IsZero() {
		purchaseDate = now
	}
	purchaseDate = datetime.Midnight(purchaseDate)

	groupID := uuid.New()
	firstClosing := card.ClosingDateFor(purchaseDate)
	description := strings.TrimSpace(req.Description)

	parts := SplitAmount(req.Amount, req.Installments)
	transactions := make([]domain.CreditCardTransaction, req.Installments)
	for i, amount := range parts {
		billing := datetime.MonthlyOccurrence(firstClosing, i, card.ClosingDateDay)
		transactions[i] = domain.CreditCardTransaction{
			ID:                 uuid.New(),
			CardID:             card.ID,
			PurchaseGroupID:    groupID,
			Description:        description,
			Amount:             amount,
			PurchaseAmount:     req.Amount,
			Date:               datetime.AddMonths(purchaseDate, i),
			BillingDate:        billing,
			DueDate:            card.DueDateFor(billing),
			Installments:       req.Installments,
			CurrentInstallment: i + 1,
			CreatedAt:          now,
		}
	}

	updated := card
	updated.Charge(req.Amount, now)

	t.logger.Debug("created installment purchase",
		zap.String("op", "cards.CreateInstallmentPurchase"),
		zap.String("card", card.ID.String()),
		zap.String("group", groupID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Int("installments", req.Installments),
	)
	return updated, transactions, nil
}

// MarkInstallmentPaid settles one installment.
func (t *InstallmentTracker) MarkInstallmentPaid(tx domain.CreditCardTransaction, paidAt time.Time) (domain.CreditCardTransaction, error) {
	if tx.IsPaid {
		return domain.CreditCardTransaction{}, fmt.Errorf("%w: installment %d/%d of %s already paid",
			domain.ErrInvalidInput, tx.CurrentInstallment, tx.Installments, tx.PurchaseGroupID)
	}
	if paidAt.IsZero() {
		paidAt = t.clock()
	}
	tx.MarkPaid(paidAt)
	return tx, nil
}

// Pending returns the unpaid installments ordered by billing date.
func Pending(transactions []domain.CreditCardTransaction) []domain.CreditCardTransaction {
	pending := []domain.CreditCardTransaction{}
	for _, tx := range transactions {
		if !tx.IsPaid {
			pending = append(pending, tx)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].BillingDate.Before(pending[j].BillingDate)
	})
	return pending
}

// Remaining is the total of the unpaid installments.
func Remaining(transactions []domain.CreditCardTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range transactions {
		if !tx.IsPaid {
			total = total.Add(tx.Amount)
		}
	}
	return total
}
