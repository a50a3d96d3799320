package domain

import (
	"errors"
	"testing"

	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/shopspring/decimal"
)

func mustCard(t *testing.T, limit string, closing, due int) CreditCard {
	t.Helper()
	card, err := NewCreditCard(NewCardParams{
		Name:               "Visa",
		CreditLimit:        decimal.RequireFromString(limit),
		ClosingDateDay:     closing,
		DueDateDay:         due,
		MinimumPayment:     decimal.NewFromInt(25),
		InterestRateAnnual: decimal.RequireFromString("19.99"),
	}, testNow)
	if err != nil {
		t.Fatalf("NewCreditCard() error = %v", err)
	}
	return card
}

func TestNewCreditCard(t *testing.T) {
	card := mustCard(t, "5000", 25, 10)
	if !card.AvailableCredit.Equal(card.CreditLimit) || !card.CurrentBalance.IsZero() {
		t.Errorf("new card has unexpected balances: %+v", card)
	}
	if err := card.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	invalid := []NewCardParams{
		{CreditLimit: decimal.Zero, ClosingDateDay: 1, DueDateDay: 1},
		{CreditLimit: decimal.NewFromInt(100), ClosingDateDay: 0, DueDateDay: 1},
		{CreditLimit: decimal.NewFromInt(100), ClosingDateDay: 1, DueDateDay: 32},
		{CreditLimit: decimal.NewFromInt(100), ClosingDateDay: 1, DueDateDay: 1, MinimumPayment: decimal.NewFromInt(-1)},
	}
	for i, p := range invalid {
		if _, err := NewCreditCard(p, testNow); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: error = %v, expected ErrInvalidInput", i, err)
		}
	}
}

func TestCardChargeAndCredit(t *testing.T) {
	card := mustCard(t, "5000", 25, 10)

	card.Charge(decimal.NewFromInt(1200), testNow)
	if !card.CurrentBalance.Equal(decimal.NewFromInt(1200)) || !card.AvailableCredit.Equal(decimal.NewFromInt(3800)) {
		t.Errorf("after charge: balance %s available %s", card.CurrentBalance, card.AvailableCredit)
	}
	if got := card.Utilization(); !got.Equal(decimal.NewFromInt(24)) {
		t.Errorf("Utilization() = %s, expected 24", got)
	}

	card.Credit(decimal.NewFromInt(200), testNow)
	if !card.CurrentBalance.Equal(decimal.NewFromInt(1000)) || !card.AvailableCredit.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("after credit: balance %s available %s", card.CurrentBalance, card.AvailableCredit)
	}
	if err := card.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	card.AvailableCredit = decimal.NewFromInt(1)
	if err := card.Validate(); err == nil {
		t.Error("Validate() should reject a mismatched available credit")
	}
}

func TestCardCycleDates(t *testing.T) {
	card := mustCard(t, "5000", 25, 10)

	tests := []struct {
		date    string
		closing string
		due     string
	}{
		{"2025-01-10", "2025-01-25", "2025-02-10"},
		{"2025-01-25", "2025-01-25", "2025-02-10"},
		{"2025-01-26", "2025-02-25", "2025-03-10"},
		{"2025-12-30", "2026-01-25", "2026-02-10"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			closing := card.ClosingDateFor(datetime.MustParseTime(datetime.DateLayout, tt.date))
			if got := closing.Format(datetime.DateLayout); got != tt.closing {
				t.Errorf("ClosingDateFor() = %s, expected %s", got, tt.closing)
			}
			if got := card.DueDateFor(closing).Format(datetime.DateLayout); got != tt.due {
				t.Errorf("DueDateFor() = %s, expected %s", got, tt.due)
			}
		})
	}
}

func TestStatementOutstanding(t *testing.T) {
	end := datetime.MustParseTime(datetime.DateLayout, "2025-01-25")
	statement := CreditCardStatement{
		Period:      datetime.CycleClosingOn(end, 25),
		TotalAmount: decimal.NewFromInt(500),
		PaidAmount:  decimal.NewFromInt(120),
	}
	if got := statement.Outstanding(); !got.Equal(decimal.NewFromInt(380)) {
		t.Errorf("Outstanding() = %s, expected 380", got)
	}
	if !statement.BillingDate().Equal(end) {
		t.Errorf("BillingDate() = %s, expected %s", statement.BillingDate(), end)
	}
}

func TestCardCycle(t *testing.T) {
	card := mustCard(t, "5000", 31, 10)
	cycle := card.Cycle(datetime.MustParseTime(datetime.DateLayout, "2025-02-28"))

	if got := cycle.Start.Format(datetime.DateLayout); got != "2025-01-31" {
		t.Errorf("cycle start = %s, expected 2025-01-31", got)
	}
	if cycle.Contains(datetime.MustParseTime(datetime.DateLayout, "2025-01-31")) {
		t.Error("previous closing date should be excluded")
	}
	if !cycle.Contains(datetime.MustParseTime(datetime.DateLayout, "2025-02-01")) {
		t.Error("first day of the cycle should be included")
	}
}

func TestCardCycleSnapsToClosingDate(t *testing.T) {
	card := mustCard(t, "5000", 25, 10)

	tests := []struct {
		name          string
		billingDate   string
		expectedStart string
		expectedEnd   string
	}{
		{"closing date", "2025-03-25", "2025-02-25", "2025-03-25"},
		{"mid cycle", "2025-03-05", "2025-02-25", "2025-03-25"},
		{"day after closing", "2025-03-26", "2025-03-25", "2025-04-25"},
		{"year boundary", "2025-12-30", "2025-12-25", "2026-01-25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycle := card.Cycle(datetime.MustParseTime(datetime.DateLayout, tt.billingDate))
			if got := cycle.Start.Format(datetime.DateLayout); got != tt.expectedStart {
				t.Errorf("cycle start = %s, expected %s", got, tt.expectedStart)
			}
			if got := cycle.End.Format(datetime.DateLayout); got != tt.expectedEnd {
				t.Errorf("cycle end = %s, expected %s", got, tt.expectedEnd)
			}
		})
	}
}

func TestTransactionAccountingDate(t *testing.T) {
	posted := datetime.MustParseTime(datetime.DateLayout, "2025-03-03")
	billed := datetime.MustParseTime(datetime.DateLayout, "2025-03-25")

	tx := CreditCardTransaction{Date: posted}
	if !tx.OccurredAt().Equal(posted) {
		t.Errorf("OccurredAt() = %s, expected the posting date", tx.OccurredAt())
	}
	tx.BillingDate = billed
	if !tx.OccurredAt().Equal(billed) {
		t.Errorf("OccurredAt() = %s, expected the billing date", tx.OccurredAt())
	}

	tx.MarkPaid(billed)
	if !tx.IsPaid || tx.PaymentDate == nil || !tx.PaymentDate.Equal(billed) {
		t.Errorf("MarkPaid() did not record payment: %+v", tx)
	}
}
