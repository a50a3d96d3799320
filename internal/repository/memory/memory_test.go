package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/repository"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/shopspring/decimal"
)

func payment(loanID uuid.UUID, date string, amount int64) domain.LoanPayment {
	return domain.LoanPayment{
		ID:          uuid.New(),
		LoanID:      loanID,
		Amount:      decimal.NewFromInt(amount),
		PaymentDate: datetime.MustParseTime(datetime.DateLayout, date),
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore[domain.LoanPayment]("loan payment")
	ctx := context.Background()
	p := payment(uuid.New(), "2025-01-15", 100)

	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("unexpected error on Create: %v", err)
	}
	got, err := store.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error on Get: %v", err)
	}
	if got.ID != p.ID || !got.Amount.Equal(p.Amount) {
		t.Errorf("expected payment %+v, got %+v", p, got)
	}

	if err := store.Create(ctx, p); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore[domain.CreditCard]("credit card")
	ctx := context.Background()
	card := domain.CreditCard{ID: uuid.New(), Name: "Visa", CreditLimit: decimal.NewFromInt(1000)}

	if err := store.Update(ctx, card); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing card, got %v", err)
	}

	_ = store.Create(ctx, card)
	card.Name = "Mastercard"
	if err := store.Update(ctx, card); err != nil {
		t.Fatalf("unexpected error on Update: %v", err)
	}
	got, _ := store.Get(ctx, card.ID)
	if got.Name != "Mastercard" {
		t.Errorf("expected updated name, got %q", got.Name)
	}
}

func TestStoreDelete(t *testing.T) {
	store := NewStore[domain.LoanPayment]("loan payment")
	ctx := context.Background()
	loanID := uuid.New()
	first := payment(loanID, "2025-01-15", 100)
	second := payment(loanID, "2025-02-15", 200)
	_ = store.Create(ctx, first)
	_ = store.Create(ctx, second)

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("unexpected error on Delete: %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound after Delete, got %v", err)
	}
	if err := store.Delete(ctx, first.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	remaining, _ := store.List(ctx, repository.ByOwner(loanID))
	if len(remaining) != 1 || remaining[0].ID != second.ID {
		t.Errorf("expected only the second payment to remain, got %+v", remaining)
	}

	if err := store.Create(ctx, first); err != nil {
		t.Errorf("expected a deleted ID to be reusable, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore[domain.CreditCard]("credit card")
	ctx := context.Background()
	card := domain.CreditCard{ID: uuid.New(), CurrentBalance: decimal.NewFromInt(10)}
	_ = store.Create(ctx, card)

	got, _ := store.Get(ctx, card.ID)
	got.CurrentBalance = decimal.NewFromInt(999)

	again, _ := store.Get(ctx, card.ID)
	if !again.CurrentBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("mutating a returned value changed the store: %s", again.CurrentBalance)
	}
}

func TestStoreList(t *testing.T) {
	store := NewStore[domain.LoanPayment]("loan payment")
	ctx := context.Background()
	loanA, loanB := uuid.New(), uuid.New()

	for _, p := range []domain.LoanPayment{
		payment(loanA, "2025-03-15", 3),
		payment(loanA, "2025-01-15", 1),
		payment(loanB, "2025-02-20", 9),
		payment(loanA, "2025-02-15", 2),
	} {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("unexpected error on Create: %v", err)
		}
	}

	tests := []struct {
		name     string
		query    repository.Query
		expected []int64
	}{
		{"by owner ordered by date", repository.ByOwner(loanA), []int64{1, 2, 3}},
		{"other owner", repository.ByOwner(loanB), []int64{9}},
		{"unknown owner", repository.ByOwner(uuid.New()), []int64{}},
		{
			"owner and window",
			repository.Query{OwnerID: loanA, Window: datetime.CycleClosingOn(datetime.MustParseTime(datetime.DateLayout, "2025-03-15"), 15)},
			[]int64{3},
		},
		{
			"window only",
			repository.Query{Window: datetime.Range{Start: datetime.MustParseTime(datetime.DateLayout, "2025-01-31")}},
			[]int64{2, 9, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.query)
			if err != nil {
				t.Fatalf("unexpected error on List: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d", len(tt.expected), len(got))
			}
			for i, p := range got {
				if !p.Amount.Equal(decimal.NewFromInt(tt.expected[i])) {
					t.Errorf("result %d: expected amount %d, got %s", i, tt.expected[i], p.Amount)
				}
			}
		})
	}
}

func TestStoreConcurrentCreate(t *testing.T) {
	store := NewStore[domain.LoanPayment]("loan payment")
	ctx := context.Background()
	loanID := uuid.New()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := domain.LoanPayment{ID: uuid.New(), LoanID: loanID, PaymentDate: start.AddDate(0, 0, i)}
			if err := store.Create(ctx, p); err != nil {
				t.Errorf("unexpected error on Create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := store.List(ctx, repository.ByOwner(loanID))
	if len(got) != 50 {
		t.Errorf("expected 50 payments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].PaymentDate.Before(got[i-1].PaymentDate) {
			t.Fatalf("results not ordered at %d", i)
		}
	}
}
