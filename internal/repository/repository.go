// Package repository defines the persistence contract shared by the storage
// backends.
package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/pkg/datetime"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// Entity is anything a Repository can store.
type Entity interface {
	EntityID() uuid.UUID
	// OwnerID is the account the entity belongs to, or uuid.Nil for accounts.
	OwnerID() uuid.UUID
	OccurredAt() time.Time
}

// Query filters List results. Zero fields match everything.
type Query struct {
	OwnerID uuid.UUID
	Window  datetime.Range
}

// ByOwner selects entities of one account.
func ByOwner(owner uuid.UUID) Query {
	return Query{OwnerID: owner}
}

// Matches reports whether e satisfies the query.
func (q Query) Matches(e Entity) bool {
	if q.OwnerID != uuid.Nil && e.OwnerID() != q.OwnerID {
		return false
	}
	return q.Window.Contains(e.OccurredAt())
}

// Repository stores entities of one type by ID.
type Repository[T Entity] interface {
	Get(ctx context.Context, id uuid.UUID) (T, error)
	// Create fails with ErrDuplicate when the ID is already present.
	Create(ctx context.Context, entity T) error
	// Update fails with ErrNotFound when the ID is absent.
	Update(ctx context.Context, entity T) error
	// Delete fails with ErrNotFound when the ID is absent. Services use it to
	// roll back partially applied writes.
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns matches ordered by OccurredAt, then ID.
	List(ctx context.Context, q Query) ([]T, error)
}

// Set bundles the repositories the engine persists to.
type Set struct {
	Loans             Repository[domain.LoanAccount]
	LoanPayments      Repository[domain.LoanPayment]
	Cards             Repository[domain.CreditCard]
	CardTransactions  Repository[domain.CreditCardTransaction]
	StatementPayments Repository[domain.StatementPayment]
}

// Sort orders entities by OccurredAt, breaking ties by ID.
func Sort[T Entity](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].OccurredAt(), items[j].OccurredAt()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return items[i].EntityID().String() < items[j].EntityID().String()
	})
}
