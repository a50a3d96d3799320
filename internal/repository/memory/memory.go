// Package memory is the in-process repository backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/repository"
)

var (
	_ repository.Repository[domain.LoanAccount]           = (*Store[domain.LoanAccount])(nil)
	_ repository.Repository[domain.LoanPayment]           = (*Store[domain.LoanPayment])(nil)
	_ repository.Repository[domain.CreditCard]            = (*Store[domain.CreditCard])(nil)
	_ repository.Repository[domain.CreditCardTransaction] = (*Store[domain.CreditCardTransaction])(nil)
	_ repository.Repository[domain.StatementPayment]      = (*Store[domain.StatementPayment])(nil)
)

// Store keeps entities by value in a map, so callers never share state with
// the store.
type Store[T repository.Entity] struct {
	mu       sync.RWMutex
	kind     string
	entities map[uuid.UUID]T
	byOwner  map[uuid.UUID][]uuid.UUID
}

// NewStore creates an empty store. kind names the entity in error messages.
func NewStore[T repository.Entity](kind string) *Store[T] {
	return &Store[T]{
		kind:     kind,
		entities: make(map[uuid.UUID]T),
		byOwner:  make(map[uuid.UUID][]uuid.UUID),
	}
}

// NewSet returns a repository.Set backed by fresh stores.
func NewSet() *repository.Set {
	return &repository.Set{
		Loans:             NewStore[domain.LoanAccount]("loan"),
		LoanPayments:      NewStore[domain.LoanPayment]("loan payment"),
		Cards:             NewStore[domain.CreditCard]("credit card"),
		CardTransactions:  NewStore[domain.CreditCardTransaction]("card transaction"),
		StatementPayments: NewStore[domain.StatementPayment]("statement payment"),
	}
}

func (s *Store[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, exists := s.entities[id]
	if !exists {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", repository.ErrNotFound, s.kind, id)
	}
	return entity, nil
}

func (s *Store[T]) Create(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()
	if _, exists := s.entities[id]; exists {
		return fmt.Errorf("%w: %s %s", repository.ErrDuplicate, s.kind, id)
	}

	s.entities[id] = entity
	if owner := entity.OwnerID(); owner != uuid.Nil {
		s.byOwner[owner] = append(s.byOwner[owner], id)
	}
	return nil
}

func (s *Store[T]) Update(ctx context.Context, entity T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entity.EntityID()
	current, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %s %s", repository.ErrNotFound, s.kind, id)
	}
	if current.OwnerID() != entity.OwnerID() {
		return fmt.Errorf("%s %s cannot change owner", s.kind, id)
	}

	s.entities[id] = entity
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, exists := s.entities[id]
	if !exists {
		return fmt.Errorf("%w: %s %s", repository.ErrNotFound, s.kind, id)
	}
	delete(s.entities, id)

	owner := entity.OwnerID()
	if owner == uuid.Nil {
		return nil
	}
	ids := s.byOwner[owner]
	for i, candidate := range ids {
		if candidate == id {
			s.byOwner[owner] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byOwner[owner]) == 0 {
		delete(s.byOwner, owner)
	}
	return nil
}

func (s *Store[T]) List(ctx context.Context, q repository.Query) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []T{}
	if q.OwnerID != uuid.Nil {
		for _, id := range s.byOwner[q.OwnerID] {
			if entity := s.entities[id]; q.Matches(entity) {
				result = append(result, entity)
			}
		}
	} else {
		for _, entity := range s.entities {
			if q.Matches(entity) {
				result = append(result, entity)
			}
		}
	}

	repository.Sort(result)
	return result, nil
}
