package cards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/events"
	"github.com/iwvelando/loan-engine/internal/locker"
	"github.com/iwvelando/loan-engine/internal/metrics"
	"github.com/iwvelando/loan-engine/internal/repository"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseCreatedEvent is the payload of events.CardPurchaseCreated.
type PurchaseCreatedEvent struct {
	PurchaseGroupID uuid.UUID       `json:"purchaseGroupId"`
	Amount          decimal.Decimal `json:"amount"`
	Installments    int             `json:"installments"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
}

// StatementPaidEvent is the payload of events.CardStatementPaid.
type StatementPaidEvent struct {
	Payment    domain.StatementPayment `json:"payment"`
	PaidAmount decimal.Decimal         `json:"paidAmount"`
	IsPaid     bool                    `json:"isPaid"`
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPublisher emits account events to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
		s.tracker.clock = clock
		s.statements.clock = clock
	}
}

// Service owns credit cards, their installment ledger and statement
// payments. Mutations on one card are serialized.
type Service struct {
	cards        repository.Repository[domain.CreditCard]
	transactions repository.Repository[domain.CreditCardTransaction]
	payments     repository.Repository[domain.StatementPayment]
	tracker      *InstallmentTracker
	statements   *StatementBuilder
	locks        *locker.Locker
	metrics      *metrics.Collector
	publisher    events.Publisher
	logger       *zap.Logger
	clock        func() time.Time
}

// NewService wires a Service to the card repositories in repos.
func NewService(repos *repository.Set, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cards:        repos.Cards,
		transactions: repos.CardTransactions,
		payments:     repos.StatementPayments,
		tracker:      NewInstallmentTracker(logger),
		statements:   NewStatementBuilder(logger),
		locks:        locker.New(),
		publisher:    events.Nop{},
		logger:       logger,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCard opens and stores a new card.
func (s *Service) CreateCard(ctx context.Context, params domain.NewCardParams) (card domain.CreditCard, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("card_create", started, err) }()

	card, err = domain.NewCreditCard(params, s.clock())
	if err != nil {
		return domain.CreditCard{}, err
	}
	if err := s.cards.Create(ctx, card); err != nil {
		return domain.CreditCard{}, fmt.Errorf("store card: %w", err)
	}

	s.metrics.SetCardUtilization(card)
	s.logger.Info("created credit card",
		zap.String("op", "cards.CreateCard"),
		zap.String("card", card.ID.String()),
		zap.String("name", card.Name),
		zap.String("limit", card.CreditLimit.StringFixed(2)),
	)
	return card, nil
}

// GetCard loads one card.
func (s *Service) GetCard(ctx context.Context, id uuid.UUID) (domain.CreditCard, error) {
	return s.cards.Get(ctx, id)
}

// ListCards returns every card in creation order.
func (s *Service) ListCards(ctx context.Context) ([]domain.CreditCard, error) {
	return s.cards.List(ctx, repository.Query{})
}

// CreateInstallmentPurchase books a purchase on the card and stores its
// installments.
func (s *Service) CreateInstallmentPurchase(ctx context.Context, cardID uuid.UUID, req PurchaseRequest) (card domain.CreditCard, txs []domain.CreditCardTransaction, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("card_purchase", started, err) }()

	unlock := s.locks.Lock(cardID)
	defer unlock()

	current, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return domain.CreditCard{}, nil, err
	}

	card, txs, err = s.tracker.CreateInstallmentPurchase(current, req)
	if err != nil {
		return domain.CreditCard{}, nil, err
	}
	if err := card.Validate(); err != nil {
		return domain.CreditCard{}, nil, fmt.Errorf("card %s after purchase: %w", cardID, err)
	}

	const op = "cards.CreateInstallmentPurchase"
	if err := s.cards.Update(ctx, card); err != nil {
		return domain.CreditCard{}, nil, fmt.Errorf("store card: %w", err)
	}
	for i, tx := range txs {
		if err := s.transactions.Create(ctx, tx); err != nil {
			for _, created := range txs[:i] {
				s.rollback(op, "card transaction", created.ID, s.transactions.Delete(ctx, created.ID))
			}
			s.rollback(op, "credit card", cardID, s.cards.Update(ctx, current))
			return domain.CreditCard{}, nil, fmt.Errorf("store installment %d: %w", tx.CurrentInstallment, err)
		}
	}
	unlock()

	s.metrics.SetCardUtilization(card)
	s.publish(ctx, events.CardPurchaseCreated, cardID, PurchaseCreatedEvent{
		PurchaseGroupID: txs[0].PurchaseGroupID,
		Amount:          req.Amount,
		Installments:    len(txs),
		AvailableCredit: card.AvailableCredit,
	})
	return card, txs, nil
}

// Transactions returns the card's installments in billing order.
func (s *Service) Transactions(ctx context.Context, cardID uuid.UUID) ([]domain.CreditCardTransaction, error) {
	if _, err := s.cards.Get(ctx, cardID); err != nil {
		return nil, err
	}
	return s.transactions.List(ctx, repository.ByOwner(cardID))
}

// Installments returns the installments of one purchase in order.
func (s *Service) Installments(ctx context.Context, groupID uuid.UUID) ([]domain.CreditCardTransaction, error) {
	all, err := s.transactions.List(ctx, repository.Query{})
	if err != nil {
		return nil, err
	}

	group := []domain.CreditCardTransaction{}
	for _, tx := range all {
		if tx.PurchaseGroupID == groupID {
			group = append(group, tx)
		}
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("%w: purchase %s", repository.ErrNotFound, groupID)
	}
	return group, nil
}

// MarkInstallmentPaid settles a single installment ahead of a full statement
// payment. The installment amount, capped at what is still owed on its
// statement, is recorded as a statement payment and credited to the card.
func (s *Service) MarkInstallmentPaid(ctx context.Context, cardID, txID uuid.UUID, paidAt time.Time) (paid domain.CreditCardTransaction, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("installment_paid", started, err) }()

	unlock := s.locks.Lock(cardID)
	defer unlock()

	tx, err := s.transactions.Get(ctx, txID)
	if err != nil {
		return domain.CreditCardTransaction{}, err
	}
	if tx.CardID != cardID {
		return domain.CreditCardTransaction{}, fmt.Errorf("%w: card transaction %s on card %s", repository.ErrNotFound, txID, cardID)
	}

	paid, err = s.tracker.MarkInstallmentPaid(tx, paidAt)
	if err != nil {
		return domain.CreditCardTransaction{}, err
	}
	paidAt = *paid.PaymentDate

	current, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return domain.CreditCardTransaction{}, err
	}
	before, err := s.buildStatement(ctx, current, tx.AccountingDate())
	if err != nil {
		return domain.CreditCardTransaction{}, err
	}

	amount := mathutil.Min(tx.Amount, before.Outstanding())
	if !amount.IsPositive() {
		// Earlier payments already cover this installment.
		if err := s.transactions.Update(ctx, paid); err != nil {
			return domain.CreditCardTransaction{}, fmt.Errorf("store installment: %w", err)
		}
		return paid, nil
	}

	statement, card, payment, err := s.statements.ApplyStatementPayment(before, current, amount, paidAt)
	if err != nil {
		return domain.CreditCardTransaction{}, err
	}
	if err := card.Validate(); err != nil {
		return domain.CreditCardTransaction{}, fmt.Errorf("card %s after installment payment: %w", cardID, err)
	}

	found := false
	for i := range statement.Transactions {
		if statement.Transactions[i].ID != txID {
			continue
		}
		if !statement.Transactions[i].IsPaid {
			statement.Transactions[i] = paid
		}
		paid = statement.Transactions[i]
		found = true
	}
	if !found {
		return domain.CreditCardTransaction{}, fmt.Errorf("installment %s missing from the statement closing %s", txID, before.Period.End.Format(datetime.DateLayout))
	}

	if err := s.commitStatement(ctx, "cards.MarkInstallmentPaid", current, card, payment, before, statement); err != nil {
		return domain.CreditCardTransaction{}, err
	}
	unlock()

	s.metrics.ObservePayment("installment", amount)
	s.metrics.SetCardUtilization(card)
	s.publish(ctx, events.CardStatementPaid, cardID, StatementPaidEvent{
		Payment:    payment,
		PaidAmount: statement.PaidAmount,
		IsPaid:     statement.IsPaid,
	})
	return paid, nil
}

// BuildStatement derives the statement of the cycle closing on billingDate.
func (s *Service) BuildStatement(ctx context.Context, cardID uuid.UUID, billingDate time.Time) (domain.CreditCardStatement, error) {
	card, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return domain.CreditCardStatement{}, err
	}
	return s.buildStatement(ctx, card, billingDate)
}

func (s *Service) buildStatement(ctx context.Context, card domain.CreditCard, billingDate time.Time) (domain.CreditCardStatement, error) {
	cycle := card.Cycle(billingDate)

	txs, err := s.transactions.List(ctx, repository.Query{OwnerID: card.ID, Window: cycle})
	if err != nil {
		return domain.CreditCardStatement{}, fmt.Errorf("list transactions: %w", err)
	}
	prior, err := s.payments.List(ctx, repository.Query{
		OwnerID: card.ID,
		Window:  datetime.Range{Start: cycle.End.AddDate(0, 0, -1), End: cycle.End},
	})
	if err != nil {
		return domain.CreditCardStatement{}, fmt.Errorf("list statement payments: %w", err)
	}

	return s.statements.BuildStatement(card, txs, billingDate, prior...), nil
}

// ApplyStatementPayment pays amount against the statement closing on
// billingDate. A payment that settles the statement marks its installments
// paid.
func (s *Service) ApplyStatementPayment(ctx context.Context, cardID uuid.UUID, billingDate time.Time, amount decimal.Decimal, paidAt time.Time) (statement domain.CreditCardStatement, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("statement_payment", started, err) }()

	unlock := s.locks.Lock(cardID)
	defer unlock()

	current, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return domain.CreditCardStatement{}, err
	}
	before, err := s.buildStatement(ctx, current, billingDate)
	if err != nil {
		return domain.CreditCardStatement{}, err
	}

	statement, card, payment, err := s.statements.ApplyStatementPayment(before, current, amount, paidAt)
	if err != nil {
		return domain.CreditCardStatement{}, err
	}
	if err := card.Validate(); err != nil {
		return domain.CreditCardStatement{}, fmt.Errorf("card %s after statement payment: %w", cardID, err)
	}

	if err := s.commitStatement(ctx, "cards.ApplyStatementPayment", current, card, payment, before, statement); err != nil {
		return domain.CreditCardStatement{}, err
	}
	unlock()

	s.metrics.ObservePayment("statement", amount)
	s.metrics.SetCardUtilization(card)
	s.publish(ctx, events.CardStatementPaid, cardID, StatementPaidEvent{
		Payment:    payment,
		PaidAmount: statement.PaidAmount,
		IsPaid:     statement.IsPaid,
	})
	return statement, nil
}

// commitStatement stores the outcome of a statement payment: the credited
// card, the payment record and every installment the payment settled. When a
// write fails the writes already made are undone.
func (s *Service) commitStatement(ctx context.Context, op string, current, card domain.CreditCard, payment domain.StatementPayment, before, after domain.CreditCardStatement) error {
	if err := s.cards.Update(ctx, card); err != nil {
		return fmt.Errorf("store card: %w", err)
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.rollback(op, "credit card", card.ID, s.cards.Update(ctx, current))
		return fmt.Errorf("record statement payment: %w", err)
	}

	var marked []domain.CreditCardTransaction
	for i, tx := range after.Transactions {
		if before.Transactions[i].IsPaid || !tx.IsPaid {
			continue
		}
		if err := s.transactions.Update(ctx, tx); err != nil {
			for _, original := range marked {
				s.rollback(op, "card transaction", original.ID, s.transactions.Update(ctx, original))
			}
			s.rollback(op, "statement payment", payment.ID, s.payments.Delete(ctx, payment.ID))
			s.rollback(op, "credit card", card.ID, s.cards.Update(ctx, current))
			return fmt.Errorf("mark installment paid: %w", err)
		}
		marked = append(marked, before.Transactions[i])
	}
	return nil
}

// rollback logs a failed attempt to undo a write.
func (s *Service) rollback(op, kind string, id uuid.UUID, err error) {
	if err != nil {
		s.logger.Error("failed to roll back after write failure",
			zap.String("op", op),
			zap.String("kind", kind),
			zap.String("id", id.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, accountID uuid.UUID, data any) {
	msg, err := events.NewMessage(eventType, accountID, data)
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("op", "cards.publish"),
			zap.String("type", eventType),
			zap.String("account", accountID.String()),
			zap.Error(err),
		)
	}
}
