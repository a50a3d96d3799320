package loans

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
	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxScheduleWorkers bounds concurrent schedule generation.
const maxScheduleWorkers = 8

// Summary is a loan with its derived values as of a point in time.
type Summary struct {
	domain.LoanAccount
	Status             domain.LoanStatus `json:"status"`
	MonthlyPayment     decimal.Decimal   `json:"monthlyPayment"`
	NextDueDate        time.Time         `json:"nextDueDate"`
	EndDate            time.Time         `json:"endDate"`
	RemainingPayments  int               `json:"remainingPayments"`
	PayoffAmount       decimal.Decimal   `json:"payoffAmount"`
	ProgressPercentage decimal.Decimal   `json:"progressPercentage"`
}

// Summarize derives the loan's current figures.
func Summarize(loan domain.LoanAccount, asOf time.Time) Summary {
	return Summary{
		LoanAccount:        loan,
		Status:             loan.StatusAt(asOf),
		MonthlyPayment:     loan.MonthlyPayment(),
		NextDueDate:        loan.NextDueDate(),
		EndDate:            loan.EndDate(),
		RemainingPayments:  loan.RemainingPayments(),
		PayoffAmount:       loan.PayoffAmount(),
		ProgressPercentage: mathutil.Round(loan.ProgressPercentage()),
	}
}

// PaymentAppliedEvent is the payload of events.LoanPaymentApplied.
type PaymentAppliedEvent struct {
	Payment domain.LoanPayment `json:"payment"`
	Status  domain.LoanStatus  `json:"status"`
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
		s.processor.clock = clock
	}
}

// Service owns loan accounts and their payment ledgers. Mutations on one loan
// are serialized; different loans proceed in parallel.
type Service struct {
	loans     repository.Repository[domain.LoanAccount]
	payments  repository.Repository[domain.LoanPayment]
	processor *Processor
	generator *amortization.ScheduleGenerator
	locks     *locker.Locker
	metrics   *metrics.Collector
	publisher events.Publisher
	logger    *zap.Logger
	clock     func() time.Time
}

// NewService wires a Service to the loan repositories in repos.
func NewService(repos *repository.Set, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		loans:     repos.Loans,
		payments:  repos.LoanPayments,
		processor: NewProcessor(logger),
		generator: amortization.NewScheduleGenerator(logger),
		locks:     locker.New(),
		publisher: events.Nop{},
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeMonthlyPayment returns the level payment for the terms, rounded to cents.
func (s *Service) ComputeMonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	payment, err := amortization.MonthlyPayment(principal, annualRatePercent, termMonths)
	if err != nil {
		return decimal.Zero, err
	}
	return mathutil.Round(payment), nil
}

// BuildAmortizationSchedule generates a schedule for ad hoc terms.
func (s *Service) BuildAmortizationSchedule(p amortization.Params) ([]amortization.Entry, error) {
	return s.generator.Generate("calculator", p)
}

// CreateLoan opens and stores a new loan.
func (s *Service) CreateLoan(ctx context.Context, params domain.NewLoanParams) (loan domain.LoanAccount, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("loan_create", started, err) }()

	loan, err = domain.NewLoanAccount(params, s.clock())
	if err != nil {
		return domain.LoanAccount{}, err
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		return domain.LoanAccount{}, fmt.Errorf("store loan: %w", err)
	}

	s.metrics.SetLoanBalance(loan)
	s.logger.Info("created loan",
		zap.String("op", "loans.CreateLoan"),
		zap.String("loan", loan.ID.String()),
		zap.String("name", loan.Name),
		zap.String("principal", loan.PrincipalAmount.StringFixed(2)),
		zap.Int("term", loan.TermMonths),
	)
	return loan, nil
}

// GetLoan loads one loan.
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (domain.LoanAccount, error) {
	return s.loans.Get(ctx, id)
}

// Summary loads one loan with its derived figures as of now.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (Summary, error) {
	loan, err := s.loans.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(loan, s.clock()), nil
}

// ListLoans returns every loan in creation order.
func (s *Service) ListLoans(ctx context.Context) ([]domain.LoanAccount, error) {
	return s.loans.List(ctx, repository.Query{})
}

// ApplyLoanPayment applies req to the loan and appends the payment to its
// ledger. The read-modify-write runs under the loan's lock; the event is
// published once the lock is released.
func (s *Service) ApplyLoanPayment(ctx context.Context, loanID uuid.UUID, req PaymentRequest) (loan domain.LoanAccount, payment domain.LoanPayment, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("loan_payment", started, err) }()

	unlock := s.locks.Lock(loanID)
	defer unlock()

	current, err := s.loans.Get(ctx, loanID)
	if err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, err
	}

	loan, payment, err = s.processor.Apply(current, req)
	if err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, err
	}
	if err := loan.Validate(); err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, fmt.Errorf("loan %s after payment: %w", loanID, err)
	}

	if err := s.loans.Update(ctx, loan); err != nil {
		return domain.LoanAccount{}, domain.LoanPayment{}, fmt.Errorf("store loan: %w", err)
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if rbErr := s.loans.Update(ctx, current); rbErr != nil {
			s.logger.Error("failed to restore loan after ledger write failure",
				zap.String("op", "loans.ApplyLoanPayment"),
				zap.String("loan", loanID.String()),
				zap.Error(rbErr),
			)
		}
		return domain.LoanAccount{}, domain.LoanPayment{}, fmt.Errorf("append payment: %w", err)
	}
	unlock()

	s.metrics.ObservePayment(string(payment.Type), payment.Amount)
	s.metrics.SetLoanBalance(loan)
	s.publish(ctx, events.LoanPaymentApplied, loanID, PaymentAppliedEvent{Payment: payment, Status: loan.Status()})

	if loan.Status() == domain.LoanPaidOff {
		s.logger.Info("loan paid off",
			zap.String("op", "loans.ApplyLoanPayment"),
			zap.String("loan", loanID.String()),
			zap.Int("payments", loan.PaymentsMade),
		)
	}
	return loan, payment, nil
}

// Deactivate retires a loan from tracking.
func (s *Service) Deactivate(ctx context.Context, loanID uuid.UUID) (loan domain.LoanAccount, err error) {
	started := s.clock()
	defer func() { s.metrics.RecordOperation("loan_deactivate", started, err) }()

	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err = s.loans.Get(ctx, loanID)
	if err != nil {
		return domain.LoanAccount{}, err
	}
	if !loan.IsActive {
		return loan, nil
	}

	loan.Deactivate(s.clock())
	if err := s.loans.Update(ctx, loan); err != nil {
		return domain.LoanAccount{}, fmt.Errorf("store loan: %w", err)
	}
	unlock()

	s.publish(ctx, events.LoanDeactivated, loanID, loan)
	s.logger.Info("deactivated loan",
		zap.String("op", "loans.Deactivate"),
		zap.String("loan", loanID.String()),
	)
	return loan, nil
}

// Payments returns the loan's payment ledger in payment-date order.
func (s *Service) Payments(ctx context.Context, loanID uuid.UUID) ([]domain.LoanPayment, error) {
	if _, err := s.loans.Get(ctx, loanID); err != nil {
		return nil, err
	}
	return s.payments.List(ctx, repository.ByOwner(loanID))
}

// Schedule generates the loan's contractual amortization schedule.
func (s *Service) Schedule(ctx context.Context, loanID uuid.UUID) ([]amortization.Entry, error) {
	loan, err := s.loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(loan.Name, loan.ScheduleParams())
}

// Schedules generates the schedules of several loans concurrently. It fails
// as a whole if any loan is missing.
func (s *Service) Schedules(ctx context.Context, loanIDs []uuid.UUID) (map[uuid.UUID][]amortization.Entry, error) {
	results := make([][]amortization.Entry, len(loanIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxScheduleWorkers)
	for i, id := range loanIDs {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			schedule, err := s.Schedule(ctx, id)
			if err != nil {
				return fmt.Errorf("loan %s: %w", id, err)
			}
			results[i] = schedule
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID][]amortization.Entry, len(loanIDs))
	for i, id := range loanIDs {
		out[id] = results[i]
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, eventType string, accountID uuid.UUID, data any) {
	msg, err := events.NewMessage(eventType, accountID, data)
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("op", "loans.publish"),
			zap.String("type", eventType),
			zap.String("account", accountID.String()),
			zap.Error(err),
		)
	}
}
