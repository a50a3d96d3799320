// Package amortization provides the fixed-rate loan calculations: the monthly
// payment, the principal/interest split of a payment and the full schedule.
// Every function is pure and safe for concurrent use.
package amortization

import (
	"fmt"
	"time"

	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/shopspring/decimal"
)

var (
	one           = decimal.NewFromInt(1)
	monthsPerYear = decimal.NewFromInt(constants.MonthsPerYear)
)

// ErrInvalidInput is returned for non-positive principal or term and for a
// negative rate.
var ErrInvalidInput = validation.ErrInvalidInput

// Split holds the allocation of a single payment.
type Split struct {
	Principal decimal.Decimal
	Interest  decimal.Decimal
}

// Entry is one row of an amortization schedule.
type Entry struct {
	PaymentNumber    int             `json:"paymentNumber" yaml:"paymentNumber"`
	PaymentDate      time.Time       `json:"paymentDate" yaml:"paymentDate"`
	TotalPayment     decimal.Decimal `json:"totalPayment" yaml:"totalPayment"`
	PrincipalPayment decimal.Decimal `json:"principalPayment" yaml:"principalPayment"`
	InterestPayment  decimal.Decimal `json:"interestPayment" yaml:"interestPayment"`
	RemainingBalance decimal.Decimal `json:"remainingBalance" yaml:"remainingBalance"`
}

// Params describes the static terms a schedule is generated from.
type Params struct {
	Principal         decimal.Decimal
	AnnualRatePercent decimal.Decimal
	TermMonths        int
	StartDate         time.Time
	// PaymentDay is the day of month payments fall on; 0 keeps StartDate's day.
	PaymentDay int
}

// MonthlyRate converts an annual percentage rate into the periodic rate.
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.DivRound(mathutil.Hundred.Mul(monthsPerYear), constants.WorkingPrecision)
}

// MonthlyPayment calculates the level payment that retires principal over
// termMonths using the standard annuity formula. The result is not rounded.
func MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := validation.ValidateLoanTerms(principal, annualRatePercent, termMonths); err != nil {
		return decimal.Zero, err
	}

	periodicRate := MonthlyRate(annualRatePercent)
	if periodicRate.IsZero() {
		// For zero interest, simply divide the principal by term
		return principal.Div(decimal.NewFromInt(int64(termMonths))), nil
	}

	growth := mathutil.PowInt(one.Add(periodicRate), termMonths, constants.WorkingPrecision)
	return principal.Mul(periodicRate).Mul(growth).DivRound(growth.Sub(one), constants.WorkingPrecision), nil
}

// SplitPayment allocates a payment between interest and principal, interest
// first. When the payment does not cover the period's interest the principal
// portion is zero and the shortfall is not carried forward.
func SplitPayment(remainingBalance, annualRatePercent, paymentAmount decimal.Decimal) Split {
	interest := remainingBalance.Mul(MonthlyRate(annualRatePercent))
	interest = mathutil.Max(decimal.Zero, mathutil.Min(interest, paymentAmount))
	return Split{
		Principal: mathutil.Max(decimal.Zero, paymentAmount.Sub(interest)),
		Interest:  interest,
	}
}

// BuildSchedule generates the amortization schedule for the given terms. The
// schedule has TermMonths entries unless the balance is retired earlier; the
// last entry always carries a remaining balance of exactly zero and absorbs
// any rounding drift in its principal portion.
func BuildSchedule(p Params) ([]Entry, error) {
	payment, err := MonthlyPayment(p.Principal, p.AnnualRatePercent, p.TermMonths)
	if err != nil {
		return nil, err
	}

	paymentDay := p.PaymentDay
	if paymentDay == 0 {
		paymentDay = p.StartDate.Day()
	}
	if err := validation.ValidateDayOfMonth("payment day", paymentDay); err != nil {
		return nil, err
	}

	schedule := make([]Entry, 0, p.TermMonths)
	balance := p.Principal

	for period := 1; period <= p.TermMonths; period++ {
		split := SplitPayment(balance, p.AnnualRatePercent, payment)
		entry := Entry{
			PaymentNumber:    period,
			PaymentDate:      datetime.MonthlyOccurrence(p.StartDate, period, paymentDay),
			TotalPayment:     payment,
			PrincipalPayment: split.Principal,
			InterestPayment:  split.Interest,
			RemainingBalance: balance.Sub(split.Principal),
		}

		if period == p.TermMonths || entry.RemainingBalance.LessThan(mathutil.HalfCent) {
			// Retire whatever is left so the schedule closes at exactly zero.
			entry.PrincipalPayment = balance
			entry.TotalPayment = balance.Add(split.Interest)
			entry.RemainingBalance = decimal.Zero
		}

		schedule = append(schedule, entry)
		balance = entry.RemainingBalance
		if balance.IsZero() {
			break
		}
	}

	return schedule, nil
}

// Summary aggregates a schedule.
type Summary struct {
	Payments       int             `json:"payments" yaml:"payments"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment" yaml:"monthlyPayment"`
	TotalPaid      decimal.Decimal `json:"totalPaid" yaml:"totalPaid"`
	TotalPrincipal decimal.Decimal `json:"totalPrincipal" yaml:"totalPrincipal"`
	TotalInterest  decimal.Decimal `json:"totalInterest" yaml:"totalInterest"`
	PayoffDate     time.Time       `json:"payoffDate" yaml:"payoffDate"`
}

// Summarize totals a schedule produced by BuildSchedule.
func Summarize(schedule []Entry) Summary {
	var s Summary
	if len(schedule) == 0 {
		return s
	}
	s.Payments = len(schedule)
	s.MonthlyPayment = schedule[0].TotalPayment
	s.TotalPaid = TotalPaid(schedule)
	s.TotalPrincipal = TotalPrincipal(schedule)
	s.TotalInterest = TotalInterest(schedule)
	s.PayoffDate = schedule[len(schedule)-1].PaymentDate
	return s
}

// TotalInterest sums the interest portion of every entry.
func TotalInterest(schedule []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range schedule {
		total = total.Add(e.InterestPayment)
	}
	return total
}

// TotalPaid sums every payment in the schedule.
func TotalPaid(schedule []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range schedule {
		total = total.Add(e.TotalPayment)
	}
	return total
}

// TotalPrincipal sums the principal portion of every entry.
func TotalPrincipal(schedule []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range schedule {
		total = total.Add(e.PrincipalPayment)
	}
	return total
}

// String renders an entry for debug logging.
func (e Entry) String() string {
	return fmt.Sprintf("#%d %s payment=%s principal=%s interest=%s balance=%s",
		e.PaymentNumber, e.PaymentDate.Format(datetime.DateLayout),
		e.TotalPayment.StringFixed(2), e.PrincipalPayment.StringFixed(2),
		e.InterestPayment.StringFixed(2), e.RemainingBalance.StringFixed(2))
}
