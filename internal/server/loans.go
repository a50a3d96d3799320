package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/loans"
	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/shopspring/decimal"
)

type scheduleRequest struct {
	Principal         decimal.Decimal `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annualRatePercent"`
	TermMonths        int             `json:"termMonths"`
	StartDate         string          `json:"startDate"`
	PaymentDay        int             `json:"paymentDay"`
}

type scheduleResponse struct {
	Summary  amortization.Summary `json:"summary"`
	Schedule []amortization.Entry `json:"schedule"`
}

type createLoanRequest struct {
	Name               string          `json:"name"`
	Principal          decimal.Decimal `json:"principal"`
	InterestRateAnnual decimal.Decimal `json:"interestRateAnnual"`
	TermMonths         int             `json:"termMonths"`
	StartDate          string          `json:"startDate"`
	PaymentDayOfMonth  int             `json:"paymentDayOfMonth"`
}

type paymentRequest struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Extra  decimal.Decimal `json:"extra"`
	Date   string          `json:"date"`
	Method string          `json:"method"`
	Notes  string          `json:"notes"`
}

type batchScheduleRequest struct {
	LoanIDs []uuid.UUID `json:"loanIds"`
}

type paymentResponse struct {
	Loan    loans.Summary      `json:"loan"`
	Payment domain.LoanPayment `json:"payment"`
}

func (h *handler) handleCalculatorPayment(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCalculatorPayment"
	q := r.URL.Query()

	principal, err := decimal.NewFromString(q.Get("principal"))
	if err != nil {
		h.respondError(w, op, fmt.Errorf("%w: principal must be a number", domain.ErrInvalidInput))
		return
	}
	rate, err := decimal.NewFromString(q.Get("rate"))
	if err != nil {
		h.respondError(w, op, fmt.Errorf("%w: rate must be a number", domain.ErrInvalidInput))
		return
	}
	term, err := strconv.Atoi(q.Get("term"))
	if err != nil {
		h.respondError(w, op, fmt.Errorf("%w: term must be a whole number of months", domain.ErrInvalidInput))
		return
	}

	payment, err := h.loans.ComputeMonthlyPayment(principal, rate, term)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"monthlyPayment": payment})
}

func (h *handler) handleCalculatorSchedule(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCalculatorSchedule"

	var req scheduleRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	start, err := optionalDate("startDate", req.StartDate)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	if start.IsZero() {
		start = datetime.Midnight(h.clock())
	}

	schedule, err := h.loans.BuildAmortizationSchedule(amortization.Params{
		Principal:         req.Principal,
		AnnualRatePercent: req.AnnualRatePercent,
		TermMonths:        req.TermMonths,
		StartDate:         start,
		PaymentDay:        req.PaymentDay,
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, scheduleResponse{
		Summary:  amortization.Summarize(schedule),
		Schedule: schedule,
	})
}

func (h *handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCreateLoan"

	var req createLoanRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	start, err := requiredDate("startDate", req.StartDate)
	if err != nil {
		h.respondError(w, op, err)
		return
	}

	loan, err := h.loans.CreateLoan(r.Context(), domain.NewLoanParams{
		Name:               req.Name,
		Principal:          req.Principal,
		InterestRateAnnual: req.InterestRateAnnual,
		TermMonths:         req.TermMonths,
		StartDate:          start,
		PaymentDayOfMonth:  req.PaymentDayOfMonth,
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loans.Summarize(loan, h.clock()))
}

func (h *handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.loans.ListLoans(r.Context())
	if err != nil {
		h.respondError(w, "server.handleListLoans", err)
		return
	}

	now := h.clock()
	summaries := make([]loans.Summary, 0, len(accounts))
	for _, loan := range accounts {
		summaries = append(summaries, loans.Summarize(loan, now))
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

func (h *handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGetLoan"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	summary, err := h.loans.Summary(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handler) handleLoanSchedule(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleLoanSchedule"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	schedule, err := h.loans.Schedule(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, scheduleResponse{
		Summary:  amortization.Summarize(schedule),
		Schedule: schedule,
	})
}

func (h *handler) handleBatchSchedules(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleBatchSchedules"

	var req batchScheduleRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	if len(req.LoanIDs) == 0 {
		h.respondError(w, op, fmt.Errorf("%w: loanIds must not be empty", domain.ErrInvalidInput))
		return
	}

	schedules, err := h.loans.Schedules(r.Context(), req.LoanIDs)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	out := make(map[string]scheduleResponse, len(schedules))
	for id, schedule := range schedules {
		out[id.String()] = scheduleResponse{
			Summary:  amortization.Summarize(schedule),
			Schedule: schedule,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleListLoanPayments(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleListLoanPayments"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	payments, err := h.loans.Payments(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

func (h *handler) handleApplyLoanPayment(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleApplyLoanPayment"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	var req paymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	paymentType, err := domain.ParsePaymentType(req.Type)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	date, err := optionalDate("date", req.Date)
	if err != nil {
		h.respondError(w, op, err)
		return
	}

	loan, payment, err := h.loans.ApplyLoanPayment(r.Context(), id, loans.PaymentRequest{
		Type:   paymentType,
		Amount: req.Amount,
		Extra:  req.Extra,
		Date:   date,
		Method: req.Method,
		Notes:  req.Notes,
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, paymentResponse{
		Loan:    loans.Summarize(loan, h.clock()),
		Payment: payment,
	})
}

func (h *handler) handleDeactivateLoan(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleDeactivateLoan"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	loan, err := h.loans.Deactivate(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loans.Summarize(loan, h.clock()))
}
