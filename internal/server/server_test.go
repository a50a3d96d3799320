package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/cards"
	"github.com/iwvelando/loan-engine/internal/config"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/loans"
	"github.com/iwvelando/loan-engine/internal/metrics"
	"github.com/iwvelando/loan-engine/internal/repository"
	"github.com/iwvelando/loan-engine/internal/repository/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, maxBodyBytes int64) http.Handler {
	t.Helper()
	repos := memory.NewSet()
	clock := func() time.Time { return fixedNow }
	collector := metrics.NewCollector(zap.NewNop())

	return NewHandler(zap.NewNop(), Options{
		Loans:        loans.NewService(repos, zap.NewNop(), loans.WithClock(clock), loans.WithMetrics(collector)),
		Cards:        cards.NewService(repos, zap.NewNop(), cards.WithClock(clock), cards.WithMetrics(collector)),
		Metrics:      collector,
		MaxBodyBytes: maxBodyBytes,
		Version:      "1.2.3",
		Clock:        clock,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
}

func TestHandleVersion(t *testing.T) {
	h := newTestHandler(t, 0)
	rr := do(t, h, http.MethodGet, "/api/version", "")
	expectStatus(t, rr, http.StatusOK)

	var resp map[string]string
	decode(t, rr, &resp)
	if resp["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", resp["version"])
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestHandleVersionDefaultsToDev(t *testing.T) {
	h := NewHandler(nil, Options{})
	rr := do(t, h, http.MethodGet, "/api/version", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"dev"`) {
		t.Errorf("expected dev version, got %s", rr.Body.String())
	}
}

func TestCalculatorPayment(t *testing.T) {
	h := newTestHandler(t, 0)

	tests := []struct {
		name   string
		query  string
		status int
		want   string
	}{
		{"thirty year mortgage", "principal=250000&rate=8.5&term=360", http.StatusOK, "1922.28"},
		{"zero rate", "principal=1200&rate=0&term=12", http.StatusOK, "100"},
		{"missing principal", "rate=5&term=12", http.StatusBadRequest, ""},
		{"bad term", "principal=1000&rate=5&term=twelve", http.StatusBadRequest, ""},
		{"zero term", "principal=1000&rate=5&term=0", http.StatusBadRequest, ""},
		{"negative rate", "principal=1000&rate=-1&term=12", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/api/calculator/payment?"+tt.query, "")
			expectStatus(t, rr, tt.status)
			if tt.want == "" {
				return
			}
			var resp map[string]decimal.Decimal
			decode(t, rr, &resp)
			if !resp["monthlyPayment"].Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("monthlyPayment = %s, expected %s", resp["monthlyPayment"], tt.want)
			}
		})
	}
}

func TestCalculatorSchedule(t *testing.T) {
	h := newTestHandler(t, 0)
	rr := do(t, h, http.MethodPost, "/api/calculator/schedule",
		`{"principal": 1200, "annualRatePercent": 0, "termMonths": 3, "startDate": "2025-01-15"}`)
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Summary struct {
			Payments  int             `json:"payments"`
			TotalPaid decimal.Decimal `json:"totalPaid"`
		} `json:"summary"`
		Schedule []struct {
			PaymentNumber    int             `json:"paymentNumber"`
			PaymentDate      time.Time       `json:"paymentDate"`
			RemainingBalance decimal.Decimal `json:"remainingBalance"`
		} `json:"schedule"`
	}
	decode(t, rr, &resp)

	if resp.Summary.Payments != 3 || !resp.Summary.TotalPaid.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("unexpected summary %+v", resp.Summary)
	}
	if len(resp.Schedule) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(resp.Schedule))
	}
	if got := resp.Schedule[0].PaymentDate.Format("2006-01-02"); got != "2025-02-15" {
		t.Errorf("first payment date %s, expected 2025-02-15", got)
	}
	if !resp.Schedule[2].RemainingBalance.IsZero() {
		t.Errorf("final balance %s, expected 0", resp.Schedule[2].RemainingBalance)
	}

	bad := do(t, h, http.MethodPost, "/api/calculator/schedule", `{"principal": 1200, "termMonths": 3, "startDate": "15/01/2025"}`)
	expectStatus(t, bad, http.StatusBadRequest)
}

type loanResponse struct {
	ID             uuid.UUID       `json:"id"`
	Status         string          `json:"status"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	PaymentsMade   int             `json:"paymentsMade"`
	NextDueDate    time.Time       `json:"nextDueDate"`
}

func TestLoanLifecycle(t *testing.T) {
	h := newTestHandler(t, 0)

	rr := do(t, h, http.MethodPost, "/api/loans",
		`{"name": "Car", "principal": "1200", "interestRateAnnual": "0", "termMonths": 3, "startDate": "2025-01-15"}`)
	expectStatus(t, rr, http.StatusCreated)
	var created loanResponse
	decode(t, rr, &created)
	if created.Status != string(domain.LoanActive) || !created.MonthlyPayment.Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected created loan %+v", created)
	}
	base := "/api/loans/" + created.ID.String()

	rr = do(t, h, http.MethodPost, base+"/payments", `{"type": "scheduled", "date": "2025-02-15"}`)
	expectStatus(t, rr, http.StatusCreated)
	var paid struct {
		Loan    loanResponse `json:"loan"`
		Payment struct {
			Amount           decimal.Decimal `json:"amount"`
			PrincipalPortion decimal.Decimal `json:"principalPortion"`
			BalanceAfter     decimal.Decimal `json:"balanceAfter"`
		} `json:"payment"`
	}
	decode(t, rr, &paid)
	if !paid.Payment.Amount.Equal(decimal.NewFromInt(400)) || !paid.Payment.BalanceAfter.Equal(decimal.NewFromInt(800)) {
		t.Errorf("unexpected payment %+v", paid.Payment)
	}
	if paid.Loan.PaymentsMade != 1 || !paid.Loan.CurrentBalance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("unexpected loan after payment %+v", paid.Loan)
	}

	rr = do(t, h, http.MethodPost, base+"/payments", `{"type": "custom", "amount": 900}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = do(t, h, http.MethodPost, base+"/payments", `{"type": "lump"}`)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, h, http.MethodGet, base+"/payments", "")
	expectStatus(t, rr, http.StatusOK)
	var payments []json.RawMessage
	decode(t, rr, &payments)
	if len(payments) != 1 {
		t.Errorf("expected 1 recorded payment, got %d", len(payments))
	}

	rr = do(t, h, http.MethodGet, base+"/schedule", "")
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, h, http.MethodGet, "/api/loans", "")
	expectStatus(t, rr, http.StatusOK)
	var list []loanResponse
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("unexpected loan list %+v", list)
	}

	rr = do(t, h, http.MethodPost, base+"/deactivate", "")
	expectStatus(t, rr, http.StatusOK)
	var deactivated loanResponse
	decode(t, rr, &deactivated)
	if deactivated.Status != string(domain.LoanInactive) {
		t.Errorf("status after deactivate = %s", deactivated.Status)
	}

	rr = do(t, h, http.MethodPost, base+"/payments", `{}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)
}

func TestBatchSchedules(t *testing.T) {
	h := newTestHandler(t, 0)

	var ids []string
	for _, body := range []string{
		`{"name": "A", "principal": "1200", "interestRateAnnual": "0", "termMonths": 3, "startDate": "2025-01-15"}`,
		`{"name": "B", "principal": "600", "interestRateAnnual": "0", "termMonths": 6, "startDate": "2025-01-15"}`,
	} {
		rr := do(t, h, http.MethodPost, "/api/loans", body)
		expectStatus(t, rr, http.StatusCreated)
		var created loanResponse
		decode(t, rr, &created)
		ids = append(ids, created.ID.String())
	}

	rr := do(t, h, http.MethodPost, "/api/loans/schedules",
		fmt.Sprintf(`{"loanIds": [%q, %q]}`, ids[0], ids[1]))
	expectStatus(t, rr, http.StatusOK)
	var schedules map[string]struct {
		Summary struct {
			Payments int `json:"payments"`
		} `json:"summary"`
	}
	decode(t, rr, &schedules)
	if schedules[ids[0]].Summary.Payments != 3 || schedules[ids[1]].Summary.Payments != 6 {
		t.Errorf("unexpected batch schedules %+v", schedules)
	}

	rr = do(t, h, http.MethodPost, "/api/loans/schedules",
		fmt.Sprintf(`{"loanIds": [%q, %q]}`, ids[0], uuid.New()))
	expectStatus(t, rr, http.StatusNotFound)

	rr = do(t, h, http.MethodPost, "/api/loans/schedules", `{"loanIds": []}`)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestLoanRequestErrors(t *testing.T) {
	h := newTestHandler(t, 64)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown loan", http.MethodGet, "/api/loans/" + uuid.NewString(), "", http.StatusNotFound},
		{"malformed id", http.MethodGet, "/api/loans/not-a-uuid", "", http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/loans", "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/loans", `{"principle": 5}`, http.StatusBadRequest},
		{"missing start date", http.MethodPost, "/api/loans", `{"principal": 5, "termMonths": 1}`, http.StatusBadRequest},
		{"invalid terms", http.MethodPost, "/api/loans", `{"principal": -5, "termMonths": 1, "startDate": "2025-01-01"}`, http.StatusBadRequest},
		{"body too large", http.MethodPost, "/api/loans", `{"name": "` + strings.Repeat("x", 100) + `"}`, http.StatusRequestEntityTooLarge},
		{"wrong method", http.MethodDelete, "/api/loans", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			expectStatus(t, rr, tt.status)
			if tt.status != http.StatusMethodNotAllowed && !strings.Contains(rr.Body.String(), `"error"`) {
				t.Errorf("expected an error body, got %s", rr.Body.String())
			}
		})
	}
}

type cardResponse struct {
	ID              uuid.UUID       `json:"id"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	AvailableCredit decimal.Decimal `json:"availableCredit"`
	Utilization     decimal.Decimal `json:"utilization"`
}

func TestCardLifecycle(t *testing.T) {
	h := newTestHandler(t, 0)

	rr := do(t, h, http.MethodPost, "/api/cards",
		`{"name": "Visa", "creditLimit": 1000, "dueDateDay": 10, "closingDateDay": 25, "minimumPayment": 35}`)
	expectStatus(t, rr, http.StatusCreated)
	var card cardResponse
	decode(t, rr, &card)
	base := "/api/cards/" + card.ID.String()

	rr = do(t, h, http.MethodPost, base+"/purchases",
		`{"amount": 300, "installments": 3, "date": "2025-02-01", "description": "Phone"}`)
	expectStatus(t, rr, http.StatusCreated)
	var purchase struct {
		Card         cardResponse `json:"card"`
		Installments []struct {
			ID              uuid.UUID       `json:"id"`
			PurchaseGroupID uuid.UUID       `json:"purchaseGroupId"`
			Amount          decimal.Decimal `json:"amount"`
			BillingDate     time.Time       `json:"billingDate"`
		} `json:"installments"`
	}
	decode(t, rr, &purchase)
	if len(purchase.Installments) != 3 || !purchase.Card.AvailableCredit.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("unexpected purchase response %+v", purchase)
	}
	if !purchase.Card.Utilization.Equal(decimal.NewFromInt(30)) {
		t.Errorf("utilization = %s, expected 30", purchase.Card.Utilization)
	}

	rr = do(t, h, http.MethodGet, "/api/purchases/"+purchase.Installments[0].PurchaseGroupID.String(), "")
	expectStatus(t, rr, http.StatusOK)
	var group struct {
		Installments []json.RawMessage `json:"installments"`
		Remaining    decimal.Decimal   `json:"remaining"`
		Pending      int               `json:"pending"`
	}
	decode(t, rr, &group)
	if len(group.Installments) != 3 || !group.Remaining.Equal(decimal.NewFromInt(300)) || group.Pending != 3 {
		t.Errorf("unexpected purchase group %+v", group)
	}

	rr = do(t, h, http.MethodGet, base+"/statement?billingDate=2025-02-25", "")
	expectStatus(t, rr, http.StatusOK)
	var statement struct {
		TotalAmount    decimal.Decimal `json:"totalAmount"`
		MinimumPayment decimal.Decimal `json:"minimumPayment"`
		IsPaid         bool            `json:"isPaid"`
		DueDate        time.Time       `json:"dueDate"`
	}
	decode(t, rr, &statement)
	if !statement.TotalAmount.Equal(decimal.NewFromInt(100)) || !statement.MinimumPayment.Equal(decimal.NewFromInt(35)) {
		t.Errorf("unexpected statement %+v", statement)
	}
	if got := statement.DueDate.Format("2006-01-02"); got != "2025-03-10" {
		t.Errorf("statement due %s, expected 2025-03-10", got)
	}

	rr = do(t, h, http.MethodGet, base+"/statement", "")
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, h, http.MethodPost, base+"/statement/payments", `{"billingDate": "2025-02-25", "amount": 150}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = do(t, h, http.MethodPost, base+"/statement/payments", `{"billingDate": "2025-02-25", "amount": 100, "paidAt": "2025-03-01"}`)
	expectStatus(t, rr, http.StatusCreated)
	decode(t, rr, &statement)
	if !statement.IsPaid {
		t.Errorf("statement should be paid: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodPost, base+"/purchases", `{"amount": 800.01, "installments": 1}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)

	rr = do(t, h, http.MethodPost, base+"/purchases", `{"amount": 10, "installments": 48}`)
	expectStatus(t, rr, http.StatusBadRequest)

	second := purchase.Installments[1].ID.String()
	rr = do(t, h, http.MethodPost, base+"/transactions/"+second+"/paid", `{"paidAt": "2025-03-20"}`)
	expectStatus(t, rr, http.StatusOK)
	rr = do(t, h, http.MethodPost, base+"/transactions/"+second+"/paid", `{}`)
	expectStatus(t, rr, http.StatusBadRequest)

	rr = do(t, h, http.MethodGet, base, "")
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &card)
	if !card.CurrentBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("card balance = %s, expected 100", card.CurrentBalance)
	}

	// No body: paidAt defaults to today.
	third := purchase.Installments[2].ID.String()
	rr = do(t, h, http.MethodPost, base+"/transactions/"+third+"/paid", "")
	expectStatus(t, rr, http.StatusOK)
	var paid struct {
		IsPaid      bool      `json:"isPaid"`
		PaymentDate time.Time `json:"paymentDate"`
	}
	decode(t, rr, &paid)
	if !paid.IsPaid || !paid.PaymentDate.Equal(fixedNow) {
		t.Errorf("unexpected installment %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, base+"/statement?billingDate=2025-04-10", "")
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &statement)
	if !statement.IsPaid || !statement.TotalAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("april statement should be settled: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, base, "")
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &card)
	if !card.CurrentBalance.IsZero() {
		t.Errorf("card balance = %s, expected 0", card.CurrentBalance)
	}

	rr = do(t, h, http.MethodGet, base+"/transactions", "")
	expectStatus(t, rr, http.StatusOK)

	rr = do(t, h, http.MethodGet, "/api/cards/"+uuid.NewString(), "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, 0)
	do(t, h, http.MethodGet, "/api/calculator/payment?principal=1000&rate=5&term=12", "")
	do(t, h, http.MethodPost, "/api/cards", `{"name": "Visa", "creditLimit": 500, "dueDateDay": 10, "closingDateDay": 25}`)

	rr := do(t, h, http.MethodGet, "/metrics", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "loan_engine_operations_total") {
		t.Errorf("metrics output missing operation counter:\n%s", rr.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", repository.ErrNotFound), http.StatusNotFound},
		{repository.ErrDuplicate, http.StatusConflict},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInvalidInstallment, http.StatusBadRequest},
		{domain.ErrOverpayment, http.StatusUnprocessableEntity},
		{domain.ErrCreditLimitExceeded, http.StatusUnprocessableEntity},
		{domain.ErrLoanInactive, http.StatusUnprocessableEntity},
		{domain.ErrLoanPaidOff, http.StatusUnprocessableEntity},
		{domain.ErrCardInactive, http.StatusUnprocessableEntity},
		{&requestError{status: http.StatusRequestEntityTooLarge}, http.StatusRequestEntityTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.status {
				t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.status)
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	cfg := config.ServerConfig{Address: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: 2 * time.Second}
	srv := NewServer(cfg, http.NotFoundHandler())
	if srv.Addr != cfg.Address || srv.ReadTimeout != time.Second || srv.WriteTimeout != 2*time.Second {
		t.Errorf("unexpected server %+v", srv)
	}
}

