package server

import (
	"errors"
	"net/http"

	"github.com/iwvelando/loan-engine/internal/cards"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type createCardRequest struct {
	Name               string          `json:"name"`
	CreditLimit        decimal.Decimal `json:"creditLimit"`
	DueDateDay         int             `json:"dueDateDay"`
	ClosingDateDay     int             `json:"closingDateDay"`
	MinimumPayment     decimal.Decimal `json:"minimumPayment"`
	InterestRateAnnual decimal.Decimal `json:"interestRateAnnual"`
}

type cardView struct {
	domain.CreditCard
	Utilization decimal.Decimal `json:"utilization"`
}

func viewCard(card domain.CreditCard) cardView {
	return cardView{CreditCard: card, Utilization: card.Utilization()}
}

type purchaseRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	Installments int             `json:"installments"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
}

type purchaseResponse struct {
	Card         cardView                       `json:"card"`
	Installments []domain.CreditCardTransaction `json:"installments"`
}

type statementPaymentRequest struct {
	BillingDate string          `json:"billingDate"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      string          `json:"paidAt"`
}

type markPaidRequest struct {
	PaidAt string `json:"paidAt"`
}

func (h *handler) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCreateCard"

	var req createCardRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	card, err := h.cards.CreateCard(r.Context(), domain.NewCardParams{
		Name:               req.Name,
		CreditLimit:        req.CreditLimit,
		DueDateDay:         req.DueDateDay,
		ClosingDateDay:     req.ClosingDateDay,
		MinimumPayment:     req.MinimumPayment,
		InterestRateAnnual: req.InterestRateAnnual,
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, viewCard(card))
}

func (h *handler) handleListCards(w http.ResponseWriter, r *http.Request) {
	all, err := h.cards.ListCards(r.Context())
	if err != nil {
		h.respondError(w, "server.handleListCards", err)
		return
	}
	views := make([]cardView, 0, len(all))
	for _, card := range all {
		views = append(views, viewCard(card))
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *handler) handleGetCard(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGetCard"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	card, err := h.cards.GetCard(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewCard(card))
}

func (h *handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCreatePurchase"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	var req purchaseRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	date, err := optionalDate("date", req.Date)
	if err != nil {
		h.respondError(w, op, err)
		return
	}

	card, txs, err := h.cards.CreateInstallmentPurchase(r.Context(), id, cards.PurchaseRequest{
		Amount:       req.Amount,
		Installments: req.Installments,
		Date:         date,
		Description:  req.Description,
	})
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, purchaseResponse{Card: viewCard(card), Installments: txs})
}

func (h *handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleListTransactions"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	txs, err := h.cards.Transactions(r.Context(), id)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGetPurchase"

	groupID, err := pathID(r, "groupId")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	txs, err := h.cards.Installments(r.Context(), groupID)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"installments": txs,
		"remaining":    cards.Remaining(txs),
		"pending":      len(cards.Pending(txs)),
	})
}

func (h *handler) handleMarkInstallmentPaid(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleMarkInstallmentPaid"

	cardID, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	txID, err := pathID(r, "txId")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	var req markPaidRequest
	if err := h.decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.respondError(w, op, err)
		return
	}
	paidAt, err := optionalDate("paidAt", req.PaidAt)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	if paidAt.IsZero() {
		paidAt = h.clock()
	}

	tx, err := h.cards.MarkInstallmentPaid(r.Context(), cardID, txID, paidAt)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

func (h *handler) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGetStatement"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	billingDate, err := requiredDate("billingDate", r.URL.Query().Get("billingDate"))
	if err != nil {
		h.respondError(w, op, err)
		return
	}

	statement, err := h.cards.BuildStatement(r.Context(), id, billingDate)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statement)
}

func (h *handler) handleStatementPayment(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleStatementPayment"

	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	var req statementPaymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.respondError(w, op, err)
		return
	}
	billingDate, err := requiredDate("billingDate", req.BillingDate)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	paidAt, err := optionalDate("paidAt", req.PaidAt)
	if err != nil {
		h.respondError(w, op, err)
		return
	}

	statement, err := h.cards.ApplyStatementPayment(r.Context(), id, billingDate, req.Amount, paidAt)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, statement)
}
