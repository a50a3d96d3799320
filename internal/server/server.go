// Package server exposes the loan and credit card services over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/iwvelando/loan-engine/internal/cards"
	"github.com/iwvelando/loan-engine/internal/config"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/loans"
	"github.com/iwvelando/loan-engine/internal/metrics"
	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"go.uber.org/zap"
)

// Options carries the handler's collaborators.
type Options struct {
	Loans        *loans.Service
	Cards        *cards.Service
	Metrics      *metrics.Collector
	MaxBodyBytes int64
	Version      string
	// Clock evaluates loan status; defaults to time.Now.
	Clock func() time.Time
}

type handler struct {
	logger       *zap.Logger
	loans        *loans.Service
	cards        *cards.Service
	maxBodyBytes int64
	version      string
	clock        func() time.Time
}

// NewHandler constructs the HTTP handler serving the calculator and account API.
func NewHandler(logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:       logger,
		loans:        opts.Loans,
		cards:        opts.Cards,
		maxBodyBytes: opts.MaxBodyBytes,
		version:      trimmedVersion,
		clock:        opts.Clock,
	}

	router := mux.NewRouter()
	router.Use(h.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", h.handleVersion).Methods(http.MethodGet)

	if h.loans != nil {
		api.HandleFunc("/calculator/payment", h.handleCalculatorPayment).Methods(http.MethodGet)
		api.HandleFunc("/calculator/schedule", h.handleCalculatorSchedule).Methods(http.MethodPost)
		api.HandleFunc("/loans", h.handleListLoans).Methods(http.MethodGet)
		api.HandleFunc("/loans", h.handleCreateLoan).Methods(http.MethodPost)
		api.HandleFunc("/loans/schedules", h.handleBatchSchedules).Methods(http.MethodPost)
		api.HandleFunc("/loans/{id}", h.handleGetLoan).Methods(http.MethodGet)
		api.HandleFunc("/loans/{id}/schedule", h.handleLoanSchedule).Methods(http.MethodGet)
		api.HandleFunc("/loans/{id}/payments", h.handleListLoanPayments).Methods(http.MethodGet)
		api.HandleFunc("/loans/{id}/payments", h.handleApplyLoanPayment).Methods(http.MethodPost)
		api.HandleFunc("/loans/{id}/deactivate", h.handleDeactivateLoan).Methods(http.MethodPost)
	}

	if h.cards != nil {
		api.HandleFunc("/cards", h.handleListCards).Methods(http.MethodGet)
		api.HandleFunc("/cards", h.handleCreateCard).Methods(http.MethodPost)
		api.HandleFunc("/cards/{id}", h.handleGetCard).Methods(http.MethodGet)
		api.HandleFunc("/cards/{id}/purchases", h.handleCreatePurchase).Methods(http.MethodPost)
		api.HandleFunc("/cards/{id}/transactions", h.handleListTransactions).Methods(http.MethodGet)
		api.HandleFunc("/cards/{id}/transactions/{txId}/paid", h.handleMarkInstallmentPaid).Methods(http.MethodPost)
		api.HandleFunc("/cards/{id}/statement", h.handleGetStatement).Methods(http.MethodGet)
		api.HandleFunc("/cards/{id}/statement/payments", h.handleStatementPayment).Methods(http.MethodPost)
		api.HandleFunc("/purchases/{groupId}", h.handleGetPurchase).Methods(http.MethodGet)
	}

	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}

// NewServer wraps handler in an http.Server using the configured address and
// timeouts.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("handled request",
			zap.String("op", "server.logRequests"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func (h *handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("request body exceeds limit of %d bytes", h.maxBodyBytes)}
		}
		if errors.Is(err, io.EOF) {
			return &requestError{status: http.StatusBadRequest, msg: errEmptyBody.Error(), err: errEmptyBody}
		}
		return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, mux.Vars(r)[name])
	}
	return id, nil
}

// optionalDate parses a DateLayout string; empty yields the zero time.
func optionalDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	t, err := datetime.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a %s date, got %q", domain.ErrInvalidInput, field, constants.DateLayout, value)
	}
	return t, nil
}

func requiredDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	return optionalDate(field, value)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
	}
}
