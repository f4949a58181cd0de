package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bnoverseas/payments-service/internal/infrastructure/auth"
	"github.com/bnoverseas/payments-service/internal/infrastructure/observability"
	"github.com/bnoverseas/payments-service/internal/models"
	service "github.com/bnoverseas/payments-service/internal/services"
	"github.com/bnoverseas/payments-service/internal/webhook"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"github.com/gorilla/mux"
)

// maxWebhookBody bounds how much of a webhook request is read.
const maxWebhookBody = 1 << 20

var errUnauthenticated = errors.New("user not authenticated")

type Handler struct {
	webhooks      service.WebhookService
	transactions  service.TransactionService
	webhookSecret string
}

func NewHandler(webhooks service.WebhookService, transactions service.TransactionService, webhookSecret string) *Handler {
	return &Handler{webhooks: webhooks, transactions: transactions, webhookSecret: webhookSecret}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeServiceError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidTransactionType):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pkgerrors.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrCourseNotFound),
		errors.Is(err, pkgerrors.ErrAppointmentNotFound):
		h.writeError(w, http.StatusNotFound, err)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks/payment", h.PaymentWebhook).Methods(http.MethodPost)
}

// RegisterProtectedRoutes expects r to be mounted at /transactions behind the
// auth middleware.
func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("", h.CreateTransaction).Methods(http.MethodPost)
	r.HandleFunc("", h.ListTransactions).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.GetTransaction).Methods(http.MethodGet)
}

// PaymentWebhook verifies and dispatches a gateway delivery. Once the
// signature and envelope are accepted the gateway always gets 200, whatever
// the handler outcome, so it does not retry events that cannot succeed.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("failed to read webhook body", "error", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("failed to read request body"))
		return
	}

	if err := webhook.Verify(body, r.Header.Get(webhook.SignatureHeader), h.webhookSecret); err != nil {
		slog.Warn("rejected webhook", "remote_addr", r.RemoteAddr, "error", err)
		observability.WebhookEvents.WithLabelValues("unverified", "rejected").Inc()
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ev, err := webhook.Parse(body)
	if err != nil {
		slog.Warn("rejected webhook", "remote_addr", r.RemoteAddr, "error", err)
		observability.WebhookEvents.WithLabelValues("malformed", "rejected").Inc()
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	// The gateway may give up on the request; the reconciliation must not.
	ctx := context.WithoutCancel(r.Context())
	eventID := r.Header.Get(webhook.EventIDHeader)
	if !h.webhooks.ClaimDelivery(ctx, eventID) {
		slog.Info("duplicate webhook delivery", "event", ev.Name(), "event_id", eventID)
		observability.WebhookEvents.WithLabelValues(ev.Name(), string(service.OutcomeDuplicate)).Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if outcome := h.webhooks.HandleEvent(ctx, ev); outcome == service.OutcomeFailed {
		h.webhooks.ReleaseDelivery(ctx, eventID)
	} else {
		h.webhooks.CompleteDelivery(ctx, eventID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createTransactionRequest struct {
	Type        models.TransactionType `json:"type"`
	ReferenceID string                 `json:"reference_id"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ReferenceID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("reference_id is required"))
		return
	}

	tx, err := h.transactions.CreateTransaction(r.Context(), userID, req.Type, req.ReferenceID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	tx, err := h.transactions.GetTransaction(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	txs, err := h.transactions.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}
