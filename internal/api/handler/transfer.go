package handler

import (
	"encoding/json"
	"net/http"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

type transferRequest struct {
	IdempotencyKey           string `json:"idempotency_key"`
	SourceAccountNumber      string `json:"source_account_number"`
	DestinationAccountNumber string `json:"destination_account_number"`
	Amount                   string `json:"amount"`
	Description              string `json:"description"`
}

// CreateTransfer executes a transfer request. A repeated idempotency key
// returns the original transfer's current state without moving funds again.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", "invalid request body")
		return
	}

	key, err := uuid.Parse(req.IdempotencyKey)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", "idempotency_key must be a UUID")
		return
	}
	if req.SourceAccountNumber == "" || req.DestinationAccountNumber == "" {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", "source and destination account numbers are required")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	cmd := service.TransferCommand{
		IdempotencyKey:           key,
		SourceAccountNumber:      req.SourceAccountNumber,
		DestinationAccountNumber: req.DestinationAccountNumber,
		Amount:                   amount,
		Description:              req.Description,
	}

	transfer, err := h.svc.CreateTransfer(r.Context(), cmd)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, transfer)
}

// GetTransfer returns a transfer by id.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", "invalid transfer id")
		return
	}

	transfer, err := h.svc.GetTransfer(r.Context(), id)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, transfer)
}

// ListByAccount returns transfers where the account is source or
// destination, newest first.
func (h *TransferHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountId"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", "invalid account id")
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)

	transfers, err := h.svc.GetTransfersByAccount(r.Context(), accountID, page, pageSize)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"page":      page,
		"page_size": pageSize,
	})
}

type idempotencyKeyResponse struct {
	IdempotencyKey uuid.UUID `json:"idempotency_key"`
	Message        string    `json:"message"`
}

// GenerateKey issues a fresh idempotency key for the client's next transfer.
func (h *TransferHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, idempotencyKeyResponse{
		IdempotencyKey: uuid.New(),
		Message:        "use this key in the idempotency_key field of your next transfer",
	})
}
