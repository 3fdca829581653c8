package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/geomark27/autumn-api/internal/domain"
	"github.com/geomark27/autumn-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type openAccountRequest struct {
	AccountNumber  string `json:"account_number"`
	OwnerName      string `json:"owner_name"`
	OwnerEmail     string `json:"owner_email"`
	Currency       string `json:"currency"`
	OpeningBalance string `json:"opening_balance"`
	DailyLimit     string `json:"daily_limit"`
}

func (h *AccountHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "account/validation", "invalid request body")
		return
	}
	if len(req.AccountNumber) < 10 || len(req.AccountNumber) > 20 {
		RespondError(w, r, http.StatusBadRequest, "account/validation", "account_number must be 10-20 characters")
		return
	}
	if req.OwnerName == "" {
		RespondError(w, r, http.StatusBadRequest, "account/validation", "owner_name is required")
		return
	}

	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		if opening, err = domain.ParseAmount(req.OpeningBalance); err != nil {
			RespondDomainError(w, r, err)
			return
		}
	}
	limit := decimal.Zero
	if req.DailyLimit != "" {
		var err error
		if limit, err = domain.ParseAmount(req.DailyLimit); err != nil {
			RespondDomainError(w, r, err)
			return
		}
	}

	account, err := h.svc.OpenAccount(r.Context(), service.OpenAccountCommand{
		AccountNumber:  req.AccountNumber,
		OwnerName:      req.OwnerName,
		OwnerEmail:     req.OwnerEmail,
		Currency:       req.Currency,
		OpeningBalance: opening,
		DailyLimit:     limit,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.GetByNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// GetLedger returns the account's double-entry history, newest first.
func (h *AccountHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)

	entries, err := h.svc.GetLedger(r.Context(), chi.URLParam(r, "accountNumber"), page, pageSize)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"entries":   entries,
		"page":      page,
		"page_size": pageSize,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
