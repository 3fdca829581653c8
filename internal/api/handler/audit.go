package handler

import (
	"net/http"

	"github.com/geomark27/autumn-api/internal/service"
)

type AuditHandler struct {
	svc *service.VerificationService
}

func NewAuditHandler(svc *service.VerificationService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// VerifyChain runs a full chain verification and reports the outcome. The
// check is read-only and safe to run against live traffic.
func (h *AuditHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Run(r.Context())
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}
