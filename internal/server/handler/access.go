package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// AccessGate is the invite-code surface. *access.Gate satisfies it.
type AccessGate interface {
	IsCodeAvailable(ctx context.Context, code string) (bool, error)
	Redeem(ctx context.Context, code, subject string) error
	HasAccess(ctx context.Context, subject string) (bool, error)
}

// AccessHandler serves the invite-code endpoints.
type AccessHandler struct {
	gate   AccessGate
	logger *slog.Logger
}

// NewAccessHandler creates an AccessHandler.
func NewAccessHandler(gate AccessGate, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{gate: gate, logger: logger.With(slog.String("handler", "access"))}
}

type redeemRequest struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
}

type accessResponse struct {
	Subject   string `json:"subject"`
	HasAccess bool   `json:"hasAccess"`
}

// Redeem consumes an invite code for a subject.
// POST /api/access/redeem {"code": "omega", "subject": "0x..."}
func (h *AccessHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var body redeemRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, r, h.logger, "redeem", err)
		return
	}
	if err := h.gate.Redeem(r.Context(), body.Code, body.Subject); err != nil {
		writeDomainError(w, r, h.logger, "redeem", err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Subject: body.Subject, HasAccess: true})
}

// GetAccess reports whether a subject has redeemed a code.
// GET /api/access/{subject}
func (h *AccessHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	subject := r.PathValue("subject")
	ok, err := h.gate.HasAccess(r.Context(), subject)
	if err != nil {
		writeDomainError(w, r, h.logger, "has access", err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{Subject: subject, HasAccess: ok})
}

// CheckCode reports whether a code can still be redeemed.
// GET /api/access/codes/{code}
func (h *AccessHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	ok, err := h.gate.IsCodeAvailable(r.Context(), r.PathValue("code"))
	if err != nil {
		writeDomainError(w, r, h.logger, "check code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}
