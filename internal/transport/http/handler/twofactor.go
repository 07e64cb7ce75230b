package handler

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-api/internal/application/twofactor"
	"github.com/portfolio-api/internal/domain"
	"github.com/portfolio-api/internal/pkg/validate"
	"github.com/portfolio-api/internal/transport/http/middleware"
)

// TwoFactorHandler handles TOTP setup, confirmation, login challenge and disable.
type TwoFactorHandler struct {
	svc twofactor.Service
}

func NewTwoFactorHandler(svc twofactor.Service) *TwoFactorHandler {
	return &TwoFactorHandler{svc: svc}
}

func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	setup, err := h.svc.BeginSetup(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "scan the code with your authenticator, then confirm", setup)
}

type codeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.VerifyAndEnable(r.Context(), claims.UserID, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "two-factor authentication enabled", nil)
}

func (h *TwoFactorHandler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.VerifyLogin(r.Context(), claims.UserID, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "two-factor verification complete", nil)
}

type disableRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	var req disableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Disable(r.Context(), claims.UserID, req.CurrentPassword); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "two-factor authentication disabled", nil)
}
