package handler

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/domain"
	"github.com/portfolio-api/internal/pkg/validate"
	"github.com/portfolio-api/internal/transport/http/middleware"
)

// AuthHandler handles registration, login and credential lifecycle endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "registered, check your email for a verification code", u)
}

type loginResponse struct {
	Token            string       `json:"token"`
	RequireTwoFactor bool         `json:"require_two_factor"`
	User             *domain.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", loginResponse{
		Token:            result.Token,
		RequireTwoFactor: result.RequireTwoFactor,
		User:             result.User,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged out", nil)
}

type emailCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "email verified", nil)
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "verification code sent", nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "password reset code sent", nil)
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "password reset", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	token, _ := middleware.TokenFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "password changed, please log in again", nil)
}

type deactivateRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
}

func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	token, _ := middleware.TokenFromContext(r.Context())

	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Deactivate(r.Context(), claims.UserID, req.CurrentPassword, token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account deactivated", nil)
}

// Session serves anonymous and authenticated callers alike: behind the
// optional-auth gate, an unauthenticated request simply reports so.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if u, ok := middleware.UserFromContext(r.Context()); ok {
		writeSuccess(w, http.StatusOK, "", map[string]interface{}{
			"authenticated": true,
			"user":          u,
		})
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{"authenticated": false})
}

// Me returns the identity resolved by the authentication gate.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
		return
	}
	writeSuccess(w, http.StatusOK, "", u)
}
