package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/portfolio-api/internal/domain"
)

// Envelope is the platform-wide response wrapper:
// status is "success" for 2xx, "fail" for 4xx, "error" for 5xx.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageMeta and PageLinks extend the envelope on paginated list endpoints.
type PageMeta struct {
	PerPage int `json:"per_page"`
	Count   int `json:"count"`
}

type PageLinks struct {
	Next string `json:"next,omitempty"`
}

type PaginatedEnvelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Meta   PageMeta    `json:"meta"`
	Links  PageLinks   `json:"links"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{Status: "success", Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	kind := "fail"
	if status >= 500 {
		kind = "error"
	}
	writeJSON(w, status, Envelope{Status: kind, Message: msg})
}

// writeDomainError maps a service error onto the envelope using the
// domain sentinels. Internal detail stays in the error chain and the
// logs; the caller sees the sentinel's own message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeFail(w, http.StatusBadRequest, userMessage(err))
	case errors.Is(err, domain.ErrUnauthorized):
		writeFail(w, http.StatusUnauthorized, userMessage(err))
	case errors.Is(err, domain.ErrForbidden):
		writeFail(w, http.StatusForbidden, userMessage(err))
	case errors.Is(err, domain.ErrNotFound):
		writeFail(w, http.StatusNotFound, userMessage(err))
	case errors.Is(err, domain.ErrConflict):
		writeFail(w, http.StatusConflict, userMessage(err))
	default:
		writeFail(w, http.StatusInternalServerError, "internal error")
	}
}

// userMessage picks the most specific caller-safe message for an error.
func userMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrAccountLocked,
		domain.ErrInvalidCredentials,
		domain.ErrInvalidToken,
		domain.ErrSetupExpired,
		domain.ErrInvalidCode,
		domain.ErrTwoFactorRequired,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
