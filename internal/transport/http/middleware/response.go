package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio-api/internal/domain"
)

// envelope matches the platform-wide response shape.
type envelope struct {
	Status  string `json:"status"` // "success" | "fail" | "error"
	Message string `json:"message,omitempty"`
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "fail", Message: msg})
}

// writeUnauthenticated is the single response every gate failure maps
// to, regardless of cause.
func writeUnauthenticated(w http.ResponseWriter) {
	writeFail(w, http.StatusUnauthorized, domain.ErrInvalidToken.Error())
}
