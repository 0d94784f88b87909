package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quickkash/api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// LoginEnvelope wraps a successful login response.
type LoginEnvelope struct {
	Token string    `json:"token"`
	User  *SafeUser `json:"user"`
}

// SafeUser is the public projection of an account. The password hash never
// leaves the domain layer.
type SafeUser struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	IsActivated    bool    `json:"is_activated"`
	PhoneConfirmed bool    `json:"phone_confirmed"`
	WalletBalance  float64 `json:"wallet_balance"`
	ReferralCode   string  `json:"referral_code"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		ID:             u.UserID,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		IsActivated:    u.IsActivated,
		PhoneConfirmed: u.PhoneConfirmed,
		WalletBalance:  u.WalletBalance,
		ReferralCode:   u.ReferralCode,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes. Anything
// unrecognised is an internal failure: it is logged here and surfaces to the
// caller as an opaque 500.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
