package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/jwt"
)

const (
	msgUnauthorized  = "Unauthorized"
	msgLogIn         = "Unauthorized. Please log in."
	msgExpired       = "Session expired, please log in again"
	msgForbidden     = "Forbidden. You do not have permission to access this resource."
	msgOwnOnly       = "Forbidden. You can only access your own resources."
	msgNotFound      = "Session not found"
	msgInvalidCreds  = "Invalid email or password"
	msgConflict      = "Already logged in on another device. Please logout first."
	msgUserNotFound  = "User not found"
	msgCurrentPass   = "Current password is incorrect"
	msgPasswordShort = "Password is too short"
	msgPasswordReuse = "New password must be different from current password"
	msgInternal      = "Internal server error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusFor maps an authority error to its HTTP status and external message.
// Credential, token and session failures share one 401 body except where a
// distinct message is part of the product (expiry, account state, conflict).
func StatusFor(err error) (int, string) {
	var stateErr *lmsauth.AccountStateError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &stateErr):
		return http.StatusUnauthorized, stateErr.Message
	case errors.Is(err, lmsauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgInvalidCreds
	case errors.Is(err, lmsauth.ErrSessionConflict):
		return http.StatusConflict, msgConflict
	case errors.Is(err, lmsauth.ErrSessionExpired):
		return http.StatusUnauthorized, msgExpired
	case errors.Is(err, lmsauth.ErrUnauthenticated),
		errors.Is(err, lmsauth.ErrSessionInvalid),
		errors.Is(err, jwt.ErrInvalidToken):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, lmsauth.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	case errors.Is(err, lmsauth.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, lmsauth.ErrUserNotFound):
		return http.StatusNotFound, msgUserNotFound
	case errors.Is(err, lmsauth.ErrInvalidCurrentPassword):
		return http.StatusBadRequest, msgCurrentPass
	case errors.Is(err, lmsauth.ErrPasswordPolicy):
		return http.StatusBadRequest, msgPasswordShort
	case errors.Is(err, lmsauth.ErrPasswordReuse):
		return http.StatusBadRequest, msgPasswordReuse
	case errors.Is(err, lmsauth.ErrInvalidAccountState):
		return http.StatusBadRequest, "Invalid status"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// WriteError writes the JSON error body for err.
func WriteError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	writeJSON(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Success: false, Message: msg})
}
