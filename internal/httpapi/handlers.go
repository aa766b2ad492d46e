package httpapi

import (
	"net/http"

	"github.com/MrEthical07/lmsauth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=1024"`
	NewPassword     string `json:"newPassword" validate:"required,max=1024"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active Pending Banned"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	client := lmsauth.ClientInfoFromContext(r.Context())
	res, err := h.auth.Login(r.Context(), lmsauth.Credentials{Email: req.Email, Password: req.Password}, client)
	if err != nil {
		zerolog.Ctx(r.Context()).Info().Err(err).Str("ip", client.IPAddress).Msg("login rejected")
		fail(w, r, err)
		return
	}
	ok(w, "Login successful", res)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := lmsauth.IdentityFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), id.SessionID); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "Logout successful", nil)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := lmsauth.IdentityFromContext(r.Context())
	if h.users == nil {
		ok(w, "Profile retrieved successfully", map[string]any{"user": id})
		return
	}
	user, err := h.users.FindByID(r.Context(), id.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "Profile retrieved successfully", map[string]any{"user": user.Public()})
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.auth.ListSessions(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "Sessions retrieved successfully", map[string]any{"sessions": sessions})
}

func (h *handler) killSession(w http.ResponseWriter, r *http.Request) {
	killed, err := h.auth.KillSession(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "sessionId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !killed {
		fail(w, r, lmsauth.ErrNotFound)
		return
	}
	ok(w, "Session terminated successfully", nil)
}

func (h *handler) forceLogout(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.ForceLogoutAll(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "User logged out successfully from all devices", map[string]int{"sessionsRevoked": n})
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, _ := lmsauth.IdentityFromContext(r.Context())
	if err := h.auth.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "Password changed successfully. Please log in again.", nil)
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userId")
	if err := h.auth.UpdateAccountState(r.Context(), userID, lmsauth.AccountState(req.Status)); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "User status updated successfully", map[string]string{"id": userID, "status": req.Status})
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteAccount(r.Context(), chi.URLParam(r, "userId")); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, "User deleted successfully", nil)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.auth.Health(r.Context())
	body := map[string]any{
		"storeAvailable": status.StoreAvailable,
		"storeLatencyMs": status.StoreLatency.Milliseconds(),
	}
	if !status.StoreAvailable {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Message: "Session store unavailable", Data: body})
		return
	}
	ok(w, "OK", body)
}
