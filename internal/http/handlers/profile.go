package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/middleware"
	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/profile"
)

// currentAccount returns the authenticated account or answers 401.
func currentAccount(w http.ResponseWriter, r *http.Request) (model.Account, bool) {
	acct, ok := middleware.AccountFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.MsgNoToken)
	}
	return acct, ok
}

// ProfileHandler serves account self-service.
type ProfileHandler struct {
	svc    *profile.Service
	logger *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(svc *profile.Service, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, logger: logger}
}

// Get handles GET /user/profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	fresh, err := h.svc.Get(r.Context(), acct.ID)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accountView(fresh), "Profile fetched")
}

type updateProfileRequest struct {
	Email       *string     `json:"email" validate:"omitempty,email"`
	DateOfBirth *model.Date `json:"dateOfBirth"`
}

// Update handles PUT /user/update-profile. Only email and date of birth change here.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.svc.Update(r.Context(), acct.ID, req.Email, req.DateOfBirth.TimePtr())
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accountView(updated), "Profile updated")
}

type renameRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewName         string `json:"newName"`
}

// Rename handles POST /user/rename.
func (h *ProfileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.svc.Rename(r.Context(), acct.ID, req.CurrentPassword, req.NewName)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accountView(updated), "Name updated successfully.")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword handles POST /user/change-password and replaces the session cookie.
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := h.svc.ChangePassword(r.Context(), acct.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	auth.SetCookie(w, token)
	respond(w, http.StatusOK, nil, "Password changed successfully.")
}

// Delete handles DELETE /user/delete-account.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acct, ok := currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), acct.ID); err != nil {
		fail(w, h.logger, err)
		return
	}
	auth.ClearCookie(w)
	respond(w, http.StatusOK, nil, "Account deleted successfully")
}
