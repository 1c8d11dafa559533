package handlers

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
	"github.com/kamdhenuseva/server/internal/middleware"
	"github.com/kamdhenuseva/server/internal/model"
)

// AccountView is the public account snapshot returned to clients.
type AccountView struct {
	ID               string      `json:"_id"`
	UserID           int64       `json:"userId"`
	Name             *string     `json:"name"`
	Email            string      `json:"email"`
	DateOfBirth      *model.Date `json:"dateOfBirth"`
	IsVerified       bool        `json:"isVerified"`
	TwoFactorEnabled bool        `json:"twoFactorEnabled"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

func accountView(a model.Account) AccountView {
	v := AccountView{
		ID:               a.ID.String(),
		UserID:           a.PublicID,
		Name:             a.Name,
		Email:            a.Email,
		IsVerified:       a.IsVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.DateOfBirth != nil {
		v.DateOfBirth = &model.Date{Time: *a.DateOfBirth}
	}
	return v
}

// AuthHandler serves registration, login, 2FA and password reset.
type AuthHandler struct {
	svc    *auth.Service
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type emailOTPRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

type secondsLeftData struct {
	Email       string `json:"email,omitempty"`
	SecondsLeft int    `json:"secondsLeft"`
}

// RegisterInit handles POST /user/register/init.
func (h *AuthHandler) RegisterInit(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	left, err := h.svc.RegisterInit(r.Context(), req.Email)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, secondsLeftData{Email: auth.NormalizeEmail(req.Email), SecondsLeft: left},
		"OTP sent for email verification")
}

// VerifyEmail handles POST /user/verify-email-otp and POST /verify-email-otp.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req emailOTPRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.VerifyEmail(r.Context(), req.Email, req.OTP)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accountView(acct), "Email verified")
}

type registerCompleteRequest struct {
	Email           string      `json:"email"`
	Name            string      `json:"name"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirmPassword"`
	DateOfBirth     *model.Date `json:"dateOfBirth"`
}

// RegisterComplete handles POST /user/register/complete.
func (h *AuthHandler) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req registerCompleteRequest
	if !decode(w, r, &req) {
		return
	}
	acct, token, err := h.svc.RegisterComplete(r.Context(), auth.RegisterCompleteInput{
		Email:           req.Email,
		Name:            req.Name,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		DateOfBirth:     req.DateOfBirth.TimePtr(),
	}, auth.MetaFromRequest(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	auth.SetCookie(w, token)
	respond(w, http.StatusCreated, accountView(acct), "Registration completed successfully")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /user/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, auth.MetaFromRequest(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	switch {
	case res.VerificationRequired:
		respond(w, http.StatusOK, map[string]any{
			"verificationRequired": true,
			"secondsLeft":          res.SecondsLeft,
		}, "Email not verified. OTP resent.")
	case res.TwoFactorRequired:
		respond(w, http.StatusOK, map[string]any{
			"twoFactorRequired": true,
			"secondsLeft":       res.SecondsLeft,
		}, "OTP sent for 2FA verification.")
	default:
		auth.SetCookie(w, *res.Token)
		respond(w, http.StatusOK, accountView(res.Account), "Login successful")
	}
}

// ValidateToken handles GET /user/validate-token.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.ValidateToken(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accountView(acct), "Token is valid")
}

// Logout handles POST /user/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearCookie(w)
	respond(w, http.StatusOK, nil, "Logged out successfully")
}

type toggleRequest struct {
	OTP string `json:"otp"`
}

// EnableTwoFactor handles POST /user/enable-two-factor.
func (h *AuthHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// DisableTwoFactor handles POST /user/disable-two-factor.
func (h *AuthHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *AuthHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	acct, ok := middleware.AccountFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.MsgNoToken)
		return
	}
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ToggleTwoFactor(r.Context(), acct.ID, enable, req.OTP)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	switch {
	case res.Pending:
		respond(w, http.StatusOK, secondsLeftData{SecondsLeft: res.SecondsLeft},
			fmt.Sprintf("OTP already sent. Please try again in %ds", res.SecondsLeft))
	case res.Issued:
		respond(w, http.StatusOK, secondsLeftData{SecondsLeft: res.SecondsLeft},
			"OTP sent. Please confirm with the code.")
	default:
		state := "disabled"
		if enable {
			state = "enabled"
		}
		respond(w, http.StatusOK, accountView(res.Account), "Two-factor authentication "+state)
	}
}

// VerifyTwoFactor handles POST /verify-two-factor.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req emailOTPRequest
	if !decode(w, r, &req) {
		return
	}
	acct, token, err := h.svc.VerifyTwoFactor(r.Context(), req.Email, req.OTP, auth.MetaFromRequest(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	auth.SetCookie(w, token)
	respond(w, http.StatusOK, accountView(acct), "2FA verification successful")
}

// ResendTwoFactor handles POST /resend-two-factor.
func (h *AuthHandler) ResendTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	left, err := h.svc.ResendTwoFactor(r.Context(), req.Email)
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, secondsLeftData{SecondsLeft: left}, "OTP resent")
}

// ForgotPasswordRequest handles POST /user/forgot-password/request. The
// answer does not depend on whether the account exists.
func (h *AuthHandler) ForgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		fail(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, nil, "If the email exists, an OTP has been sent")
}

type passwordResetRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ForgotPasswordConfirm handles POST /user/forgot-password/confirm.
func (h *AuthHandler) ForgotPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decode(w, r, &req) {
		return
	}
	acct, token, err := h.svc.ConfirmPasswordReset(r.Context(), auth.PasswordResetInput{
		Email:           req.Email,
		OTP:             req.OTP,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}, auth.MetaFromRequest(r))
	if err != nil {
		fail(w, h.logger, err)
		return
	}
	auth.SetCookie(w, token)
	respond(w, http.StatusOK, accountView(acct), "Password reset successful")
}
