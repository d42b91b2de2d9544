package api

import (
	"errors"
	"net/http"
	"time"

	"newsroom/internal/account"
	"newsroom/internal/auth"
	"newsroom/internal/constants"
)

type AuthHandler struct {
	accounts *account.Service
	clientIP *ClientIPResolver
}

func NewAuthHandler(accounts *account.Service, clientIP *ClientIPResolver) *AuthHandler {
	return &AuthHandler{accounts: accounts, clientIP: clientIP}
}

func (h *AuthHandler) client(r *http.Request) account.ClientInfo {
	return h.clientIP.ClientInfo(r)
}

// POST /api/v1/auth/register
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"required,max=64"`
}

type RegisterResponse struct {
	Envelope
	User       *UserResponse `json:"user"`
	TOTPSecret string        `json:"totpSecret"`
	OTPAuthURL string        `json:"otpauthUrl"`
	QRCode     string        `json:"qrCode"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	enrollment, err := h.accounts.Register(r.Context(), account.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Envelope:   envelopeOK,
		User:       userResponseFromModel(enrollment.User),
		TOTPSecret: enrollment.TOTPSecret,
		OTPAuthURL: enrollment.ProvisioningURI,
		QRCode:     enrollment.QRCode,
	})
}

// POST /api/v1/auth/otp/enable
type EnableOTPRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func (h *AuthHandler) EnableOTP(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req EnableOTPRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	err := h.accounts.EnableMFA(r.Context(), userID, req.Code, h.client(r))
	if errors.Is(err, account.ErrInvalidOTP) {
		writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidOTP, "Invalid verification code")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessage(w, "Two-factor authentication enabled")
}

// POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	OTPCode  string `json:"otpCode" validate:"omitempty,max=64"`
}

type LoginResponse struct {
	Envelope
	MFARequired  bool          `json:"mfaRequired"`
	AccessToken  string        `json:"accessToken,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	ExpiresAt    string        `json:"expiresAt,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.accounts.Login(r.Context(), account.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		OTPCode:  req.OTPCode,
		Client:   h.client(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.MFARequired {
		writeJSON(w, http.StatusOK, LoginResponse{Envelope: envelopeOK, MFARequired: true})
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Envelope:     envelopeOK,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    formatExpiry(result.Tokens),
		User:         userResponseFromModel(result.User),
	})
}

// POST /api/v1/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type RefreshResponse struct {
	Envelope
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	pair, err := h.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{
		Envelope:     envelopeOK,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    formatExpiry(pair),
	})
}

// POST /api/v1/auth/logout
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req LogoutRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.accounts.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessage(w, "Logged out successfully")
}

// POST /api/v1/auth/logout-all
type LogoutAllResponse struct {
	Envelope
	RevokedSessions int64 `json:"revokedSessions"`
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	revoked, err := h.accounts.LogoutAll(r.Context(), userID, h.client(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LogoutAllResponse{Envelope: envelopeOK, RevokedSessions: revoked})
}

// GET /api/v1/auth/sessions
type SessionsResponse struct {
	Envelope
	ActiveSessions int                 `json:"activeSessions"`
	RecentActivity []AccessLogResponse `json:"recentActivity"`
}

const recentActivityLimit = 20

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	activity, err := h.accounts.Activity(r.Context(), userID, recentActivityLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionsResponse{
		Envelope:       envelopeOK,
		ActiveSessions: activity.ActiveSessions,
		RecentActivity: accessLogResponsesFromModels(activity.Recent),
	})
}

// PUT /api/v1/auth/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=128"`
	NewPassword     string `json:"newPassword" validate:"required,max=128"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req ChangePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword, h.client(r))
	if errors.Is(err, account.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, constants.ErrCodeInvalidCredentials, "Current password is incorrect")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeMessage(w, "Password changed, please sign in again")
}

func formatExpiry(pair *auth.TokenPair) string {
	return pair.ExpiresAt.UTC().Format(time.RFC3339)
}
