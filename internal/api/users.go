package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"newsroom/internal/account"
	"newsroom/internal/models"
)

type UserHandler struct {
	accounts *account.Service
}

func NewUserHandler(accounts *account.Service) *UserHandler {
	return &UserHandler{accounts: accounts}
}

type UserEnvelope struct {
	Envelope
	User *UserResponse `json:"user"`
}

// GET /api/v1/auth/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UserEnvelope{Envelope: envelopeOK, User: userResponseFromModel(user)})
}

// PUT /api/v1/admin/users/{id}/block
type SetBlockedRequest struct {
	Blocked *bool `json:"blocked" validate:"required"`
}

func (h *UserHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	var req SetBlockedRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if *req.Blocked && targetID == GetUserID(r) {
		badRequest(w, "You cannot block your own account")
		return
	}

	if err := h.accounts.SetBlocked(r.Context(), targetID, *req.Blocked); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeUser(w, r, targetID)
}

// PUT /api/v1/admin/users/{id}/role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user editor admin"`
}

func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	var req SetRoleRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.accounts.SetRole(r.Context(), targetID, models.Role(req.Role)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeUser(w, r, targetID)
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.accounts.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Envelope: envelopeOK, User: userResponseFromModel(user)})
}
