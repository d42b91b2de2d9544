package api

import (
	"log/slog"
	"net/http"

	"newsroom/internal/account"
	"newsroom/internal/models"
)

type ServerInfoHandler struct {
	serverName string
	accounts   *account.Service
}

func NewServerInfoHandler(name string, accounts *account.Service) *ServerInfoHandler {
	return &ServerInfoHandler{
		serverName: name,
		accounts:   accounts,
	}
}

type ViewerResponse struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

type ServerInfoResponse struct {
	Envelope
	Name   string          `json:"name"`
	Viewer *ViewerResponse `json:"viewer,omitempty"`
}

// GET /api/v1/server/info
func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := ServerInfoResponse{Envelope: envelopeOK, Name: h.serverName}

	if claims := GetClaims(r); claims != nil {
		user, err := h.accounts.Me(r.Context(), claims.UserID)
		if err != nil {
			slog.Debug("viewer lookup failed, serving anonymous info", "error", err, "user_id", claims.UserID)
		} else {
			resp.Viewer = &ViewerResponse{ID: user.ID, Name: user.Name, Role: user.Role}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
