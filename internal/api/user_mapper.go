package api

import (
	"time"

	"newsroom/internal/models"
)

// UserResponse is the public projection of a user. Password hash and TOTP
// secret never leave the store through it.
type UserResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	Role        models.Role `json:"role"`
	MFAEnabled  bool        `json:"mfaEnabled"`
	IsBlocked   bool        `json:"isBlocked"`
	LastLoginAt *string     `json:"lastLoginAt,omitempty"`
	CreatedAt   string      `json:"createdAt"`
}

func userResponseFromModel(user *models.User) *UserResponse {
	if user == nil {
		return nil
	}

	resp := &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		MFAEnabled: user.MFAEnabled,
		IsBlocked:  user.IsBlocked,
		CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.UTC().Format(time.RFC3339)
		resp.LastLoginAt = &lastLogin
	}
	return resp
}

type AccessLogResponse struct {
	Event     string `json:"event"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	CreatedAt string `json:"createdAt"`
}

func accessLogResponsesFromModels(entries []*models.AccessLogEntry) []AccessLogResponse {
	out := make([]AccessLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AccessLogResponse{
			Event:     e.Event,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
