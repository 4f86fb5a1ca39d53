package usecase

import (
	"time"

	"salon/internal/domain/model"
)

type SuccessResponse struct {
	Message string `json:"message"`
}

// 認証系で返すユーザー概要
type UserDTO struct {
	ID                  int64  `json:"id"`
	Email               string `json:"email"`
	Name                string `json:"name"`
	LastName            string `json:"last_name"`
	Role                string `json:"role"`
	IsConfirmed         bool   `json:"is_confirmed"`
	IsGoogleLinked      bool   `json:"is_google_linked"`
	HasSecurityQuestion bool   `json:"has_security_question"`
	PhotoURL            string `json:"photo_url,omitempty"`
}

type TokenDTO struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:                  u.ID,
		Email:               u.Email,
		Name:                u.Name,
		LastName:            u.LastName,
		Role:                string(u.Role),
		IsConfirmed:         u.IsConfirmed,
		IsGoogleLinked:      u.IsGoogleLinked(),
		HasSecurityQuestion: u.HasSecurityQuestion(),
		PhotoURL:            u.PhotoURL,
	}
}

func toTokenDTO(token string, expiresAt time.Time, now time.Time) TokenDTO {
	return TokenDTO{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(expiresAt.Sub(now).Seconds()),
		ExpiresAt:   expiresAt,
	}
}
