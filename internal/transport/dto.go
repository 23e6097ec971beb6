package transport

import (
	"time"

	"github.com/Skotchmaster/car_rental/internal/models"
)

type RegisterRequest struct {
	Username  string `json:"username"  validate:"required,max=150,username"`
	Email     string `json:"email"     validate:"required,email,max=254"`
	Password  string `json:"password"  validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

type UpdateUserRequest struct {
	Username *string `json:"username" validate:"omitnil,min=1,max=150,username"`
	Email    *string `json:"email"    validate:"omitnil,email,max=254"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	Password    string `json:"password"     validate:"required,min=8,max=128"`
	Password2   string `json:"password2"    validate:"required,eqfield=Password"`
}

type ResetEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type SetNewPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=128"`
	Token    string `json:"token"    validate:"required"`
	UIDB64   string `json:"uidb64"   validate:"required"`
}

type UserResponse struct {
	ID         uint       `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	IsActive   bool       `json:"is_active"`
	IsStaff    bool       `json:"is_staff"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login"`
}

func UserFromModel(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		IsActive:   u.IsActive,
		IsStaff:    u.IsStaff,
		DateJoined: u.DateJoined,
		LastLogin:  u.LastLogin,
	}
}

func UsersFromModels(us []models.User) []UserResponse {
	out := make([]UserResponse, 0, len(us))
	for i := range us {
		out = append(out, UserFromModel(&us[i]))
	}
	return out
}

type RegisterResponse struct {
	UserResponse
	EmailSent bool `json:"email_sent"`
}

type UserPage struct {
	Count   int64          `json:"count"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
	Results []UserResponse `json:"results"`
}

type TokenPairResponse struct {
	Refresh string `json:"refresh,omitempty"`
	Access  string `json:"access"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ResetCheckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UIDB64  string `json:"uidb64"`
	Token   string `json:"token"`
}
