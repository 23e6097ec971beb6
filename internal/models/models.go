package models

import (
	"time"
)

type User struct {
	ID           uint       `gorm:"primaryKey;autoIncrement"      json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:150" json:"username"`
	Email        string     `gorm:"index;size:254"                json:"email"`
	PasswordHash string     `gorm:"not null"                      json:"-"`
	IsActive     bool       `gorm:"not null;default:true"         json:"is_active"`
	IsStaff      bool       `gorm:"not null;default:false"        json:"is_staff"`
	DateJoined   time.Time  `gorm:"autoCreateTime"                json:"date_joined"`
	LastLogin    *time.Time `json:"last_login"`
}

// OutstandingToken records every refresh token ever issued.
type OutstandingToken struct {
	ID        uint      `gorm:"primaryKey"                   json:"id"`
	UserID    uint      `gorm:"index;not null"               json:"user_id"`
	JTI       string    `gorm:"uniqueIndex;not null;size:64" json:"jti"`
	TokenHash string    `gorm:"not null"                     json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"not null"                     json:"expires_at"`
}

// BlacklistedToken marks an outstanding token as revoked. At most one row per token.
type BlacklistedToken struct {
	ID            uint      `gorm:"primaryKey"           json:"id"`
	TokenID       uint      `gorm:"uniqueIndex;not null" json:"token_id"`
	BlacklistedAt time.Time `gorm:"autoCreateTime"       json:"blacklisted_at"`
}

func All() []any {
	return []any{&User{}, &OutstandingToken{}, &BlacklistedToken{}}
}
