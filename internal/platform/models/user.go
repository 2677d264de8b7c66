package models

import "time"

type AuthProvider string

const (
	AuthProviderLocal        AuthProvider = "local"
	AuthProviderEventHorizon AuthProvider = "eventhorizon"
)

type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash *string      `json:"-"` // nil for accounts created through Event Horizon
	AuthProvider AuthProvider `json:"authProvider"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
