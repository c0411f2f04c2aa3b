package models

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleGuest    Role = "guest"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID         int64     `yaml:"id" json:"id"`
	Email      string    `yaml:"email" json:"email"`
	FirstName  string    `yaml:"first_name" json:"first_name"`
	LastName   string    `yaml:"last_name" json:"last_name"`
	Phone      string    `yaml:"phone" json:"phone"`
	TelegramID int64     `yaml:"telegram_id" json:"telegram_id,omitempty"`
	Role       Role      `yaml:"role" json:"role"`
	CreatedAt  time.Time `yaml:"-" json:"created_at"`
	UpdatedAt  time.Time `yaml:"-" json:"updated_at"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// GuestInfo is what an unauthenticated renter supplies.
type GuestInfo struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
}

// Actor is the caller identity resolved by the boundary layer.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}
