package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

type User struct {
	ID                     int64      `json:"id"`
	FullName               string     `json:"fullName"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"-"`
	Role                   Role       `json:"role"`
	IsEmailVerified        bool       `json:"isEmailVerified"`
	EmailVerificationToken string     `json:"-"`
	Phone                  string     `json:"phone,omitempty"`
	IsPhoneVerified        bool       `json:"isPhoneVerified"`
	PhoneOTP               string     `json:"-"`
	PhoneOTPExpires        *time.Time `json:"-"`
}
