package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the contact channel an account is bound to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// UserType distinguishes the three registration tiers of the platform.
type UserType string

const (
	UserTypePoblador UserType = "poblador"
	UserTypeEmpresa  UserType = "empresa"
	UserTypeAdmin    UserType = "admin"
)

// AccountStatus tracks the approval state of an account. Residents are active
// on creation; company accounts start pending until an admin approves them.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusPending  AccountStatus = "pending"
	StatusRejected AccountStatus = "rejected"
)

// Account is a registered platform user, keyed by hashed identifier. The raw
// email/phone is stored only envelope-encrypted.
type Account struct {
	UserBucket          int           `json:"user_bucket"`
	UserID              uuid.UUID     `json:"user_id"`
	IdentifierHash      string        `json:"identifier_hash"`
	IdentifierEncrypted string        `json:"identifier_encrypted,omitempty"`
	IdentifierDEK       string        `json:"identifier_dek,omitempty"`
	IdentifierKeyID     string        `json:"identifier_key_id,omitempty"`
	Channel             Channel       `json:"channel"`
	UserType            UserType      `json:"user_type"`
	Status              AccountStatus `json:"status"`

	// Password login is optional; empty when the account is OTP-only.
	PasswordHash  string `json:"-"`
	PasswordSalt  string `json:"-"`
	PepperVersion int    `json:"-"`

	// Company fields, set only for empresa accounts.
	CompanyName    string `json:"company_name,omitempty"`
	CompanyRUC     string `json:"company_ruc,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	RejectedReason string `json:"rejected_reason,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ApprovedAt time.Time `json:"approved_at,omitempty"`
	LastLogin  time.Time `json:"last_login,omitempty"`
}
