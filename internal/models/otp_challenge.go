package models

import (
	"time"

	"github.com/google/uuid"
)

// OTPChallenge is one issued verification code, stored hashed. Multiple
// unverified challenges may coexist for the same identifier; the most
// recently created one is authoritative at verify time.
type OTPChallenge struct {
	IdentifierHash string    `json:"identifier_hash"`
	ChallengeID    uuid.UUID `json:"challenge_id"`
	Channel        Channel   `json:"channel"`
	CodeHash       string    `json:"-"`
	CodeSalt       string    `json:"-"`
	PepperVersion  int       `json:"-"`
	Algorithm      string    `json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
	Attempts       int       `json:"attempts"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsExpired reports whether the challenge has passed its expiry. Expiry is
// checked lazily at verify time; there is no background sweep.
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
