// Package identifier classifies and normalizes the contact identifiers the
// platform accepts: email addresses and Peruvian mobile numbers.
package identifier

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Kind is the classification of a raw identifier string.
type Kind string

const (
	KindEmail   Kind = "email"
	KindPhone   Kind = "phone"
	KindInvalid Kind = "invalid"
)

var (
	// Permissive email shape; deliverability is not our problem here.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Peru mobile numbers: nine digits starting with 9.
	phonePattern = regexp.MustCompile(`^9\d{8}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// Classify normalizes a raw identifier and reports its kind. Every input maps
// to exactly one kind; invalid inputs return an empty normalized form.
// Classification is idempotent: classifying an already-normalized identifier
// returns it unchanged.
func Classify(raw string) (string, Kind) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", KindInvalid
	}

	// Phones tolerate embedded whitespace ("999 888 777")
	compact := strings.Join(strings.Fields(trimmed), "")
	if phonePattern.MatchString(compact) {
		return compact, KindPhone
	}

	lowered := strings.ToLower(trimmed)
	if emailPattern.MatchString(lowered) {
		return lowered, KindEmail
	}

	return "", KindInvalid
}

// IsValidCode reports whether s is a well-formed 6-digit verification code.
func IsValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// Hash returns the hex SHA-256 of a normalized identifier, used as the
// storage lookup key so raw contact data never lands in partition keys.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
