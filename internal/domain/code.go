package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SignupMetadata carries the signup fields needed to materialize the
// business account after the email is confirmed. It rides on both the
// verification code record and the identity's metadata bag so that either
// one can serve as the fallback source of truth.
type SignupMetadata struct {
	CompanyName string `json:"company_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

func (m SignupMetadata) ContactName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

type VerificationCode struct {
	Email      string         `json:"email"`
	Code       string         `json:"-"`
	Metadata   SignupMetadata `json:"metadata"`
	IssuedAt   time.Time      `json:"issued_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ConsumedAt *time.Time     `json:"consumed_at,omitempty"`
}

const (
	CodeLength = 6
	CodeTTL    = 10 * time.Minute
)

func (c *VerificationCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *VerificationCode) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// GenerateCode returns a uniformly random fixed-width 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
