package domain

import "time"

// Identity is the authentication subsystem's user object. It is created
// unconfirmed at signup and confirmed when the verification code is
// consumed. The metadata bag stashes the signup fields until the business
// account record exists.
type Identity struct {
	ID             int64          `json:"id"`
	Email          string         `json:"email"`
	PasswordHash   string         `json:"-"`
	EmailConfirmed bool           `json:"email_confirmed"`
	Metadata       SignupMetadata `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BusinessAccountRecord is the durable business-schema record keyed by
// identity id. Its existence and account type are the ground truth for
// "is this a provisioned client account."
type BusinessAccountRecord struct {
	IdentityID  int64     `json:"identity_id"`
	CompanyName string    `json:"company_name"`
	ContactName string    `json:"contact_name"`
	AccountType string    `json:"account_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	AccountTypeClient = "client"
	AccountTypeAdmin  = "admin"
)

// ProvisioningState tracks the bounded wait between identity confirmation
// and business record materialization. It is never persisted.
type ProvisioningState string

const (
	StateVerifying      ProvisioningState = "verifying"
	StateAwaitingRecord ProvisioningState = "awaiting-record"
	StateReady          ProvisioningState = "ready"
	StateNeedsRepair    ProvisioningState = "needs-repair"
	StateFailed         ProvisioningState = "failed"
)

// DiagnosticReport is a structured account-health report, computed on
// demand and never cached.
type DiagnosticReport struct {
	IdentityID        int64    `json:"identity_id"`
	IdentityExists    bool     `json:"identity_exists"`
	EmailConfirmed    bool     `json:"email_confirmed"`
	HasBusinessRecord bool     `json:"has_business_record"`
	AccountType       string   `json:"account_type,omitempty"`
	SessionValid      bool     `json:"session_valid"`
	Issues            []string `json:"issues"`
	Recommendations   []string `json:"recommendations"`
}

func (r *DiagnosticReport) Healthy() bool {
	return len(r.Issues) == 0
}
