package domain

import (
	"regexp"
	"strings"
)

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"companyName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

type ResendRequest struct {
	Email string `json:"email"`
}

type VerifyRequest struct {
	Email    string `json:"email"`
	OTPCode  string `json:"otpCode"`
	Password string `json:"password"`
}

type SignupResponse struct {
	Success   bool   `json:"success"`
	EmailSent bool   `json:"emailSent"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

type VerifyResponse struct {
	Success      bool              `json:"success"`
	Session      string            `json:"session,omitempty"`
	UserID       int64             `json:"userId,omitempty"`
	Provisioning ProvisioningState `json:"provisioning,omitempty"`
	Error        string            `json:"error,omitempty"`
	Code         string            `json:"code,omitempty"`
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	codeRegex  = regexp.MustCompile(`^\d{6}$`)
)

func (r *SignupRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

func (r *SignupRequest) Validate() error {
	if r.Email == "" {
		return NewError(KindValidation, "email is required")
	}
	if !emailRegex.MatchString(r.Email) {
		return NewError(KindValidation, "invalid email format")
	}
	if r.Password == "" {
		return NewError(KindValidation, "password is required")
	}
	if len(r.Password) < 8 {
		return NewError(KindValidation, "password must be at least 8 characters")
	}
	if r.CompanyName == "" {
		return NewError(KindValidation, "company name is required")
	}
	if r.FirstName == "" {
		return NewError(KindValidation, "first name is required")
	}
	if r.LastName == "" {
		return NewError(KindValidation, "last name is required")
	}
	return nil
}

func (r *SignupRequest) Metadata() SignupMetadata {
	return SignupMetadata{
		CompanyName: r.CompanyName,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
	}
}

func (r *ResendRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *ResendRequest) Validate() error {
	if r.Email == "" {
		return NewError(KindValidation, "email is required")
	}
	if !emailRegex.MatchString(r.Email) {
		return NewError(KindValidation, "invalid email format")
	}
	return nil
}

func (r *VerifyRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.OTPCode = strings.TrimSpace(r.OTPCode)
}

func (r *VerifyRequest) Validate() error {
	if r.Email == "" {
		return NewError(KindValidation, "email is required")
	}
	if !emailRegex.MatchString(r.Email) {
		return NewError(KindValidation, "invalid email format")
	}
	if r.OTPCode == "" {
		return NewError(KindValidation, "verification code is required")
	}
	if !codeRegex.MatchString(r.OTPCode) {
		return NewError(KindValidation, "verification code must be 6 digits")
	}
	if r.Password == "" {
		return NewError(KindValidation, "password is required")
	}
	return nil
}
