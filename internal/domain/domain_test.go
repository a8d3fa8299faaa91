package domain_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/diagnosis/onboarding/internal/domain"
)

func TestGenerateCodeFormat(t *testing.T) {
	sixDigits := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 100; i++ {
		code, err := domain.GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("expected six digits, got %q", code)
		}
	}
}

func TestSignupRequestNormalize(t *testing.T) {
	req := &domain.SignupRequest{
		Email:       "  Alice@Biz.COM ",
		Password:    "Pass1234",
		CompanyName: " Acme ",
		FirstName:   " Jo ",
		LastName:    " Doe ",
	}
	req.Normalize()

	if req.Email != "alice@biz.com" {
		t.Errorf("expected lowercased trimmed email, got %q", req.Email)
	}
	if req.CompanyName != "Acme" || req.FirstName != "Jo" || req.LastName != "Doe" {
		t.Errorf("expected trimmed name fields, got %q %q %q", req.CompanyName, req.FirstName, req.LastName)
	}
}

func TestVerifyRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  domain.VerifyRequest
		ok   bool
	}{
		{"valid", domain.VerifyRequest{Email: "a@biz.com", OTPCode: "123456", Password: "Pass1234"}, true},
		{"missing code", domain.VerifyRequest{Email: "a@biz.com", Password: "Pass1234"}, false},
		{"short code", domain.VerifyRequest{Email: "a@biz.com", OTPCode: "123", Password: "Pass1234"}, false},
		{"non-digit code", domain.VerifyRequest{Email: "a@biz.com", OTPCode: "12a456", Password: "Pass1234"}, false},
		{"bad email", domain.VerifyRequest{Email: "not-an-email", OTPCode: "123456", Password: "Pass1234"}, false},
		{"missing password", domain.VerifyRequest{Email: "a@biz.com", OTPCode: "123456"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if domain.KindOf(err) != domain.KindValidation {
					t.Errorf("expected validation kind, got %s", domain.KindOf(err))
				}
			}
		})
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := domain.KindOf(errors.New("boom")); got != domain.KindInternal {
		t.Errorf("expected internal kind for plain errors, got %s", got)
	}

	wrapped := domain.WrapError(domain.KindDuplicateAccount, "exists", errors.New("23505"))
	if got := domain.KindOf(wrapped); got != domain.KindDuplicateAccount {
		t.Errorf("expected wrapped kind to survive, got %s", got)
	}
}

func TestMessageOfHidesInternals(t *testing.T) {
	if got := domain.MessageOf(errors.New("pq: connection refused")); got != "internal error" {
		t.Errorf("raw error text must not surface, got %q", got)
	}
	if got := domain.MessageOf(domain.NewError(domain.KindTooManyRequests, "slow down")); got != "slow down" {
		t.Errorf("expected domain message, got %q", got)
	}
}

func TestContactName(t *testing.T) {
	m := domain.SignupMetadata{FirstName: "Jo", LastName: "Doe"}
	if got := m.ContactName(); got != "Jo Doe" {
		t.Errorf("expected joined name, got %q", got)
	}
	if got := (domain.SignupMetadata{FirstName: "Jo"}).ContactName(); got != "Jo" {
		t.Errorf("expected single name without padding, got %q", got)
	}
}
