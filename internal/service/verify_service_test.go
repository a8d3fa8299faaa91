package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/provision"
	"github.com/diagnosis/onboarding/internal/service"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/events"
)

type mockDiagnostics struct {
	diagnosed []int64
	repaired  []int64
}

func (m *mockDiagnostics) Diagnose(_ context.Context, identityID int64, _ string) (*domain.DiagnosticReport, error) {
	m.diagnosed = append(m.diagnosed, identityID)
	return &domain.DiagnosticReport{IdentityID: identityID, Issues: []string{}, Recommendations: []string{}}, nil
}

func (m *mockDiagnostics) Repair(_ context.Context, identityID int64, _ domain.SignupMetadata) (bool, error) {
	m.repaired = append(m.repaired, identityID)
	return true, nil
}

type verifyFixture struct {
	signup      service.SignupService
	verify      service.VerifyService
	identities  *mockIdentityRepo
	codes       *mockCodeRepo
	accounts    *mockAccountRepo
	diagnostics *mockDiagnostics
	bus         *mockPublisher
	cfg         *config.Config
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	t.Helper()

	cfg := testConfig()
	cfg.Provisioning = config.ProvisioningConfig{
		MaxAttempts:  3,
		PollInterval: time.Millisecond,
		MaxInterval:  2 * time.Millisecond,
	}

	identities := newMockIdentityRepo()
	codes := newMockCodeRepo()
	accounts := newMockAccountRepo()
	diagnostics := &mockDiagnostics{}
	bus := &mockPublisher{}

	watcher := provision.NewWatcher(accounts, cfg.Provisioning)
	signup := service.NewSignupService(identities, codes, &mockThrottle{allow: true}, &mockMailer{}, bus, cfg)
	verify := service.NewVerifyService(identities, codes, watcher, diagnostics, bus, cfg)

	return &verifyFixture{
		signup:      signup,
		verify:      verify,
		identities:  identities,
		codes:       codes,
		accounts:    accounts,
		diagnostics: diagnostics,
		bus:         bus,
		cfg:         cfg,
	}
}

// signUp runs a signup and returns the live code for the email.
func (f *verifyFixture) signUp(t *testing.T) string {
	t.Helper()
	if _, err := f.signup.Signup(context.Background(), validSignup()); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	return f.codes.issued["a@biz.com"].code
}

func TestVerifySuccessWithProvisionedRecord(t *testing.T) {
	f := newVerifyFixture(t)
	code := f.signUp(t)

	ident := f.identities.identities["a@biz.com"]
	// Simulate the downstream trigger having already materialized the record.
	f.accounts.records[ident.ID] = &domain.BusinessAccountRecord{
		IdentityID:  ident.ID,
		CompanyName: "Acme",
		ContactName: "Jo Doe",
		AccountType: domain.AccountTypeClient,
	}

	resp, err := f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  code,
		Password: "Pass1234",
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Session == "" {
		t.Error("expected a session token")
	}
	if resp.UserID != ident.ID {
		t.Errorf("expected userId %d, got %d", ident.ID, resp.UserID)
	}
	if resp.Provisioning != domain.StateReady {
		t.Errorf("expected ready state, got %s", resp.Provisioning)
	}
	if !ident.EmailConfirmed {
		t.Error("identity must be confirmed after verify")
	}
	if !f.bus.published(events.IdentityConfirmed) {
		t.Error("expected identity.confirmed event")
	}
	if len(f.diagnostics.diagnosed) != 0 {
		t.Error("diagnostics must not run when provisioning succeeds")
	}
}

func TestVerifyWrongCode(t *testing.T) {
	f := newVerifyFixture(t)
	f.signUp(t)

	_, err := f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  "000000",
		Password: "Pass1234",
	})
	if err == nil {
		t.Fatal("expected wrong code to fail")
	}
	if kind := domain.KindOf(err); kind != domain.KindInvalidOrExpiredCode {
		t.Errorf("expected invalid-or-expired kind, got %s", kind)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	f := newVerifyFixture(t)
	code := f.signUp(t)

	// Push the code past its expiry instant.
	f.codes.issued["a@biz.com"].expiresAt = time.Now().Add(-time.Second)

	_, err := f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  code,
		Password: "Pass1234",
	})
	if err == nil {
		t.Fatal("expected expired code to fail")
	}
	if kind := domain.KindOf(err); kind != domain.KindInvalidOrExpiredCode {
		t.Errorf("expected invalid-or-expired kind, got %s", kind)
	}
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	f := newVerifyFixture(t)
	code := f.signUp(t)

	ident := f.identities.identities["a@biz.com"]
	f.accounts.records[ident.ID] = &domain.BusinessAccountRecord{
		IdentityID:  ident.ID,
		AccountType: domain.AccountTypeClient,
	}

	req := &domain.VerifyRequest{Email: "a@biz.com", OTPCode: code, Password: "Pass1234"}
	if _, err := f.verify.Verify(context.Background(), req); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}

	_, err := f.verify.Verify(context.Background(), req)
	if err == nil {
		t.Fatal("expected second consume of the same code to fail")
	}
	if kind := domain.KindOf(err); kind != domain.KindInvalidOrExpiredCode {
		t.Errorf("expected invalid-or-expired kind, got %s", kind)
	}
}

func TestVerifyWrongPasswordBurnsCode(t *testing.T) {
	f := newVerifyFixture(t)
	code := f.signUp(t)

	ident := f.identities.identities["a@biz.com"]
	f.accounts.records[ident.ID] = &domain.BusinessAccountRecord{
		IdentityID:  ident.ID,
		AccountType: domain.AccountTypeClient,
	}

	_, err := f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  code,
		Password: "WrongPass1",
	})
	if err == nil {
		t.Fatal("expected wrong password to fail")
	}
	// The caller must be steered to manual sign-in, not to retrying the
	// code: a retry would hit the burned code and fail differently.
	if kind := domain.KindOf(err); kind != domain.KindSessionEstablishment {
		t.Errorf("expected session establishment kind, got %s", kind)
	}

	_, err = f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  code,
		Password: "Pass1234",
	})
	if kind := domain.KindOf(err); kind != domain.KindInvalidOrExpiredCode {
		t.Errorf("retrying a burned code should report invalid-or-expired, got %s", kind)
	}
}

func TestVerifyTimeoutRoutesToRepair(t *testing.T) {
	f := newVerifyFixture(t)
	code := f.signUp(t)

	// No record ever appears: the downstream trigger is "broken".
	resp, err := f.verify.Verify(context.Background(), &domain.VerifyRequest{
		Email:    "a@biz.com",
		OTPCode:  code,
		Password: "Pass1234",
	})
	if err != nil {
		t.Fatalf("verify should still succeed structurally: %v", err)
	}
	if resp.Provisioning != domain.StateNeedsRepair {
		t.Errorf("expected needs-repair state, got %s", resp.Provisioning)
	}
	if resp.Session == "" {
		t.Error("session must still be established on provisioning timeout")
	}
	if len(f.diagnostics.diagnosed) != 1 {
		t.Errorf("expected automatic diagnosis after timeout, got %v", f.diagnostics.diagnosed)
	}
	if !f.bus.published(events.ProvisioningStale) {
		t.Error("expected provisioning.stale event")
	}
}
