package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/provision"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/pkg/auth"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/events"
	"github.com/diagnosis/onboarding/pkg/logger"
)

type VerifyService interface {
	Verify(ctx context.Context, req *domain.VerifyRequest) (*domain.VerifyResponse, error)
}

type verifyService struct {
	identityRepo repository.IdentityRepository
	codeRepo     repository.CodeRepository
	watcher      *provision.Watcher
	diagnostics  DiagnosticsService
	eventBus     events.Publisher
	config       *config.Config
}

func NewVerifyService(
	identityRepo repository.IdentityRepository,
	codeRepo repository.CodeRepository,
	watcher *provision.Watcher,
	diagnostics DiagnosticsService,
	eventBus events.Publisher,
	config *config.Config,
) VerifyService {
	return &verifyService{
		identityRepo: identityRepo,
		codeRepo:     codeRepo,
		watcher:      watcher,
		diagnostics:  diagnostics,
		eventBus:     eventBus,
		config:       config,
	}
}

func (s *verifyService) Verify(ctx context.Context, req *domain.VerifyRequest) (*domain.VerifyResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Consume first. The same failure covers unknown emails, wrong codes,
	// expired codes and already-used codes, so nothing about account
	// existence leaks.
	meta, err := s.codeRepo.Consume(ctx, req.Email, req.OTPCode)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification code: %w", err)
	}
	if meta == nil {
		return nil, domain.NewError(domain.KindInvalidOrExpiredCode, "invalid or expired verification code")
	}

	ident, err := s.identityRepo.FindByEmail(ctx, req.Email)
	if err != nil || ident == nil {
		// The code is already burned; retrying it would fail again. The
		// caller must be told to sign in manually, not to retry the code.
		return nil, domain.WrapError(domain.KindSessionEstablishment, "verification succeeded but the session could not be established; sign in manually", err)
	}

	if err := s.identityRepo.ConfirmEmail(ctx, ident.ID); err != nil {
		return nil, domain.WrapError(domain.KindSessionEstablishment, "verification succeeded but the session could not be established; sign in manually", err)
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, ident.PasswordHash)
	if err != nil || !match {
		return nil, domain.WrapError(domain.KindSessionEstablishment, "email verified, but the password did not match; sign in manually", err)
	}

	session, err := auth.NewSessionToken(ident.ID, ident.Email, domain.AccountTypeClient, s.config.Auth.JWTSecret, s.config.Auth.SessionTokenTTL)
	if err != nil {
		return nil, domain.WrapError(domain.KindSessionEstablishment, "verification succeeded but the session could not be established; sign in manually", err)
	}

	if err := s.eventBus.Publish(ctx, events.IdentityConfirmed, events.IdentityConfirmedEvent{
		IdentityID:  ident.ID,
		Email:       ident.Email,
		ConfirmedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish confirmation event", "error", err, "identity_id", ident.ID)
	}

	state, attempts := s.watcher.Wait(ctx, ident.ID)
	if state == domain.StateNeedsRepair {
		logger.WarnContext(ctx, "Business record did not materialize within budget",
			"identity_id", ident.ID, "attempts", attempts)

		if err := s.eventBus.Publish(ctx, events.ProvisioningStale, events.ProvisioningStaleEvent{
			IdentityID: ident.ID,
			Attempts:   attempts,
			DetectedAt: time.Now(),
		}); err != nil {
			logger.WarnContext(ctx, "Failed to publish stale-provisioning event", "error", err, "identity_id", ident.ID)
		}

		// Capture a report for the operator without a manual step.
		if report, derr := s.diagnostics.Diagnose(ctx, ident.ID, session); derr != nil {
			logger.ErrorContext(ctx, "Automatic diagnosis failed", "error", derr, "identity_id", ident.ID)
		} else {
			logger.InfoContext(ctx, "Automatic diagnosis after provisioning timeout",
				"identity_id", ident.ID, "issues", report.Issues, "recommendations", report.Recommendations)
		}
	}

	// Metadata from the consumed code is the last-resort source for profile
	// completion; keep the identity's bag in sync in case signup predates it.
	if ident.Metadata.CompanyName == "" && meta.CompanyName != "" {
		if err := s.identityRepo.UpdateMetadata(ctx, ident.ID, *meta); err != nil {
			logger.WarnContext(ctx, "Failed to backfill identity metadata", "error", err, "identity_id", ident.ID)
		}
	}

	return &domain.VerifyResponse{
		Success:      true,
		Session:      session,
		UserID:       ident.ID,
		Provisioning: state,
	}, nil
}
