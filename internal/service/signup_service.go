package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/mailer"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/events"
	"github.com/diagnosis/onboarding/pkg/logger"
)

type SignupService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.SignupResponse, error)
	Resend(ctx context.Context, req *domain.ResendRequest) (*domain.SignupResponse, error)
}

type signupService struct {
	identityRepo repository.IdentityRepository
	codeRepo     repository.CodeRepository
	throttle     repository.ThrottleRepository
	mailer       mailer.Service
	eventBus     events.Publisher
	config       *config.Config
}

func NewSignupService(
	identityRepo repository.IdentityRepository,
	codeRepo repository.CodeRepository,
	throttle repository.ThrottleRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	config *config.Config,
) SignupService {
	return &signupService{
		identityRepo: identityRepo,
		codeRepo:     codeRepo,
		throttle:     throttle,
		mailer:       mailer,
		eventBus:     eventBus,
		config:       config,
	}
}

func (s *signupService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.SignupResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.identityRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing identity: %w", err)
	}
	if existing != nil {
		if existing.EmailConfirmed {
			return nil, domain.NewError(domain.KindDuplicateAccount, "an account with this email already exists. Please sign in instead")
		}
		// An unconfirmed identity younger than the code TTL is a signup in
		// flight: the owner should verify or resend, not start over.
		if time.Since(existing.CreatedAt) < s.config.Signup.CodeTTL {
			return nil, domain.NewError(domain.KindDuplicateAccount, "a signup for this email is already pending. Check your inbox or request a new code")
		}
		// Stale orphan from an earlier failed attempt: replace it.
		if err := s.identityRepo.Delete(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to remove orphaned identity: %w", err)
		}
		logger.InfoContext(ctx, "Replaced orphaned unconfirmed identity", "identity_id", existing.ID)
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ident, err := s.identityRepo.CreateUnconfirmed(ctx, req.Email, passwordHash, req.Metadata())
	if err != nil {
		if err == repository.ErrEmailTaken {
			return nil, domain.NewError(domain.KindDuplicateAccount, "an account with this email already exists. Please sign in instead")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	code, err := domain.GenerateCode()
	if err != nil {
		s.rollbackIdentity(ctx, ident.ID)
		return nil, err
	}

	if err := s.codeRepo.Issue(ctx, req.Email, code, req.Metadata(), s.config.Signup.CodeTTL); err != nil {
		// A hard failure before the code exists must not leave an orphaned
		// unconfirmed identity behind.
		s.rollbackIdentity(ctx, ident.ID)
		return nil, fmt.Errorf("failed to issue verification code: %w", err)
	}

	emailSent := true
	if err := s.mailer.SendVerificationCode(req.Email, req.FirstName, code); err != nil {
		// Delivery failure is surfaced, never rolled back: the code is live
		// and the user can retry delivery via resend.
		logger.WarnContext(ctx, "Failed to send verification email", "error", err, "identity_id", ident.ID)
		emailSent = false
	}

	if err := s.eventBus.Publish(ctx, events.SignupInitiated, events.SignupInitiatedEvent{
		IdentityID:  ident.ID,
		Email:       ident.Email,
		CompanyName: req.CompanyName,
		CreatedAt:   ident.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish signup event", "error", err, "identity_id", ident.ID)
	}

	return &domain.SignupResponse{Success: true, EmailSent: emailSent}, nil
}

func (s *signupService) Resend(ctx context.Context, req *domain.ResendRequest) (*domain.SignupResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	allowed, err := s.throttle.Allow(ctx, req.Email, s.config.Signup.ResendCooldown)
	if err != nil {
		logger.WarnContext(ctx, "Resend throttle check failed, allowing", "error", err)
	}
	if !allowed {
		return nil, domain.NewError(domain.KindTooManyRequests, "a code was sent recently. Please wait before requesting another")
	}

	ident, err := s.identityRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if ident == nil {
		return nil, domain.NewError(domain.KindNotFound, "no pending signup found for this email")
	}
	if ident.EmailConfirmed {
		return nil, domain.NewError(domain.KindDuplicateAccount, "this account is already verified. Please sign in instead")
	}

	if err := s.codeRepo.InvalidateAll(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("failed to invalidate prior codes: %w", err)
	}

	code, err := domain.GenerateCode()
	if err != nil {
		return nil, err
	}

	// The metadata captured at signup rides on the identity, so the caller
	// never resupplies company/name fields.
	if err := s.codeRepo.Issue(ctx, req.Email, code, ident.Metadata, s.config.Signup.CodeTTL); err != nil {
		return nil, fmt.Errorf("failed to issue verification code: %w", err)
	}

	emailSent := true
	if err := s.mailer.SendVerificationCode(req.Email, ident.Metadata.FirstName, code); err != nil {
		logger.WarnContext(ctx, "Failed to send verification email", "error", err, "identity_id", ident.ID)
		emailSent = false
	}

	if err := s.eventBus.Publish(ctx, events.SignupCodeResent, events.SignupCodeResentEvent{
		Email:    req.Email,
		ResentAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish resend event", "error", err)
	}

	return &domain.SignupResponse{Success: true, EmailSent: emailSent}, nil
}

func (s *signupService) rollbackIdentity(ctx context.Context, id int64) {
	if err := s.identityRepo.Delete(ctx, id); err != nil {
		logger.ErrorContext(ctx, "Failed to roll back identity after signup failure", "error", err, "identity_id", id)
	}
}
