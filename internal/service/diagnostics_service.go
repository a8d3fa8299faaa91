package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/pkg/auth"
	"github.com/diagnosis/onboarding/pkg/config"
	"github.com/diagnosis/onboarding/pkg/events"
	"github.com/diagnosis/onboarding/pkg/logger"
)

type DiagnosticsService interface {
	// Diagnose computes a fresh account-health report. sessionToken may be
	// empty when no session is at hand.
	Diagnose(ctx context.Context, identityID int64, sessionToken string) (*domain.DiagnosticReport, error)
	// Repair re-derives the business record from identity metadata,
	// preferring it over the caller-supplied fallback. Idempotent: an
	// existing record is a no-op success.
	Repair(ctx context.Context, identityID int64, fallback domain.SignupMetadata) (created bool, err error)
}

type diagnosticsService struct {
	identityRepo repository.IdentityRepository
	accountRepo  repository.AccountRepository
	eventBus     events.Publisher
	config       *config.Config
}

func NewDiagnosticsService(
	identityRepo repository.IdentityRepository,
	accountRepo repository.AccountRepository,
	eventBus events.Publisher,
	config *config.Config,
) DiagnosticsService {
	return &diagnosticsService{
		identityRepo: identityRepo,
		accountRepo:  accountRepo,
		eventBus:     eventBus,
		config:       config,
	}
}

func (s *diagnosticsService) Diagnose(ctx context.Context, identityID int64, sessionToken string) (*domain.DiagnosticReport, error) {
	report := &domain.DiagnosticReport{
		IdentityID:      identityID,
		Issues:          []string{},
		Recommendations: []string{},
	}

	ident, err := s.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	if ident == nil {
		report.Issues = append(report.Issues, "identity does not exist")
		report.Recommendations = append(report.Recommendations, "the account must be recreated through signup")
		return report, nil
	}
	report.IdentityExists = true
	report.EmailConfirmed = ident.EmailConfirmed

	if !ident.EmailConfirmed {
		report.Issues = append(report.Issues, "email is not confirmed")
		report.Recommendations = append(report.Recommendations, "resend the verification code and complete verification")
	}

	rec, err := s.accountRepo.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up business account: %w", err)
	}
	if rec == nil {
		report.Issues = append(report.Issues, "business account record is missing")
		report.Recommendations = append(report.Recommendations, "run repair to re-derive the record from identity metadata")
	} else {
		report.HasBusinessRecord = true
		report.AccountType = rec.AccountType
		if rec.AccountType != domain.AccountTypeClient {
			report.Issues = append(report.Issues, fmt.Sprintf("account type is %q, expected %q", rec.AccountType, domain.AccountTypeClient))
			report.Recommendations = append(report.Recommendations, "correct the account type tag for this identity")
		}
	}

	if sessionToken != "" {
		claims, err := auth.Parse(sessionToken, s.config.Auth.JWTSecret)
		if err == nil && claims.Sub == identityID {
			report.SessionValid = true
		} else {
			report.Issues = append(report.Issues, "session token is invalid or belongs to another identity")
			report.Recommendations = append(report.Recommendations, "sign in again to obtain a fresh session")
		}
	}

	return report, nil
}

func (s *diagnosticsService) Repair(ctx context.Context, identityID int64, fallback domain.SignupMetadata) (bool, error) {
	ident, err := s.identityRepo.FindByID(ctx, identityID)
	if err != nil {
		return false, fmt.Errorf("failed to look up identity: %w", err)
	}
	if ident == nil {
		return false, domain.NewError(domain.KindNotFound, "identity not found")
	}

	// Metadata stashed at signup time wins over caller-supplied defaults.
	meta := ident.Metadata
	if meta.CompanyName == "" {
		meta.CompanyName = fallback.CompanyName
	}
	if meta.FirstName == "" && meta.LastName == "" {
		meta.FirstName = fallback.FirstName
		meta.LastName = fallback.LastName
	}

	created, err := s.accountRepo.Upsert(ctx, &domain.BusinessAccountRecord{
		IdentityID:  identityID,
		CompanyName: meta.CompanyName,
		ContactName: meta.ContactName(),
		AccountType: domain.AccountTypeClient,
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert business account: %w", err)
	}

	if created {
		logger.InfoContext(ctx, "Repaired missing business account record", "identity_id", identityID)
	}

	if err := s.eventBus.Publish(ctx, events.AccountRepaired, events.AccountRepairedEvent{
		IdentityID: identityID,
		Created:    created,
		RepairedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish repair event", "error", err, "identity_id", identityID)
	}

	return created, nil
}
