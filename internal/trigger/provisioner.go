package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diagnosis/onboarding/internal/domain"
	"github.com/diagnosis/onboarding/internal/repository"
	"github.com/diagnosis/onboarding/pkg/events"
	"github.com/diagnosis/onboarding/pkg/logger"
)

// Provisioner is the downstream trigger that materializes a business
// account record whenever an identity is confirmed. It consumes
// identity.confirmed events off the bus; the verification pipeline never
// calls it directly and only observes its effect through the watcher.
type Provisioner struct {
	identityRepo repository.IdentityRepository
	accountRepo  repository.AccountRepository
	eventBus     events.EventBus
}

func NewProvisioner(
	identityRepo repository.IdentityRepository,
	accountRepo repository.AccountRepository,
	eventBus events.EventBus,
) *Provisioner {
	return &Provisioner{
		identityRepo: identityRepo,
		accountRepo:  accountRepo,
		eventBus:     eventBus,
	}
}

func (p *Provisioner) Start(queue string) error {
	return p.eventBus.QueueSubscribe(events.IdentityConfirmed, queue, p.handle)
}

func (p *Provisioner) handle(msg *events.Message) {
	var evt events.IdentityConfirmedEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		logger.Error("Failed to decode confirmation event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ident, err := p.identityRepo.FindByID(ctx, evt.IdentityID)
	if err != nil {
		logger.ErrorContext(ctx, "Provisioner failed to load identity", "error", err, "identity_id", evt.IdentityID)
		return
	}
	if ident == nil {
		logger.WarnContext(ctx, "Provisioner got confirmation for unknown identity", "identity_id", evt.IdentityID)
		return
	}

	created, err := p.accountRepo.Upsert(ctx, &domain.BusinessAccountRecord{
		IdentityID:  ident.ID,
		CompanyName: ident.Metadata.CompanyName,
		ContactName: ident.Metadata.ContactName(),
		AccountType: domain.AccountTypeClient,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Provisioner failed to upsert business account", "error", err, "identity_id", ident.ID)
		return
	}
	if !created {
		// Already provisioned (repair beat us to it, or a redelivery).
		return
	}

	logger.InfoContext(ctx, "Provisioned business account", "identity_id", ident.ID, "company", ident.Metadata.CompanyName)

	if err := p.eventBus.Publish(ctx, events.AccountProvisioned, events.AccountProvisionedEvent{
		IdentityID:    ident.ID,
		CompanyName:   ident.Metadata.CompanyName,
		AccountType:   domain.AccountTypeClient,
		ProvisionedAt: time.Now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish provisioned event", "error", err, "identity_id", ident.ID)
	}
}
