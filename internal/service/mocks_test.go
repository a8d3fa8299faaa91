package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/onboarding/internal/domain"
)

// ---------- Mocks ----------

type issuedCode struct {
	code      string
	metadata  domain.SignupMetadata
	expiresAt time.Time
	consumed  bool
}

type mockCodeRepo struct {
	issued      map[string]*issuedCode // email -> live code
	invalidated []string
	issueErr    error
	consumeErr  error
}

func newMockCodeRepo() *mockCodeRepo {
	return &mockCodeRepo{issued: make(map[string]*issuedCode)}
}

func (m *mockCodeRepo) Issue(_ context.Context, email, code string, metadata domain.SignupMetadata, ttl time.Duration) error {
	if m.issueErr != nil {
		return m.issueErr
	}
	m.issued[email] = &issuedCode{code: code, metadata: metadata, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *mockCodeRepo) Consume(_ context.Context, email, code string) (*domain.SignupMetadata, error) {
	if m.consumeErr != nil {
		return nil, m.consumeErr
	}
	rec, ok := m.issued[email]
	if !ok || rec.consumed || rec.code != code || time.Now().After(rec.expiresAt) {
		return nil, nil
	}
	rec.consumed = true
	meta := rec.metadata
	return &meta, nil
}

func (m *mockCodeRepo) InvalidateAll(_ context.Context, email string) error {
	m.invalidated = append(m.invalidated, email)
	delete(m.issued, email)
	return nil
}

func (m *mockCodeRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type mockIdentityRepo struct {
	nextID      int64
	identities  map[string]*domain.Identity // keyed by email
	deleteCalls []int64
	createErr   error
	confirmErr  error
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{nextID: 1, identities: make(map[string]*domain.Identity)}
}

func (m *mockIdentityRepo) CreateUnconfirmed(_ context.Context, email, passwordHash string, metadata domain.SignupMetadata) (*domain.Identity, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	ident := &domain.Identity{
		ID:           m.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.nextID++
	m.identities[email] = ident
	return ident, nil
}

func (m *mockIdentityRepo) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return m.identities[email], nil
}

func (m *mockIdentityRepo) FindByID(_ context.Context, id int64) (*domain.Identity, error) {
	for _, ident := range m.identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return nil, nil
}

func (m *mockIdentityRepo) ConfirmEmail(_ context.Context, id int64) error {
	if m.confirmErr != nil {
		return m.confirmErr
	}
	for _, ident := range m.identities {
		if ident.ID == id {
			ident.EmailConfirmed = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockIdentityRepo) UpdateMetadata(_ context.Context, id int64, metadata domain.SignupMetadata) error {
	for _, ident := range m.identities {
		if ident.ID == id {
			ident.Metadata = metadata
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *mockIdentityRepo) Delete(_ context.Context, id int64) error {
	m.deleteCalls = append(m.deleteCalls, id)
	for email, ident := range m.identities {
		if ident.ID == id {
			delete(m.identities, email)
			return nil
		}
	}
	return pgx.ErrNoRows
}

type mockAccountRepo struct {
	records    map[int64]*domain.BusinessAccountRecord
	upsertErr  error
	checkCalls int
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{records: make(map[int64]*domain.BusinessAccountRecord)}
}

func (m *mockAccountRepo) Upsert(_ context.Context, rec *domain.BusinessAccountRecord) (bool, error) {
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	if existing, ok := m.records[rec.IdentityID]; ok {
		existing.UpdatedAt = time.Now()
		return false, nil
	}
	now := time.Now()
	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.records[rec.IdentityID] = &stored
	return true, nil
}

func (m *mockAccountRepo) FindByIdentityID(_ context.Context, identityID int64) (*domain.BusinessAccountRecord, error) {
	return m.records[identityID], nil
}

func (m *mockAccountRepo) ExistsWithType(_ context.Context, identityID int64, accountType string) (bool, error) {
	m.checkCalls++
	rec, ok := m.records[identityID]
	return ok && rec.AccountType == accountType, nil
}

type mockThrottle struct {
	allow    bool
	allowErr error
	calls    []string
}

func (m *mockThrottle) Allow(_ context.Context, email string, _ time.Duration) (bool, error) {
	m.calls = append(m.calls, email)
	return m.allow, m.allowErr
}

type mockMailer struct {
	lastTo   string
	lastName string
	lastCode string
	sendErr  error
	sends    int
}

func (m *mockMailer) SendVerificationCode(toEmail, toName, code string) error {
	m.sends++
	m.lastTo = toEmail
	m.lastName = toName
	m.lastCode = code
	return m.sendErr
}

type mockPublisher struct {
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) published(subject string) bool {
	for _, s := range m.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
