package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/onboarding/internal/domain"
)

// AccountRepository owns the durable business account records. Exactly one
// record may exist per identity id; Upsert carries that invariant so that
// the downstream trigger and the repair path can race safely.
type AccountRepository interface {
	// Upsert creates the record if absent and reports whether a new row was
	// written. An existing record is left as-is apart from updated_at.
	Upsert(ctx context.Context, rec *domain.BusinessAccountRecord) (created bool, err error)
	FindByIdentityID(ctx context.Context, identityID int64) (*domain.BusinessAccountRecord, error)
	ExistsWithType(ctx context.Context, identityID int64, accountType string) (bool, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountCols = `identity_id, company_name, contact_name, account_type, created_at, updated_at`

func (r *accountRepository) Upsert(ctx context.Context, rec *domain.BusinessAccountRecord) (bool, error) {
	const q = `
		INSERT INTO business_accounts (identity_id, company_name, contact_name, account_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id) DO UPDATE SET updated_at = now()
		RETURNING (xmax = 0)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var created bool
	err := r.pool.QueryRow(ctx, q, rec.IdentityID, rec.CompanyName, rec.ContactName, rec.AccountType).Scan(&created)
	return created, err
}

func (r *accountRepository) FindByIdentityID(ctx context.Context, identityID int64) (*domain.BusinessAccountRecord, error) {
	const q = `SELECT ` + accountCols + ` FROM business_accounts WHERE identity_id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rec domain.BusinessAccountRecord
	err := r.pool.QueryRow(ctx, q, identityID).Scan(
		&rec.IdentityID, &rec.CompanyName, &rec.ContactName, &rec.AccountType, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *accountRepository) ExistsWithType(ctx context.Context, identityID int64, accountType string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM business_accounts WHERE identity_id = $1 AND account_type = $2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, identityID, accountType).Scan(&exists)
	return exists, err
}
