package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/onboarding/internal/domain"
)

// ErrEmailTaken is returned when creating an identity races another signup
// for the same address.
var ErrEmailTaken = errors.New("email already taken")

// IdentityRepository is the contract the pipeline needs from the identity
// store: create unconfirmed, look up, confirm, and delete (the rollback
// path for failed signups).
type IdentityRepository interface {
	CreateUnconfirmed(ctx context.Context, email, passwordHash string, metadata domain.SignupMetadata) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id int64) (*domain.Identity, error)
	ConfirmEmail(ctx context.Context, id int64) error
	UpdateMetadata(ctx context.Context, id int64, metadata domain.SignupMetadata) error
	Delete(ctx context.Context, id int64) error
}

type identityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityCols = `id, email, password_hash, email_confirmed, metadata, created_at, updated_at`

func (r *identityRepository) CreateUnconfirmed(ctx context.Context, email, passwordHash string, metadata domain.SignupMetadata) (*domain.Identity, error) {
	const q = `
		INSERT INTO identities (email, password_hash, email_confirmed, metadata)
		VALUES ($1, $2, false, $3)
		RETURNING ` + identityCols

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ident, err := scanIdentity(r.pool.QueryRow(ctx, q, email, passwordHash, meta))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return ident, nil
}

func (r *identityRepository) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE email = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ident, err := scanIdentity(r.pool.QueryRow(ctx, q, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return ident, err
}

func (r *identityRepository) FindByID(ctx context.Context, id int64) (*domain.Identity, error) {
	const q = `SELECT ` + identityCols + ` FROM identities WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ident, err := scanIdentity(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return ident, err
}

func (r *identityRepository) ConfirmEmail(ctx context.Context, id int64) error {
	const q = `UPDATE identities SET email_confirmed = true, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *identityRepository) UpdateMetadata(ctx context.Context, id int64, metadata domain.SignupMetadata) error {
	const q = `UPDATE identities SET metadata = $2, updated_at = now() WHERE id = $1`

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal identity metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, meta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *identityRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM identities WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var (
		ident domain.Identity
		meta  []byte
	)
	err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.EmailConfirmed, &meta, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &ident.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal identity metadata: %w", err)
		}
	}
	return &ident, nil
}
