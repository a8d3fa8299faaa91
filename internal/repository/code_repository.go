package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/onboarding/internal/domain"
)

// CodeRepository owns the lifecycle of one-time verification codes. The
// table is keyed by email, so at most one live code can exist per address:
// issuing replaces any prior code in the same statement.
type CodeRepository interface {
	Issue(ctx context.Context, email, code string, metadata domain.SignupMetadata, ttl time.Duration) error
	// Consume returns the stored metadata, or nil when no matching,
	// unconsumed, unexpired code exists.
	Consume(ctx context.Context, email, code string) (*domain.SignupMetadata, error)
	InvalidateAll(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type codeRepository struct {
	pool *pgxpool.Pool
}

func NewCodeRepository(pool *pgxpool.Pool) CodeRepository {
	return &codeRepository{pool: pool}
}

func (r *codeRepository) Issue(ctx context.Context, email, code string, metadata domain.SignupMetadata, ttl time.Duration) error {
	const q = `
		INSERT INTO verification_codes (email, code, metadata, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, now(), $4, NULL)
		ON CONFLICT (email) DO UPDATE SET
			code = EXCLUDED.code,
			metadata = EXCLUDED.metadata,
			issued_at = now(),
			expires_at = EXCLUDED.expires_at,
			consumed_at = NULL`

	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal code metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err = r.pool.Exec(ctx, q, email, code, meta, time.Now().Add(ttl))
	return err
}

func (r *codeRepository) Consume(ctx context.Context, email, code string) (*domain.SignupMetadata, error) {
	// Single conditional update: the check and the consumed_at mark must be
	// one atomic statement so a double-submit cannot consume the code twice.
	const q = `
		UPDATE verification_codes
		SET consumed_at = now()
		WHERE email = $1
		  AND code = $2
		  AND consumed_at IS NULL
		  AND expires_at > now()
		RETURNING metadata`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var meta []byte
	err := r.pool.QueryRow(ctx, q, email, code).Scan(&meta)
	if err == pgx.ErrNoRows {
		return nil, nil // invalid, consumed, or expired
	}
	if err != nil {
		return nil, err
	}

	var metadata domain.SignupMetadata
	if err := json.Unmarshal(meta, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal code metadata: %w", err)
	}
	return &metadata, nil
}

func (r *codeRepository) InvalidateAll(ctx context.Context, email string) error {
	const q = `DELETE FROM verification_codes WHERE email = $1 AND consumed_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, email)
	return err
}

func (r *codeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM verification_codes
		WHERE (consumed_at IS NOT NULL AND consumed_at < now() - interval '30 days')
		   OR (consumed_at IS NULL AND expires_at < now() - interval '7 days')`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
