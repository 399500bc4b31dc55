package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// AccessStore implements domain.AccessStore on the access_codes table.
type AccessStore struct {
	pool *pgxpool.Pool
}

// NewAccessStore creates a new AccessStore backed by the given pool.
func NewAccessStore(pool *pgxpool.Pool) *AccessStore {
	return &AccessStore{pool: pool}
}

// MarkUsed redeems code for subject. The primary key on code makes the first
// redemption win; later attempts return domain.ErrCodeUsed.
func (s *AccessStore) MarkUsed(ctx context.Context, code, subject string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO access_codes (code, subject) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`,
		code, subject,
	)
	if err != nil {
		return fmt.Errorf("postgres: redeem code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCodeUsed
	}
	return nil
}

// UsedCodes returns every redeemed code in lexical order.
func (s *AccessStore) UsedCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM access_codes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: used codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: used codes: %w", err)
	}
	return codes, nil
}

// HasAccess reports whether subject redeemed any code.
func (s *AccessStore) HasAccess(ctx context.Context, subject string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM access_codes WHERE subject = $1)`, subject,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: has access %s: %w", subject, err)
	}
	return ok, nil
}

var _ domain.AccessStore = (*AccessStore)(nil)
