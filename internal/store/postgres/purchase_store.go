package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

const uniqueViolation = "23505"

// PurchaseStore implements domain.PurchaseStore using PostgreSQL.
type PurchaseStore struct {
	pool *pgxpool.Pool
}

// NewPurchaseStore creates a new PurchaseStore backed by the given pool.
func NewPurchaseStore(pool *pgxpool.Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

const purchaseSelectCols = `id, wallet, kind, ticket_count, numbers, cost,
	cost_raw, tx_hash, approval_hash, block_number, gas_used, success,
	error, created_at`

// Insert records a broadcast purchase, confirmed or not. A repeated id or transaction hash
// returns domain.ErrAlreadyExists.
func (s *PurchaseStore) Insert(ctx context.Context, p domain.PurchaseResult) error {
	const query = `
		INSERT INTO purchases (
			id, wallet, kind, ticket_count, numbers, cost,
			cost_raw, tx_hash, approval_hash, block_number, gas_used, success,
			error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, NULLIF($13, ''), $14)`

	var numbers []int16
	if p.Numbers != nil {
		numbers = make([]int16, len(p.Numbers))
		for i, d := range p.Numbers {
			numbers[i] = int16(d)
		}
	}
	costRaw := pgtype.Numeric{Valid: p.CostRaw != nil}
	if p.CostRaw != nil {
		costRaw.Int = p.CostRaw
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Wallet, string(p.Kind), p.TicketCount, numbers, p.Cost,
		costRaw, p.TransactionHash, p.ApprovalHash,
		nullableUint(p.BlockNumber), nullableUint(p.GasUsed), p.Success,
		p.Error, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: insert purchase %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns one purchase or domain.ErrNotFound.
func (s *PurchaseStore) GetByID(ctx context.Context, id string) (domain.PurchaseResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+purchaseSelectCols+` FROM purchases WHERE id = $1`, id)
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("postgres: get purchase %s: %w", id, err)
	}
	defer rows.Close()

	out, err := scanPurchaseRows(rows)
	if err != nil {
		return domain.PurchaseResult{}, fmt.Errorf("postgres: get purchase %s: %w", id, err)
	}
	if len(out) == 0 {
		return domain.PurchaseResult{}, domain.ErrNotFound
	}
	return out[0], nil
}

// ListByWallet returns wallet's purchases newest first. The wallet match is
// case-insensitive.
func (s *PurchaseStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.PurchaseResult, error) {
	query, args := listQuery(
		`SELECT `+purchaseSelectCols+` FROM purchases WHERE lower(wallet) = $1`,
		"created_at", []any{strings.ToLower(wallet)}, opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list purchases %s: %w", wallet, err)
	}
	defer rows.Close()

	out, err := scanPurchaseRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list purchases %s: %w", wallet, err)
	}
	return out, nil
}

func scanPurchaseRows(rows pgx.Rows) ([]domain.PurchaseResult, error) {
	var out []domain.PurchaseResult
	for rows.Next() {
		var (
			p            domain.PurchaseResult
			kind         string
			numbers      []int16
			costRaw      pgtype.Numeric
			approvalHash *string
			blockNumber  *int64
			gasUsed      *int64
			errText      *string
		)
		if err := rows.Scan(
			&p.ID, &p.Wallet, &kind, &p.TicketCount, &numbers, &p.Cost,
			&costRaw, &p.TransactionHash, &approvalHash, &blockNumber, &gasUsed, &p.Success,
			&errText, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		if errText != nil {
			p.Error = *errText
		}
		p.Kind = domain.PurchaseKind(kind)
		if len(numbers) == domain.TicketSize {
			var t domain.Ticket
			for i, d := range numbers {
				t[i] = uint8(d)
			}
			p.Numbers = &t
		}
		p.CostRaw = numericToBig(costRaw)
		if approvalHash != nil {
			p.ApprovalHash = *approvalHash
		}
		if blockNumber != nil {
			p.BlockNumber = uint64(*blockNumber)
		}
		if gasUsed != nil {
			p.GasUsed = uint64(*gasUsed)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableUint(v uint64) *int64 {
	if v == 0 {
		return nil
	}
	n := int64(v)
	return &n
}

// numericToBig converts a scanned NUMERIC(78,0) back to an integer.
func numericToBig(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return nil
	}
	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil))
	}
	return v
}

var _ domain.PurchaseStore = (*PurchaseStore)(nil)
