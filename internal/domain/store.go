package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PurchaseStore persists successful ticket purchases.
type PurchaseStore interface {
	Insert(ctx context.Context, p PurchaseResult) error
	GetByID(ctx context.Context, id string) (PurchaseResult, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]PurchaseResult, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// AccessStore records redeemed invite codes. Codes are stored normalized
// (lower case). MarkUsed returns ErrCodeUsed for a code already redeemed.
type AccessStore interface {
	MarkUsed(ctx context.Context, code, subject string) error
	UsedCodes(ctx context.Context) ([]string, error)
	HasAccess(ctx context.Context, subject string) (bool, error)
}
