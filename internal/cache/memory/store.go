package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// PurchaseStore keeps purchases in memory, newest last.
type PurchaseStore struct {
	mu   sync.RWMutex
	rows []domain.PurchaseResult
	byID map[string]int
}

func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{byID: make(map[string]int)}
}

func (s *PurchaseStore) Insert(_ context.Context, p domain.PurchaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.byID[p.ID] = len(s.rows)
	s.rows = append(s.rows, p)
	return nil
}

func (s *PurchaseStore) GetByID(_ context.Context, id string) (domain.PurchaseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.PurchaseResult{}, domain.ErrNotFound
	}
	return s.rows[i], nil
}

// ListByWallet returns wallet's purchases newest first.
func (s *PurchaseStore) ListByWallet(_ context.Context, wallet string, opts domain.ListOpts) ([]domain.PurchaseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PurchaseResult
	for i := len(s.rows) - 1; i >= 0; i-- {
		p := s.rows[i]
		if !strings.EqualFold(p.Wallet, wallet) || !inRange(p.CreatedAt, opts) {
			continue
		}
		out = append(out, p)
	}
	return paginate(out, opts), nil
}

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

func NewAuditStore() *AuditStore { return &AuditStore{now: time.Now} }

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if inRange(s.entries[i].CreatedAt, opts) {
			out = append(out, s.entries[i])
		}
	}
	return paginate(out, opts), nil
}

// AccessStore records redeemed invite codes in memory.
type AccessStore struct {
	mu       sync.RWMutex
	used     map[string]string // code -> subject
	subjects map[string]struct{}
}

func NewAccessStore() *AccessStore {
	return &AccessStore{
		used:     make(map[string]string),
		subjects: make(map[string]struct{}),
	}
}

func (s *AccessStore) MarkUsed(_ context.Context, code, subject string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[code]; ok {
		return domain.ErrCodeUsed
	}
	s.used[code] = subject
	s.subjects[subject] = struct{}{}
	return nil
}

func (s *AccessStore) UsedCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := slices.Collect(maps.Keys(s.used))
	sort.Strings(codes)
	return codes, nil
}

func (s *AccessStore) HasAccess(_ context.Context, subject string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subjects[subject]
	return ok, nil
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && !t.Before(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}

var (
	_ domain.PurchaseStore = (*PurchaseStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
	_ domain.AccessStore   = (*AccessStore)(nil)
)
