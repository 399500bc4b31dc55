package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// AccessStore implements domain.AccessStore with a hash of redeemed codes
// and a set of subjects holding access. Used when PostgreSQL is not wired.
//
// Key schema:
//
//	<prefix>:access:codes    - hash code -> subject
//	<prefix>:access:subjects - set of subjects
type AccessStore struct {
	rdb         *redis.Client
	codesKey    string
	subjectsKey string
}

// NewAccessStore creates an AccessStore backed by the given Client.
func NewAccessStore(c *Client) *AccessStore {
	return &AccessStore{
		rdb:         c.Underlying(),
		codesKey:    c.Key("access", "codes"),
		subjectsKey: c.Key("access", "subjects"),
	}
}

// MarkUsed records code as redeemed by subject. HSETNX makes the first
// redemption win across replicas.
func (s *AccessStore) MarkUsed(ctx context.Context, code, subject string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	ok, err := s.rdb.HSetNX(ctx, s.codesKey, code, subject).Result()
	if err != nil {
		return fmt.Errorf("redis: mark code used: %w", err)
	}
	if !ok {
		return domain.ErrCodeUsed
	}
	if err := s.rdb.SAdd(ctx, s.subjectsKey, subject).Err(); err != nil {
		return fmt.Errorf("redis: grant access %s: %w", subject, err)
	}
	return nil
}

// UsedCodes returns the redeemed codes sorted.
func (s *AccessStore) UsedCodes(ctx context.Context) ([]string, error) {
	codes, err := s.rdb.HKeys(ctx, s.codesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: used codes: %w", err)
	}
	sort.Strings(codes)
	return codes, nil
}

// HasAccess reports whether subject redeemed a code.
func (s *AccessStore) HasAccess(ctx context.Context, subject string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.subjectsKey, subject).Result()
	if err != nil {
		return false, fmt.Errorf("redis: has access %s: %w", subject, err)
	}
	return ok, nil
}

var _ domain.AccessStore = (*AccessStore)(nil)
