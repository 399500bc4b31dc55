// Package access implements the invite-code gate in front of the lottery
// API. Codes are matched case-insensitively and each one can be redeemed
// exactly once; redeeming grants access to a subject (a wallet address or a
// session id).
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// Gate validates and redeems invite codes against an AccessStore.
type Gate struct {
	codes  []string
	store  domain.AccessStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewGate creates a Gate accepting codes. Codes are normalized to lower case
// and de-duplicated; blank entries are ignored.
func NewGate(codes []string, store domain.AccessStore, logger *slog.Logger) *Gate {
	normalized := make([]string, 0, len(codes))
	for _, c := range codes {
		c = normalize(c)
		if c != "" && !slices.Contains(normalized, c) {
			normalized = append(normalized, c)
		}
	}
	return &Gate{
		codes:  normalized,
		store:  store,
		logger: logger.With(slog.String("component", "access_gate")),
	}
}

// WithAudit records every successful redemption.
func (g *Gate) WithAudit(audit domain.AuditStore) *Gate {
	g.audit = audit
	return g
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidCode reports whether code is one of the configured codes.
func (g *Gate) IsValidCode(code string) bool {
	return slices.Contains(g.codes, normalize(code))
}

// IsCodeUsed reports whether code has already been redeemed.
func (g *Gate) IsCodeUsed(ctx context.Context, code string) (bool, error) {
	used, err := g.store.UsedCodes(ctx)
	if err != nil {
		return false, fmt.Errorf("access: used codes: %w", err)
	}
	return slices.Contains(used, normalize(code)), nil
}

// IsCodeAvailable reports whether code is valid and not yet redeemed.
func (g *Gate) IsCodeAvailable(ctx context.Context, code string) (bool, error) {
	if !g.IsValidCode(code) {
		return false, nil
	}
	used, err := g.IsCodeUsed(ctx, code)
	if err != nil {
		return false, err
	}
	return !used, nil
}

// AvailableCodes returns the configured codes that have not been redeemed,
// in configuration order.
func (g *Gate) AvailableCodes(ctx context.Context) ([]string, error) {
	used, err := g.store.UsedCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("access: used codes: %w", err)
	}
	out := make([]string, 0, len(g.codes))
	for _, c := range g.codes {
		if !slices.Contains(used, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Redeem marks code as used and grants subject access. It returns a
// ValidationError for blank input, ErrInvalidCode for an unknown code and
// ErrCodeUsed when the code was already redeemed.
func (g *Gate) Redeem(ctx context.Context, code, subject string) error {
	if normalize(code) == "" {
		return &domain.ValidationError{Field: "code", Reason: "Please enter a code."}
	}
	subject = normalize(subject)
	if subject == "" {
		return &domain.ValidationError{Field: "subject", Reason: "subject is required"}
	}
	if !g.IsValidCode(code) {
		return domain.ErrInvalidCode
	}

	if err := g.store.MarkUsed(ctx, normalize(code), subject); err != nil {
		if errors.Is(err, domain.ErrCodeUsed) {
			return err
		}
		return fmt.Errorf("access: redeem: %w", err)
	}

	g.logger.InfoContext(ctx, "access code redeemed", slog.String("subject", subject))
	if g.audit != nil {
		if err := g.audit.Log(ctx, "access_redeemed", map[string]any{
			"code":    normalize(code),
			"subject": subject,
		}); err != nil {
			g.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// HasAccess reports whether subject has redeemed a code.
func (g *Gate) HasAccess(ctx context.Context, subject string) (bool, error) {
	subject = normalize(subject)
	if subject == "" {
		return false, nil
	}
	ok, err := g.store.HasAccess(ctx, subject)
	if err != nil {
		return false, fmt.Errorf("access: has access: %w", err)
	}
	return ok, nil
}
