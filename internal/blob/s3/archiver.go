package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

const drawPrefix = "draws/"

// DrawArchiver implements domain.DrawArchive as one JSON object per round at
// draws/<lotteryId>.json.
type DrawArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewDrawArchiver creates a DrawArchiver. audit may be nil.
func NewDrawArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *DrawArchiver {
	return &DrawArchiver{writer: writer, reader: reader, audit: audit}
}

// DrawPath returns the object key for a round.
func DrawPath(lotteryID string) string {
	return drawPrefix + lotteryID + ".json"
}

// ArchiveDraw uploads d and records the upload in the audit log. Archiving
// the same round twice overwrites the object.
func (a *DrawArchiver) ArchiveDraw(ctx context.Context, d domain.DrawResult) (string, error) {
	if strings.TrimSpace(d.LotteryID) == "" {
		return "", fmt.Errorf("s3blob: archive draw: empty lottery id")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("s3blob: marshal draw %s: %w", d.LotteryID, err)
	}

	path := DrawPath(d.LotteryID)
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive draw %s: %w", d.LotteryID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "draw_archived", map[string]any{
			"lottery_id": d.LotteryID,
			"path":       path,
			"numbers":    d.WinningNumbers.Key(),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive draw %s audit log: %w", d.LotteryID, err)
		}
	}
	return path, nil
}

// GetDraw reads back an archived round.
func (a *DrawArchiver) GetDraw(ctx context.Context, lotteryID string) (domain.DrawResult, error) {
	body, err := a.reader.Get(ctx, DrawPath(lotteryID))
	if err != nil {
		return domain.DrawResult{}, err
	}
	defer body.Close()

	var d domain.DrawResult
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		return domain.DrawResult{}, fmt.Errorf("s3blob: decode draw %s: %w", lotteryID, err)
	}
	return d, nil
}

// ListDraws lists every archived round.
func (a *DrawArchiver) ListDraws(ctx context.Context) ([]domain.BlobInfo, error) {
	return a.reader.List(ctx, drawPrefix)
}

var _ domain.DrawArchive = (*DrawArchiver)(nil)
