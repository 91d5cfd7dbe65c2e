package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// Archiver exports cold protocol data to object storage as JSONL files.
// Deletion from the primary store is intentionally NOT performed here; that
// is a separate, explicit step executed after the archive has been verified.
type Archiver struct {
	writer  *Writer
	markets domain.MarketStore
	audit   domain.AuditStore
}

// NewArchiver creates an Archiver writing to the given Writer's bucket.
func NewArchiver(writer *Writer, markets domain.MarketStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:  writer,
		markets: markets,
		audit:   audit,
	}
}

// ArchiveAuditLog exports all audit entries recorded before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns the number of archived entries.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return count, nil
}

// ArchiveSettledMarkets exports finalized and cancelled markets created
// before the cutoff to archive/markets/YYYY-MM.jsonl and returns the number
// of archived markets.
func (a *Archiver) ArchiveSettledMarkets(ctx context.Context, before time.Time) (int64, error) {
	opts := domain.ListOpts{Until: &before}

	finalized, err := a.markets.ListByState(ctx, domain.StateFinalized, opts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	cancelled, err := a.markets.ListByState(ctx, domain.StateCancelled, opts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}

	settled := append(finalized, cancelled...)
	if len(settled) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(settled)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath("markets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	count := int64(len(settled))
	if err := a.audit.Log(ctx, "archive.markets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/audit/2026-01.jsonl
//	archive/markets/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
