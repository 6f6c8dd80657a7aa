package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// DistributionArchiveStore is the slice of the ledger the archiver reads.
type DistributionArchiveStore interface {
	ListDistributionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DistributionEvent, error)
}

// AuditArchiveStore provides read access to aged audit entries.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error)
	Log(ctx context.Context, event string, detail map[string]any) error
}

// archiveBatchLimit caps how many rows one archive run pulls from the
// primary store.
const archiveBatchLimit = 50_000

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, and uploading the result to blob
// storage.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here. That is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer        domain.BlobWriter
	distributions DistributionArchiveStore
	audit         AuditArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, distributions DistributionArchiveStore, audit AuditArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:        writer,
		distributions: distributions,
		audit:         audit,
	}
}

// ArchiveDistributions queries distribution events before the cutoff,
// serializes them to JSONL, and uploads the file at
// archive/distributions/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveDistributions(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.distributions.ListDistributionsBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive distributions query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive distributions marshal: %w", err)
	}

	path := archivePath("distributions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive distributions upload: %w", err)
	}

	count := int64(len(events))

	if err := a.audit.Log(ctx, "archive.distributions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive distributions audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog queries audit entries before the cutoff, serializes them to
// JSONL, and uploads the file at archive/audit/YYYY-MM.jsonl. The count of
// archived records is returned.
func (a *ArchiveImpl) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, archiveBatchLimit)
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

	return int64(len(entries)), nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/distributions/2026-01.jsonl
//	archive/audit/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
