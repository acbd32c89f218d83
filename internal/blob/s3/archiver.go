package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// ArchiveImpl implements domain.Archiver by serializing a market's
// settlement report to JSON and uploading it to S3. One object per resolved
// market, partitioned by resolution date, gives an immutable off-database
// audit trail of every payout the engine will ever authorize.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		audit:  audit,
	}
}

// ArchiveSettlement uploads the settlement report for one resolved market at
// settlements/YYYY/MM/DD/{marketID}.json and records the upload in the audit
// log. It returns the object path.
func (a *ArchiveImpl) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) (string, error) {
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement report %s: %w", report.Market.ID, err)
	}

	path := settlementPath(report)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload settlement report %s: %w", report.Market.ID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":      path,
		"market_id": report.Market.ID,
		"outcome":   string(report.Outcome),
		"positions": len(report.Positions),
		"fee_taken": report.FeeTaken,
		"anomalous": report.Anomalous,
	}); err != nil {
		return path, fmt.Errorf("s3blob: settlement archive audit log: %w", err)
	}

	return path, nil
}

// settlementPath builds the S3 key for a settlement report, partitioned by
// the market's resolution date.
//
//	settlements/2026/03/14/1f2e3d4c.json
func settlementPath(report domain.SettlementReport) string {
	at := report.GeneratedAt
	if report.Market.ResolvedAt != nil {
		at = *report.Market.ResolvedAt
	}
	return fmt.Sprintf("settlements/%s/%s.json", at.UTC().Format("2006/01/02"), report.Market.ID)
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
