package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"hostal/internal/core/id"
	"hostal/internal/domain/fiscal/document"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of the append-only fiscal audit trail. Every
// allocation, transition, and backfill lands here; rows are never updated
// or deleted.
type AuditEntry struct {
	ID                id.ID                `db:"id"`
	Action            document.AuditAction `db:"action"`
	RecordID          id.ID                `db:"record_id"`
	Series            string               `db:"series"`
	SequentialNumber  int64                `db:"sequential_number"`
	Status            string               `db:"status"`
	Details           json.RawMessage      `db:"details"`
	DetailsCompressed []byte               `db:"details_compressed"`
	CompressionAlgo   CompressionAlgo      `db:"compression_algo"`
	CreatedAt         time.Time            `db:"created_at"`
}

// AuditLog persists the fiscal audit trail, compressing large detail
// payloads with zstd.
type AuditLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// Ensure compile-time interface compliance.
var _ document.Auditor = (*AuditLog)(nil)

// NewAuditLog creates the fiscal audit log writer.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements document.Auditor.
func (l *AuditLog) Record(ctx context.Context, action document.AuditAction, rec *document.Record, details map[string]any) error {
	var detailsJSON json.RawMessage
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = raw
	}

	entry := AuditEntry{
		ID:               id.New(),
		Action:           action,
		RecordID:         rec.ID,
		Series:           string(rec.Series),
		SequentialNumber: rec.SequentialNumber,
		Status:           string(rec.Status),
		Details:          detailsJSON,
		CompressionAlgo:  CompressionNone,
		CreatedAt:        time.Now().UTC(),
	}

	if len(entry.Details) > l.compressThreshold {
		entry.DetailsCompressed = l.encoder.EncodeAll(entry.Details, nil)
		entry.Details = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO fiscal_audit_log (
			id, action, record_id, series, sequential_number, status,
			details, details_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	querier := l.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.Action, entry.RecordID, entry.Series,
		entry.SequentialNumber, entry.Status,
		entry.Details, entry.DetailsCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}

// History retrieves the audit trail of one fiscal record, newest first.
func (l *AuditLog) History(ctx context.Context, recordID id.ID, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, action, record_id, series, sequential_number, status,
		       details, details_compressed, compression_algo, created_at
		FROM fiscal_audit_log
		WHERE record_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := l.txManager.GetQuerier(ctx).Query(ctx, sql, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.Action, &e.RecordID, &e.Series,
			&e.SequentialNumber, &e.Status,
			&e.Details, &e.DetailsCompressed, &e.CompressionAlgo,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.DetailsCompressed) > 0 {
			decompressed, err := l.decoder.DecodeAll(e.DetailsCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit details: %w", err)
			}
			e.Details = decompressed
			e.DetailsCompressed = nil
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
