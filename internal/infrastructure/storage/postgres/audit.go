package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockpos/internal/core/id"
	"stockpos/internal/domain/audit"
)

const discrepancyEntityType = "inventory_discrepancy"

// CompressionAlgo specifies how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	Metadata          json.RawMessage `db:"metadata"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditLog stores stock discrepancies in sys_audit.
// Payloads above compressThreshold are zstd-compressed.
type AuditLog struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Recorder = (*AuditLog)(nil)

// NewAuditLog creates the audit log.
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
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// RecordDiscrepancy inserts one discrepancy.
func (l *AuditLog) RecordDiscrepancy(ctx context.Context, d audit.Discrepancy) error {
	if id.IsNil(d.ID) {
		d.ID = id.New()
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal discrepancy: %w", err)
	}
	meta, err := json.Marshal(map[string]string{
		"reference_type": d.ReferenceType,
		"reference_id":   d.ReferenceID,
		"store_id":       d.StoreID.String(),
		"product_id":     d.ProductID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	entry := AuditEntry{
		ID:              d.ID,
		EntityType:      discrepancyEntityType,
		EntityID:        d.ID,
		Action:          string(d.Kind),
		UserID:          d.Actor,
		Changes:         payload,
		CompressionAlgo: CompressionNone,
		Metadata:        meta,
		CreatedAt:       d.OccurredAt,
	}
	// the cause can carry a long wrapped error chain
	if len(payload) > l.compressThreshold {
		entry.ChangesCompressed = l.encoder.EncodeAll(payload, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql, args, err := l.builder.Insert("sys_audit").
		Columns("id", "entity_type", "entity_id", "action", "user_id",
			"changes", "changes_compressed", "compression_algo", "metadata", "created_at").
		Values(entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.UserID,
			entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo, entry.Metadata, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListDiscrepancies returns discrepancies recorded at or after since, newest first.
func (l *AuditLog) ListDiscrepancies(ctx context.Context, since time.Time, limit int) ([]audit.Discrepancy, error) {
	q := l.builder.Select("id", "entity_type", "entity_id", "action", "user_id",
		"changes", "changes_compressed", "compression_algo", "metadata", "created_at").
		From("sys_audit").
		Where(squirrel.Eq{"entity_type": discrepancyEntityType}).
		Where(squirrel.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}

	out := make([]audit.Discrepancy, 0, len(entries))
	for _, e := range entries {
		payload := []byte(e.Changes)
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			payload, err = l.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress entry %s: %w", e.ID, err)
			}
		}
		var d audit.Discrepancy
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}
