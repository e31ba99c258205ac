// Package inventory_repo provides PostgreSQL implementations of the ledger,
// settlement and catalog repositories.
package inventory_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/core/types"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/infrastructure/storage/postgres"
)

const (
	recordsTable   = "inv_records"
	movementsTable = "inv_movements"
)

// recordRow is the flattened inv_records row.
type recordRow struct {
	ID              id.ID           `db:"id"`
	ProductID       id.ID           `db:"product_id"`
	StoreID         id.ID           `db:"store_id"`
	CurrentStock    int64           `db:"current_stock"`
	ReservedStock   int64           `db:"reserved_stock"`
	AvailableStock  int64           `db:"available_stock"`
	ReorderPoint    int64           `db:"reorder_point"`
	ReorderQuantity int64           `db:"reorder_quantity"`
	MaxStockLevel   int64           `db:"max_stock_level"`
	ProductName     string          `db:"product_name"`
	Barcode         string          `db:"barcode"`
	Category        string          `db:"category"`
	CostPrice       types.Money     `db:"cost_price"`
	SellingPrice    types.Money     `db:"selling_price"`
	ExpiryDate      *time.Time      `db:"expiry_date"`
	SnapshotSynced  time.Time       `db:"snapshot_synced_at"`
	Alerts          json.RawMessage `db:"alerts"`
	AverageCost     types.Money     `db:"average_cost"`
	TotalValue      types.Money     `db:"total_value"`
	LastMovementAt  *time.Time      `db:"last_movement_at"`
	Version         int             `db:"version"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

var (
	recordColumns   = postgres.ExtractDBColumns[recordRow]()
	movementColumns = postgres.ExtractDBColumns[ledger.Movement]()
)

func toRow(r *ledger.Record) (recordRow, error) {
	alerts, err := json.Marshal(r.Alerts)
	if err != nil {
		return recordRow{}, fmt.Errorf("marshal alerts: %w", err)
	}
	return recordRow{
		ID:              r.ID,
		ProductID:       r.ProductID,
		StoreID:         r.StoreID,
		CurrentStock:    r.CurrentStock,
		ReservedStock:   r.ReservedStock,
		AvailableStock:  r.AvailableStock,
		ReorderPoint:    r.ReorderPoint,
		ReorderQuantity: r.ReorderQuantity,
		MaxStockLevel:   r.MaxStockLevel,
		ProductName:     r.Snapshot.Name,
		Barcode:         r.Snapshot.Barcode,
		Category:        r.Snapshot.Category,
		CostPrice:       r.Snapshot.CostPrice,
		SellingPrice:    r.Snapshot.SellingPrice,
		ExpiryDate:      r.Snapshot.ExpiryDate,
		SnapshotSynced:  r.Snapshot.SyncedAt,
		Alerts:          alerts,
		AverageCost:     r.AverageCost,
		TotalValue:      r.TotalValue,
		LastMovementAt:  r.LastMovementAt,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func (row recordRow) toRecord() (*ledger.Record, error) {
	r := &ledger.Record{
		ID:              row.ID,
		ProductID:       row.ProductID,
		StoreID:         row.StoreID,
		CurrentStock:    row.CurrentStock,
		ReservedStock:   row.ReservedStock,
		AvailableStock:  row.AvailableStock,
		ReorderPoint:    row.ReorderPoint,
		ReorderQuantity: row.ReorderQuantity,
		MaxStockLevel:   row.MaxStockLevel,
		Snapshot: ledger.ProductSnapshot{
			Name:         row.ProductName,
			Barcode:      row.Barcode,
			Category:     row.Category,
			CostPrice:    row.CostPrice,
			SellingPrice: row.SellingPrice,
			ExpiryDate:   row.ExpiryDate,
			SyncedAt:     row.SnapshotSynced,
		},
		AverageCost:    row.AverageCost,
		TotalValue:     row.TotalValue,
		LastMovementAt: row.LastMovementAt,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.Alerts) > 0 {
		if err := json.Unmarshal(row.Alerts, &r.Alerts); err != nil {
			return nil, fmt.Errorf("unmarshal alerts of record %s: %w", row.ID, err)
		}
	}
	return r, nil
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(recordColumns...).From(recordsTable)
}

// Get returns the record for key.
func (r *LedgerRepo) Get(ctx context.Context, key ledger.Key) (*ledger.Record, error) {
	sql, args, err := r.baseSelect().
		Where(squirrel.Eq{"product_id": key.ProductID, "store_id": key.StoreID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row recordRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(recordsTable, key.ProductID.String()+"@"+key.StoreID.String())
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return row.toRecord()
}

// Create inserts rec with version 1.
func (r *LedgerRepo) Create(ctx context.Context, rec *ledger.Record) error {
	rec.Version = 1
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Insert(recordsTable).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// another writer created the record for this key first
			return apperror.NewConcurrentModification("inventory_record", rec.Key()).WithCause(err)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update writes rec when the stored version still equals rec.Version.
func (r *LedgerRepo) Update(ctx context.Context, rec *ledger.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	data := postgres.StructToMap(row)
	for _, col := range []string{"id", "product_id", "store_id", "created_at", "version"} {
		delete(data, col)
	}

	sql, args, err := r.builder.Update(recordsTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rec.ID}).
		Where(squirrel.Eq{"version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("inventory_record", rec.ID)
	}
	rec.Version++
	return nil
}

// AppendMovements inserts movements within the current transaction.
func (r *LedgerRepo) AppendMovements(ctx context.Context, movements []ledger.Movement) error {
	rows := make([][]any, 0, len(movements))
	for i := range movements {
		rows = append(rows, postgres.StructValues(&movements[i], movementColumns))
	}
	if _, err := r.inserter.Insert(ctx, movementsTable, movementColumns, rows); err != nil {
		return fmt.Errorf("append movements: %w", err)
	}
	return nil
}

// HasReference reports whether the record already has a movement for the reference.
func (r *LedgerRepo) HasReference(ctx context.Context, recordID id.ID, refType ledger.ReferenceType, refID string) (bool, error) {
	sql, args, err := r.builder.Select("1").
		From(movementsTable).
		Where(squirrel.Eq{"record_id": recordID, "reference_type": refType, "reference_id": refID}).
		Limit(1).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check reference: %w", err)
	}
	return exists, nil
}

// ListMovements returns movements of one record, oldest first.
func (r *LedgerRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	sql, args, err := movementQuery(r.builder, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// List returns records matching filter ordered by current stock.
func (r *LedgerRepo) List(ctx context.Context, filter ledger.ListFilter) ([]ledger.Record, error) {
	sql, args, err := listQuery(r.baseSelect(), filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []recordRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}

	out := make([]ledger.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func movementQuery(b squirrel.StatementBuilderType, f ledger.MovementFilter) squirrel.SelectBuilder {
	q := b.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": f.ProductID, "store_id": f.StoreID})
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": *f.Type})
	}
	if f.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.FromDate})
	}
	if f.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.ToDate})
	}
	q = q.OrderBy("created_at", "id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func listQuery(q squirrel.SelectBuilder, f ledger.ListFilter) squirrel.SelectBuilder {
	if f.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *f.StoreID})
	}
	if f.LowStockOnly {
		q = q.Where("current_stock <= reorder_point")
	}
	if f.WithExpiry {
		q = q.Where(squirrel.NotEq{"expiry_date": nil})
	}
	q = q.OrderBy("current_stock", "id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}
