package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copyThreshold is the row count from which COPY beats a multi-row INSERT.
const copyThreshold = 16

// BatchInserter writes many rows in one round-trip.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// Insert uses COPY for large inputs and a single INSERT otherwise.
// It requires a transaction so that a failed COPY leaves nothing behind.
func (b *BatchInserter) Insert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("batch insert into %s requires transaction context", table)
	}

	if len(rows) >= copyThreshold {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copy into %s: %w", table, err)
		}
		return n, nil
	}

	batch := &pgx.Batch{}
	sql := insertSQL(table, columns)
	for _, row := range rows {
		batch.Queue(sql, row...)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return int64(len(rows)), nil
}

func insertSQL(table string, columns []string) string {
	sql := "INSERT INTO " + pgx.Identifier{table}.Sanitize() + " ("
	values := ""
	for i, c := range columns {
		if i > 0 {
			sql += ", "
			values += ", "
		}
		sql += pgx.Identifier{c}.Sanitize()
		values += fmt.Sprintf("$%d", i+1)
	}
	return sql + ") VALUES (" + values + ")"
}
