package inventory_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/settlement"
	"stockpos/internal/infrastructure/storage/postgres"
)

const (
	transactionsTable = "pos_transactions"
	linesTable        = "pos_transaction_lines"
)

// lineRow is a transaction line with its parent key.
type lineRow struct {
	TransactionID id.ID `db:"transaction_id"`
	settlement.Line
}

var (
	transactionColumns = postgres.ExtractDBColumns[settlement.Transaction]()
	lineColumns        = postgres.ExtractDBColumns[lineRow]()
)

// TransactionRepo implements settlement.Repository.
type TransactionRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	builder   squirrel.StatementBuilderType
}

var _ settlement.Repository = (*TransactionRepo)(nil)

// NewTransactionRepo creates a new transaction repository.
func NewTransactionRepo(txManager *postgres.TxManager) *TransactionRepo {
	return &TransactionRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and lines. Must run inside a transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *settlement.Transaction) error {
	sql, args, err := r.builder.Insert(transactionsTable).SetMap(postgres.StructToMap(t)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewConflict("transaction already exists").
				WithDetail("id", t.ID.String()).
				WithCause(err)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}

	rows := make([][]any, 0, len(t.Lines))
	for _, l := range t.Lines {
		rows = append(rows, postgres.StructValues(lineRow{TransactionID: t.ID, Line: l}, lineColumns))
	}
	if _, err := r.inserter.Insert(ctx, linesTable, lineColumns, rows); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

// Get loads the header and its lines ordered by line number.
func (r *TransactionRepo) Get(ctx context.Context, txID id.ID) (*settlement.Transaction, error) {
	sql, args, err := r.builder.Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{"id": txID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := r.txManager.GetQuerier(ctx)
	var t settlement.Transaction
	if err := pgxscan.Get(ctx, q, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transaction", txID.String())
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	sql, args, err = r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"transaction_id": txID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []lineRow
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	t.Lines = make([]settlement.Line, 0, len(rows))
	for _, row := range rows {
		t.Lines = append(t.Lines, row.Line)
	}
	return &t, nil
}

// SaveStockOutcome writes every line's outcome and the header stock status in one batch.
func (r *TransactionRepo) SaveStockOutcome(ctx context.Context, t *settlement.Transaction) error {
	batch := &pgx.Batch{}

	sql, args, err := r.builder.Update(transactionsTable).
		Set("stock_status", t.StockStatus).
		Where(squirrel.Eq{"id": t.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	batch.Queue(sql, args...)

	for _, l := range t.Lines {
		sql, args, err := r.builder.Update(linesTable).
			Set("stock_outcome", l.Outcome).
			Set("stock_error", l.StockError).
			Where(squirrel.Eq{"transaction_id": t.ID, "line_no": l.LineNo}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		batch.Queue(sql, args...)
	}

	results := r.txManager.GetQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save stock outcome: %w", err)
		}
	}
	return nil
}

// ReturnedQuantities locks the original sale row, then sums the lines of its returns per product.
func (r *TransactionRepo) ReturnedQuantities(ctx context.Context, originalID id.ID) (map[id.ID]int64, error) {
	q := r.txManager.GetQuerier(ctx)

	sql, args, err := r.builder.Select("id").
		From(transactionsTable).
		Where(squirrel.Eq{"id": originalID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("lock original transaction: %w", err)
	}

	sql, args, err = r.builder.Select("l.product_id", "SUM(l.quantity)::bigint AS quantity").
		From(linesTable + " l").
		Join(transactionsTable + " t ON t.id = l.transaction_id").
		Where(squirrel.Eq{"t.original_id": originalID, "t.kind": settlement.KindReturn}).
		GroupBy("l.product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []struct {
		ProductID id.ID `db:"product_id"`
		Quantity  int64 `db:"quantity"`
	}
	if err := pgxscan.Select(ctx, q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("sum returned quantities: %w", err)
	}

	out := make(map[id.ID]int64, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Quantity
	}
	return out, nil
}
