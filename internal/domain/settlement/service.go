package settlement

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/core/numerator"
	"stockpos/internal/core/tx"
	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/policy"
	"stockpos/pkg/logger"
)

// Ledger is the part of the ledger service settlement uses.
type Ledger interface {
	Get(ctx context.Context, key ledger.Key) (*ledger.Record, error)
	AddStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error)
	RemoveStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error)
}

// Service settles sales and returns.
//
// Settling runs in two phases. The validate phase checks every line against
// available stock and rejects the whole bill before anything is written.
// After the bill is stored, the commit phase applies stock product by product,
// one movement per product referencing the transaction ID. A failing product
// is logged and recorded as a discrepancy but does not undo the bill or the
// other products. RetryStockUpdates re-runs the commit phase; products already
// applied are skipped by the ledger's reference check.
type Service struct {
	repo      Repository
	ledger    Ledger
	numerator numerator.Generator
	txManager tx.Manager
	negative  ledger.NegativeStockPolicy
	audit     audit.Recorder
	now       func() time.Time
}

// NewService creates the settlement service. negative and recorder may be nil.
func NewService(
	repo Repository,
	ledgerSvc Ledger,
	gen numerator.Generator,
	txManager tx.Manager,
	negative ledger.NegativeStockPolicy,
	recorder audit.Recorder,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		numerator: gen,
		txManager: txManager,
		negative:  negative,
		audit:     recorder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Settle validates and settles a sale, then removes its stock.
func (s *Service) Settle(ctx context.Context, req SaleRequest) (*Transaction, error) {
	if err := validateHeader(req.StoreID, req.CashierID, req.Lines); err != nil {
		return nil, err
	}
	if existing, err := s.existing(ctx, req.ID, KindSale); existing != nil || err != nil {
		return existing, err
	}

	if err := s.validateAvailability(ctx, req); err != nil {
		return nil, err
	}

	t, err := s.create(ctx, KindSale, req.ID, req.StoreID, req.CashierID, nil, req.Lines, nil)
	if err != nil {
		return nil, err
	}

	s.commit(ctx, t)
	return t, nil
}

// Return settles a return and adds its stock back.
func (s *Service) Return(ctx context.Context, req ReturnRequest) (*Transaction, error) {
	if err := validateHeader(req.StoreID, req.CashierID, req.Lines); err != nil {
		return nil, err
	}
	if existing, err := s.existing(ctx, req.ID, KindReturn); existing != nil || err != nil {
		return existing, err
	}

	var check func(ctx context.Context) error
	if req.OriginalID != nil {
		check = func(ctx context.Context) error { return s.validateAgainstOriginal(ctx, req) }
	}

	t, err := s.create(ctx, KindReturn, req.ID, req.StoreID, req.CashierID, req.OriginalID, req.Lines, check)
	if err != nil {
		return nil, err
	}

	s.commit(ctx, t)
	return t, nil
}

// RetryStockUpdates re-applies stock for lines that failed or never ran.
func (s *Service) RetryStockUpdates(ctx context.Context, txID id.ID) (*Transaction, error) {
	t, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.StockStatus == StockApplied {
		return t, nil
	}

	logger.Info(ctx, "retrying stock updates", "transaction_id", t.ID, "number", t.Number)
	s.commit(ctx, t)
	return t, nil
}

// Get returns a transaction with its lines.
func (s *Service) Get(ctx context.Context, txID id.ID) (*Transaction, error) {
	if id.IsNil(txID) {
		return nil, apperror.NewValidation("transaction id is required").WithDetail("field", "id")
	}
	t, err := s.repo.Get(ctx, txID)
	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			return nil, err
		}
		return nil, apperror.NewPersistence("get_transaction", err)
	}
	return t, nil
}

func (s *Service) existing(ctx context.Context, txID *id.ID, kind Kind) (*Transaction, error) {
	if txID == nil {
		return nil, nil
	}
	t, err := s.repo.Get(ctx, *txID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperror.NewPersistence("get_transaction", err)
	}
	if t.Kind != kind {
		return nil, apperror.NewValidation("transaction id is already used by a "+string(t.Kind)).
			WithDetail("field", "id").
			WithDetail("kind", t.Kind)
	}
	logger.Info(ctx, "transaction already settled", "transaction_id", t.ID, "number", t.Number)
	return t, nil
}

// validateAvailability is the fail-closed phase: nothing has been written yet.
func (s *Service) validateAvailability(ctx context.Context, req SaleRequest) error {
	// the same product on several lines is checked against its combined quantity
	wanted := make(map[id.ID]int64, len(req.Lines))
	order := make([]id.ID, 0, len(req.Lines))
	for _, l := range req.Lines {
		if _, seen := wanted[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		wanted[l.ProductID] += l.Quantity
	}

	for _, productID := range order {
		qty := wanted[productID]
		rec, err := s.ledger.Get(ctx, ledger.Key{ProductID: productID, StoreID: req.StoreID})
		if err != nil {
			if apperror.IsNotFound(err) {
				logger.Warn(ctx, "no inventory record for sold product, skipping stock check",
					"product_id", productID, "store_id", req.StoreID)
				continue
			}
			return err
		}
		if rec.AvailableStock >= qty {
			continue
		}

		if s.negative != nil {
			allowed, err := s.negative.AllowNegative(ctx, policy.Line{
				StoreID:   req.StoreID,
				Category:  rec.Snapshot.Category,
				Requested: qty,
				OnHand:    rec.CurrentStock,
			})
			if err != nil {
				return apperror.NewPersistence("check_negative_stock", err)
			}
			if allowed {
				logger.Info(ctx, "selling beyond available stock, store allows negative stock",
					"product_id", productID, "store_id", req.StoreID,
					"requested", qty, "available", rec.AvailableStock)
				continue
			}
		}

		return apperror.NewInsufficientAvailableStock(productID.String(), qty, rec.AvailableStock).
			WithDetail("store_id", req.StoreID.String())
	}
	return nil
}

func (s *Service) validateAgainstOriginal(ctx context.Context, req ReturnRequest) error {
	orig, err := s.Get(ctx, *req.OriginalID)
	if err != nil {
		return err
	}
	if orig.Kind != KindSale {
		return apperror.NewValidation("original transaction is not a sale").
			WithDetail("field", "originalId")
	}
	if orig.StoreID != req.StoreID {
		return apperror.NewValidation("original sale belongs to another store").
			WithDetail("field", "originalId")
	}

	sold := make(map[id.ID]int64, len(orig.Lines))
	for _, l := range orig.Lines {
		sold[l.ProductID] += l.Quantity
	}
	// earlier returns against the same sale count toward the limit
	returned, err := s.repo.ReturnedQuantities(ctx, orig.ID)
	if err != nil {
		return apperror.NewPersistence("get_returned_quantities", err)
	}
	for i, l := range req.Lines {
		returned[l.ProductID] += l.Quantity
		if returned[l.ProductID] > sold[l.ProductID] {
			return apperror.NewValidation("return exceeds sold quantity").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1).
				WithDetail("sold", sold[l.ProductID]).
				WithDetail("returned", returned[l.ProductID]-l.Quantity)
		}
	}
	return nil
}

// create numbers and stores the transaction. check, when set, runs first
// inside the same transaction.
func (s *Service) create(ctx context.Context, kind Kind, txID *id.ID, storeID id.ID, cashierID string, originalID *id.ID, lines []LineInput, check func(ctx context.Context) error) (*Transaction, error) {
	now := s.now()
	newID := id.New()
	if txID != nil && !id.IsNil(*txID) {
		newID = *txID
	}
	t := newTransaction(newID, kind, storeID, cashierID, lines, now)
	t.OriginalID = originalID

	prefix := salePrefix
	if kind == KindReturn {
		prefix = returnPrefix
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if check != nil {
			if err := check(ctx); err != nil {
				return err
			}
		}
		number, err := s.numerator.GetNextNumber(ctx,
			numerator.DefaultConfig(prefix, storeID.String()),
			&numerator.Options{Strategy: numeratorStrategy}, now)
		if err != nil {
			return apperror.NewPersistence("generate_number", fmt.Errorf("generate number: %w", err))
		}
		t.Number = number
		return s.repo.Create(ctx, t)
	})
	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			return nil, err
		}
		return nil, apperror.NewPersistence("create_transaction", err)
	}

	logger.Info(ctx, "transaction settled",
		"transaction_id", t.ID, "number", t.Number, "kind", t.Kind,
		"store_id", t.StoreID, "lines", len(t.Lines), "total", t.Total.String())
	return t, nil
}

// commit applies stock for every product whose lines are still pending or failed.
// It never returns an error: the bill is settled and failures go to the audit channel.
func (s *Service) commit(ctx context.Context, t *Transaction) {
	refType := ledger.ReferenceSale
	failKind := audit.KindSaleLineNotApplied
	if t.Kind == KindReturn {
		refType = ledger.ReferenceReturn
		failKind = audit.KindReturnLineNotApplied
	}

	for _, g := range openGroups(t) {
		key := ledger.Key{ProductID: g.productID, StoreID: t.StoreID}
		m := ledger.Mutation{
			Quantity:      g.quantity,
			Reason:        fmt.Sprintf("%s %s %s", t.Kind, t.Number, g.lineNos(t)),
			Actor:         t.CashierID,
			ReferenceID:   t.ID.String(),
			ReferenceType: refType,
		}

		var err error
		if t.Kind == KindReturn {
			m.Type = ledger.MovementReturn
			_, err = s.ledger.AddStock(ctx, key, m)
		} else {
			_, err = s.ledger.RemoveStock(ctx, key, m)
		}

		outcome, stockErr := OutcomeApplied, ""
		switch {
		case err == nil:
		case apperror.IsNotFound(err):
			outcome = OutcomeUntracked
			audit.Report(ctx, s.audit, audit.Discrepancy{
				Kind:          audit.KindUntrackedItem,
				ReferenceType: string(refType),
				ReferenceID:   t.ID.String(),
				ProductID:     g.productID,
				StoreID:       t.StoreID,
				Quantity:      g.quantity,
				Cause:         err.Error(),
				Actor:         t.CashierID,
			})
		default:
			outcome, stockErr = OutcomeFailed, err.Error()
			audit.Report(ctx, s.audit, audit.Discrepancy{
				Kind:          failKind,
				ReferenceType: string(refType),
				ReferenceID:   t.ID.String(),
				ProductID:     g.productID,
				StoreID:       t.StoreID,
				Quantity:      g.quantity,
				Cause:         err.Error(),
				Actor:         t.CashierID,
			})
		}
		for _, i := range g.lines {
			t.Lines[i].Outcome = outcome
			t.Lines[i].StockError = stockErr
		}
	}

	t.refreshStockStatus()
	if err := s.repo.SaveStockOutcome(context.WithoutCancel(ctx), t); err != nil {
		logger.Error(ctx, "failed to save stock outcome",
			"transaction_id", t.ID, "stock_status", t.StockStatus, "error", err)
	}
	if t.StockStatus == StockPartial {
		logger.Warn(ctx, "transaction settled with stock discrepancies",
			"transaction_id", t.ID, "number", t.Number)
	}
}

// lineGroup is the open lines of one product, applied as a single movement.
type lineGroup struct {
	productID id.ID
	quantity  int64
	lines     []int
}

func (g lineGroup) lineNos(t *Transaction) string {
	nos := make([]string, 0, len(g.lines))
	for _, i := range g.lines {
		nos = append(nos, strconv.Itoa(t.Lines[i].LineNo))
	}
	if len(nos) == 1 {
		return "line " + nos[0]
	}
	return "lines " + strings.Join(nos, ",")
}

// openGroups groups lines not yet applied by product, in first-seen order.
// Lines of one product always share an outcome, so a group is all or nothing.
func openGroups(t *Transaction) []lineGroup {
	var groups []lineGroup
	pos := make(map[id.ID]int)
	for i, l := range t.Lines {
		if l.Outcome == OutcomeApplied || l.Outcome == OutcomeUntracked {
			continue
		}
		gi, ok := pos[l.ProductID]
		if !ok {
			gi = len(groups)
			pos[l.ProductID] = gi
			groups = append(groups, lineGroup{productID: l.ProductID})
		}
		groups[gi].quantity += l.Quantity
		groups[gi].lines = append(groups[gi].lines, i)
	}
	return groups
}
