package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockpos/internal/core/apperror"
	appctx "stockpos/internal/core/context"
	"stockpos/internal/core/id"
	"stockpos/internal/core/tx"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/policy"
	"stockpos/pkg/logger"
)

var tracer = otel.Tracer("stockpos/ledger")

// DefaultMaxRetries bounds automatic retries after a version conflict.
const DefaultMaxRetries = 3

// errUnchanged ends a unit of work without writing.
var errUnchanged = errors.New("record unchanged")

// Result of a mutation.
type Result struct {
	Record   *Record   `json:"record"`
	Movement *Movement `json:"movement,omitempty"`
	// Skipped is true when nothing was written: the reference had already been
	// applied or the operation changed nothing.
	Skipped bool `json:"skipped"`
}

// Service applies stock mutations with persistence, optimistic concurrency
// and idempotency by reference.
type Service struct {
	repo       Repository
	txManager  tx.Manager
	catalog    catalog.Reader
	negative   NegativeStockPolicy
	events     EventPublisher
	locker     Locker
	now        func() time.Time
	maxRetries int
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes alert transitions through p.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithLocker serializes writers per record.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMaxRetries sets how often a version conflict is retried.
func WithMaxRetries(n int) Option { return func(s *Service) { s.maxRetries = n } }

// NewService creates the ledger service. negative may be nil (hard floor everywhere).
func NewService(repo Repository, txManager tx.Manager, products catalog.Reader, negative NegativeStockPolicy, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		txManager:  txManager,
		catalog:    products,
		negative:   negative,
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record for key.
func (s *Service) Get(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, s.classify("get", key, err)
	}
	return r, nil
}

// EnsureRecord returns the record for key, creating it from the catalog when absent.
// fallback seeds the record when the catalog does not know the product in that store.
func (s *Service) EnsureRecord(ctx context.Context, key Key, fallback *catalog.Product) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r, err := s.repo.Get(ctx, key)
	if err == nil {
		return r, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, s.classify("ensure", key, err)
	}

	product, err := s.catalog.GetProduct(ctx, key.StoreID, key.ProductID)
	switch {
	case err == nil:
	case apperror.IsNotFound(err) && fallback != nil:
		product = fallback
	case apperror.IsNotFound(err):
		return nil, apperror.NewRecordNotFound(key.ProductID, key.StoreID)
	default:
		return nil, s.classify("ensure", key, fmt.Errorf("load product: %w", err))
	}

	rec, err := NewRecord(key, product, s.now())
	if err != nil {
		return nil, err
	}
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.save(ctx, rec, true)
	})
	if apperror.IsConcurrentModification(err) {
		// lost the insert race, the winner's record is the one to use
		return s.Get(ctx, key)
	}
	if err != nil {
		return nil, s.classify("ensure", key, err)
	}

	logger.Info(ctx, "created inventory record",
		"record_id", rec.ID, "product_id", key.ProductID, "store_id", key.StoreID)
	return rec, nil
}

// AddStock increases on-hand stock.
func (s *Service) AddStock(ctx context.Context, key Key, m Mutation) (*Result, error) {
	return s.mutate(ctx, "add_stock", key, &m, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		return r.AddStock(m, now)
	})
}

// RemoveStock decreases on-hand stock. The store's negative-stock policy decides
// whether the floor may be crossed; transfer_out always keeps the floor.
func (s *Service) RemoveStock(ctx context.Context, key Key, m Mutation) (*Result, error) {
	return s.mutate(ctx, "remove_stock", key, &m, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		allow := false
		if m.Quantity > 0 && r.CurrentStock < m.Quantity && s.negative != nil && m.Type != MovementTransferOut {
			var err error
			allow, err = s.negative.AllowNegative(ctx, policy.Line{
				StoreID:   r.StoreID,
				Category:  r.Snapshot.Category,
				Requested: m.Quantity,
				OnHand:    r.CurrentStock,
			})
			if err != nil {
				return nil, err
			}
		}
		return r.RemoveStock(m, allow, now)
	})
}

// AdjustStock sets on-hand stock to an absolute counted value.
func (s *Service) AdjustStock(ctx context.Context, key Key, newQuantity int64, m Mutation) (*Result, error) {
	if m.ReferenceType == "" {
		m.ReferenceType = ReferenceAdjustment
	}
	return s.mutate(ctx, "adjust_stock", key, &m, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		return r.AdjustStock(newQuantity, m, now)
	})
}

// ReserveStock places a soft hold on available stock.
func (s *Service) ReserveStock(ctx context.Context, key Key, quantity int64) (*Result, error) {
	return s.mutate(ctx, "reserve_stock", key, nil, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		return nil, r.ReserveStock(quantity, now)
	})
}

// ReleaseReservedStock frees reserved units, clamped at zero.
func (s *Service) ReleaseReservedStock(ctx context.Context, key Key, quantity int64) (*Result, error) {
	return s.mutate(ctx, "release_stock", key, nil, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		released, err := r.ReleaseReservedStock(quantity, now)
		if err != nil {
			return nil, err
		}
		if released == 0 {
			return nil, errUnchanged
		}
		return nil, nil
	})
}

// ListMovements returns the movement history of one record, oldest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if err := filter.Key.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	ms, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, s.classify("list_movements", filter.Key, err)
	}
	return ms, nil
}

// ListLowStock returns records of a store at or below their reorder point.
func (s *Service) ListLowStock(ctx context.Context, storeID id.ID, limit, offset int) ([]Record, error) {
	if id.IsNil(storeID) {
		return nil, apperror.NewValidation("storeId is required").WithDetail("field", "storeId")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	records, err := s.repo.List(ctx, ListFilter{StoreID: &storeID, LowStockOnly: true, Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperror.NewPersistence("list_low_stock", err)
	}
	return records, nil
}

// RefreshSnapshot re-reads the catalog product and replaces the record's snapshot.
func (s *Service) RefreshSnapshot(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	product, err := s.catalog.GetProduct(ctx, key.StoreID, key.ProductID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, s.classify("refresh_snapshot", key, fmt.Errorf("load product: %w", err))
	}

	res, err := s.mutate(ctx, "refresh_snapshot", key, nil, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
		r.ApplySnapshot(SnapshotOf(product, now), now)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// RefreshReport summarizes a store-wide snapshot refresh.
type RefreshReport struct {
	StoreID   id.ID `json:"storeId"`
	Refreshed int   `json:"refreshed"`
	Missing   int   `json:"missing"`
	Failed    int   `json:"failed"`
}

// RefreshStoreSnapshots refreshes the snapshot of every record in a store.
// Failures are counted and logged, the sweep continues.
func (s *Service) RefreshStoreSnapshots(ctx context.Context, storeID id.ID) (RefreshReport, error) {
	report := RefreshReport{StoreID: storeID}
	if id.IsNil(storeID) {
		return report, apperror.NewValidation("storeId is required").WithDetail("field", "storeId")
	}

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, err := s.repo.List(ctx, ListFilter{StoreID: &storeID, Limit: pageSize, Offset: offset})
		if err != nil {
			return report, apperror.NewPersistence("refresh_store_snapshots", err)
		}
		for _, rec := range page {
			if _, err := s.RefreshSnapshot(ctx, rec.Key()); err != nil {
				if apperror.IsNotFound(err) {
					report.Missing++
					logger.Warn(ctx, "product missing from catalog, snapshot kept",
						"product_id", rec.ProductID, "store_id", storeID)
					continue
				}
				report.Failed++
				logger.Error(ctx, "snapshot refresh failed",
					"product_id", rec.ProductID, "store_id", storeID, "error", err)
				continue
			}
			report.Refreshed++
		}
		if len(page) < pageSize {
			break
		}
	}

	logger.Info(ctx, "refreshed product snapshots",
		"store_id", storeID, "refreshed", report.Refreshed, "missing", report.Missing, "failed", report.Failed)
	return report, nil
}

// SweepAlerts re-evaluates alerts of records that carry an expiry date.
// Expiry alerts depend on the clock, so they change without any mutation.
// It returns the number of records whose alert state changed.
func (s *Service) SweepAlerts(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	changed := 0
	for offset := 0; ; offset += batchSize {
		page, err := s.repo.List(ctx, ListFilter{WithExpiry: true, Limit: batchSize, Offset: offset})
		if err != nil {
			return changed, apperror.NewPersistence("sweep_alerts", err)
		}
		for _, rec := range page {
			res, err := s.mutate(ctx, "sweep_alerts", rec.Key(), nil, func(ctx context.Context, r *Record, now time.Time) (*Movement, error) {
				if len(r.RefreshAlerts(now)) == 0 {
					return nil, errUnchanged
				}
				return nil, nil
			})
			if err != nil {
				logger.Error(ctx, "alert sweep failed for record",
					"product_id", rec.ProductID, "store_id", rec.StoreID, "error", err)
				continue
			}
			if !res.Skipped {
				changed++
			}
		}
		if len(page) < batchSize {
			break
		}
	}
	return changed, nil
}

type mutateFunc func(ctx context.Context, r *Record, now time.Time) (*Movement, error)

// mutate loads the record, applies fn and saves, retrying on version conflicts.
// A mutation whose reference was already applied returns the current record with Skipped set.
func (s *Service) mutate(ctx context.Context, op string, key Key, m *Mutation, fn mutateFunc) (*Result, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if m != nil && m.Actor == "" {
		m.Actor = appctx.GetUserID(ctx)
	}

	ctx, span := tracer.Start(ctx, "ledger."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("product_id", key.ProductID.String()),
		attribute.String("store_id", key.StoreID.String()),
	)

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, lockKey(key))
		if err != nil {
			span.SetStatus(codes.Error, "lock")
			return nil, apperror.NewConcurrentModification("inventory_record", key).WithCause(err)
		}
		defer release(context.WithoutCancel(ctx))
	}

	for attempt := 0; ; attempt++ {
		res, err := s.attempt(ctx, key, m, fn)
		if err == nil {
			return res, nil
		}
		if apperror.IsConcurrentModification(err) && attempt < s.maxRetries {
			logger.Debug(ctx, "version conflict, retrying",
				"op", op, "product_id", key.ProductID, "store_id", key.StoreID, "attempt", attempt+1)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		return nil, s.classify(op, key, err)
	}
}

func (s *Service) attempt(ctx context.Context, key Key, m *Mutation, fn mutateFunc) (*Result, error) {
	var res *Result
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.repo.Get(ctx, key)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewRecordNotFound(key.ProductID, key.StoreID)
			}
			return err
		}

		if m != nil && m.ReferenceID != "" {
			applied, err := s.repo.HasReference(ctx, rec.ID, m.ReferenceType, m.ReferenceID)
			if err != nil {
				return err
			}
			if applied {
				logger.Info(ctx, "reference already applied, skipping",
					"product_id", key.ProductID, "store_id", key.StoreID,
					"reference_type", m.ReferenceType, "reference_id", m.ReferenceID)
				res = &Result{Record: rec, Skipped: true}
				return nil
			}
		}

		mv, err := fn(ctx, rec, s.now())
		if errors.Is(err, errUnchanged) {
			res = &Result{Record: rec, Skipped: true}
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.save(ctx, rec, false); err != nil {
			return err
		}
		res = &Result{Record: rec, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) save(ctx context.Context, rec *Record, create bool) error {
	rec.Recompute()
	if create {
		if err := s.repo.Create(ctx, rec); err != nil {
			return err
		}
	} else if err := s.repo.Update(ctx, rec); err != nil {
		return err
	}

	if pending := rec.Movements().Pending(); len(pending) > 0 {
		if err := s.repo.AppendMovements(ctx, pending); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
	}
	if transitions := rec.PendingTransitions(); len(transitions) > 0 {
		if s.events != nil {
			if err := s.events.PublishAlerts(ctx, rec, transitions); err != nil {
				return fmt.Errorf("publish alerts: %w", err)
			}
		}
		for _, t := range transitions {
			logger.Info(ctx, "inventory alert changed",
				"product_id", rec.ProductID, "store_id", rec.StoreID,
				"alert", t.Kind, "active", t.Active, "current_stock", rec.CurrentStock)
		}
	}
	rec.MarkSaved()
	return nil
}

// classify passes AppErrors through and wraps anything else as a persistence failure.
func (s *Service) classify(op string, key Key, err error) error {
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewPersistence(op, err).
		WithDetail("product_id", key.ProductID.String()).
		WithDetail("store_id", key.StoreID.String())
}

func lockKey(key Key) string {
	return "inventory:" + key.StoreID.String() + ":" + key.ProductID.String()
}
