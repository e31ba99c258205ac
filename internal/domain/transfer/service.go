// Package transfer moves stock of one product between two stores.
//
// A transfer is two independent ledger mutations: remove at the source, then
// add at the destination. There is no compensating rollback. When the
// destination step fails the source stays debited, the gap is reported as a
// discrepancy and the caller gets TRANSFER_INCOMPLETE with the transfer ID.
// Retrying with that ID is safe: the source step is skipped as already applied.
package transfer

import (
	"context"
	"fmt"
	"time"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/ledger"
	"stockpos/pkg/logger"
)

// Ledger is the part of the ledger service transfers use.
type Ledger interface {
	EnsureRecord(ctx context.Context, key ledger.Key, fallback *catalog.Product) (*ledger.Record, error)
	AddStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error)
	RemoveStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error)
}

// Request describes a transfer.
type Request struct {
	// TransferID is optional; pass the ID of a failed attempt to resume it.
	TransferID  *id.ID `json:"transferId,omitempty"`
	ProductID   id.ID  `json:"productId"`
	FromStoreID id.ID  `json:"fromStoreId"`
	ToStoreID   id.ID  `json:"toStoreId"`
	Quantity    int64  `json:"quantity"`
	Reason      string `json:"reason"`
	Actor       string `json:"performedBy"`
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if id.IsNil(r.ProductID) {
		return apperror.NewValidation("productId is required").WithDetail("field", "productId")
	}
	if id.IsNil(r.FromStoreID) {
		return apperror.NewValidation("fromStoreId is required").WithDetail("field", "fromStoreId")
	}
	if id.IsNil(r.ToStoreID) {
		return apperror.NewValidation("toStoreId is required").WithDetail("field", "toStoreId")
	}
	if r.FromStoreID == r.ToStoreID {
		return apperror.NewValidation("source and destination store must differ").
			WithDetail("field", "toStoreId")
	}
	if r.Quantity <= 0 {
		return apperror.NewInvalidQuantity("transfer", r.Quantity)
	}
	if r.Actor == "" {
		return apperror.NewValidation("performedBy is required").WithDetail("field", "performedBy")
	}
	return nil
}

// Result of a transfer.
type Result struct {
	TransferID  id.ID          `json:"transferId"`
	Source      *ledger.Record `json:"source"`
	Destination *ledger.Record `json:"destination"`
}

// Service runs transfers.
type Service struct {
	ledger Ledger
	audit  audit.Recorder
}

// NewService creates the transfer service. recorder may be nil.
func NewService(ledgerSvc Ledger, recorder audit.Recorder) *Service {
	return &Service{ledger: ledgerSvc, audit: recorder}
}

// Transfer removes quantity at the source store and adds it at the destination.
func (s *Service) Transfer(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	transferID := id.New()
	if req.TransferID != nil && !id.IsNil(*req.TransferID) {
		transferID = *req.TransferID
	}
	ref := transferID.String()
	reason := req.Reason
	if reason == "" {
		reason = "stock transfer"
	}

	srcKey := ledger.Key{ProductID: req.ProductID, StoreID: req.FromStoreID}
	dstKey := ledger.Key{ProductID: req.ProductID, StoreID: req.ToStoreID}

	src, err := s.ledger.RemoveStock(ctx, srcKey, ledger.Mutation{
		Quantity:      req.Quantity,
		Reason:        fmt.Sprintf("%s to store %s", reason, req.ToStoreID),
		Actor:         req.Actor,
		ReferenceID:   ref,
		ReferenceType: ledger.ReferenceTransfer,
		Type:          ledger.MovementTransferOut,
	})
	if err != nil {
		return nil, err
	}

	dst, err := s.credit(ctx, dstKey, src.Record, req, reason, ref)
	if err != nil {
		audit.Report(ctx, s.audit, audit.Discrepancy{
			Kind:          audit.KindTransferUnbalanced,
			ReferenceType: string(ledger.ReferenceTransfer),
			ReferenceID:   ref,
			ProductID:     req.ProductID,
			StoreID:       req.ToStoreID,
			Quantity:      req.Quantity,
			Cause:         err.Error(),
			Actor:         req.Actor,
		})
		return nil, apperror.NewTransferIncomplete(transferID, err).
			WithDetail("from_store_id", req.FromStoreID.String()).
			WithDetail("to_store_id", req.ToStoreID.String())
	}

	logger.Info(ctx, "stock transferred",
		"transfer_id", transferID, "product_id", req.ProductID,
		"from_store_id", req.FromStoreID, "to_store_id", req.ToStoreID, "quantity", req.Quantity)

	return &Result{TransferID: transferID, Source: src.Record, Destination: dst.Record}, nil
}

func (s *Service) credit(ctx context.Context, key ledger.Key, source *ledger.Record, req Request, reason, ref string) (*ledger.Result, error) {
	if _, err := s.ledger.EnsureRecord(ctx, key, seedFrom(source, key.StoreID)); err != nil {
		return nil, fmt.Errorf("ensure destination record: %w", err)
	}
	return s.ledger.AddStock(ctx, key, ledger.Mutation{
		Quantity:      req.Quantity,
		Reason:        fmt.Sprintf("%s from store %s", reason, req.FromStoreID),
		Actor:         req.Actor,
		ReferenceID:   ref,
		ReferenceType: ledger.ReferenceTransfer,
		Type:          ledger.MovementTransferIn,
	})
}

// seedFrom builds a catalog product from the source record, used when the
// destination store's catalog does not list the product.
func seedFrom(src *ledger.Record, storeID id.ID) *catalog.Product {
	if src == nil {
		return nil
	}
	return &catalog.Product{
		ID:              src.ProductID,
		StoreID:         storeID,
		Name:            src.Snapshot.Name,
		Barcode:         src.Snapshot.Barcode,
		Category:        src.Snapshot.Category,
		CostPrice:       src.Snapshot.CostPrice,
		SellingPrice:    src.Snapshot.SellingPrice,
		ReorderPoint:    src.ReorderPoint,
		ReorderQuantity: src.ReorderQuantity,
		MaxStockLevel:   src.MaxStockLevel,
		ExpiryDate:      src.Snapshot.ExpiryDate,
		UpdatedAt:       time.Now().UTC(),
	}
}
