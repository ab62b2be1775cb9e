package inventory

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/movements"
	"stockledger/internal/domain/reports"
	"stockledger/internal/domain/validation"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/inventory")

// ViewCache caches the per-item and per-location listings. Invalidation is
// the implementation's job, driven by ledger change notifications.
type ViewCache interface {
	ItemLocations(ctx context.Context, itemID id.ID) ([]entity.InventoryEntry, bool)
	SetItemLocations(ctx context.Context, itemID id.ID, entries []entity.InventoryEntry)
	LocationItems(ctx context.Context, locationID id.ID) ([]entity.InventoryEntry, bool)
	SetLocationItems(ctx context.Context, locationID id.ID, entries []entity.InventoryEntry)
}

// Service is the entry point for callers of the inventory core.
type Service struct {
	ledger    *ledger.Service
	recorder  *movements.Service
	validator *validation.Validator
	reports   *reports.Service
	lookup    catalog.Lookup
	txManager tx.Manager
	views     ViewCache
}

// Option configures the service.
type Option func(*Service)

// WithViewCache caches item and location listings.
func WithViewCache(c ViewCache) Option {
	return func(s *Service) { s.views = c }
}

// NewService wires the inventory core.
func NewService(
	ledgerSvc *ledger.Service,
	recorder *movements.Service,
	validator *validation.Validator,
	reportSvc *reports.Service,
	lookup catalog.Lookup,
	txManager tx.Manager,
	opts ...Option,
) *Service {
	s := &Service{
		ledger:    ledgerSvc,
		recorder:  recorder,
		validator: validator,
		reports:   reportSvc,
		lookup:    lookup,
		txManager: txManager,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// startSpan opens the operation span and tags every log line written
// below it with the operation name.
func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx = logger.WithFields(ctx, "operation", op)
	return tracer.Start(ctx, "inventory."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// --- Mutations ---

// MoveItem validates and executes a transfer. The ledger change and both
// audit legs commit together.
func (s *Service) MoveItem(ctx context.Context, req MoveRequest) (res *MovementResult, err error) {
	ctx, span := startSpan(ctx, "MoveItem",
		attribute.String("item_id", req.ItemID.String()),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() { endSpan(span, err) }()

	from, to := req.FromLocationID, req.ToLocationID
	return s.commit(ctx, BulkItem{
		Request: validation.Request{
			ItemID:         req.ItemID,
			FromLocationID: &from,
			ToLocationID:   &to,
			Quantity:       req.Quantity,
			MovementType:   entity.MovementMove,
		},
		Reason: req.Reason,
		Notes:  req.Notes,
	})
}

// RecordItemCreation validates and records new quantity at a location.
func (s *Service) RecordItemCreation(ctx context.Context, req CreationRequest) (res *MovementResult, err error) {
	ctx, span := startSpan(ctx, "RecordItemCreation",
		attribute.String("item_id", req.ItemID.String()),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() { endSpan(span, err) }()

	to := req.LocationID
	return s.commit(ctx, BulkItem{
		Request: validation.Request{
			ItemID:       req.ItemID,
			ToLocationID: &to,
			Quantity:     req.Quantity,
			MovementType: entity.MovementCreate,
		},
		Reason: req.Reason,
		Notes:  req.Notes,
	})
}

// RecordItemRemoval validates and records quantity leaving the system.
func (s *Service) RecordItemRemoval(ctx context.Context, req RemovalRequest) (res *MovementResult, err error) {
	ctx, span := startSpan(ctx, "RecordItemRemoval",
		attribute.String("item_id", req.ItemID.String()),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() { endSpan(span, err) }()

	from := req.LocationID
	return s.commit(ctx, BulkItem{
		Request: validation.Request{
			ItemID:         req.ItemID,
			FromLocationID: &from,
			Quantity:       req.Quantity,
			MovementType:   entity.MovementRemove,
		},
		Reason: req.Reason,
		Notes:  req.Notes,
	})
}

// RecordQuantityAdjustment sets the quantity at a location and records the
// difference as one adjust record.
func (s *Service) RecordQuantityAdjustment(ctx context.Context, req AdjustmentRequest) (res *MovementResult, err error) {
	ctx, span := startSpan(ctx, "RecordQuantityAdjustment",
		attribute.String("item_id", req.ItemID.String()),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() { endSpan(span, err) }()

	if req.Quantity < 0 {
		return nil, apperror.NewInvalidMovement("quantity cannot be negative")
	}

	current, err := s.ledger.Quantity(ctx, req.ItemID, req.LocationID)
	if err != nil {
		return nil, err
	}
	if req.Quantity == current {
		return nil, apperror.NewInvalidMovement("adjustment does not change the quantity")
	}

	loc := req.LocationID
	preflight := validation.Request{
		ItemID:       req.ItemID,
		MovementType: entity.MovementAdjust,
		UserID:       userID(ctx),
	}
	if req.Quantity < current {
		preflight.FromLocationID = &loc
		preflight.Quantity = current - req.Quantity
	} else {
		preflight.ToLocationID = &loc
		preflight.Quantity = req.Quantity - current
	}

	check, err := s.validator.Validate(ctx, preflight)
	if err != nil {
		return nil, err
	}
	if err := check.Err(); err != nil {
		return nil, err
	}

	item, err := s.lookup.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	var result *MovementResult
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.ledger.SetQuantity(ctx, req.ItemID, req.LocationID, req.Quantity, req.ExpectedQuantity)
		if err != nil {
			return err
		}
		if t.Op == entity.EntryOpNone {
			return apperror.NewInvalidMovement("adjustment does not change the quantity")
		}

		d := s.details(ctx, item, abs(t.QuantityAfter()-t.QuantityBefore()), req.Reason, req.Notes, check)
		rec, err := s.recorder.RecordQuantityAdjustment(ctx, movements.AdjustmentInput{
			ItemID:         req.ItemID,
			LocationID:     req.LocationID,
			QuantityBefore: t.QuantityBefore(),
			QuantityAfter:  t.QuantityAfter(),
			Details:        d,
		})
		if err != nil {
			return err
		}

		result = &MovementResult{
			Records:  []entity.MovementRecord{*rec},
			Entries:  entries(t),
			Warnings: check.Warnings,
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, "adjustment rolled back", "item_id", req.ItemID, "location_id", req.LocationID, "error", err)
		return nil, err
	}

	logger.Info(ctx, "quantity adjusted",
		"item_id", req.ItemID,
		"location_id", req.LocationID,
		"quantity_after", req.Quantity,
	)
	return result, nil
}

// commit validates one movement and executes it in its own transaction.
func (s *Service) commit(ctx context.Context, item BulkItem) (*MovementResult, error) {
	item.UserID = userID(ctx)

	check, err := s.validator.Validate(ctx, item.Request)
	if err != nil {
		return nil, err
	}
	if err := check.Err(); err != nil {
		return nil, err
	}

	var result *MovementResult
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.execute(ctx, item, check)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error(ctx, "movement rolled back",
			"item_id", item.ItemID,
			"type", item.Type(),
			"error", err,
		)
		return nil, err
	}

	logger.Info(ctx, "movement committed",
		"item_id", item.ItemID,
		"type", item.Type(),
		"quantity", item.Quantity,
		"records", len(result.Records),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// execute applies a validated movement. Must run inside a transaction.
func (s *Service) execute(ctx context.Context, item BulkItem, check *validation.Result) (*MovementResult, error) {
	catalogItem, err := s.lookup.GetItem(ctx, item.ItemID)
	if err != nil {
		return nil, err
	}
	d := s.details(ctx, catalogItem, item.Quantity, item.Reason, item.Notes, check)

	switch item.Type() {
	case entity.MovementMove:
		if item.FromLocationID == nil || item.ToLocationID == nil {
			return nil, apperror.NewInvalidMovement("a move needs a source and a destination")
		}
		plan, err := s.ledger.Move(ctx, item.ItemID, *item.FromLocationID, *item.ToLocationID, item.Quantity)
		if err != nil {
			return nil, err
		}
		recs, err := s.recorder.RecordItemMove(ctx, movements.MoveInput{
			ItemID:         item.ItemID,
			FromLocationID: *item.FromLocationID,
			ToLocationID:   *item.ToLocationID,
			Quantity:       plan.Quantity,
			FromBefore:     plan.Source.QuantityBefore(),
			FromAfter:      plan.Source.QuantityAfter(),
			ToBefore:       plan.Dest.QuantityBefore(),
			ToAfter:        plan.Dest.QuantityAfter(),
			Details:        d,
		})
		if err != nil {
			return nil, err
		}
		return &MovementResult{Records: recs, Entries: entries(plan.Source, plan.Dest), Warnings: check.Warnings}, nil

	case entity.MovementCreate:
		if item.ToLocationID == nil {
			return nil, apperror.NewInvalidMovement("a creation needs a destination")
		}
		t, err := s.ledger.Upsert(ctx, item.ItemID, *item.ToLocationID, item.Quantity)
		if err != nil {
			return nil, err
		}
		rec, err := s.recorder.RecordItemCreation(ctx, movements.CreationInput{
			ItemID:         item.ItemID,
			LocationID:     *item.ToLocationID,
			Quantity:       item.Quantity,
			QuantityBefore: t.QuantityBefore(),
			Details:        d,
		})
		if err != nil {
			return nil, err
		}
		return &MovementResult{Records: []entity.MovementRecord{*rec}, Entries: entries(t), Warnings: check.Warnings}, nil

	case entity.MovementRemove:
		if item.FromLocationID == nil {
			return nil, apperror.NewInvalidMovement("a removal needs a source")
		}
		t, err := s.ledger.Upsert(ctx, item.ItemID, *item.FromLocationID, -item.Quantity)
		if err != nil {
			return nil, err
		}
		rec, err := s.recorder.RecordItemRemoval(ctx, movements.RemovalInput{
			ItemID:         item.ItemID,
			LocationID:     *item.FromLocationID,
			Quantity:       item.Quantity,
			QuantityBefore: t.QuantityBefore(),
			Details:        d,
		})
		if err != nil {
			return nil, err
		}
		return &MovementResult{Records: []entity.MovementRecord{*rec}, Entries: entries(t), Warnings: check.Warnings}, nil

	case entity.MovementAdjust:
		loc, delta := item.ToLocationID, item.Quantity
		if item.FromLocationID != nil {
			loc, delta = item.FromLocationID, -item.Quantity
		}
		if loc == nil {
			return nil, apperror.NewInvalidMovement("an adjustment needs a location")
		}
		t, err := s.ledger.Upsert(ctx, item.ItemID, *loc, delta)
		if err != nil {
			return nil, err
		}
		rec, err := s.recorder.RecordQuantityAdjustment(ctx, movements.AdjustmentInput{
			ItemID:         item.ItemID,
			LocationID:     *loc,
			QuantityBefore: t.QuantityBefore(),
			QuantityAfter:  t.QuantityAfter(),
			Details:        d,
		})
		if err != nil {
			return nil, err
		}
		return &MovementResult{Records: []entity.MovementRecord{*rec}, Entries: entries(t), Warnings: check.Warnings}, nil
	}

	return nil, apperror.NewInvalidMovement(fmt.Sprintf("unsupported movement type %q", item.Type()))
}

// details carries validation advisories onto the audit records.
func (s *Service) details(ctx context.Context, item *catalog.Item, quantity int64, reason, notes string, check *validation.Result) movements.Details {
	d := movements.Details{
		TransactionID: id.New(),
		Reason:        reason,
		Notes:         notes,
		UserID:        userID(ctx),
	}
	if !item.Value.IsZero() {
		v := types.Extend(item.Value, quantity)
		d.EstimatedValue = &v
	}
	if check != nil {
		if len(check.Warnings) > 0 {
			d.Warnings = append([]string(nil), check.Warnings...)
		}
		if len(check.Metadata) > 0 {
			d.RuleMetadata = check.Metadata
		}
		if len(check.BusinessRulesApplied) > 0 {
			d.SystemNotes = fmt.Sprintf("rules applied: %d", len(check.BusinessRulesApplied))
		}
	}
	return d
}

func userID(ctx context.Context) *string {
	uid := appctx.GetUserID(ctx)
	if uid == "" {
		return nil
	}
	return &uid
}

func entries(ts ...entity.EntryTransition) []entity.InventoryEntry {
	out := make([]entity.InventoryEntry, 0, len(ts))
	for _, t := range ts {
		if t.After != nil {
			out = append(out, *t.After)
			continue
		}
		out = append(out, entity.InventoryEntry{ItemID: t.ItemID, LocationID: t.LocationID})
	}
	return out
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
