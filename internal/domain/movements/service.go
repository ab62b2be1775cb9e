package movements

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/pkg/logger"
)

// Details carries the descriptive fields shared by every record kind.
type Details struct {
	TransactionID  id.ID
	Reason         string
	Notes          string
	EstimatedValue *types.Money
	UserID         *string
	SystemNotes    string
	Warnings       []string
	RuleMetadata   map[string]any
}

// RecordInput is the raw form of one record.
type RecordInput struct {
	ItemID         id.ID
	FromLocationID *id.ID
	ToLocationID   *id.ID
	QuantityMoved  int64
	QuantityBefore int64
	QuantityAfter  int64
	MovementType   entity.MovementType
	Details
}

// Service is the movement recorder.
type Service struct {
	repo      Repository
	lookup    catalog.Lookup
	txManager tx.Manager
	publisher Publisher
	now       func() time.Time
}

// Option configures the recorder.
type Option func(*Service)

// WithPublisher emits a MovementRecorded event for every appended record.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new movement recorder.
func NewService(repo Repository, lookup catalog.Lookup, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		lookup:    lookup,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordMovement verifies references and appends exactly one record.
func (s *Service) RecordMovement(ctx context.Context, in RecordInput) (*entity.MovementRecord, error) {
	var rec *entity.MovementRecord

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, in.ItemID, in.FromLocationID, in.ToLocationID); err != nil {
			return err
		}
		r, err := s.append(ctx, in)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

func (s *Service) checkReferences(ctx context.Context, itemID id.ID, locations ...*id.ID) error {
	if _, err := s.lookup.GetItem(ctx, itemID); err != nil {
		return err
	}
	for _, loc := range locations {
		if loc == nil {
			continue
		}
		if _, err := s.lookup.GetLocation(ctx, *loc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) append(ctx context.Context, in RecordInput) (*entity.MovementRecord, error) {
	txID := in.TransactionID
	if id.IsNil(txID) {
		txID = id.New()
	}

	rec := &entity.MovementRecord{
		ID:             id.New(),
		TransactionID:  txID,
		ItemID:         in.ItemID,
		FromLocationID: in.FromLocationID,
		ToLocationID:   in.ToLocationID,
		QuantityMoved:  in.QuantityMoved,
		QuantityBefore: in.QuantityBefore,
		QuantityAfter:  in.QuantityAfter,
		MovementType:   in.MovementType,
		Reason:         in.Reason,
		Notes:          in.Notes,
		EstimatedValue: in.EstimatedValue,
		UserID:         in.UserID,
		SystemNotes:    in.SystemNotes,
		Warnings:       in.Warnings,
		RuleMetadata:   in.RuleMetadata,
		CreatedAt:      s.now(),
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append movement: %w", err)
	}

	logger.Debug(ctx, "movement appended",
		"movement_id", rec.ID,
		"transaction_id", rec.TransactionID,
		"type", rec.MovementType,
	)

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, Event{
			AggregateType: AggregateItem,
			AggregateID:   rec.ItemID,
			EventType:     EventMovementRecorded,
			Payload:       rec,
		})
		if err != nil {
			return nil, fmt.Errorf("publish movement event: %w", err)
		}
	}

	return rec, nil
}

// CreationInput describes quantity brought into existence at a location.
type CreationInput struct {
	ItemID     id.ID
	LocationID id.ID
	Quantity   int64
	// QuantityBefore is what the location already held; zero for a new entry.
	QuantityBefore int64
	Details
}

// RecordItemCreation appends one create record with no source.
func (s *Service) RecordItemCreation(ctx context.Context, in CreationInput) (*entity.MovementRecord, error) {
	to := in.LocationID
	return s.RecordMovement(ctx, RecordInput{
		ItemID:         in.ItemID,
		ToLocationID:   &to,
		QuantityMoved:  in.Quantity,
		QuantityBefore: in.QuantityBefore,
		QuantityAfter:  in.QuantityBefore + in.Quantity,
		MovementType:   entity.MovementCreate,
		Details:        in.Details,
	})
}

// MoveInput describes both legs of a transfer.
type MoveInput struct {
	ItemID         id.ID
	FromLocationID id.ID
	ToLocationID   id.ID
	Quantity       int64
	FromBefore     int64
	FromAfter      int64
	ToBefore       int64
	ToAfter        int64
	Details
}

// RecordItemMove appends the decrement leg at the source and the increment
// leg at the destination. Both share one transaction id and commit together.
func (s *Service) RecordItemMove(ctx context.Context, in MoveInput) ([]entity.MovementRecord, error) {
	if in.FromLocationID == in.ToLocationID {
		return nil, apperror.NewInvalidMovement("source and destination are the same location")
	}

	d := in.Details
	if id.IsNil(d.TransactionID) {
		d.TransactionID = id.New()
	}

	from, to := in.FromLocationID, in.ToLocationID
	out := make([]entity.MovementRecord, 0, 2)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, in.ItemID, &from, &to); err != nil {
			return err
		}

		outLeg := d
		outLeg.SystemNotes = joinNotes(d.SystemNotes, "transfer to "+to.String())
		decrement, err := s.append(ctx, RecordInput{
			ItemID:         in.ItemID,
			FromLocationID: &from,
			QuantityMoved:  in.Quantity,
			QuantityBefore: in.FromBefore,
			QuantityAfter:  in.FromAfter,
			MovementType:   entity.MovementMove,
			Details:        outLeg,
		})
		if err != nil {
			return err
		}

		inLeg := d
		inLeg.SystemNotes = joinNotes(d.SystemNotes, "transfer from "+from.String())
		increment, err := s.append(ctx, RecordInput{
			ItemID:         in.ItemID,
			ToLocationID:   &to,
			QuantityMoved:  in.Quantity,
			QuantityBefore: in.ToBefore,
			QuantityAfter:  in.ToAfter,
			MovementType:   entity.MovementMove,
			Details:        inLeg,
		})
		if err != nil {
			return err
		}

		out = append(out, *decrement, *increment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// AdjustmentInput describes a correction of the quantity at one location.
type AdjustmentInput struct {
	ItemID         id.ID
	LocationID     id.ID
	QuantityBefore int64
	QuantityAfter  int64
	Details
}

// RecordQuantityAdjustment appends one adjust record. The location is the
// source when quantity decreased and the destination when it increased.
func (s *Service) RecordQuantityAdjustment(ctx context.Context, in AdjustmentInput) (*entity.MovementRecord, error) {
	if in.QuantityAfter == in.QuantityBefore {
		return nil, apperror.NewInvalidMovement("adjustment does not change the quantity")
	}
	if in.QuantityAfter < 0 {
		return nil, apperror.NewInvalidMovement("quantity after cannot be negative")
	}

	loc := in.LocationID
	rec := RecordInput{
		ItemID:         in.ItemID,
		QuantityBefore: in.QuantityBefore,
		QuantityAfter:  in.QuantityAfter,
		MovementType:   entity.MovementAdjust,
		Details:        in.Details,
	}
	if in.QuantityAfter < in.QuantityBefore {
		rec.FromLocationID = &loc
		rec.QuantityMoved = in.QuantityBefore - in.QuantityAfter
	} else {
		rec.ToLocationID = &loc
		rec.QuantityMoved = in.QuantityAfter - in.QuantityBefore
	}

	return s.RecordMovement(ctx, rec)
}

// RemovalInput describes quantity taken out of the system.
type RemovalInput struct {
	ItemID         id.ID
	LocationID     id.ID
	Quantity       int64
	QuantityBefore int64
	Details
}

// RecordItemRemoval appends one remove record with no destination.
func (s *Service) RecordItemRemoval(ctx context.Context, in RemovalInput) (*entity.MovementRecord, error) {
	from := in.LocationID
	return s.RecordMovement(ctx, RecordInput{
		ItemID:         in.ItemID,
		FromLocationID: &from,
		QuantityMoved:  in.Quantity,
		QuantityBefore: in.QuantityBefore,
		QuantityAfter:  in.QuantityBefore - in.Quantity,
		MovementType:   entity.MovementRemove,
		Details:        in.Details,
	})
}

// Search returns a page of movement history, most recent first.
func (s *Service) Search(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.MovementType != nil && !filter.MovementType.IsValid() {
		return nil, apperror.NewValidation("unknown movement type").
			WithDetail("movement_type", string(*filter.MovementType))
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.FromDate.After(*filter.ToDate) {
		return nil, apperror.NewValidation("fromDate must be before toDate")
	}

	items, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search movements: %w", err)
	}

	return &Page{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// ItemHistory returns every record of an item in creation order.
func (s *Service) ItemHistory(ctx context.Context, itemID id.ID) ([]entity.MovementRecord, error) {
	records, err := s.repo.ListByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item movements: %w", err)
	}
	return records, nil
}

// CountRecent counts records created within window of now.
func (s *Service) CountRecent(ctx context.Context, window time.Duration) (int, error) {
	return s.repo.CountSince(ctx, s.now().Add(-window))
}

// CountDuplicates counts transactions identical to q within window of now.
func (s *Service) CountDuplicates(ctx context.Context, q DuplicateQuery, window time.Duration) (int, error) {
	q.Since = s.now().Add(-window)
	return s.repo.CountDuplicates(ctx, q)
}

func joinNotes(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "; " + extra
}
