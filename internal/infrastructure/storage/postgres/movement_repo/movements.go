// Package movement_repo provides the PostgreSQL movement audit log.
package movement_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/movements"
	"stockledger/internal/infrastructure/storage/postgres"
)

// movementRow is a record plus its stored audit payload.
type movementRow struct {
	entity.MovementRecord
	postgres.EncodedPayload
}

var auditColumns = postgres.ExtractDBColumns[postgres.EncodedPayload]()

var selectColumns = append(append([]string{}, postgres.MovementColumns...), auditColumns...)

// MovementRepo implements movements.Repository over inv_movements.
// Rows are only ever inserted.
type MovementRepo struct {
	txManager *postgres.TxManager
	codec     *postgres.PayloadCodec
	builder   squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txManager *postgres.TxManager, codec *postgres.PayloadCodec) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		codec:     codec,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one record.
func (r *MovementRepo) Append(ctx context.Context, record *entity.MovementRecord) error {
	q, err := r.insertQuery(record)
	if err != nil {
		return err
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert movement: %w", err))
	}
	return nil
}

func (r *MovementRepo) insertQuery(record *entity.MovementRecord) (squirrel.InsertBuilder, error) {
	payload, err := r.codec.Encode(postgres.AuditPayload{
		Warnings:     record.Warnings,
		RuleMetadata: record.RuleMetadata,
	})
	if err != nil {
		return squirrel.InsertBuilder{}, err
	}

	values := postgres.StructToMap(record)
	for k, v := range postgres.StructToMap(payload) {
		values[k] = v
	}

	return r.builder.Insert(postgres.TableMovements).SetMap(values), nil
}

// Search returns one page of matching records, most recent first, and the total count.
func (r *MovementRepo) Search(ctx context.Context, filter movements.Filter) ([]entity.MovementRecord, int, error) {
	where := searchConditions(filter)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").
		From(postgres.TableMovements).
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}
	if total == 0 {
		return []entity.MovementRecord{}, 0, nil
	}

	q := r.builder.Select(selectColumns...).
		From(postgres.TableMovements).
		Where(where).
		OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	records, err := r.selectRecords(ctx, q)
	return records, total, err
}

// searchConditions maps a filter to a WHERE clause. An empty filter matches everything.
func searchConditions(filter movements.Filter) squirrel.And {
	where := squirrel.And{}

	if filter.ItemID != nil {
		where = append(where, squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.LocationID != nil {
		where = append(where, squirrel.Or{
			squirrel.Eq{"from_location_id": *filter.LocationID},
			squirrel.Eq{"to_location_id": *filter.LocationID},
		})
	}
	if filter.TransactionID != nil {
		where = append(where, squirrel.Eq{"transaction_id": *filter.TransactionID})
	}
	if filter.MovementType != nil {
		where = append(where, squirrel.Eq{"movement_type": *filter.MovementType})
	}
	if filter.UserID != nil {
		where = append(where, squirrel.Eq{"user_id": *filter.UserID})
	}
	if filter.FromDate != nil {
		where = append(where, squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		where = append(where, squirrel.LtOrEq{"created_at": *filter.ToDate})
	}
	if filter.MinQuantity != nil {
		where = append(where, squirrel.GtOrEq{"quantity_moved": *filter.MinQuantity})
	}
	if filter.MaxQuantity != nil {
		where = append(where, squirrel.LtOrEq{"quantity_moved": *filter.MaxQuantity})
	}
	return where
}

// ListByItem returns an item's full history in creation order.
func (r *MovementRepo) ListByItem(ctx context.Context, itemID id.ID) ([]entity.MovementRecord, error) {
	q := r.builder.Select(selectColumns...).
		From(postgres.TableMovements).
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("created_at", "id")
	return r.selectRecords(ctx, q)
}

func (r *MovementRepo) selectRecords(ctx context.Context, q squirrel.SelectBuilder) ([]entity.MovementRecord, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	records := make([]entity.MovementRecord, len(rows))
	for i := range rows {
		payload, err := r.codec.Decode(rows[i].EncodedPayload)
		if err != nil {
			return nil, fmt.Errorf("movement %s: %w", rows[i].ID, err)
		}
		records[i] = rows[i].MovementRecord
		records[i].Warnings = payload.Warnings
		records[i].RuleMetadata = payload.RuleMetadata
	}
	return records, nil
}

// CountSince counts records created at or after since.
func (r *MovementRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	sql, args, err := r.builder.Select("COUNT(*)").
		From(postgres.TableMovements).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recent movements: %w", err)
	}
	return n, nil
}

// CountDuplicates counts recent transactions whose legs match q.
func (r *MovementRepo) CountDuplicates(ctx context.Context, q movements.DuplicateQuery) (int, error) {
	sql, args, err := r.duplicatesQuery(q).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count duplicate movements: %w", err)
	}
	return n, nil
}

// duplicatesQuery groups candidate legs by transaction; a transfer matches
// only when one leg leaves the source and another reaches the destination.
func (r *MovementRepo) duplicatesQuery(q movements.DuplicateQuery) squirrel.SelectBuilder {
	groups := squirrel.Select("transaction_id").
		From(postgres.TableMovements).
		Where(squirrel.Eq{
			"item_id":        q.ItemID,
			"movement_type":  q.MovementType,
			"quantity_moved": q.Quantity,
		}).
		Where(squirrel.GtOrEq{"created_at": q.Since}).
		GroupBy("transaction_id")

	if q.FromLocationID != nil {
		groups = groups.Having("bool_or(from_location_id = ?)", *q.FromLocationID)
	}
	if q.ToLocationID != nil {
		groups = groups.Having("bool_or(to_location_id = ?)", *q.ToLocationID)
	}

	return r.builder.Select("COUNT(*)").FromSelect(groups, "dup")
}

var _ movements.Repository = (*MovementRepo)(nil)
