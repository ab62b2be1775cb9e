// Package report_repo provides PostgreSQL aggregates over the movement log.
package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type typeRow struct {
	MovementType entity.MovementType `db:"movement_type"`
	reports.TypeStats
}

// MovementStats aggregates every record within the filter range.
// Both statements run in one read-only snapshot so totals and the
// per-type breakdown agree.
func (r *ReportRepo) MovementStats(ctx context.Context, filter reports.StatsFilter) (*reports.MovementStats, error) {
	totalsSQL, totalsArgs, err := r.totalsQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build totals query: %w", err)
	}
	byTypeSQL, byTypeArgs, err := r.byTypeQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build breakdown query: %w", err)
	}

	stats := &reports.MovementStats{}
	var rows []typeRow

	err = r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)
		if err := pgxscan.Get(ctx, querier, stats, totalsSQL, totalsArgs...); err != nil {
			return fmt.Errorf("movement totals: %w", err)
		}
		if err := pgxscan.Select(ctx, querier, &rows, byTypeSQL, byTypeArgs...); err != nil {
			return fmt.Errorf("movement breakdown: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.ByType = make(map[entity.MovementType]reports.TypeStats, len(rows))
	for _, row := range rows {
		stats.ByType[row.MovementType] = row.TypeStats
	}
	return stats, nil
}

func (r *ReportRepo) totalsQuery(filter reports.StatsFilter) squirrel.SelectBuilder {
	q := r.builder.Select(
		"COUNT(*) AS total_movements",
		"COUNT(DISTINCT transaction_id) AS logical_movements",
		"COALESCE(SUM(quantity_moved), 0)::bigint AS total_items_moved",
		"COUNT(DISTINCT item_id) AS distinct_items",
		"COUNT(DISTINCT COALESCE(from_location_id, to_location_id)) AS distinct_locations",
		"MIN(created_at) AS earliest",
		"MAX(created_at) AS latest",
	).From(postgres.TableMovements)
	return withRange(q, filter)
}

func (r *ReportRepo) byTypeQuery(filter reports.StatsFilter) squirrel.SelectBuilder {
	q := r.builder.Select(
		"movement_type",
		"COUNT(*) AS count",
		"COALESCE(SUM(quantity_moved), 0)::bigint AS quantity",
	).From(postgres.TableMovements)
	return withRange(q, filter).GroupBy("movement_type").OrderBy("movement_type")
}

func withRange(q squirrel.SelectBuilder, filter reports.StatsFilter) squirrel.SelectBuilder {
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}
	return q
}

var _ reports.Repository = (*ReportRepo)(nil)
