// Package catalog_repo provides read access to the item and location tables
// owned by the cataloging subsystems, plus upserts used for seeding.
package catalog_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/postgres"
)

// baseRepo holds the id-keyed operations shared by both catalog tables.
type baseRepo[T any] struct {
	txManager  *postgres.TxManager
	tableName  string
	entityName string
	selectCols []string
	builder    squirrel.StatementBuilderType
}

func newBaseRepo[T any](txManager *postgres.TxManager, tableName, entityName string, cols []string) *baseRepo[T] {
	return &baseRepo[T]{
		txManager:  txManager,
		tableName:  tableName,
		entityName: entityName,
		selectCols: cols,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *baseRepo[T]) byIDQuery(entityID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(r.selectCols...).
		From(r.tableName).
		Where(squirrel.Eq{"id": entityID})
}

// getByID returns a NotFound AppError when the row does not exist.
func (r *baseRepo[T]) getByID(ctx context.Context, entityID id.ID) (*T, error) {
	sql, args, err := r.byIDQuery(entityID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out T
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entityName, entityID.String())
		}
		return nil, fmt.Errorf("get %s: %w", r.tableName, err)
	}
	return &out, nil
}

// upsertQuery inserts v or overwrites every non-key column.
func (r *baseRepo[T]) upsertQuery(v *T) squirrel.InsertBuilder {
	data := postgres.StructToMap(v)

	updates := make([]string, 0, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" {
			continue
		}
		updates = append(updates, col+" = EXCLUDED."+col)
	}

	return r.builder.Insert(r.tableName).
		SetMap(data).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", "))
}

func (r *baseRepo[T]) upsert(ctx context.Context, v *T) error {
	sql, args, err := r.upsertQuery(v).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("upsert %s: %w", r.tableName, err))
	}
	return nil
}
