package validation

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/domain/movements"
)

// evaluate runs one rule. A returned error means the rule was inconclusive.
func (v *Validator) evaluate(ctx context.Context, name string, cfg RuleConfig, ev *evaluation, res *Result) error {
	switch name {
	case RuleMaxConcurrentMovements:
		return v.checkConcurrentMovements(ctx, cfg, res)
	case RuleLocationCapacity:
		return v.checkCapacity(ctx, cfg, ev, res)
	case RuleItemStatus:
		checkItemStatus(cfg, ev, res)
		return nil
	case RuleQuantityConsistency:
		checkQuantityConsistency(ev, res)
		return nil
	case RuleDuplicateMovement:
		return v.checkDuplicate(ctx, cfg, ev, res)
	case RuleValueThreshold:
		checkValueThreshold(cfg, ev, res)
		return nil
	case RulePerformance:
		return v.checkPerformance(ctx, cfg, res)
	default:
		return v.checkExpression(ctx, name, cfg, ev, res)
	}
}

func (v *Validator) checkConcurrentMovements(ctx context.Context, cfg RuleConfig, res *Result) error {
	window := cfg.durationParam("window_ms", time.Minute)
	limit := cfg.int64Param("limit", 100)

	count, err := v.history.CountRecent(ctx, window)
	if err != nil {
		return fmt.Errorf("count recent movements: %w", err)
	}

	res.Metadata["recent_movements"] = count
	res.Metadata["recent_movements_limit"] = limit

	if int64(count) > limit {
		res.reject(Violation{
			Rule:    RuleMaxConcurrentMovements,
			Message: fmt.Sprintf("too many movements: %d recorded in the last %s (limit %d)", count, window, limit),
		})
	}
	return nil
}

func (v *Validator) checkCapacity(ctx context.Context, cfg RuleConfig, ev *evaluation, res *Result) error {
	if ev.dest == nil {
		return nil
	}

	capacity := cfg.int64Param("default_capacity", 0)
	if ev.dest.Capacity != nil {
		capacity = *ev.dest.Capacity
	}
	if capacity <= 0 {
		return nil
	}

	current, err := v.inventory.LocationTotal(ctx, ev.dest.ID)
	if err != nil {
		return fmt.Errorf("get destination total: %w", err)
	}

	projected := current + ev.req.Quantity
	res.Metadata["destination_quantity"] = current
	res.Metadata["destination_projected"] = projected
	res.Metadata["destination_capacity"] = capacity

	if projected > capacity {
		res.reject(Violation{
			Rule:    RuleLocationCapacity,
			Message: fmt.Sprintf("location %s would hold %d, capacity is %d", ev.dest.Name, projected, capacity),
		})
	}
	return nil
}

func checkItemStatus(cfg RuleConfig, ev *evaluation, res *Result) {
	blocked := cfg.stringsParam("blocked_statuses", []string{string(catalog.ItemStatusDisposed)})
	res.Metadata["item_status"] = string(ev.item.Status)

	for _, st := range blocked {
		if string(ev.item.Status) == st {
			res.reject(Violation{
				Rule:    RuleItemStatus,
				Message: fmt.Sprintf("item %s is %s and cannot be moved", ev.item.Name, st),
			})
			return
		}
	}
}

func checkQuantityConsistency(ev *evaluation, res *Result) {
	if !ev.hasSource {
		return
	}

	res.Metadata["source_quantity"] = ev.source
	if ev.source < ev.req.Quantity {
		res.reject(Violation{
			Rule:    RuleQuantityConsistency,
			Message: fmt.Sprintf("insufficient quantity at source: requested %d, available %d", ev.req.Quantity, ev.source),
			err: apperror.NewInsufficientQuantity(
				ev.req.ItemID.String(),
				ev.req.FromLocationID.String(),
				ev.req.Quantity,
				ev.source,
			),
		})
	}
}

func (v *Validator) checkDuplicate(ctx context.Context, cfg RuleConfig, ev *evaluation, res *Result) error {
	window := cfg.durationParam("window_ms", 5*time.Second)

	count, err := v.history.CountDuplicates(ctx, movements.DuplicateQuery{
		ItemID:         ev.req.ItemID,
		FromLocationID: ev.req.FromLocationID,
		ToLocationID:   ev.req.ToLocationID,
		Quantity:       ev.req.Quantity,
		MovementType:   ev.req.Type(),
	}, window)
	if err != nil {
		return fmt.Errorf("count duplicates: %w", err)
	}

	res.Metadata["duplicate_movements"] = count
	if count > 0 {
		res.reject(Violation{
			Rule:    RuleDuplicateMovement,
			Message: fmt.Sprintf("identical movement already recorded within %s", window),
		})
	}
	return nil
}

func checkValueThreshold(cfg RuleConfig, ev *evaluation, res *Result) {
	threshold, err := types.NewMoneyFromString(cfg.stringParam("threshold", "1000"))
	if err != nil {
		res.warn(fmt.Sprintf("%s has an invalid threshold", RuleValueThreshold))
		return
	}

	value := types.Extend(ev.item.Value, ev.req.Quantity)
	res.Metadata["estimated_value"] = value.String()

	switch basis := cfg.stringParam("basis", "total"); basis {
	case "total":
		if value.GreaterThan(threshold) {
			res.warn(fmt.Sprintf("high-value movement: %s exceeds review threshold %s", value.StringFixed(2), threshold.StringFixed(2)))
		}
	case "unit":
		if ev.item.Value.GreaterThan(threshold) {
			res.warn(fmt.Sprintf("high-value item: unit value %s exceeds review threshold %s", ev.item.Value.StringFixed(2), threshold.StringFixed(2)))
		}
	default:
		res.warn(fmt.Sprintf("%s has an unknown basis %q", RuleValueThreshold, basis))
	}
}

func (v *Validator) checkPerformance(ctx context.Context, cfg RuleConfig, res *Result) error {
	timeout := cfg.durationParam("timeout_ms", defaultTelemetryTimeout)

	load, err := sampleLoad(ctx, v.load, timeout)
	if err != nil {
		return err
	}

	cpuLimit := cfg.float64Param("cpu_threshold", 90)
	memLimit := cfg.float64Param("memory_threshold", 90)
	res.Metadata["cpu_percent"] = load.CPUPercent
	res.Metadata["memory_percent"] = load.MemoryPercent

	if load.CPUPercent > cpuLimit || load.MemoryPercent > memLimit {
		res.reject(Violation{
			Rule: RulePerformance,
			Message: fmt.Sprintf("system under load: cpu %.1f%% (limit %.1f%%), memory %.1f%% (limit %.1f%%)",
				load.CPUPercent, cpuLimit, load.MemoryPercent, memLimit),
		})
	}
	return nil
}

func (v *Validator) checkExpression(ctx context.Context, name string, cfg RuleConfig, ev *evaluation, res *Result) error {
	userID := ""
	if ev.req.UserID != nil {
		userID = *ev.req.UserID
	}

	matched, err := v.rules.exprs.eval(ctx, cfg.Expression, map[string]any{
		varItemID:         ev.req.ItemID.String(),
		varFromLocationID: id.String(ev.req.FromLocationID),
		varToLocationID:   id.String(ev.req.ToLocationID),
		varQuantity:       ev.req.Quantity,
		varMovementType:   string(ev.req.Type()),
		varSourceQuantity: ev.source,
		varItemStatus:     string(ev.item.Status),
		varItemValue:      ev.item.Value.InexactFloat64(),
		varUserID:         userID,
	})
	if err != nil {
		return err
	}
	if !matched {
		return nil
	}

	msg := cfg.stringParam("message", fmt.Sprintf("rule %s matched", name))
	if cfg.stringParam("severity", "error") == "warning" {
		res.warn(msg)
		return nil
	}
	res.reject(Violation{Rule: name, Message: msg})
	return nil
}
