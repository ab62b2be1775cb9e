package inventory

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/validation"
	"stockledger/pkg/logger"
)

// ValidateMovement is a dry run: rule failures are reported in the result,
// never returned as errors, and nothing is written.
func (s *Service) ValidateMovement(ctx context.Context, req validation.Request) (res *validation.Result, err error) {
	ctx, span := startSpan(ctx, "ValidateMovement", attribute.String("item_id", req.ItemID.String()))
	defer func() { endSpan(span, err) }()

	if req.UserID == nil {
		req.UserID = userID(ctx)
	}
	return s.validator.Validate(ctx, req)
}

// ValidateBulkMovement validates every movement of a batch. In atomic mode
// the result forbids committing any movement if one of them is invalid.
func (s *Service) ValidateBulkMovement(ctx context.Context, reqs []validation.Request, atomic bool) (res *validation.BulkResult, err error) {
	ctx, span := startSpan(ctx, "ValidateBulkMovement",
		attribute.Int("count", len(reqs)),
		attribute.Bool("atomic", atomic),
	)
	defer func() { endSpan(span, err) }()

	uid := userID(ctx)
	for i := range reqs {
		if reqs[i].UserID == nil {
			reqs[i].UserID = uid
		}
	}
	return s.validator.ValidateBulk(ctx, reqs, atomic)
}

// CommitBulkMovement validates and executes a batch.
//
// Atomic mode commits every movement in one transaction, and commits nothing
// when any movement fails validation or execution. Non-atomic mode commits
// each valid movement in its own transaction and reports the rest.
func (s *Service) CommitBulkMovement(ctx context.Context, items []BulkItem, atomic bool) (res *BulkCommitResult, err error) {
	ctx, span := startSpan(ctx, "CommitBulkMovement",
		attribute.Int("count", len(items)),
		attribute.Bool("atomic", atomic),
	)
	defer func() { endSpan(span, err) }()

	if len(items) == 0 {
		return nil, apperror.NewValidation("batch is empty")
	}

	uid := userID(ctx)
	reqs := make([]validation.Request, len(items))
	for i := range items {
		items[i].UserID = uid
		reqs[i] = items[i].Request
	}

	checks, err := s.validator.ValidateBulk(ctx, reqs, atomic)
	if err != nil {
		return nil, err
	}

	result := &BulkCommitResult{
		Atomic:     atomic,
		Outcomes:   make([]BulkOutcome, len(items)),
		Validation: checks,
	}
	for i := range items {
		result.Outcomes[i] = BulkOutcome{
			Index:    i,
			Errors:   checks.Results[i].Errors,
			Warnings: checks.Results[i].Warnings,
		}
	}

	if atomic {
		return s.commitAtomic(ctx, items, checks, result)
	}

	for i, item := range items {
		if !checks.Committable(i) {
			continue
		}
		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			r, err := s.execute(ctx, item, checks.Results[i])
			if err != nil {
				return err
			}
			result.Outcomes[i].Records = r.Records
			return nil
		})
		if err != nil {
			if !apperror.IsAppError(err) {
				return result, fmt.Errorf("commit movement %d: %w", i, err)
			}
			result.Outcomes[i].Errors = append(result.Outcomes[i].Errors, err.Error())
			continue
		}
		result.Outcomes[i].Committed = true
		result.Committed++
	}

	logger.Info(ctx, "bulk movement committed",
		"atomic", false,
		"requested", len(items),
		"committed", result.Committed,
	)
	return result, nil
}

func (s *Service) commitAtomic(ctx context.Context, items []BulkItem, checks *validation.BulkResult, result *BulkCommitResult) (*BulkCommitResult, error) {
	if !checks.IsValid {
		first := checks.FailedIndexes[0]
		return result, apperror.NewBusinessRule("atomic_batch",
			fmt.Sprintf("movement %d of %d failed validation; nothing was committed", first+1, len(items))).
			WithDetail("failed_indexes", checks.FailedIndexes).
			WithCause(checks.Results[first].Err())
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for i, item := range items {
			r, err := s.execute(ctx, item, checks.Results[i])
			if err != nil {
				result.Outcomes[i].Errors = append(result.Outcomes[i].Errors, err.Error())
				return fmt.Errorf("movement %d: %w", i, err)
			}
			result.Outcomes[i].Records = r.Records
		}
		return nil
	})
	if err != nil {
		for i := range result.Outcomes {
			result.Outcomes[i].Records = nil
		}
		logger.Error(ctx, "atomic batch rolled back", "requested", len(items), "error", err)
		return result, err
	}

	for i := range result.Outcomes {
		result.Outcomes[i].Committed = true
	}
	result.Committed = len(items)

	logger.Info(ctx, "bulk movement committed", "atomic", true, "committed", result.Committed)
	return result, nil
}

// ApplyRuleOverrides changes rule configuration at runtime.
func (s *Service) ApplyRuleOverrides(ctx context.Context, overrides map[string]validation.RuleOverride, mode validation.OverrideMode) (rules map[string]validation.RuleConfig, err error) {
	ctx, span := startSpan(ctx, "ApplyRuleOverrides", attribute.Int("rules", len(overrides)))
	defer func() { endSpan(span, err) }()

	return s.validator.ApplyOverrides(ctx, overrides, mode)
}

// Rules returns the current rule configuration.
func (s *Service) Rules() map[string]validation.RuleConfig {
	return s.validator.Rules().Snapshot()
}
