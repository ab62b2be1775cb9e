package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Variables visible to custom rule expressions.
const (
	varItemID         = "item_id"
	varFromLocationID = "from_location_id"
	varToLocationID   = "to_location_id"
	varQuantity       = "quantity"
	varMovementType   = "movement_type"
	varSourceQuantity = "source_quantity"
	varItemStatus     = "item_status"
	varItemValue      = "item_value"
	varUserID         = "user_id"
)

// expressionCache compiles CEL predicates once per distinct source text.
type expressionCache struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newExpressionCache() *expressionCache {
	env, err := cel.NewEnv(
		cel.Variable(varItemID, cel.StringType),
		cel.Variable(varFromLocationID, cel.StringType),
		cel.Variable(varToLocationID, cel.StringType),
		cel.Variable(varQuantity, cel.IntType),
		cel.Variable(varMovementType, cel.StringType),
		cel.Variable(varSourceQuantity, cel.IntType),
		cel.Variable(varItemStatus, cel.StringType),
		cel.Variable(varItemValue, cel.DoubleType),
		cel.Variable(varUserID, cel.StringType),
	)
	if err != nil {
		// declarations are static; failure here is a programming error
		panic(fmt.Sprintf("validation: build cel env: %v", err))
	}
	return &expressionCache{
		env:      env,
		programs: make(map[string]cel.Program),
	}
}

func (c *expressionCache) compile(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	c.mu.Lock()
	c.programs[expr] = prg
	c.mu.Unlock()

	return prg, nil
}

// eval runs expr against vars and reports whether the predicate matched.
func (c *expressionCache) eval(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	prg, err := c.compile(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("evaluate: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return matched, nil
}
