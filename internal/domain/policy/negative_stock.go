// Package policy decides whether a store may sell below zero on hand.
//
// A store opts in with allowNegativeStock. It may narrow the opt-in with a
// CEL rule over the line being removed, e.g.
//
//	category != "tobacco" && requested <= 24
//
// Available variables: category (string), requested (int), on_hand (int), store_id (string).
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/catalog"
	"stockpos/pkg/logger"
)

// Line describes the removal being checked.
type Line struct {
	StoreID   id.ID
	Category  string
	Requested int64
	OnHand    int64
}

// NegativeStock evaluates store settings plus their optional rule.
type NegativeStock struct {
	settings catalog.SettingsReader
	env      *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewNegativeStock creates the policy over a settings source.
func NewNegativeStock(settings catalog.SettingsReader) (*NegativeStock, error) {
	env, err := cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("requested", cel.IntType),
		cel.Variable("on_hand", cel.IntType),
		cel.Variable("store_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &NegativeStock{
		settings: settings,
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks a rule and caches its program. Rules must evaluate to bool.
func (p *NegativeStock) Compile(rule string) (cel.Program, error) {
	p.mu.RLock()
	prg, ok := p.programs[rule]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := p.env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid negative stock rule").
			WithDetail("rule", rule).
			WithCause(iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, apperror.NewValidation("negative stock rule must evaluate to bool").
			WithDetail("rule", rule)
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, apperror.NewValidation("invalid negative stock rule").
			WithDetail("rule", rule).
			WithCause(err)
	}

	p.mu.Lock()
	p.programs[rule] = prg
	p.mu.Unlock()
	return prg, nil
}

// AllowNegative reports whether line may drive on-hand stock below zero.
// A broken rule denies (the hard floor applies) and is logged.
func (p *NegativeStock) AllowNegative(ctx context.Context, line Line) (bool, error) {
	s, err := p.settings.GetStoreSettings(ctx, line.StoreID)
	if err != nil {
		return false, fmt.Errorf("load store settings: %w", err)
	}
	if !s.AllowNegativeStock {
		return false, nil
	}
	if s.NegativeStockRule == "" {
		return true, nil
	}

	prg, err := p.Compile(s.NegativeStockRule)
	if err != nil {
		logger.Warn(ctx, "negative stock rule rejected, enforcing floor",
			"store_id", line.StoreID, "error", err)
		return false, nil
	}
	out, _, err := prg.Eval(map[string]any{
		"category":  line.Category,
		"requested": line.Requested,
		"on_hand":   line.OnHand,
		"store_id":  line.StoreID.String(),
	})
	if err != nil {
		logger.Warn(ctx, "negative stock rule failed, enforcing floor",
			"store_id", line.StoreID, "error", err)
		return false, nil
	}
	allowed, ok := out.Value().(bool)
	return ok && allowed, nil
}
