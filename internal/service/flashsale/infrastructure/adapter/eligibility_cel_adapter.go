package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"atelier/internal/service/flashsale/domain/port"
)

// CELEligibilityAdapter 是 port.EligibilityEngine 接口的 CEL 实现。
// 场次上的资格规则是一条 CEL 表达式，例如:
//
//	is_vip || order_count >= 3
//	region == "east" && order_count > 0
//
// 编译后的程序按规则文本缓存，热点场次只编译一次。
type CELEligibilityAdapter struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

func NewCELEligibilityAdapter() (*CELEligibilityAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer_id", cel.IntType),
		cel.Variable("is_vip", cel.BoolType),
		cel.Variable("region", cel.StringType),
		cel.Variable("order_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELEligibilityAdapter{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (a *CELEligibilityAdapter) Evaluate(_ context.Context, rule string, profile port.CustomerProfile) (bool, error) {
	if rule == "" {
		return true, nil
	}
	prg, err := a.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"customer_id": profile.CustomerID,
		"is_vip":      profile.IsVIP,
		"region":      profile.Region,
		"order_count": profile.OrderCount,
	})
	if err != nil {
		return false, fmt.Errorf("eligibility rule evaluation failed: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("eligibility rule must evaluate to bool, got %T", out.Value())
	}
	return ok, nil
}

func (a *CELEligibilityAdapter) Validate(rule string) error {
	if rule == "" {
		return nil
	}
	_, err := a.program(rule)
	return err
}

func (a *CELEligibilityAdapter) program(rule string) (cel.Program, error) {
	a.mu.RLock()
	prg, hit := a.cache[rule]
	a.mu.RUnlock()
	if hit {
		return prg, nil
	}

	ast, issues := a.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid eligibility rule: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("eligibility rule must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule program: %w", err)
	}

	a.mu.Lock()
	a.cache[rule] = prg
	a.mu.Unlock()
	return prg, nil
}
