package port

import "context"

// CustomerProfile 是参与资格规则可见的客户画像。
type CustomerProfile struct {
	CustomerID int64
	IsVIP      bool
	Region     string
	OrderCount int64
}

// EligibilityEngine 是参与资格规则引擎的出站端口。
// 场次可以携带一条规则表达式，购买前对客户画像求值。
type EligibilityEngine interface {
	// Evaluate 对规则求值，规则为空串时恒为通过。
	Evaluate(ctx context.Context, rule string, profile CustomerProfile) (bool, error)

	// Validate 校验规则表达式是否可编译，供管理接口在保存前调用。
	Validate(rule string) error
}
