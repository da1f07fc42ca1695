package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/service/flashsale/domain/port"
)

func TestCELEligibilityEvaluate(t *testing.T) {
	eng, err := NewCELEligibilityAdapter()
	require.NoError(t, err)

	vip := port.CustomerProfile{CustomerID: 7, IsVIP: true, Region: "east", OrderCount: 5}
	newcomer := port.CustomerProfile{CustomerID: 8, Region: "west", OrderCount: 0}

	cases := []struct {
		rule    string
		profile port.CustomerProfile
		want    bool
	}{
		{"", newcomer, true}, // 空规则恒通过
		{"is_vip", vip, true},
		{"is_vip", newcomer, false},
		{"order_count >= 3", vip, true},
		{"is_vip || order_count >= 3", newcomer, false},
		{`region == "east" && order_count > 0`, vip, true},
		{"customer_id == 8", newcomer, true},
	}
	for _, tc := range cases {
		got, err := eng.Evaluate(context.Background(), tc.rule, tc.profile)
		require.NoError(t, err, tc.rule)
		assert.Equal(t, tc.want, got, tc.rule)
	}
}

func TestCELEligibilityValidate(t *testing.T) {
	eng, err := NewCELEligibilityAdapter()
	require.NoError(t, err)

	assert.NoError(t, eng.Validate(""))
	assert.NoError(t, eng.Validate("is_vip && order_count >= 1"))

	// 语法错误
	assert.Error(t, eng.Validate("is_vip &&"))
	// 未声明的变量
	assert.Error(t, eng.Validate("unknown_field > 1"))
	// 结果不是布尔
	assert.Error(t, eng.Validate("order_count + 1"))
}
