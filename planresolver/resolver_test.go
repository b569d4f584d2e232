package planresolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/xianyu-autodeliver/models"
)

func newTestResolver(t *testing.T, extra ...Rule) *Resolver {
	t.Helper()
	r, err := New(extra...)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		title    string
		expected models.PlanDuration
	}{
		{"会员充值 1个月 自动发货", models.PlanOneMonth},
		{"VIP服务 12个月 即时到账", models.PlanTwelveMonths},
		{"随便写的标题", models.PlanUnresolved},
		{"十二个月套餐", models.PlanTwelveMonths},
		{"VIP服务 3个月 即时到账", models.PlanThreeMonths},
		{"会员 2个月", models.PlanTwoMonths},
		{"包年 一年 会员", models.PlanTwelveMonths},
		{"一个月体验", models.PlanOneMonth},
		{"三个月套餐", models.PlanThreeMonths},
		{"六个月套餐", models.PlanSixMonths},
		{"半年卡", models.PlanSixMonths},
		{"两个月卡", models.PlanTwoMonths},
		{"会员 6月 特惠", models.PlanSixMonths},
		{"会员 12 个月", models.PlanTwelveMonths},
		{"会员 5个月", models.PlanUnresolved},
		{"会员 24个月", models.PlanUnresolved},
		{"会员 11个月", models.PlanUnresolved},
		{"会员 13个月", models.PlanUnresolved},
		{"会员 16个月", models.PlanUnresolved},
		{"会员 22个月", models.PlanUnresolved},
		{"十一个月套餐", models.PlanUnresolved},
		{"十三个月套餐", models.PlanUnresolved},
		{"二十二个月套餐", models.PlanUnresolved},
		{"11个月 或 1个月", models.PlanOneMonth},
		{"", models.PlanUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.title))
		})
	}
}

func TestResolve_IsDeterministic(t *testing.T) {
	r := newTestResolver(t)
	for i := 0; i < 10; i++ {
		assert.Equal(t, models.PlanTwelveMonths, r.Resolve("十二个月套餐"))
	}
}

func TestDefaultRules_LongerPatternsComeFirst(t *testing.T) {
	for i, rule := range DefaultRules {
		for _, earlier := range DefaultRules[:i] {
			assert.Falsef(t, earlier.Plan != rule.Plan && strings.Contains(rule.Pattern, earlier.Pattern),
				"%q is shadowed by %q", rule.Pattern, earlier.Pattern)
		}
	}
}

func TestNew_ExtraRulesTakePriority(t *testing.T) {
	r := newTestResolver(t, Rule{Pattern: "季卡", Plan: models.PlanThreeMonths})

	assert.Equal(t, models.PlanThreeMonths, r.Resolve("超值季卡"))
	assert.Equal(t, Rule{Pattern: "季卡", Plan: models.PlanThreeMonths}, r.Rules()[0])
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name    string
		extra   []Rule
		wantErr error
	}{
		{"empty pattern", []Rule{{Pattern: " ", Plan: models.PlanOneMonth}}, ErrEmptyPattern},
		{"unknown plan", []Rule{{Pattern: "五个月", Plan: models.PlanDuration(5)}}, ErrUnknownPlan},
		{"unresolved plan", []Rule{{Pattern: "试用", Plan: models.PlanUnresolved}}, ErrUnknownPlan},
		// "个月" would capture every digit form before the defaults run.
		{"shadowing extra rule", []Rule{{Pattern: "个月", Plan: models.PlanOneMonth}}, ErrShadowedRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.extra...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_CatchesMisorderedDefaults(t *testing.T) {
	rules := []Rule{
		{Pattern: "2个月", Plan: models.PlanTwoMonths},
		{Pattern: "12个月", Plan: models.PlanTwelveMonths},
	}
	assert.ErrorIs(t, validate(rules), ErrShadowedRule)
}

func TestRules_ReturnsCopy(t *testing.T) {
	r := newTestResolver(t)
	rules := r.Rules()
	rules[0].Plan = models.PlanOneMonth

	assert.Equal(t, models.PlanTwelveMonths, r.Resolve("十二个月套餐"))
}
