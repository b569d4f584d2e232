// Package planresolver maps free-text listing titles to plan durations.
package planresolver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/coreybb/xianyu-autodeliver/models"
)

var (
	ErrEmptyPattern = errors.New("plan rule pattern is empty")
	ErrUnknownPlan  = errors.New("plan rule targets an unknown plan")
	ErrShadowedRule = errors.New("plan rule is shadowed by an earlier, shorter pattern")
)

// monthsPattern catches digit forms the rule list does not spell out, e.g. "6月".
var monthsPattern = regexp.MustCompile(`(\d+)\s*个?月`)

// Rule maps a title substring to a plan.
type Rule struct {
	Pattern string
	Plan    models.PlanDuration
}

// DefaultRules is evaluated top to bottom. A pattern must come before any
// shorter pattern it contains: "12个月" has to win over "2个月".
var DefaultRules = []Rule{
	{Pattern: "十二个月", Plan: models.PlanTwelveMonths},
	{Pattern: "12个月", Plan: models.PlanTwelveMonths},
	{Pattern: "一年", Plan: models.PlanTwelveMonths},
	{Pattern: "六个月", Plan: models.PlanSixMonths},
	{Pattern: "半年", Plan: models.PlanSixMonths},
	{Pattern: "6个月", Plan: models.PlanSixMonths},
	{Pattern: "三个月", Plan: models.PlanThreeMonths},
	{Pattern: "3个月", Plan: models.PlanThreeMonths},
	{Pattern: "两个月", Plan: models.PlanTwoMonths},
	{Pattern: "二个月", Plan: models.PlanTwoMonths},
	{Pattern: "2个月", Plan: models.PlanTwoMonths},
	{Pattern: "一个月", Plan: models.PlanOneMonth},
	{Pattern: "1个月", Plan: models.PlanOneMonth},
}

// Resolver holds an ordered rule list. It is immutable after New.
type Resolver struct {
	rules []Rule
}

// New builds a Resolver from extra rules followed by DefaultRules.
func New(extra ...Rule) (*Resolver, error) {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules))
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules...)

	if err := validate(rules); err != nil {
		return nil, err
	}
	return &Resolver{rules: rules}, nil
}

// Rules returns a copy of the rule list in evaluation order.
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Resolve returns the plan for title, or models.PlanUnresolved.
func (r *Resolver) Resolve(title string) models.PlanDuration {
	for _, rule := range r.rules {
		if containsWhole(title, rule.Pattern) {
			return rule.Plan
		}
	}

	match := monthsPattern.FindStringSubmatch(title)
	if match == nil {
		return models.PlanUnresolved
	}
	months, err := strconv.Atoi(match[1])
	if err != nil {
		return models.PlanUnresolved
	}
	if plan, ok := models.IsValidPlan(months); ok {
		return plan
	}
	return models.PlanUnresolved
}

// containsWhole reports whether pattern occurs in title without continuing a
// longer number, so "1个月" is not found in "11个月" nor "一个月" in "十一个月".
func containsWhole(title, pattern string) bool {
	first, _ := utf8.DecodeRuneInString(pattern)
	for offset := 0; offset <= len(title); {
		i := strings.Index(title[offset:], pattern)
		if i < 0 {
			return false
		}
		i += offset
		prev, _ := utf8.DecodeLastRuneInString(title[:i])
		if i == 0 || !continuesNumber(prev, first) {
			return true
		}
		offset = i + len(pattern)
	}
	return false
}

func continuesNumber(prev, first rune) bool {
	switch {
	case isASCIIDigit(first):
		return isASCIIDigit(prev)
	case isChineseNumeral(first):
		return isChineseNumeral(prev)
	}
	return false
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

func isChineseNumeral(r rune) bool {
	return strings.ContainsRune("零一二两三四五六七八九十百", r)
}

func validate(rules []Rule) error {
	for i, rule := range rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("rule %d: %w", i, ErrEmptyPattern)
		}
		if _, ok := models.IsValidPlan(rule.Plan.Months()); !ok {
			return fmt.Errorf("rule %d (%q -> %d): %w", i, rule.Pattern, rule.Plan, ErrUnknownPlan)
		}
		for _, earlier := range rules[:i] {
			if earlier.Plan != rule.Plan && strings.Contains(rule.Pattern, earlier.Pattern) {
				return fmt.Errorf("%q -> %d never matches, %q -> %d is checked first: %w",
					rule.Pattern, rule.Plan, earlier.Pattern, earlier.Plan, ErrShadowedRule)
			}
		}
	}
	return nil
}
