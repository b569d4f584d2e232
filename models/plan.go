package models

import "strconv"

// PlanDuration is a subscription length in months.
type PlanDuration int

const (
	// PlanUnresolved marks a title that matched no plan rule.
	PlanUnresolved PlanDuration = 0

	PlanOneMonth     PlanDuration = 1
	PlanTwoMonths    PlanDuration = 2
	PlanThreeMonths  PlanDuration = 3
	PlanSixMonths    PlanDuration = 6
	PlanTwelveMonths PlanDuration = 12
)

// KnownPlans lists every plan the issuance backend sells.
var KnownPlans = []PlanDuration{
	PlanOneMonth,
	PlanTwoMonths,
	PlanThreeMonths,
	PlanSixMonths,
	PlanTwelveMonths,
}

// IsValidPlan reports whether months is a plan the backend can mint codes for.
func IsValidPlan(months int) (PlanDuration, bool) {
	p := PlanDuration(months)
	for _, known := range KnownPlans {
		if p == known {
			return p, true
		}
	}
	return PlanUnresolved, false
}

func (p PlanDuration) Resolved() bool {
	return p != PlanUnresolved
}

func (p PlanDuration) Months() int {
	return int(p)
}

// String returns the wire value sent to the activation API ("3").
func (p PlanDuration) String() string {
	return strconv.Itoa(int(p))
}

// Label returns the buyer-facing name ("3个月").
func (p PlanDuration) Label() string {
	if !p.Resolved() {
		return "未知套餐"
	}
	return strconv.Itoa(int(p)) + "个月"
}
