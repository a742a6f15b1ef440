package domain

// ActionType is one of the four position-effect actions an action rule
// governs.
type ActionType int

const (
	ActionOpen ActionType = iota
	ActionClose
	ActionCloseToday
	ActionCloseYesterday
)

// ActionRule constrains one action type for a rule group. Pure means the
// rule only fires when the opposite day-bucket is empty (§3, "pure close").
type ActionRule struct {
	Type       ActionType
	Limit      uint32
	LimitLong  uint32
	LimitShort uint32
	Pure       bool
}

// ActionRuleGroup is an ordered sequence of rules; order is significant —
// rules are applied in sequence, each consuming from the remaining intent
// (§8 scenario 1, §9 open-question resolution in SPEC_FULL.md).
type ActionRuleGroup []ActionRule

// RiskParams bounds order/cancel rate and lifetime totals for one scope
// (commodity or instrument).
type RiskParams struct {
	OrderRateBound  uint32
	OrderWindowSec  uint32
	OrderTotalCap   uint32
	CancelRateBound uint32
	CancelWindowSec uint32
	CancelTotalCap  uint32
}
