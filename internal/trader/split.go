package trader

import (
	"github.com/alejandrodnm/hftcore/internal/domain"
)

// Buy translates a direction-only buy intent into one or more concrete
// orders using the action-policy rule group for productID (§4.C). Closing
// rules consume from the short position (buying closes short); if none of
// the close-family rules fully satisfy the intent, the remainder opens
// long via the group's open rule, unless no open rule exists.
func (a *Adapter) Buy(code, productID string, price, qty float64, forceClose bool) ([]uint32, error) {
	return a.splitAndSubmit(code, productID, domain.Buy, price, qty, forceClose)
}

// Sell is Buy's mirror: closing rules consume from the long position,
// remainder opens short.
func (a *Adapter) Sell(code, productID string, price, qty float64, forceClose bool) ([]uint32, error) {
	return a.splitAndSubmit(code, productID, domain.Sell, price, qty, forceClose)
}

func (a *Adapter) splitAndSubmit(code, productID string, side domain.Side, price, qty float64, forceClose bool) ([]uint32, error) {
	group := a.policy.GetActionRules(productID)
	pos := a.Position(code)

	// long is the position bucket this side's close rules draw from: a buy
	// closes short, a sell closes long (§4.C).
	long := side == domain.Sell

	rules := orderRulesForIntent(group, forceClose)

	var ids []uint32
	remaining := qty
	for _, rule := range rules {
		if remaining <= 0 {
			break
		}
		take := ruleCapacity(rule, &pos, long, remaining)
		if take <= 0 {
			continue
		}

		offset := actionTypeToOffset(rule.Type)
		if offset == domain.OffsetOpen {
			id, err := a.submit(code, side, domain.OffsetOpen, false, price, take)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		} else {
			isToday := offset == domain.OffsetCloseToday
			id, err := a.submit(code, side, offset, isToday, price, take)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		remaining -= take
		applyProvisional(&pos, long, offset, take)
	}

	return ids, nil
}

// orderRulesForIntent returns the group's rules in evaluation order; when
// forceClose is set, close-family rules are moved ahead of the open rule
// even if the group lists open first (§4.C: "If forceClose is set,
// close-family rules are preferred even when an open would be legal").
func orderRulesForIntent(group domain.ActionRuleGroup, forceClose bool) domain.ActionRuleGroup {
	if !forceClose {
		return group
	}
	ordered := make(domain.ActionRuleGroup, 0, len(group))
	for _, r := range group {
		if r.Type != domain.ActionOpen {
			ordered = append(ordered, r)
		}
	}
	for _, r := range group {
		if r.Type == domain.ActionOpen {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

func actionTypeToOffset(t domain.ActionType) domain.Offset {
	switch t {
	case domain.ActionClose:
		return domain.OffsetClose
	case domain.ActionCloseToday:
		return domain.OffsetCloseToday
	case domain.ActionCloseYesterday:
		return domain.OffsetCloseYesterday
	default:
		return domain.OffsetOpen
	}
}

// ruleCapacity computes the maximum quantity this rule may contribute
// against the remaining intent, bounded by the rule's limit, the
// long/short-specific sub-limits, and currently available position for
// close-family rules (§4.C).
func ruleCapacity(rule domain.ActionRule, pos *domain.Position, long bool, remaining float64) float64 {
	capQty := remaining
	if rule.Limit > 0 && float64(rule.Limit) < capQty {
		capQty = float64(rule.Limit)
	}
	if long && rule.LimitLong > 0 && float64(rule.LimitLong) < capQty {
		capQty = float64(rule.LimitLong)
	}
	if !long && rule.LimitShort > 0 && float64(rule.LimitShort) < capQty {
		capQty = float64(rule.LimitShort)
	}

	if rule.Type == domain.ActionOpen {
		return capQty
	}

	if rule.Pure && !pureSatisfied(rule.Type, pos, long) {
		return 0
	}

	avail := closeAvailability(rule.Type, pos, long)
	if avail < capQty {
		capQty = avail
	}
	if capQty < 0 {
		return 0
	}
	return capQty
}

func pureSatisfied(t domain.ActionType, pos *domain.Position, long bool) bool {
	switch t {
	case domain.ActionCloseToday:
		return pos.PureToday(long)
	case domain.ActionCloseYesterday:
		return pos.PureYesterday(long)
	default:
		return true
	}
}

func closeAvailability(t domain.ActionType, pos *domain.Position, long bool) float64 {
	switch t {
	case domain.ActionCloseToday:
		if long {
			return pos.LongNewAvail
		}
		return pos.ShortNewAvail
	case domain.ActionCloseYesterday:
		if long {
			return pos.LongPreAvail
		}
		return pos.ShortPreAvail
	default: // ActionClose: total available across both buckets
		return pos.Avail(long)
	}
}

// applyProvisional mutates the in-flight pos snapshot so subsequent rules
// in the same split see the reduced availability, without touching the
// adapter's real book (the real debit happens inside submit via
// reserveOnSubmit).
func applyProvisional(pos *domain.Position, long bool, offset domain.Offset, take float64) {
	if offset == domain.OffsetOpen {
		return
	}
	switch offset {
	case domain.OffsetCloseToday:
		if long {
			pos.LongNewAvail -= take
		} else {
			pos.ShortNewAvail -= take
		}
	case domain.OffsetCloseYesterday:
		if long {
			pos.LongPreAvail -= take
		} else {
			pos.ShortPreAvail -= take
		}
	default:
		split := splitPreThenNew(preAvail(pos, long), newAvail(pos, long), take)
		if long {
			pos.LongPreAvail -= split.PreQty
			pos.LongNewAvail -= split.NewQty
		} else {
			pos.ShortPreAvail -= split.PreQty
			pos.ShortNewAvail -= split.NewQty
		}
	}
}

func preAvail(pos *domain.Position, long bool) float64 {
	if long {
		return pos.LongPreAvail
	}
	return pos.ShortPreAvail
}

func newAvail(pos *domain.Position, long bool) float64 {
	if long {
		return pos.LongNewAvail
	}
	return pos.ShortNewAvail
}
