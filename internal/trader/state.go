// Package trader implements the trader adapter (§4.C): order lifecycle,
// local order-id allocation, position/undone bookkeeping, the risk gate,
// self-match detection, and action-policy-driven buy/sell splitting.
package trader

import "fmt"

// AdapterState is the trader adapter's strict login/query progression.
type AdapterState int

const (
	NotLoggedIn AdapterState = iota
	LoggingIn
	LoggedIn
	PositionQueried
	OrdersQueried
	TradesQueried
	AllReady
	LoginFailed
)

func (s AdapterState) String() string {
	switch s {
	case NotLoggedIn:
		return "not_logged_in"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	case PositionQueried:
		return "position_queried"
	case OrdersQueried:
		return "orders_queried"
	case TradesQueried:
		return "trades_queried"
	case AllReady:
		return "all_ready"
	case LoginFailed:
		return "login_failed"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the strict progression from §4.C.
// LoginFailed is reachable from LoggingIn only and is terminal
// until an explicit retry resets the adapter to NotLoggedIn.
var validTransitions = map[AdapterState][]AdapterState{
	NotLoggedIn:     {LoggingIn},
	LoggingIn:       {LoggedIn, LoginFailed},
	LoggedIn:        {PositionQueried, NotLoggedIn},
	PositionQueried: {OrdersQueried, NotLoggedIn},
	OrdersQueried:   {TradesQueried, NotLoggedIn},
	TradesQueried:   {AllReady, NotLoggedIn},
	AllReady:        {NotLoggedIn},
	LoginFailed:     {NotLoggedIn},
}

func (s AdapterState) canTransitionTo(next AdapterState) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ErrInvalidTransition describes a state change outside the strict
// progression. Adapter does not return it: setState logs a rejected
// transition and leaves the state unchanged.
type ErrInvalidTransition struct {
	From, To AdapterState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("trader: invalid state transition %s -> %s", e.From, e.To)
}
