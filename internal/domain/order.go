package domain

// Side is the trading direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Offset is the position effect of an order.
type Offset int

const (
	OffsetOpen Offset = iota
	OffsetClose
	OffsetCloseToday
	OffsetCloseYesterday
)

func (o Offset) String() string {
	switch o {
	case OffsetOpen:
		return "open"
	case OffsetClose:
		return "close"
	case OffsetCloseToday:
		return "close_today"
	case OffsetCloseYesterday:
		return "close_yesterday"
	default:
		return "unknown"
	}
}

// OrderState is the lifecycle state of a local order. Only New, Submitted,
// and Partial are non-terminal.
type OrderState int

const (
	OrderNew OrderState = iota
	OrderSubmitted
	OrderPartial
	OrderFilled
	OrderCanceled
	OrderError
)

// Terminal reports whether the state is one of {Filled, Canceled, Error}.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCanceled || s == OrderError
}

func (s OrderState) String() string {
	switch s {
	case OrderNew:
		return "new"
	case OrderSubmitted:
		return "submitted"
	case OrderPartial:
		return "partial"
	case OrderFilled:
		return "filled"
	case OrderCanceled:
		return "canceled"
	case OrderError:
		return "error"
	default:
		return "unknown"
	}
}

// Order is the local view of an outbound order, keyed by a process-local
// monotonic id. BrokerID is filled in once the broker acknowledges the
// entrust; it is empty until then.
type Order struct {
	LocalID  uint32
	BrokerID string
	StdCode  string
	Side     Side
	Offset   Offset
	IsToday  bool // true exactly when Offset is CloseToday
	Price    float64
	Qty      float64
	Filled   float64
	State    OrderState
}

// Remaining is the quantity still outstanding on this order.
func (o *Order) Remaining() float64 {
	if o.Filled >= o.Qty {
		return 0
	}
	return o.Qty - o.Filled
}

// Trade is a single fill report for a local order.
type Trade struct {
	LocalID  uint32
	StdCode  string
	Side     Side
	Offset   Offset
	Price    float64
	Qty      float64
	TradeRef string // broker-side trade identifier, used for self-match detection
}
