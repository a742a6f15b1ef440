package ports

import "github.com/alejandrodnm/hftcore/internal/domain"

// StrategyContext is the engine-side handle for a live strategy instance —
// the target of every callback in §6. Implementations are supplied
// by strategy authors; the engine only ever calls through this interface.
type StrategyContext interface {
	ID() uint32
	Name() string

	OnInit()
	OnSessionBegin(tradingDate uint32)
	OnSessionEnd(tradingDate uint32)
	OnTick(stdCode string, tick *domain.Tick)
	OnBar(stdCode, period string, multiplier uint32, bar *domain.Bar)
	OnOrderQueue(stdCode string, data *domain.OrderQueue)
	OnOrderDetail(stdCode string, data *domain.OrderDetail)
	OnTransaction(stdCode string, data *domain.Transaction)
	OnOrder(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool)
	OnTrade(localID uint32, stdCode string, isBuy bool, qty, price float64)
}

// StrategyFactory creates and destroys strategy instances. Paired
// creator/deleter semantics (§6 plug-in contract) are modeled as a
// single interface rather than a dynamically loaded symbol pair, since
// dynamic module loading is explicitly out of scope; the capability handle
// a loader would build around a creator+deleter pair collapses here to
// ordinary interface dispatch.
type StrategyFactory interface {
	Name() string
	CreateStrategy(name string, id uint32) StrategyContext
	DeleteStrategy(ctx StrategyContext)
}
