package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/plugin"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

// fakeStrategy is a minimal ports.StrategyContext; only ID/Name are
// exercised by the registry itself.
type fakeStrategy struct {
	id   uint32
	name string
}

func (s *fakeStrategy) ID() uint32   { return s.id }
func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) OnInit()                                               {}
func (s *fakeStrategy) OnSessionBegin(tradingDate uint32)                     {}
func (s *fakeStrategy) OnSessionEnd(tradingDate uint32)                       {}
func (s *fakeStrategy) OnTick(stdCode string, tick *domain.Tick)              {}
func (s *fakeStrategy) OnBar(stdCode, period string, multiplier uint32, bar *domain.Bar) {
}
func (s *fakeStrategy) OnOrderQueue(stdCode string, data *domain.OrderQueue)   {}
func (s *fakeStrategy) OnOrderDetail(stdCode string, data *domain.OrderDetail) {}
func (s *fakeStrategy) OnTransaction(stdCode string, data *domain.Transaction) {}
func (s *fakeStrategy) OnOrder(localID uint32, stdCode string, isBuy bool, total, left, price float64, canceled bool) {
}
func (s *fakeStrategy) OnTrade(localID uint32, stdCode string, isBuy bool, qty, price float64) {}

// fakeFactory records CreateStrategy/DeleteStrategy calls.
type fakeFactory struct {
	name    string
	created []string
	deleted []ports.StrategyContext
}

func (f *fakeFactory) Name() string { return f.name }

func (f *fakeFactory) CreateStrategy(name string, id uint32) ports.StrategyContext {
	f.created = append(f.created, name)
	return &fakeStrategy{id: id, name: name}
}

func (f *fakeFactory) DeleteStrategy(ctx ports.StrategyContext) {
	f.deleted = append(f.deleted, ctx)
}

func TestCreateReturnsInstanceBoundToRegisteredFactory(t *testing.T) {
	r := plugin.NewRegistry()
	f := &fakeFactory{name: "alpha"}
	r.Register(f)

	inst, err := r.Create("alpha", "strat1", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, inst.Handle)
	assert.Equal(t, "alpha", inst.Factory)
	assert.Equal(t, uint32(1), inst.Context.ID())
	assert.Equal(t, []string{"strat1"}, f.created)
}

func TestCreateUnknownFactoryErrors(t *testing.T) {
	r := plugin.NewRegistry()
	_, err := r.Create("missing", "strat1", 1)
	assert.Error(t, err)
}

func TestDeleteRoutesThroughOwningFactory(t *testing.T) {
	r := plugin.NewRegistry()
	f := &fakeFactory{name: "alpha"}
	r.Register(f)

	inst, err := r.Create("alpha", "strat1", 1)
	require.NoError(t, err)

	require.NoError(t, r.Delete(inst.Handle))
	require.Len(t, f.deleted, 1)
	assert.Equal(t, inst.Context, f.deleted[0])

	_, ok := r.Get(inst.Handle)
	assert.False(t, ok, "deleted instance must no longer be retrievable")
}

func TestDeleteUnknownHandleErrors(t *testing.T) {
	r := plugin.NewRegistry()
	assert.Error(t, r.Delete("nonexistent"))
}

func TestRegisterSameNameReplacesFactory(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(&fakeFactory{name: "alpha"})
	second := &fakeFactory{name: "alpha"}
	r.Register(second)

	_, err := r.Create("alpha", "strat1", 1)
	require.NoError(t, err)
	assert.Len(t, second.created, 1)
}

func TestFactoriesListsRegisteredNames(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(&fakeFactory{name: "alpha"})
	r.Register(&fakeFactory{name: "beta"})

	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.Factories())
}
