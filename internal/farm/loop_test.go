package farm

import (
	"context"
	"testing"
	"time"

	"github.com/shard-legends/farm-bot/internal/api"
	"github.com/shard-legends/farm-bot/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestKeeper(t *testing.T, client RemoteClient, registry *Registry, opts Options) *Keeper {
	t.Helper()
	cat := testCatalog(t)
	gate := NewInventoryGate(client, cat, zap.NewNop())
	k := NewKeeper(client, registry, gate, cat, nopSink{}, opts, zap.NewNop())
	k.now = func() time.Time { return testNow }
	return k
}

func defaultOpts() Options {
	return Options{
		SeedKey:      "wheat_seed",
		SeedMinBuy:   12,
		TickInterval: time.Second,
		RefreshGrace: 15 * time.Second,
	}
}

func snapshotWith(slots []api.SlotInfo, inventory map[string]int) *api.Snapshot {
	return &api.Snapshot{
		User:  api.User{ID: 1, Name: "petya"},
		State: api.FarmState{Slots: slots, Inventory: inventory},
	}
}

func TestKeeper_Tick_HarvestThenReplantSameTick(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{3})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{
		{Slot: 3, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(-time.Second))},
	}})

	k := newTestKeeper(t, mc, registry, defaultOpts())
	k.inventory = map[string]int{"wheat_seed": 5}

	mc.On("Harvest", mock.Anything, []int{3}).
		Return([]api.HarvestResult{{Slot: 3, Coins: 40, Gems: 1, Experience: 12}}, nil).Once()
	mc.On("Plant", mock.Anything, []api.PlantEntry{{Slot: 3, SeedKey: "wheat_seed"}}).
		Return(1, nil).Once()
	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 3, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(30 * time.Minute))}},
		map[string]int{"wheat_seed": 4},
	), nil).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)

	// Пересадка того же слота в том же тике, строго после сбора
	harvestIdx := callOrder(mc, "Harvest")
	plantIdx := callOrder(mc, "Plant")
	require.NotEqual(t, -1, harvestIdx)
	require.NotEqual(t, -1, plantIdx)
	assert.Less(t, harvestIdx, plantIdx)

	assert.Equal(t, int64(40), k.earnings.Coins)
	assert.Equal(t, int64(1), k.earnings.Gems)
	assert.Equal(t, int64(12), k.earnings.Experience)

	// Дедлайн взят из свежего чтения, а не выведен локально
	s, _ := registry.Get(3)
	assert.Equal(t, testNow.Add(30*time.Minute), s.ReadyAt)
	assert.Equal(t, 4, k.inventory["wheat_seed"])
}

func TestKeeper_Tick_PartialPlantOnPurchaseFailure(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{5, 6})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{
		{Slot: 5},
		{Slot: 6},
	}})

	k := newTestKeeper(t, mc, registry, defaultOpts())
	k.inventory = map[string]int{"wheat_seed": 1}

	mc.On("Purchase", mock.Anything, "wheat_seed", 12).
		Return(0, &api.RemoteError{Message: "insufficient funds"}).Once()
	mc.On("Plant", mock.Anything, []api.PlantEntry{{Slot: 5, SeedKey: "wheat_seed"}}).
		Return(1, nil).Once()
	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{
			{Slot: 5, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(30 * time.Minute))},
			{Slot: 6},
		},
		map[string]int{"wheat_seed": 0},
	), nil).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)

	// Посажен ровно один слот, второй остался пустым
	s5, _ := registry.Get(5)
	assert.True(t, s5.Occupied())
	s6, _ := registry.Get(6)
	assert.False(t, s6.Occupied())
}

func TestKeeper_Tick_NoSeedsSkipsPlanting(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{5})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{{Slot: 5}}})

	k := newTestKeeper(t, mc, registry, defaultOpts())
	k.inventory = map[string]int{}

	mc.On("Purchase", mock.Anything, "wheat_seed", 12).
		Return(0, &api.RemoteError{Message: "insufficient funds"}).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Plant", mock.Anything, mock.Anything)
	mc.AssertNotCalled(t, "FetchState", mock.Anything)
}

func TestKeeper_Tick_BoosterMaintenance(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1, 2})

	opts := defaultOpts()
	opts.BoosterKey = "turbo_fertilizer"
	opts.BoosterMinBuy = 5
	k := newTestKeeper(t, mc, registry, opts)

	growing := []api.SlotInfo{
		{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Hour)),
			BoosterKey: "turbo_fertilizer", BoosterEndsAt: ms(testNow.Add(-time.Millisecond))},
		{Slot: 2, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Hour)),
			BoosterKey: "turbo_fertilizer", BoosterEndsAt: ms(testNow.Add(time.Hour))},
	}
	boosted := []api.SlotInfo{
		{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(50 * time.Minute)),
			BoosterKey: "turbo_fertilizer", BoosterEndsAt: ms(testNow.Add(time.Hour))},
		growing[1],
	}

	// Единый снимок тика, затем контрольное чтение после применения
	mc.On("FetchState", mock.Anything).
		Return(snapshotWith(growing, map[string]int{"turbo_fertilizer": 3}), nil).Once()
	mc.On("ApplyBooster", mock.Anything, []api.BoostEntry{{Slot: 1, BoosterKey: "turbo_fertilizer"}}).
		Return(1, nil).Once()
	mc.On("FetchState", mock.Anything).
		Return(snapshotWith(boosted, map[string]int{"turbo_fertilizer": 2}), nil).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)

	// Слот с действующим ускорителем не трогается
	s2, _ := registry.Get(2)
	assert.False(t, s2.NeedsBooster(testNow))
	assert.Equal(t, 2, k.inventory["turbo_fertilizer"])
}

func TestKeeper_Tick_TransportFailureContinues(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{3})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{
		{Slot: 3, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(-time.Second))},
	}})

	k := newTestKeeper(t, mc, registry, defaultOpts())
	k.inventory = map[string]int{"wheat_seed": 5}

	mc.On("Harvest", mock.Anything, []int{3}).
		Return(nil, &transport.Error{Ops: "farm.harvest", Message: "unexpected status 502"}).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "Plant", mock.Anything, mock.Anything)

	// Слот остался занятым и будет пересобран на следующем тике
	assert.Equal(t, []int{3}, registry.DueHarvest(testNow))
	assert.Zero(t, k.earnings.Coins)
}

func TestKeeper_Tick_RefreshFailureHoldsDeadlineWithGrace(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{3})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{
		{Slot: 3, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(-time.Second))},
	}})

	k := newTestKeeper(t, mc, registry, defaultOpts())
	k.inventory = map[string]int{"wheat_seed": 5}

	mc.On("Harvest", mock.Anything, []int{3}).
		Return([]api.HarvestResult{{Slot: 3, Coins: 10}}, nil).Once()
	mc.On("Plant", mock.Anything, mock.Anything).Return(1, nil).Once()
	mc.On("FetchState", mock.Anything).
		Return(nil, &transport.Error{Ops: "farm.state", Message: "timeout"}).Once()

	k.tick(context.Background())

	// Семя без справочной длительности: предсказание now+grace,
	// после неудачного чтения продлено еще на grace
	s, _ := registry.Get(3)
	assert.Equal(t, testNow.Add(30*time.Second), s.ReadyAt)
	assert.True(t, k.pendingRefresh)

	// Следующий тик первым делом перечитывает состояние
	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 3, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(30 * time.Minute))}},
		map[string]int{"wheat_seed": 4},
	), nil).Once()

	k.tick(context.Background())

	mc.AssertExpectations(t)
	assert.False(t, k.pendingRefresh)

	s, _ = registry.Get(3)
	assert.Equal(t, testNow.Add(30*time.Minute), s.ReadyAt)
}

func TestKeeper_Bootstrap_Success(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1, 2})

	k := newTestKeeper(t, mc, registry, defaultOpts())

	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{
			{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Minute))},
			{Slot: 2, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Hour))},
		},
		map[string]int{"wheat_seed": 2},
	), nil).Once()

	err := k.Bootstrap(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, k.inventory["wheat_seed"])
	assert.Equal(t, 2, registry.DeadlineCount())
}

func TestKeeper_Bootstrap_PlantsEmptySlots(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1})

	k := newTestKeeper(t, mc, registry, defaultOpts())

	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 1}},
		map[string]int{"wheat_seed": 2},
	), nil).Once()
	mc.On("Plant", mock.Anything, []api.PlantEntry{{Slot: 1, SeedKey: "wheat_seed"}}).
		Return(1, nil).Once()
	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(30 * time.Minute))}},
		map[string]int{"wheat_seed": 1},
	), nil).Once()

	err := k.Bootstrap(context.Background())

	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestKeeper_Bootstrap_SnapshotFailure(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1})

	k := newTestKeeper(t, mc, registry, defaultOpts())

	mc.On("FetchState", mock.Anything).
		Return(nil, &transport.Error{Ops: "profile.me,farm.state", Message: "timeout"})

	err := k.Bootstrap(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup snapshot failed")
}

func TestKeeper_Bootstrap_NoTrackedSlots(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{8, 9})

	k := newTestKeeper(t, mc, registry, defaultOpts())

	// Сервер знает только чужие слоты
	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Minute))}},
		nil,
	), nil).Once()

	err := k.Bootstrap(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the tracked slots")
}

func TestKeeper_Bootstrap_NoDeadlineAfterPlanting(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1})

	k := newTestKeeper(t, mc, registry, defaultOpts())

	mc.On("FetchState", mock.Anything).Return(snapshotWith(
		[]api.SlotInfo{{Slot: 1}},
		map[string]int{},
	), nil).Once()
	mc.On("Purchase", mock.Anything, "wheat_seed", 12).
		Return(0, &api.RemoteError{Message: "insufficient funds"}).Once()

	err := k.Bootstrap(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "maturity deadline")
}

func TestKeeper_Run_StopsOnCancel(t *testing.T) {
	mc := &MockRemoteClient{}
	registry := NewRegistry([]int{1})
	registry.RebuildFrom(&api.FarmState{Slots: []api.SlotInfo{
		{Slot: 1, SeedKey: "wheat_seed", ReadyAt: ms(testNow.Add(time.Hour))},
	}})

	opts := defaultOpts()
	opts.TickInterval = 10 * time.Millisecond
	k := newTestKeeper(t, mc, registry, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- k.Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}

	assert.GreaterOrEqual(t, k.Status().Ticks, uint64(1))
}
