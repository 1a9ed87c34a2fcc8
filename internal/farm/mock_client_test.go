package farm

import (
	"context"
	"testing"

	"github.com/shard-legends/farm-bot/internal/api"
	"github.com/shard-legends/farm-bot/internal/catalog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRemoteClient мок для RemoteClient
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) FetchState(ctx context.Context) (*api.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Snapshot), args.Error(1)
}

func (m *MockRemoteClient) Plant(ctx context.Context, entries []api.PlantEntry) (int, error) {
	args := m.Called(ctx, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockRemoteClient) Harvest(ctx context.Context, slots []int) ([]api.HarvestResult, error) {
	args := m.Called(ctx, slots)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.HarvestResult), args.Error(1)
}

func (m *MockRemoteClient) ApplyBooster(ctx context.Context, entries []api.BoostEntry) (int, error) {
	args := m.Called(ctx, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockRemoteClient) Purchase(ctx context.Context, itemKey string, quantity int) (int, error) {
	args := m.Called(ctx, itemKey, quantity)
	return args.Int(0), args.Error(1)
}

// callOrder возвращает индекс первого вызова метода в записи мока
func callOrder(m *MockRemoteClient, method string) int {
	for i, call := range m.Calls {
		if call.Method == method {
			return i
		}
	}
	return -1
}

const testCatalogYAML = `
items:
  wheat_seed:
    display_name: "Пшеница"
    unit_price: 10
    currency: coins
  turbo_fertilizer:
    display_name: "Турбо-удобрение"
    unit_price: 3
    currency: gems
    effect_duration_seconds: 3600
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)
	return cat
}

// nopSink — заглушка вывода для тестов
type nopSink struct{}

func (nopSink) Render([]SlotState, map[string]int, Earnings) {}
