package farm

import (
	"context"

	"github.com/shard-legends/farm-bot/internal/api"
	"github.com/shard-legends/farm-bot/internal/catalog"
	"github.com/shard-legends/farm-bot/pkg/metrics"
	"go.uber.org/zap"
)

// RemoteClient — операции удаленного API, нужные циклу сверки
type RemoteClient interface {
	FetchState(ctx context.Context) (*api.Snapshot, error)
	Plant(ctx context.Context, entries []api.PlantEntry) (int, error)
	Harvest(ctx context.Context, slots []int) ([]api.HarvestResult, error)
	ApplyBooster(ctx context.Context, entries []api.BoostEntry) (int, error)
	Purchase(ctx context.Context, itemKey string, quantity int) (int, error)
}

// InventoryGate — политика докупки расходников: перед действием
// гарантирует нужное количество предмета, покупая недостачу
type InventoryGate struct {
	client  RemoteClient
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewInventoryGate создает политику докупки
func NewInventoryGate(client RemoteClient, cat *catalog.Catalog, logger *zap.Logger) *InventoryGate {
	return &InventoryGate{
		client:  client,
		catalog: cat,
		logger:  logger,
	}
}

// Ensure возвращает количество itemKey, доступное после докупки.
// При достаточном запасе сеть не трогается. При неудачной покупке
// возвращается исходный запас: вызывающая сторона деградирует сама.
// После успешной покупки запас перечитывается с сервера, потому что
// купленное количество могло быть частично потреблено или урезано.
func (g *InventoryGate) Ensure(ctx context.Context, itemKey string, neededCount, currentHolding, minBuyQty int) int {
	if currentHolding >= neededCount {
		return currentHolding
	}

	buyQty := neededCount - currentHolding
	if buyQty < minBuyQty {
		buyQty = minBuyQty
	}

	itemLogger := g.logger.With(
		zap.String("item", itemKey),
		zap.Int("needed", neededCount),
		zap.Int("holding", currentHolding),
		zap.Int("buy_qty", buyQty))

	if entry, ok := g.catalog.Get(itemKey); ok {
		itemLogger = itemLogger.With(
			zap.String("item_name", entry.DisplayName),
			zap.Int64("cost", entry.UnitPrice*int64(buyQty)),
			zap.String("currency", entry.Currency))
	}

	purchased, err := g.client.Purchase(ctx, itemKey, buyQty)
	if err != nil {
		itemLogger.Error("Purchase failed", zap.Error(err))
		metrics.RecordAction("purchase", "error")
		return currentHolding
	}

	itemLogger.Info("Purchased consumable", zap.Int("purchased", purchased))
	metrics.RecordAction("purchase", "ok")
	metrics.ItemsPurchasedTotal.WithLabelValues(itemKey).Add(float64(purchased))

	snapshot, err := g.client.FetchState(ctx)
	if err != nil {
		// Покупка прошла, но подтвердить запас нечем: живем на
		// предсказании до следующего успешного чтения
		itemLogger.Warn("Failed to re-read inventory after purchase", zap.Error(err))
		return currentHolding + purchased
	}

	return snapshot.State.Inventory[itemKey]
}
