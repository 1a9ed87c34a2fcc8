package farm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shard-legends/farm-bot/internal/api"
	"github.com/shard-legends/farm-bot/internal/catalog"
	"github.com/shard-legends/farm-bot/pkg/metrics"
	"go.uber.org/zap"
)

// Sink отображает сводку слотов после каждого тика;
// реализация живет в internal/render
type Sink interface {
	Render(slots []SlotState, inventory map[string]int, earnings Earnings)
}

// Earnings — накопленный заработок за время работы цикла
type Earnings struct {
	Coins      int64
	Gems       int64
	Experience int64
}

func (e *Earnings) add(results []api.HarvestResult) {
	for _, r := range results {
		e.Coins += r.Coins
		e.Gems += r.Gems
		e.Experience += r.Experience
	}
}

// Status — снимок состояния цикла для монитора
type Status struct {
	StartedAt    time.Time
	LastTick     time.Time
	LastRemoteOK time.Time
	Ticks        uint64
	Earnings     Earnings
}

// Options — параметры цикла сверки
type Options struct {
	SeedKey       string
	BoosterKey    string
	SeedMinBuy    int
	BoosterMinBuy int
	TickInterval  time.Duration
	RefreshGrace  time.Duration
}

// Keeper — цикл сверки: на каждом тике собирает созревшие слоты,
// пересаживает пустые, поддерживает ускорители и сводит локальное
// состояние с ответами сервера. Строго последовательный: ни одна
// пара мутирующих вызовов не выполняется одновременно.
type Keeper struct {
	client   RemoteClient
	registry *Registry
	gate     *InventoryGate
	catalog  *catalog.Catalog
	sink     Sink
	opts     Options
	logger   *zap.Logger

	inventory      map[string]int
	earnings       Earnings
	pendingRefresh bool

	mu     sync.Mutex
	status Status

	now func() time.Time
}

// NewKeeper создает цикл сверки для отслеживаемого набора слотов
func NewKeeper(client RemoteClient, registry *Registry, gate *InventoryGate, cat *catalog.Catalog, sink Sink, opts Options, logger *zap.Logger) *Keeper {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.RefreshGrace <= 0 {
		opts.RefreshGrace = 15 * time.Second
	}
	return &Keeper{
		client:    client,
		registry:  registry,
		gate:      gate,
		catalog:   cat,
		sink:      sink,
		opts:      opts,
		logger:    logger,
		inventory: make(map[string]int),
		status:    Status{StartedAt: time.Now()},
		now:       time.Now,
	}
}

// Bootstrap выполняет стартовое предусловие: полный снимок состояния,
// первичная посадка пустых слотов и хотя бы один известный срок
// созревания. Ошибка здесь фатальна — цикл не стартует.
func (k *Keeper) Bootstrap(ctx context.Context) error {
	snapshot, err := k.client.FetchState(ctx)
	if err != nil {
		return fmt.Errorf("startup snapshot failed: %w", err)
	}

	k.registry.RebuildFrom(&snapshot.State)
	k.inventory = cloneInventory(snapshot.State.Inventory)
	k.markRemoteOK()

	if k.registry.KnownCount() == 0 {
		return fmt.Errorf("none of the tracked slots %v are present in the remote state", k.registry.Tracked())
	}

	k.logger.Info("Initial snapshot loaded",
		zap.String("user", snapshot.User.Name),
		zap.Int64("coins", snapshot.User.Coins),
		zap.Int("known_slots", k.registry.KnownCount()))

	if empty := k.registry.EmptySlots(); len(empty) > 0 {
		if planted := k.plantSlots(ctx, empty); planted > 0 {
			k.refreshState(ctx, empty)
		}
	}

	if k.registry.DeadlineCount() == 0 {
		return fmt.Errorf("no tracked slot has a known maturity deadline after initial planting")
	}

	return nil
}

// Run крутит цикл с фиксированным периодом до отмены контекста.
// Отмена срабатывает на границе тика; начатый тик дорабатывает до конца.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Info("Starting reconciliation loop",
		zap.Ints("slots", k.registry.Tracked()),
		zap.String("seed", k.opts.SeedKey),
		zap.String("booster", k.opts.BoosterKey),
		zap.Duration("tick_interval", k.opts.TickInterval))

	ticker := time.NewTicker(k.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Stopping reconciliation loop")
			return nil
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

// Status возвращает снимок состояния цикла; безопасен для других горутин
func (k *Keeper) Status() Status {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.status
}

// tick выполняет одну итерацию сверки. Любой сбой внутри тика
// логируется и не прерывает цикл.
func (k *Keeper) tick(ctx context.Context) {
	now := k.now()
	metrics.TicksTotal.Inc()

	k.mu.Lock()
	k.status.LastTick = now
	k.status.Ticks++
	k.mu.Unlock()

	// Недочитанное состояние с прошлого тика перечитывается до решений
	if k.pendingRefresh {
		k.refreshState(ctx, nil)
	}

	refreshed := false

	// 1. Сбор созревших слотов
	due := k.registry.DueHarvest(now)
	mutated := false
	if len(due) > 0 {
		results, err := k.client.Harvest(ctx, due)
		if err != nil {
			k.logger.Error("Harvest failed", zap.Ints("slots", due), zap.Error(err))
			metrics.RecordAction("harvest", "error")
		} else {
			k.earnings.add(results)
			k.registry.MarkHarvested(due)
			k.markRemoteOK()
			mutated = true

			metrics.RecordAction("harvest", "ok")
			metrics.SlotsHarvestedTotal.Add(float64(len(results)))
			k.recordEarnings(results)

			k.logger.Info("Harvested slots",
				zap.Ints("slots", due),
				zap.Int64("coins_total", k.earnings.Coins),
				zap.Int64("gems_total", k.earnings.Gems),
				zap.Int64("xp_total", k.earnings.Experience))
		}
	}

	// 2. Пересадка: только что собранные плюс давно пустующие слоты
	if empty := k.registry.EmptySlots(); len(empty) > 0 {
		if planted := k.plantSlots(ctx, empty); planted > 0 {
			mutated = true
		}
	}

	if mutated {
		refreshed = k.refreshState(ctx, due)
	}

	// 3. Поддержание ускорителей на едином снимке тика
	if k.opts.BoosterKey != "" {
		if !refreshed {
			refreshed = k.refreshState(ctx, nil)
		}
		if need := k.registry.NeedBoost(now); len(need) > 0 {
			if boosted := k.boostSlots(ctx, need); boosted > 0 {
				k.refreshState(ctx, need)
			}
		}
	}

	k.mu.Lock()
	k.status.Earnings = k.earnings
	k.mu.Unlock()

	k.sink.Render(k.registry.Snapshot(), cloneInventory(k.inventory), k.earnings)
}

// plantSlots сажает семена в пустые слоты, докупая недостачу через
// InventoryGate. Сажается не больше подтвержденного запаса; полная
// нехватка просто откладывает посадку до следующего тика.
func (k *Keeper) plantSlots(ctx context.Context, empty []int) int {
	have := k.inventory[k.opts.SeedKey]
	if have < len(empty) {
		have = k.gate.Ensure(ctx, k.opts.SeedKey, len(empty), have, k.opts.SeedMinBuy)
		k.inventory[k.opts.SeedKey] = have
	}

	if have <= 0 {
		k.logger.Warn("No seeds available, skipping planting this tick",
			zap.Ints("empty_slots", empty))
		return 0
	}

	toPlant := min(len(empty), have)
	if toPlant < len(empty) {
		k.logger.Warn("Seed shortfall, planting partially",
			zap.Int("empty", len(empty)),
			zap.Int("available", have))
	}

	targets := empty[:toPlant]
	entries := make([]api.PlantEntry, len(targets))
	for i, id := range targets {
		entries[i] = api.PlantEntry{Slot: id, SeedKey: k.opts.SeedKey}
	}

	planted, err := k.client.Plant(ctx, entries)
	if err != nil {
		k.logger.Error("Plant failed", zap.Ints("slots", targets), zap.Error(err))
		metrics.RecordAction("plant", "error")
		return 0
	}

	// Потребление списывается только после подтверждения сервером
	k.inventory[k.opts.SeedKey] -= planted
	if k.inventory[k.opts.SeedKey] < 0 {
		k.inventory[k.opts.SeedKey] = 0
	}

	k.registry.MarkPlanted(targets[:min(planted, len(targets))], k.opts.SeedKey, k.predictDeadline(k.opts.SeedKey))
	k.markRemoteOK()

	metrics.RecordAction("plant", "ok")
	metrics.SlotsPlantedTotal.Add(float64(planted))

	k.logger.Info("Planted slots", zap.Ints("slots", targets), zap.Int("planted", planted))
	return planted
}

// boostSlots применяет ускорители к слотам из need, докупая недостачу.
// Слоты, опустевшие между снимком и решением, молча пропускаются.
func (k *Keeper) boostSlots(ctx context.Context, need []int) int {
	targets := make([]int, 0, len(need))
	for _, id := range need {
		if s, ok := k.registry.Get(id); ok && s.Occupied() {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return 0
	}

	have := k.inventory[k.opts.BoosterKey]
	if have < len(targets) {
		have = k.gate.Ensure(ctx, k.opts.BoosterKey, len(targets), have, k.opts.BoosterMinBuy)
		k.inventory[k.opts.BoosterKey] = have
	}

	if have <= 0 {
		k.logger.Warn("No boosters available, skipping boosting this tick",
			zap.Ints("slots", targets))
		return 0
	}

	toApply := min(len(targets), have)
	targets = targets[:toApply]

	entries := make([]api.BoostEntry, len(targets))
	for i, id := range targets {
		entries[i] = api.BoostEntry{Slot: id, BoosterKey: k.opts.BoosterKey}
	}

	applied, err := k.client.ApplyBooster(ctx, entries)
	if err != nil {
		k.logger.Error("Booster application failed", zap.Ints("slots", targets), zap.Error(err))
		metrics.RecordAction("boost", "error")
		return 0
	}

	k.inventory[k.opts.BoosterKey] -= applied
	if k.inventory[k.opts.BoosterKey] < 0 {
		k.inventory[k.opts.BoosterKey] = 0
	}

	k.registry.MarkBoosted(targets[:min(applied, len(targets))], k.opts.BoosterKey, k.predictDeadline(k.opts.BoosterKey))
	k.markRemoteOK()

	metrics.RecordAction("boost", "ok")
	metrics.SlotsBoostedTotal.Add(float64(applied))

	k.logger.Info("Applied boosters", zap.Ints("slots", targets), zap.Int("applied", applied))
	return applied
}

// refreshState перечитывает состояние с сервера и перестраивает реестр.
// При неудаче дедлайны затронутых слотов продлеваются на льготный период,
// а перечитывание повторяется в начале следующего тика.
func (k *Keeper) refreshState(ctx context.Context, touched []int) bool {
	snapshot, err := k.client.FetchState(ctx)
	if err != nil {
		k.logger.Warn("State refresh failed, holding previous deadlines with grace period",
			zap.Ints("touched_slots", touched),
			zap.Error(err))

		for _, id := range touched {
			s, ok := k.registry.Get(id)
			if !ok {
				continue
			}
			readyAt := s.ReadyAt
			if !readyAt.IsZero() {
				readyAt = readyAt.Add(k.opts.RefreshGrace)
			}
			boosterEndsAt := s.BoosterEndsAt
			if !boosterEndsAt.IsZero() {
				boosterEndsAt = boosterEndsAt.Add(k.opts.RefreshGrace)
			}
			k.registry.ApplyPartialUpdate(id, readyAt, boosterEndsAt)
		}

		k.pendingRefresh = true
		return false
	}

	k.registry.RebuildFrom(&snapshot.State)
	k.inventory = cloneInventory(snapshot.State.Inventory)
	k.pendingRefresh = false
	k.markRemoteOK()
	return true
}

// predictDeadline дает локальную оценку дедлайна по справочнику;
// оценка действует только до ближайшего успешного чтения
func (k *Keeper) predictDeadline(itemKey string) time.Time {
	if entry, ok := k.catalog.Get(itemKey); ok && entry.EffectDurationSeconds > 0 {
		return k.now().Add(entry.EffectDuration())
	}
	return k.now().Add(k.opts.RefreshGrace)
}

func (k *Keeper) recordEarnings(results []api.HarvestResult) {
	var coins, gems int64
	for _, r := range results {
		coins += r.Coins
		gems += r.Gems
	}
	metrics.EarningsTotal.WithLabelValues("coins").Add(float64(coins))
	metrics.EarningsTotal.WithLabelValues("gems").Add(float64(gems))
}

func (k *Keeper) markRemoteOK() {
	k.mu.Lock()
	k.status.LastRemoteOK = k.now()
	k.mu.Unlock()
}

func cloneInventory(src map[string]int) map[string]int {
	out := make(map[string]int, len(src))
	for key, qty := range src {
		out[key] = qty
	}
	return out
}
