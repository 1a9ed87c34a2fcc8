package farm

import (
	"time"

	"github.com/shard-legends/farm-bot/internal/api"
)

// SlotState — локальное состояние одного отслеживаемого слота.
// Дедлайны — кэш последнего подтвержденного чтения с сервера.
type SlotState struct {
	ID            int
	SeedKey       string    // "" если слот пуст
	ReadyAt       time.Time // нулевое, если слот пуст
	BoosterKey    string
	BoosterEndsAt time.Time
}

// Occupied сообщает, растет ли что-то в слоте
func (s SlotState) Occupied() bool {
	return s.SeedKey != ""
}

// ReadyToHarvest сообщает, созрел ли занятый слот к моменту now
func (s SlotState) ReadyToHarvest(now time.Time) bool {
	return s.Occupied() && !s.ReadyAt.After(now)
}

// NeedsBooster сообщает, нужен ли занятому слоту ускоритель:
// ускорителя нет или его действие истекло
func (s SlotState) NeedsBooster(now time.Time) bool {
	if !s.Occupied() {
		return false
	}
	return s.BoosterKey == "" || !s.BoosterEndsAt.After(now)
}

// Registry — реестр состояний отслеживаемых слотов. Слот, по которому
// данных еще не было, считается неизвестным, а не пустым: он отсутствует
// в реестре и не участвует в решениях.
type Registry struct {
	tracked []int
	slots   map[int]SlotState
}

// NewRegistry создает реестр для упорядоченного набора слотов
func NewRegistry(tracked []int) *Registry {
	return &Registry{
		tracked: tracked,
		slots:   make(map[int]SlotState, len(tracked)),
	}
}

// Tracked возвращает отслеживаемые id в исходном порядке
func (r *Registry) Tracked() []int {
	return r.tracked
}

// RebuildFrom проецирует свежий снимок состояния фермы в реестр.
// Перезаписываются только слоты, присутствующие в снимке: отсутствие
// данных по слоту означает "неизвестно", а не "пусто".
func (r *Registry) RebuildFrom(state *api.FarmState) {
	trackedSet := make(map[int]bool, len(r.tracked))
	for _, id := range r.tracked {
		trackedSet[id] = true
	}

	for _, info := range state.Slots {
		if !trackedSet[info.Slot] {
			continue
		}
		r.slots[info.Slot] = slotFromInfo(info)
	}
}

// ApplyPartialUpdate перезаписывает дедлайны ровно одного известного слота
func (r *Registry) ApplyPartialUpdate(slotID int, readyAt, boosterEndsAt time.Time) {
	s, ok := r.slots[slotID]
	if !ok {
		return
	}
	s.ReadyAt = readyAt
	s.BoosterEndsAt = boosterEndsAt
	r.slots[slotID] = s
}

// MarkHarvested локально очищает собранные слоты до следующего чтения
func (r *Registry) MarkHarvested(slotIDs []int) {
	for _, id := range slotIDs {
		if _, ok := r.slots[id]; ok {
			r.slots[id] = SlotState{ID: id}
		}
	}
}

// MarkPlanted ставит подтвержденную посадку с предсказанным дедлайном;
// предсказание живет до ближайшего успешного чтения состояния
func (r *Registry) MarkPlanted(slotIDs []int, seedKey string, readyAt time.Time) {
	for _, id := range slotIDs {
		s, ok := r.slots[id]
		if !ok {
			continue
		}
		s.SeedKey = seedKey
		s.ReadyAt = readyAt
		r.slots[id] = s
	}
}

// MarkBoosted ставит подтвержденный ускоритель с предсказанным сроком
func (r *Registry) MarkBoosted(slotIDs []int, boosterKey string, endsAt time.Time) {
	for _, id := range slotIDs {
		s, ok := r.slots[id]
		if !ok || !s.Occupied() {
			continue
		}
		s.BoosterKey = boosterKey
		s.BoosterEndsAt = endsAt
		r.slots[id] = s
	}
}

// Get возвращает состояние слота; ok=false для неизвестного слота
func (r *Registry) Get(slotID int) (SlotState, bool) {
	s, ok := r.slots[slotID]
	return s, ok
}

// KnownCount возвращает число слотов с известным состоянием
func (r *Registry) KnownCount() int {
	return len(r.slots)
}

// DeadlineCount возвращает число слотов с известным сроком созревания
func (r *Registry) DeadlineCount() int {
	count := 0
	for _, s := range r.slots {
		if s.Occupied() && !s.ReadyAt.IsZero() {
			count++
		}
	}
	return count
}

// DueHarvest возвращает id слотов, созревших к моменту now
func (r *Registry) DueHarvest(now time.Time) []int {
	var due []int
	for _, id := range r.tracked {
		if s, ok := r.slots[id]; ok && s.ReadyToHarvest(now) {
			due = append(due, id)
		}
	}
	return due
}

// EmptySlots возвращает id заведомо пустых слотов
func (r *Registry) EmptySlots() []int {
	var empty []int
	for _, id := range r.tracked {
		if s, ok := r.slots[id]; ok && !s.Occupied() {
			empty = append(empty, id)
		}
	}
	return empty
}

// NeedBoost возвращает id занятых слотов без действующего ускорителя
func (r *Registry) NeedBoost(now time.Time) []int {
	var need []int
	for _, id := range r.tracked {
		if s, ok := r.slots[id]; ok && s.NeedsBooster(now) {
			need = append(need, id)
		}
	}
	return need
}

// Snapshot возвращает известные слоты в порядке отслеживания
func (r *Registry) Snapshot() []SlotState {
	out := make([]SlotState, 0, len(r.slots))
	for _, id := range r.tracked {
		if s, ok := r.slots[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func slotFromInfo(info api.SlotInfo) SlotState {
	s := SlotState{
		ID:         info.Slot,
		SeedKey:    info.SeedKey,
		BoosterKey: info.BoosterKey,
	}
	if info.ReadyAt > 0 {
		s.ReadyAt = time.UnixMilli(info.ReadyAt)
	}
	if info.BoosterEndsAt > 0 {
		s.BoosterEndsAt = time.UnixMilli(info.BoosterEndsAt)
	}
	return s
}
