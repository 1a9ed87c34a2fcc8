package api

// User представляет профиль игрока
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Coins int64  `json:"coins"`
	Gems  int64  `json:"gems"`
}

// SlotInfo представляет один слот фермы в ответе сервера.
// Временные поля — миллисекунды unix-эпохи, ноль означает отсутствие.
type SlotInfo struct {
	Slot          int    `json:"slot"`
	SeedKey       string `json:"seedKey,omitempty"`
	ReadyAt       int64  `json:"readyAt,omitempty"`
	BoosterKey    string `json:"boosterKey,omitempty"`
	BoosterEndsAt int64  `json:"boosterEndsAt,omitempty"`
}

// FarmState представляет состояние фермы и инвентаря
type FarmState struct {
	Slots     []SlotInfo     `json:"slots"`
	Inventory map[string]int `json:"inventory"`
}

// Snapshot объединяет профиль и состояние фермы из одного батч-запроса
type Snapshot struct {
	User  User
	State FarmState
}

// PlantEntry — один элемент батч-посадки
type PlantEntry struct {
	Slot    int    `json:"slot"`
	SeedKey string `json:"seedKey"`
}

// BoostEntry — один элемент батч-применения ускорителя
type BoostEntry struct {
	Slot       int    `json:"slot"`
	BoosterKey string `json:"boosterKey"`
}

// HarvestResult — заработок с одного собранного слота
type HarvestResult struct {
	Slot       int   `json:"slot"`
	Coins      int64 `json:"coins"`
	Gems       int64 `json:"gems"`
	Experience int64 `json:"experience"`
}
