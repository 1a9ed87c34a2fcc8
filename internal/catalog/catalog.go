package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry — справочные данные одного предмета магазина
type Entry struct {
	DisplayName           string `yaml:"display_name"`
	UnitPrice             int64  `yaml:"unit_price"`
	Currency              string `yaml:"currency"`
	EffectDurationSeconds int    `yaml:"effect_duration_seconds"`
}

// EffectDuration возвращает длительность эффекта предмета
func (e Entry) EffectDuration() time.Duration {
	return time.Duration(e.EffectDurationSeconds) * time.Second
}

// Catalog — статический справочник предметов. Загружается один раз
// на старте и дальше только читается.
type Catalog struct {
	items map[string]Entry
}

type catalogFile struct {
	Items map[string]Entry `yaml:"items"`
}

// Load читает справочник из YAML-файла
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML-содержимое справочника
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(file.Items) == 0 {
		return nil, fmt.Errorf("catalog contains no items")
	}

	for key, entry := range file.Items {
		if entry.DisplayName == "" {
			return nil, fmt.Errorf("catalog item %s has no display_name", key)
		}
		if entry.UnitPrice < 0 {
			return nil, fmt.Errorf("catalog item %s has negative unit_price %d", key, entry.UnitPrice)
		}
		if entry.EffectDurationSeconds < 0 {
			return nil, fmt.Errorf("catalog item %s has negative effect_duration_seconds", key)
		}
	}

	return &Catalog{items: file.Items}, nil
}

// Get возвращает запись по ключу предмета
func (c *Catalog) Get(key string) (Entry, bool) {
	entry, ok := c.items[key]
	return entry, ok
}

// Len возвращает количество предметов в справочнике
func (c *Catalog) Len() int {
	return len(c.items)
}
