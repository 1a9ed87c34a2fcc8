package render

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/shard-legends/farm-bot/internal/farm"
)

// Console печатает сводку слотов в терминал после каждого тика.
// Перерисовывается не чаще minInterval, чтобы не заливать вывод.
type Console struct {
	out         io.Writer
	minInterval time.Duration
	lastRender  time.Time
	now         func() time.Time

	ready   *color.Color
	growing *color.Color
	empty   *color.Color
	boosted *color.Color
}

// NewConsole создает консольный рендерер сводки
func NewConsole(minInterval time.Duration) *Console {
	return &Console{
		out:         os.Stdout,
		minInterval: minInterval,
		now:         time.Now,
		ready:       color.New(color.FgGreen),
		growing:     color.New(color.FgYellow),
		empty:       color.New(color.FgRed),
		boosted:     color.New(color.FgCyan),
	}
}

// Render реализует farm.Sink
func (c *Console) Render(slots []farm.SlotState, inventory map[string]int, earnings farm.Earnings) {
	now := c.now()
	if !c.lastRender.IsZero() && now.Sub(c.lastRender) < c.minInterval {
		return
	}
	c.lastRender = now

	fmt.Fprintf(c.out, "\n[%s] earnings: coins=%d gems=%d xp=%d\n",
		now.Format("15:04:05"), earnings.Coins, earnings.Gems, earnings.Experience)

	for _, s := range slots {
		fmt.Fprintf(c.out, "  slot %2d: %s%s\n", s.ID, c.describe(s, now), c.boosterSuffix(s, now))
	}

	if len(inventory) > 0 {
		keys := make([]string, 0, len(inventory))
		for key := range inventory {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprint(c.out, "  inventory:")
		for _, key := range keys {
			fmt.Fprintf(c.out, " %s=%d", key, inventory[key])
		}
		fmt.Fprintln(c.out)
	}
}

func (c *Console) describe(s farm.SlotState, now time.Time) string {
	if !s.Occupied() {
		return c.empty.Sprint("empty")
	}
	if s.ReadyToHarvest(now) {
		return c.ready.Sprintf("%s READY", s.SeedKey)
	}
	return c.growing.Sprintf("%s ripens in %s", s.SeedKey, s.ReadyAt.Sub(now).Round(time.Second))
}

func (c *Console) boosterSuffix(s farm.SlotState, now time.Time) string {
	if s.BoosterKey == "" || !s.Occupied() {
		return ""
	}
	if !s.BoosterEndsAt.After(now) {
		return c.empty.Sprint(" [booster expired]")
	}
	return c.boosted.Sprintf(" [%s %s left]", s.BoosterKey, s.BoosterEndsAt.Sub(now).Round(time.Second))
}

// Nop — заглушка для тестов и безголовых запусков
type Nop struct{}

func (Nop) Render([]farm.SlotState, map[string]int, farm.Earnings) {}
