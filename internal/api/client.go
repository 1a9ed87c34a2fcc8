package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shard-legends/farm-bot/internal/transport"
	"github.com/shard-legends/farm-bot/pkg/metrics"
	"go.uber.org/zap"
)

// Точечные имена операций RPC API
const (
	opProfile      = "profile.me"
	opFarmState    = "farm.state"
	opPlant        = "farm.plant"
	opHarvest      = "farm.harvest"
	opApplyBooster = "farm.applyBooster"
	opPurchase     = "shop.purchase"
)

// Transport — подписанный транспорт, нужный клиенту API
type Transport interface {
	Execute(ctx context.Context, method, ops string, payload interface{}) ([]json.RawMessage, error)
}

// Client — типизированные операции RPC API игры поверх подписанного
// транспорта. Все батч-мутаторы принимают разнородные наборы слотов
// одним вызовом и не ходят в сеть при пустом входе.
type Client struct {
	transport Transport
	logger    *zap.Logger
}

// NewClient создает клиент удаленного состояния
func NewClient(t Transport, logger *zap.Logger) *Client {
	return &Client{transport: t, logger: logger}
}

// FetchState получает профиль и состояние фермы одним батч-запросом
func (c *Client) FetchState(ctx context.Context) (*Snapshot, error) {
	entries, err := c.execute(ctx, http.MethodGet, opProfile+","+opFarmState, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) < 2 {
		return nil, fmt.Errorf("combined state response has %d entries, want at least 2", len(entries))
	}

	var snapshot Snapshot

	userData, err := unwrapEntry(entries[0])
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap profile entry: %w", err)
	}
	if err := json.Unmarshal(userData, &snapshot.User); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	stateData, err := unwrapEntry(entries[1])
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap farm state entry: %w", err)
	}
	if err := json.Unmarshal(stateData, &snapshot.State); err != nil {
		return nil, fmt.Errorf("failed to decode farm state: %w", err)
	}

	return &snapshot, nil
}

// Plant сажает семена в указанные слоты одним батч-вызовом
func (c *Client) Plant(ctx context.Context, entries []PlantEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	var resp struct {
		Planted int `json:"planted"`
	}
	if err := c.mutate(ctx, opPlant, map[string]interface{}{"entries": entries}, &resp); err != nil {
		return 0, err
	}

	return resp.Planted, nil
}

// Harvest собирает урожай с указанных слотов одним батч-вызовом
func (c *Client) Harvest(ctx context.Context, slots []int) ([]HarvestResult, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	var resp struct {
		Results []HarvestResult `json:"results"`
	}
	if err := c.mutate(ctx, opHarvest, map[string]interface{}{"slots": slots}, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// ApplyBooster применяет ускорители к указанным слотам одним батч-вызовом
func (c *Client) ApplyBooster(ctx context.Context, entries []BoostEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	var resp struct {
		Applied int `json:"applied"`
	}
	if err := c.mutate(ctx, opApplyBooster, map[string]interface{}{"entries": entries}, &resp); err != nil {
		return 0, err
	}

	return resp.Applied, nil
}

// Purchase покупает quantity единиц предмета в магазине
func (c *Client) Purchase(ctx context.Context, itemKey string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, nil
	}

	var resp struct {
		Purchased int `json:"purchased"`
	}
	payload := map[string]interface{}{"item": itemKey, "quantity": quantity}
	if err := c.mutate(ctx, opPurchase, payload, &resp); err != nil {
		return 0, err
	}

	return resp.Purchased, nil
}

// mutate выполняет POST одной операции с конвертом {"0":{"json":args}}
// и раскладывает первый логический результат в out
func (c *Client) mutate(ctx context.Context, op string, args interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"0": map[string]interface{}{"json": args},
	}

	entries, err := c.execute(ctx, http.MethodPost, op, payload)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("empty response for %s", op)
	}

	data, err := unwrapEntry(entries[0])
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	return nil
}

func (c *Client) execute(ctx context.Context, method, ops string, payload interface{}) ([]json.RawMessage, error) {
	start := time.Now()
	entries, err := c.transport.Execute(ctx, method, ops, payload)
	status := "ok"
	if err != nil {
		status = classify(err)
	}
	metrics.RecordRPCCall(ops, status, time.Since(start).Seconds())
	return entries, err
}

func classify(err error) string {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return "transport_error"
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return "remote_error"
	}
	return "error"
}
