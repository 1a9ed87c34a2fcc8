package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shard-legends/farm-bot/internal/signer"
	"github.com/shard-legends/farm-bot/pkg/metrics"
	"go.uber.org/zap"
)

// Заголовки подписи, которые ожидает сервер игры
const (
	headerSignature = "x-signature"
	headerTimestamp = "x-timestamp"
	headerNonce     = "x-nonce"
	headerClientID  = "x-client-id"
)

// Error — транспортная ошибка: сеть, таймаут, HTTP-статус или нечитаемое
// тело ответа после исчерпания повторов
type Error struct {
	Ops     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport error on %s: %s", e.Ops, e.Message)
}

// Config параметры подписанного транспорта
type Config struct {
	BaseURL        string
	Token          string
	Origin         string
	Referer        string
	ClientID       string
	Timeout        time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Client выполняет подписанные запросы к RPC API игры с повторами
// и экспоненциальной задержкой между попытками
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     *signer.Signer
	logger     *zap.Logger
}

// NewClient создает подписанный транспорт
func NewClient(cfg Config, sg *signer.Signer, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		signer: sg,
		logger: logger,
	}
}

// Execute выполняет один вызов API. ops — точечные имена операций,
// для GET допускается несколько через запятую. payload сериализуется
// один раз; подпись считается ровно от отправляемых байтов.
func (c *Client) Execute(ctx context.Context, method, ops string, payload interface{}) ([]json.RawMessage, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for %s: %w", ops, err)
		}
	}

	var lastFailure string
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryBaseDelay << (attempt - 2)
			c.logger.Warn("Retrying request",
				zap.String("ops", ops),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("last_failure", lastFailure))
			metrics.RPCRetriesTotal.Inc()

			select {
			case <-ctx.Done():
				return nil, &Error{Ops: ops, Message: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}

		entries, failure := c.attempt(ctx, method, ops, body)
		if failure == "" {
			return entries, nil
		}
		lastFailure = failure
	}

	return nil, &Error{Ops: ops, Message: lastFailure}
}

// attempt выполняет одну попытку; непустая строка — описание сбоя
func (c *Client) attempt(ctx context.Context, method, ops string, body []byte) ([]json.RawMessage, string) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.buildRequest(attemptCtx, method, ops, body)
	if err != nil {
		return nil, err.Error()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Sprintf("failed to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	entries, err := Normalize(respBody)
	if err != nil {
		return nil, fmt.Sprintf("failed to parse response: %v", err)
	}

	return entries, ""
}

func (c *Client) buildRequest(ctx context.Context, method, ops string, body []byte) (*http.Request, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + ops + "?batch=1"

	var reader io.Reader
	if method == http.MethodGet {
		if len(body) > 0 {
			endpoint += "&input=" + url.QueryEscape(string(body))
		}
	} else if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Подпись считается от тех же байтов payload, что уходят в запрос
	sig := c.signer.SignNow(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "session="+c.cfg.Token)
	req.Header.Set("Origin", c.cfg.Origin)
	req.Header.Set("Referer", c.cfg.Referer)
	req.Header.Set(headerClientID, c.cfg.ClientID)
	req.Header.Set(headerSignature, sig.Value)
	req.Header.Set(headerTimestamp, strconv.FormatInt(sig.Timestamp, 10))
	req.Header.Set(headerNonce, sig.Nonce)

	return req, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
