package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Общий секрет, восстановленный из веб-клиента игры. Сервер проверяет
// подпись мутирующих вызовов этим же ключом, поэтому значение должно
// совпадать байт в байт.
const defaultSecret = "9f4ab1c7e02d583f6a91d44c8b27e65019c3f7aa40de81b52c6ef90347a1d8ee"

// Signature представляет подпись одного запроса
type Signature struct {
	Timestamp int64  // миллисекунды unix-эпохи
	Nonce     string // одноразовый hex-идентификатор
	Value     string // hex(HMAC-SHA256)
}

// Signer подписывает запросы к закрытому RPC API игры.
// Протокол: HMAC-SHA256(secret, "{timestampMs}.{nonce}.{payload}").
type Signer struct {
	secret []byte
}

// New создает Signer; пустой secret означает встроенный ключ клиента
func New(secret string) *Signer {
	if secret == "" {
		secret = defaultSecret
	}
	return &Signer{secret: []byte(secret)}
}

// Sign вычисляет подпись для фиксированных timestamp/nonce/payload
func (s *Signer) Sign(timestampMs int64, nonce string, payload []byte) string {
	canonical := fmt.Sprintf("%d.%s.%s", timestampMs, nonce, payload)
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// SignNow подписывает payload текущим временем и свежим nonce
func (s *Signer) SignNow(payload []byte) Signature {
	ts := time.Now().UnixMilli()
	nonce := NewNonce()
	return Signature{
		Timestamp: ts,
		Nonce:     nonce,
		Value:     s.Sign(ts, nonce, payload),
	}
}

// NewNonce возвращает случайный hex-nonce для одного запроса
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
