package api

import (
	"encoding/json"
	"fmt"
)

// RemoteError — прикладная ошибка сервера из конверта ответа
// (неверный слот, нехватка средств и т.п.). Не ретраится.
type RemoteError struct {
	Message string
	Code    int
	Path    string
}

func (e *RemoteError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("remote error on %s: %s (code %d)", e.Path, e.Message, e.Code)
	}
	return fmt.Sprintf("remote error: %s (code %d)", e.Message, e.Code)
}

type errorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    struct {
		Path string `json:"path"`
	} `json:"data"`
}

// parseRemoteError разбирает поле error; payload может быть завернут
// в {"json":{...}} еще на один уровень
func parseRemoteError(raw json.RawMessage) *RemoteError {
	var nested struct {
		JSON *errorPayload `json:"json"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.JSON != nil && nested.JSON.Message != "" {
		return &RemoteError{Message: nested.JSON.Message, Code: nested.JSON.Code, Path: nested.JSON.Data.Path}
	}

	var direct errorPayload
	if err := json.Unmarshal(raw, &direct); err == nil && direct.Message != "" {
		return &RemoteError{Message: direct.Message, Code: direct.Code, Path: direct.Data.Path}
	}

	return &RemoteError{Message: string(raw)}
}

// unwrapEntry извлекает логические данные одного элемента батча.
// Формы: {"error":...}, {"result":{"data":{"json":X}}}, {"result":{"data":X}}
// или сами данные без конверта.
func unwrapEntry(entry json.RawMessage) (json.RawMessage, error) {
	var envelope struct {
		Error  json.RawMessage `json:"error"`
		Result *struct {
			Data json.RawMessage `json:"data"`
		} `json:"result"`
	}

	if err := json.Unmarshal(entry, &envelope); err != nil {
		return nil, fmt.Errorf("malformed response entry: %w", err)
	}

	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return nil, parseRemoteError(envelope.Error)
	}

	data := entry
	if envelope.Result != nil && len(envelope.Result.Data) > 0 {
		data = envelope.Result.Data
	}

	var inner struct {
		JSON  json.RawMessage `json:"json"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &inner); err == nil {
		if len(inner.Error) > 0 && string(inner.Error) != "null" {
			return nil, parseRemoteError(inner.Error)
		}
		if len(inner.JSON) > 0 {
			return inner.JSON, nil
		}
	}

	return data, nil
}
