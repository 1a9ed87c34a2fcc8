package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Normalize приводит тело ответа к списку логических результатов.
// Сервер отвечает в трех формах: одиночный объект, массив результатов
// батча и объект-обертка {"json":[...]}. Некоторые ответы приходят как
// newline-delimited JSON, тогда берется последняя разбираемая строка.
func Normalize(body []byte) ([]json.RawMessage, error) {
	entries, err := normalizeValue(body)
	if err == nil {
		return entries, nil
	}

	// Fallback: NDJSON, разбор с последней строки назад
	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if entries, lineErr := normalizeValue(line); lineErr == nil {
			return entries, nil
		}
	}

	return nil, fmt.Errorf("unparseable response body: %w", err)
}

func normalizeValue(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	switch data[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("empty result array")
		}
		return arr, nil
	case '{':
		// Обертка {"json":[...]} распаковывается до вложенного массива
		var wrapper struct {
			JSON []json.RawMessage `json:"json"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, err
		}
		if wrapper.JSON != nil {
			if len(wrapper.JSON) == 0 {
				return nil, fmt.Errorf("empty json wrapper array")
			}
			return wrapper.JSON, nil
		}

		var obj json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return []json.RawMessage{obj}, nil
	default:
		return nil, fmt.Errorf("unexpected leading byte %q", data[0])
	}
}
