package pooljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is one decoded line of the pool protocol. Params are kept raw and
// decoded by the accessor for the specific method.
type Message struct {
	ID       json.RawMessage   `json:"id,omitempty"`
	Method   string            `json:"method"`
	Params   []json.RawMessage `json:"params"`
	ThreadID *json.Number      `json:"thread_id,omitempty"`
}

// DecodeMessage decodes a single protocol line. Surrounding whitespace,
// including the line terminator, is ignored.
func DecodeMessage(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, ErrMalformedMessage
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// IDString returns the message id as text. Numeric ids keep their literal
// form. A missing or null id is the empty string.
func (m *Message) IDString() (string, error) {
	return decodeID(m.ID)
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: id: %v", ErrInvalidParams, err)
	}

	switch id := v.(type) {
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	default:
		return "", fmt.Errorf("%w: id of type %T", ErrInvalidParams, v)
	}
}

func paramString(params []json.RawMessage, idx int, name string) (string, error) {
	raw := bytes.TrimSpace(params[idx])
	var s string
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, name)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, name)
	}
	return s, nil
}

// paramUint64 accepts a non-negative integer given either as a JSON number
// or as a decimal string.
func paramUint64(params []json.RawMessage, idx int, name string) (uint64, error) {
	raw := bytes.TrimSpace(params[idx])

	var text string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}

	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a non-negative integer", ErrInvalidParams, name)
	}
	return n, nil
}

func marshalLine(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
