package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errInvalidJSON = errors.New("payload is not valid JSON")

// EncodePayload turns an event payload into the bytes that are stored,
// signed and sent. json.RawMessage and []byte are used verbatim once they
// are known to be valid JSON; anything else goes through json.Marshal.
func EncodePayload(v any) ([]byte, error) {
	var raw []byte
	switch p := v.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return b, nil
	}

	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
