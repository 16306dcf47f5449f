package meshcom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeFrame decodes a raw UDP payload into a Frame.
// Invalid UTF-8 sequences are dropped rather than rejected.
func DecodeFrame(data []byte) (*Frame, error) {
	decoded := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if decoded == "" {
		return nil, discard(ReasonMalformedInput, ErrEmptyPayload)
	}

	// 数字保持原样，大整数不经过 float64
	dec := json.NewDecoder(bytes.NewReader([]byte(decoded)))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, discard(ReasonMalformedInput, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	if dec.More() {
		return nil, discard(ReasonMalformedInput, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON))
	}

	payload, ok := v.(map[string]interface{})
	if !ok {
		return nil, discard(ReasonMalformedInput, ErrNotObject)
	}

	f := &Frame{
		Src:      strings.ToUpper(stringField(payload, "src", DefaultSource)),
		Dst:      strings.ToUpper(stringField(payload, "dst", DefaultDestination)),
		RawMsg:   stringField(payload, "msg", ""),
		MsgID:    stringField(payload, "msg_id", ""),
		SrcType:  payload["src_type"],
		Firmware: payload["firmware"],
		FwSub:    payload["fw_sub"],
		Raw:      payload,
	}

	if strings.TrimSpace(f.RawMsg) == "" {
		return nil, discard(ReasonMalformedInput, ErrEmptyText)
	}

	return f, nil
}

// stringField returns m[key] rendered as a string; absent or null keys yield def
func stringField(m map[string]interface{}, key, def string) string {
	switch v := m[key].(type) {
	case nil:
		return def
	case string:
		return v
	case json.Number:
		// 组号常以数字形式出现，例如 "dst": 262
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
