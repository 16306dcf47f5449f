package meshcom

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// OutboundFrame is the JSON frame sent to a MeshCom node
type OutboundFrame struct {
	Type string `json:"type"`
	Dst  string `json:"dst"`
	Msg  string `json:"msg"`
}

// NewTextFrame builds a "msg" frame
func NewTextFrame(dst, text string) OutboundFrame {
	return OutboundFrame{Type: "msg", Dst: dst, Msg: text}
}

// Marshal encodes the frame as UTF-8 JSON without HTML escaping
func (f OutboundFrame) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Truncate cuts text to at most max characters and reports whether it did
func Truncate(text string, max int) (string, bool) {
	if utf8.RuneCountInString(text) <= max {
		return text, false
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i], true
		}
		n++
	}
	return text, false
}
