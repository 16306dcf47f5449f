package meshcom

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

var upperDefaultSource = strings.ToUpper(DefaultSource)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		src   string
		dst   string
		msg   string
		msgID string
	}{
		{"defaults", `{"msg":"hi"}`, upperDefaultSource, DefaultDestination, "hi", ""},
		{"numeric group", `{"dst":262,"msg":"hi"}`, upperDefaultSource, "262", "hi", ""},
		{"large numeric id", `{"msg":"hi","msg_id":12345678901234567890}`, upperDefaultSource, DefaultDestination, "hi", "12345678901234567890"},
		{"null src", `{"src":null,"msg":"hi"}`, upperDefaultSource, DefaultDestination, "hi", ""},
		{"upper-cased", `{"src":"oe1xyz","dst":"dn9kgb","msg":"hi"}`, "OE1XYZ", "DN9KGB", "hi", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.in))
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if f.Src != tt.src || f.Dst != tt.dst || f.RawMsg != tt.msg || f.MsgID != tt.msgID {
				t.Errorf("got %+v", f)
			}
			if f.Raw == nil {
				t.Error("raw object missing")
			}
		})
	}
}

func TestDecodeFrameRawKeepsNumbers(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"msg":"hi","firmware":35,"msg_id":9007199254740993}`))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Raw["firmware"] != json.Number("35") {
		t.Errorf("firmware = %#v", f.Raw["firmware"])
	}
	if f.MsgID != "9007199254740993" {
		t.Errorf("msg_id = %q", f.MsgID)
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrEmptyPayload},
		{"whitespace", " \n ", ErrEmptyPayload},
		{"invalid json", `{"msg":`, ErrInvalidJSON},
		{"trailing data", `{"msg":"a"} {"msg":"b"}`, ErrInvalidJSON},
		{"array", `["msg"]`, ErrNotObject},
		{"missing msg", `{"dst":"*"}`, ErrEmptyText},
		{"null msg", `{"dst":"*","msg":null}`, ErrEmptyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if ReasonOf(err) != ReasonMalformedInput {
				t.Errorf("reason = %q", ReasonOf(err))
			}
		})
	}
}
