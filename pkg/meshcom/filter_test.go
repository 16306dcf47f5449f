package meshcom

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestIsCallsign(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"DN9KGB", true},
		{"DN9KGB-12", true},
		{"dn9kgb-1", true},
		{"OE1XYZ", true},
		{"9A1A", true},
		{"LOCAL", false},
		{"262", false},
		{"10", false},
		{"*", false},
		{"DN9KGB-123", false},
		{"DN9KGBXY", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsCallsign(tt.in); got != tt.want {
				t.Errorf("IsCallsign(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIdentityAdmit(t *testing.T) {
	tests := []struct {
		name     string
		callsign string
		groups   []string
		dst      string
		want     bool
	}{
		{"own call", "dn9kgb-12", nil, "DN9KGB-12", true},
		{"own call without groups", "DN9KGB", []string{}, "DN9KGB", true},
		{"subscribed group", "DN9KGB", []string{"262"}, "262", true},
		{"group case folded", "", []string{"local"}, "LOCAL", true},
		{"wildcard admits label", "DN9KGB", []string{"*"}, "LOCAL", true},
		{"wildcard admits broadcast", "DN9KGB", []string{"*"}, "*", true},
		{"wildcard rejects other station", "DN9KGB", []string{"*"}, "DN9KGB-12", false},
		{"no wildcard rejects label", "DN9KGB", []string{"10"}, "LOCAL", false},
		{"nothing configured", "", nil, "*", false},
		{"other station no wildcard", "DN9KGB", []string{"262"}, "OE1XYZ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewIdentity(tt.callsign, tt.groups)
			if got := id.Admit(tt.dst); got != tt.want {
				t.Errorf("Admit(%q) = %v, want %v", tt.dst, got, tt.want)
			}
		})
	}
}

func TestStripSequence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello{12", "hello"},
		{"hello {1234", "hello"},
		{"hello{12345", "hello{12345"},
		{"hello{ab", "hello{ab"},
		{"{12} hello", "{12} hello"},
		{"  plain  ", "plain"},
		{"hello{12\n", "hello"},
		{"hello{12\n\n", "hello{12"},
	}

	for _, tt := range tests {
		if got := StripSequence(tt.in); got != tt.want {
			t.Errorf("StripSequence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProcess(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	id := NewIdentity("DN9KGB-12", []string{"*", "262"})

	tests := []struct {
		name    string
		payload string
		wantErr error
		reason  Reason
		want    *Message
	}{
		{
			name:    "group message with sequence suffix",
			payload: `{"src":"oe1xyz","dst":"262","msg":"hello{12","msg_id":"A1"}`,
			want: &Message{
				Source: "OE1XYZ", Destination: "262", MessageID: "A1",
				Text: "hello", RawText: "hello{12", ObservedAt: now,
			},
		},
		{
			name:    "quotes sanitized",
			payload: `{"src":"OE1XYZ","dst":"DN9KGB-12","msg":"say \"hi\""}`,
			want: &Message{
				Source: "OE1XYZ", Destination: "DN9KGB-12",
				Text: "say 'hi'", RawText: `say "hi"`, ObservedAt: now,
			},
		},
		{
			name:    "defaults for absent src and dst",
			payload: `{"msg":"cq cq"}`,
			want: &Message{
				Source: DefaultSource, Destination: "*",
				Text: "cq cq", RawText: "cq cq", ObservedAt: now,
			},
		},
		{
			name:    "numeric group",
			payload: `{"src":"OE1XYZ","dst":262,"msg":"hi"}`,
			want: &Message{
				Source: "OE1XYZ", Destination: "262",
				Text: "hi", RawText: "hi", ObservedAt: now,
			},
		},
		{
			name:    "time beacon CET",
			payload: `{"src":"OE1XYZ","dst":"*","msg":"{CET}12:30"}`,
			wantErr: ErrTimeBeacon,
			reason:  ReasonContentFiltered,
		},
		{
			name:    "time beacon CEST",
			payload: `{"src":"OE1XYZ","dst":"*","msg":"{CEST}2026-10-14 12:30{99"}`,
			wantErr: ErrTimeBeacon,
			reason:  ReasonContentFiltered,
		},
		{
			name:    "self ack",
			payload: `{"src":"OE1XYZ","dst":"DN9KGB-12","msg":"DN9KGB-12:ack968"}`,
			wantErr: ErrSelfAck,
			reason:  ReasonContentFiltered,
		},
		{
			name:    "self ack lower case",
			payload: `{"src":"OE1XYZ","dst":"dn9kgb-12","msg":"dn9kgb-12:ACK1"}`,
			wantErr: ErrSelfAck,
			reason:  ReasonContentFiltered,
		},
		{
			name:    "ack text on group is a message",
			payload: `{"src":"OE1XYZ","dst":"262","msg":"DN9KGB-12:ack968"}`,
			want: &Message{
				Source: "OE1XYZ", Destination: "262",
				Text: "DN9KGB-12:ack968", RawText: "DN9KGB-12:ack968", ObservedAt: now,
			},
		},
		{
			name:    "directed to other station",
			payload: `{"src":"OE1XYZ","dst":"OE3ABC","msg":"hi"}`,
			wantErr: ErrRejected,
			reason:  ReasonAdmissionRejected,
		},
		{
			name:    "empty",
			payload: "   ",
			wantErr: ErrEmptyPayload,
			reason:  ReasonMalformedInput,
		},
		{
			name:    "invalid json",
			payload: `{"src":`,
			wantErr: ErrInvalidJSON,
			reason:  ReasonMalformedInput,
		},
		{
			name:    "array payload",
			payload: `["msg"]`,
			wantErr: ErrNotObject,
			reason:  ReasonMalformedInput,
		},
		{
			name:    "whitespace text",
			payload: `{"dst":"*","msg":"   "}`,
			wantErr: ErrEmptyText,
			reason:  ReasonMalformedInput,
		},
		{
			name:    "only sequence number",
			payload: `{"dst":"*","msg":"{12"}`,
			wantErr: ErrEmptyText,
			reason:  ReasonMalformedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := id.Process([]byte(tt.payload), now)

			if tt.wantErr != nil {
				if msg != nil {
					t.Fatalf("expected no message, got %+v", msg)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if got := ReasonOf(err); got != tt.reason {
					t.Errorf("reason = %q, want %q", got, tt.reason)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Source != tt.want.Source || msg.Destination != tt.want.Destination ||
				msg.MessageID != tt.want.MessageID || msg.Text != tt.want.Text ||
				msg.RawText != tt.want.RawText || !msg.ObservedAt.Equal(tt.want.ObservedAt) {
				t.Errorf("got %+v, want %+v", msg, tt.want)
			}
		})
	}
}

func TestProcessPassthroughMetadata(t *testing.T) {
	id := NewIdentity("", []string{"*"})
	msg, err := id.Process([]byte(`{"dst":"*","msg":"x","src_type":"node","firmware":35,"fw_sub":"p"}`), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.SrcType != "node" || msg.Firmware != json.Number("35") || msg.FwSub != "p" {
		t.Errorf("metadata not passed through: %+v", msg)
	}
	if msg.Raw["src_type"] != "node" || msg.Raw["msg"] != "x" {
		t.Errorf("raw object = %v", msg.Raw)
	}
}

func TestProcessInvalidUTF8(t *testing.T) {
	id := NewIdentity("", []string{"*"})
	data := append([]byte(`{"dst":"*","msg":"ok`), 0xff, 0xfe)
	data = append(data, []byte(`"}`)...)

	msg, err := id.Process(data, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != "ok" {
		t.Errorf("Text = %q, want %q", msg.Text, "ok")
	}
}

func TestParseGroups(t *testing.T) {
	got := ParseGroups(" *, 10 ,,262, ")
	want := []string{"*", "10", "262"}
	if len(got) != len(want) {
		t.Fatalf("ParseGroups = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseGroups[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
