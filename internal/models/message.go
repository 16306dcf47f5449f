package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// EventMeshComMessage is the name of the published message event
const EventMeshComMessage = "meshcom_message"

// Message represents a stored inbound MeshCom message
type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Source      string    `json:"src" db:"src"`
	Destination string    `json:"dst" db:"dst"`
	MessageID   string    `json:"msgId" db:"msg_id"`
	Text        string    `json:"msg" db:"msg"`
	RawText     string    `json:"rawMsg" db:"raw_msg"`
	MyCall      string    `json:"myCall,omitempty" db:"my_call"`
	Metadata    Variables `json:"metadata,omitempty" db:"metadata"`
	ReceivedAt  time.Time `json:"receivedAt" db:"received_at"`
}

// NewMessage converts an accepted message into a storable record
func NewMessage(m *meshcom.Message, myCall string) *Message {
	return &Message{
		ID:          uuid.New(),
		Source:      m.Source,
		Destination: m.Destination,
		MessageID:   m.MessageID,
		Text:        m.Text,
		RawText:     m.RawText,
		MyCall:      myCall,
		Metadata: Variables{
			"src_type": m.SrcType,
			"firmware": m.Firmware,
			"fw_sub":   m.FwSub,
			"raw":      m.Raw,
		},
		ReceivedAt: m.ObservedAt,
	}
}

// MessageEvent is the payload of the meshcom_message event
type MessageEvent struct {
	Src          string                 `json:"src"`
	Dst          string                 `json:"dst"`
	Msg          string                 `json:"msg"`
	RawMsg       string                 `json:"raw_msg"`
	MsgID        string                 `json:"msg_id"`
	IsTimeBeacon bool                   `json:"is_time_beacon"`
	SrcType      interface{}            `json:"src_type"`
	Firmware     interface{}            `json:"firmware"`
	FwSub        interface{}            `json:"fw_sub"`
	MyCall       *string                `json:"my_call"`
	Timestamp    string                 `json:"timestamp"`
	Raw          map[string]interface{} `json:"raw"`
}

// NewMessageEvent builds the event payload; time beacons never reach here
func NewMessageEvent(m *meshcom.Message, myCall string) MessageEvent {
	ev := MessageEvent{
		Src:       m.Source,
		Dst:       m.Destination,
		Msg:       m.Text,
		RawMsg:    m.RawText,
		MsgID:     m.MessageID,
		SrcType:   m.SrcType,
		Firmware:  m.Firmware,
		FwSub:     m.FwSub,
		Timestamp: m.ObservedAt.UTC().Format(time.RFC3339Nano),
		Raw:       m.Raw,
	}
	if myCall != "" {
		ev.MyCall = &myCall
	}
	return ev
}
