package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/gateway"
	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

// Sender sends a text message into the mesh
type Sender interface {
	SendMessage(target, dst, text string) error
}

// TxRequest is an outbound send request received on <prefix>.tx
type TxRequest struct {
	Target string `json:"target,omitempty"`
	Dst    string `json:"dst"`
	Msg    string `json:"msg"`
}

// TxReply answers a request that carries a reply subject
type TxReply struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// NATSBridge publishes accepted messages to NATS and relays send requests to the gateway
type NATSBridge struct {
	nc     *nats.Conn
	sender Sender
	prefix string
	subs   []*nats.Subscription
}

// NewNATSBridge creates a NATS bridge
func NewNATSBridge(nc *nats.Conn, prefix string) *NATSBridge {
	if prefix == "" {
		prefix = "meshcom"
	}
	return &NATSBridge{
		nc:     nc,
		prefix: prefix,
		subs:   make([]*nats.Subscription, 0),
	}
}

// Name implements gateway.Publisher
func (b *NATSBridge) Name() string {
	return "nats"
}

// Publish implements gateway.Publisher
func (b *NATSBridge) Publish(ev models.MessageEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	for _, subject := range []string{MessageSubject(b.prefix), SourceSubject(b.prefix, ev.Src)} {
		if err := b.nc.Publish(subject, data); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}

	log.Debug().
		Str("src", ev.Src).
		Str("dst", ev.Dst).
		Msg("Message event published to NATS")

	return nil
}

// Start relays send requests on <prefix>.tx to sender and blocks until ctx is done
func (b *NATSBridge) Start(ctx context.Context, sender Sender) error {
	b.sender = sender

	sub, err := b.nc.Subscribe(TxSubject(b.prefix), b.handleTxRequest)
	if err != nil {
		return fmt.Errorf("subscribe tx requests: %w", err)
	}
	b.subs = append(b.subs, sub)

	log.Info().
		Str("subject", TxSubject(b.prefix)).
		Int("subscriptions", len(b.subs)).
		Msg("NATS bridge started")

	<-ctx.Done()

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleTxRequest handles an outbound send request
func (b *NATSBridge) handleTxRequest(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received tx request")

	req, err := decodeTxRequest(msg.Data)
	if err == nil {
		err = b.sender.SendMessage(req.Target, req.Dst, req.Msg)
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("dst", req.Dst).
			Msg("Failed to process tx request")
	} else {
		log.Info().
			Str("dst", req.Dst).
			Str("target", req.Target).
			Msg("Tx request forwarded to gateway")
	}

	if msg.Reply == "" {
		return
	}

	data, _ := json.Marshal(replyFor(err))
	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Msg("Failed to respond to tx request")
	}
}

func decodeTxRequest(data []byte) (TxRequest, error) {
	var req TxRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: decode tx request: %v", gateway.ErrInvalidArgument, err)
	}
	return req, nil
}

func replyFor(err error) TxReply {
	switch {
	case err == nil:
		return TxReply{OK: true}
	case errors.Is(err, gateway.ErrInvalidArgument):
		return TxReply{Code: "invalid_argument", Error: err.Error()}
	case errors.Is(err, gateway.ErrTransportUnavailable):
		return TxReply{Code: "transport_unavailable", Error: err.Error()}
	default:
		return TxReply{Code: "internal", Error: err.Error()}
	}
}

// MessageSubject carries every accepted message
func MessageSubject(prefix string) string {
	return prefix + ".message"
}

// SourceSubject carries the messages of one source callsign
func SourceSubject(prefix, src string) string {
	return prefix + "." + subjectToken(src) + ".message"
}

// TxSubject receives outbound send requests
func TxSubject(prefix string) string {
	return prefix + ".tx"
}

// subjectToken replaces characters that NATS treats as separators or wildcards
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
