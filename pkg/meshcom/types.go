package meshcom

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Wildcard is the group token that subscribes to all group/broadcast traffic
const Wildcard = "*"

// Defaults applied when a frame omits a field
const (
	DefaultSource      = "Unknown"
	DefaultDestination = Wildcard
)

// MaxTextLength is the longest outbound message text (in characters)
const MaxTextLength = 150

// Discard errors
var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrInvalidJSON  = errors.New("invalid json")
	ErrNotObject    = errors.New("payload is not a json object")
	ErrEmptyText    = errors.New("message without text content")
	ErrRejected     = errors.New("not addressed to own call or groups")
	ErrTimeBeacon   = errors.New("time beacon")
	ErrSelfAck      = errors.New("self-addressed ack")
)

// Reason classifies why a frame was discarded
type Reason string

const (
	ReasonMalformedInput    Reason = "malformed_input"
	ReasonAdmissionRejected Reason = "admission_rejected"
	ReasonContentFiltered   Reason = "content_filtered"
)

// DiscardError is returned for every frame that produces no message
type DiscardError struct {
	Reason Reason
	Err    error
}

func (e *DiscardError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying sentinel
func (e *DiscardError) Unwrap() error {
	return e.Err
}

func discard(reason Reason, err error) *DiscardError {
	return &DiscardError{Reason: reason, Err: err}
}

// ReasonOf returns the discard reason of err, or "" if err is not a discard
func ReasonOf(err error) Reason {
	var de *DiscardError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}

// Frame is a decoded inbound JSON object
type Frame struct {
	Src      string
	Dst      string
	RawMsg   string
	MsgID    string
	SrcType  interface{}
	Firmware interface{}
	FwSub    interface{}
	Raw      map[string]interface{}
}

// Message is an accepted, normalized inbound message
type Message struct {
	Source      string
	Destination string
	MessageID   string
	Text        string
	RawText     string
	ObservedAt  time.Time

	// Passthrough metadata
	SrcType  interface{}
	Firmware interface{}
	FwSub    interface{}

	// Raw is the full decoded JSON object
	Raw map[string]interface{}
}

// Identity is the immutable per-session gateway configuration
type Identity struct {
	callsign string
	groups   map[string]struct{}
	ackRe    *regexp.Regexp
}

// NewIdentity creates an identity; callsign and groups are upper-cased
func NewIdentity(callsign string, groups []string) Identity {
	id := Identity{
		callsign: strings.ToUpper(strings.TrimSpace(callsign)),
		groups:   make(map[string]struct{}, len(groups)),
	}
	for _, g := range groups {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g != "" {
			id.groups[g] = struct{}{}
		}
	}
	if id.callsign != "" {
		id.ackRe = regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(id.callsign) + `:ack\d+$`)
	}
	return id
}

// Callsign returns the own callsign, "" when unset
func (id Identity) Callsign() string {
	return id.callsign
}

// HasCallsign reports whether an own callsign is configured
func (id Identity) HasCallsign() bool {
	return id.callsign != ""
}

// Groups returns the subscribed groups in no particular order
func (id Identity) Groups() []string {
	out := make([]string, 0, len(id.groups))
	for g := range id.groups {
		out = append(out, g)
	}
	return out
}

// InGroup reports whether dst is a subscribed group
func (id Identity) InGroup(dst string) bool {
	_, ok := id.groups[dst]
	return ok
}

// ParseGroups splits a comma-separated group list into trimmed, non-empty tokens
func ParseGroups(raw string) []string {
	var groups []string
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
