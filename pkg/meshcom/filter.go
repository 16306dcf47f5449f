package meshcom

import (
	"regexp"
	"strings"
	"time"
)

// callsignPattern matches individual station calls such as DN9KGB or DN9KGB-12.
// The shape is relied on by existing deployments; do not widen it.
var callsignPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z]{1,3}(-[0-9]{1,2})?$`)

var (
	seqSuffixPattern = regexp.MustCompile(`\{\d{1,4}\n?$`)
	beaconPrefixes   = []string{"{CET}", "{CEST}"}
)

// IsCallsign reports whether s looks like a station callsign rather than a group
func IsCallsign(s string) bool {
	return callsignPattern.MatchString(strings.ToUpper(s))
}

// Admit applies the destination filter to an upper-cased dst:
// own call, then subscribed group, then the wildcard for non-station labels.
func (id Identity) Admit(dst string) bool {
	if id.callsign != "" && dst == id.callsign {
		return true
	}
	if id.InGroup(dst) {
		return true
	}
	if id.InGroup(Wildcard) {
		return !IsCallsign(dst)
	}
	return false
}

// StripSequence removes a trailing "{nnnn" message number and surrounding space
func StripSequence(text string) string {
	return strings.TrimSpace(seqSuffixPattern.ReplaceAllString(text, ""))
}

// IsTimeBeacon reports whether text is a {CET}/{CEST} time beacon
func IsTimeBeacon(text string) bool {
	for _, p := range beaconPrefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}

// IsSelfAck reports whether text is "<own call>:ack<digits>"
func (id Identity) IsSelfAck(text string) bool {
	if id.ackRe == nil {
		return false
	}
	return id.ackRe.MatchString(text)
}

// Sanitize replaces double quotes with single quotes
func Sanitize(text string) string {
	return strings.ReplaceAll(text, `"`, "'")
}

// Process decodes, filters and normalizes one datagram.
// It returns either a Message or a *DiscardError, never both.
func (id Identity) Process(data []byte, now time.Time) (*Message, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	return id.Accept(f, now)
}

// Accept runs the admission filter and text normalization on a decoded frame
func (id Identity) Accept(f *Frame, now time.Time) (*Message, error) {
	if !id.Admit(f.Dst) {
		return nil, discard(ReasonAdmissionRejected, ErrRejected)
	}

	clean := StripSequence(f.RawMsg)
	if clean == "" {
		return nil, discard(ReasonMalformedInput, ErrEmptyText)
	}

	if IsTimeBeacon(clean) {
		return nil, discard(ReasonContentFiltered, ErrTimeBeacon)
	}

	// ack 只在发给自己时才判断
	if id.callsign != "" && f.Dst == id.callsign && id.IsSelfAck(clean) {
		return nil, discard(ReasonContentFiltered, ErrSelfAck)
	}

	return &Message{
		Source:      f.Src,
		Destination: f.Dst,
		MessageID:   f.MsgID,
		Text:        Sanitize(clean),
		RawText:     f.RawMsg,
		ObservedAt:  now.UTC(),
		SrcType:     f.SrcType,
		Firmware:    f.Firmware,
		FwSub:       f.FwSub,
		Raw:         f.Raw,
	}, nil
}
