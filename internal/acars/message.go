// Package acars parses raw ACARS blocks as relayed by ground receivers.
package acars

import "strings"

// Control characters framing an ACARS block.
const (
	SOH = 0x01
	STX = 0x02
	ETX = 0x03
	ETB = 0x17
	DEL = 0x7f
)

// headerLen is mode(1) + address(7) + ack(1) + label(2) + block id(1).
const headerLen = 12

// Message is a single ACARS block. Create it with New and call Parse before
// using any accessor.
type Message struct {
	raw string

	mode     byte
	address  string
	ack      byte
	label    string
	blockID  byte
	msn      string
	hasMSN   bool
	flight   string
	hasFlt   bool
	text     string
	source   byte
	hasSrc   bool
	parsed   bool
	downlink bool
}

// New wraps a raw block. The block is not inspected until Parse.
func New(raw string) *Message {
	return &Message{raw: raw}
}

// Parse splits the block into its header fields and text. It reports false
// when the block is too short for a header or the header is not printable.
func (m *Message) Parse() bool {
	s := m.raw
	if len(s) > 0 && s[0] == SOH {
		s = s[1:]
	}
	s = trimTrailer(s)
	if len(s) < headerLen {
		return false
	}

	m.mode = s[0]
	if !printable(m.mode) {
		return false
	}
	for i := 1; i < 8; i++ {
		if !printable(s[i]) {
			return false
		}
	}
	m.address = s[1:8]
	m.ack = s[8]
	// The second label byte may be DEL ("_\x7f" is the general response).
	if !printable(s[9]) || !(printable(s[10]) || s[10] == DEL) {
		return false
	}
	m.label = s[9:11]
	m.blockID = s[11]
	m.downlink = m.blockID >= '0' && m.blockID <= '9'

	rest := s[headerLen:]
	switch {
	case rest == "":
	case rest[0] == STX:
		m.text = rest[1:]
	default:
		return false
	}

	if m.downlink && len(m.text) >= 4 {
		m.msn, m.hasMSN = m.text[:4], true
		if len(m.text) >= 10 {
			m.flight, m.hasFlt = m.text[4:10], true
			m.text = m.text[10:]
		} else {
			m.text = m.text[4:]
		}
	}

	if m.label == "H1" {
		body := strings.TrimPrefix(m.text, "- ")
		if len(body) > 1 && body[0] == '#' {
			m.source, m.hasSrc = body[1], true
		}
	}

	m.parsed = true
	return true
}

// trimTrailer drops the block check suffix and end-of-text marker.
func trimTrailer(s string) string {
	if n := len(s); n > 0 && s[n-1] == DEL {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && (s[n-1] == ETX || s[n-1] == ETB) {
		s = s[:n-1]
	}
	return s
}

func printable(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}

// Parsed reports whether Parse succeeded.
func (m *Message) Parsed() bool { return m.parsed }

// Mode is the mode character. Values from 0x5D up are ground-addressed
// category B modes and carry no aircraft identity.
func (m *Message) Mode() byte { return m.mode }

// Address is the raw 7-character aircraft address field.
func (m *Message) Address() string { return m.address }

// Registration is the aircraft address with its leading padding dots removed.
func (m *Message) Registration() string {
	return strings.TrimLeft(m.address, ".")
}

// Acknowledge is the technical acknowledgement character (NAK when none).
func (m *Message) Acknowledge() byte { return m.ack }

// Label is the two-character message label.
func (m *Message) Label() string { return m.label }

// LabelExplanation describes the label, or returns "Unknown label".
func (m *Message) LabelExplanation() string {
	if s, ok := labelNames[m.label]; ok {
		return s
	}
	return "Unknown label"
}

// BlockID is the block identifier. Digits mark a downlink.
func (m *Message) BlockID() byte { return m.blockID }

// Downlink reports whether the block was sent by the aircraft.
func (m *Message) Downlink() bool { return m.downlink }

// MessageID returns the downlink message sequence number.
func (m *Message) MessageID() (string, bool) { return m.msn, m.hasMSN }

// FlightID returns the downlink flight identifier, padding included.
func (m *Message) FlightID() (string, bool) { return m.flight, m.hasFlt }

// Source returns the on-board originator of an H1 message.
func (m *Message) Source() (byte, bool) { return m.source, m.hasSrc }

// SourceExplanation describes the originator, or returns "Unknown source".
func (m *Message) SourceExplanation() string {
	if !m.hasSrc {
		return ""
	}
	if s, ok := sourceNames[m.source]; ok {
		return s
	}
	return "Unknown source"
}

// Text is the free text after the header, MSN and flight id.
func (m *Message) Text() string { return m.text }
