package ingest

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wxaloft/internal/acars"
	"wxaloft/internal/escape"
)

const logTime = "2006-01-02T15:04:05Z"

// Diagnostic renders a human-readable dump of an accepted message. Every
// value taken from the message is escaped onto a single printable line.
func Diagnostic(name string, freq float64, received time.Time, msg *acars.Message) string {
	var b strings.Builder

	b.WriteString("Received by " + escape.Escape(name) + " on " + strconv.FormatFloat(freq, 'f', 3, 64) +
		" at " + received.UTC().Format(logTime) + "...\n")

	if msg.Mode() < 0x5d {
		flight, ok := msg.FlightID()
		b.WriteString("Aircraft registration: " + escape.Escape(msg.Registration()) +
			" Flight ID: " + escape.Optional(flight, ok) + "\n")
	}

	b.WriteString("Mode: " + escape.Byte(msg.Mode()) + "\n")
	b.WriteString("Message label: " + escape.Escape(msg.Label()) + " (" + msg.LabelExplanation() + ")\n")
	b.WriteString("Block ID: " + escape.Byte(msg.BlockID()) + " Acknowledge: " + escape.Byte(msg.Acknowledge()) + "\n")

	msn, ok := msg.MessageID()
	b.WriteString("Message ID: " + escape.Optional(msn, ok) + "\n")

	if src, ok := msg.Source(); ok {
		b.WriteString("Message source: " + escape.Byte(src) + " (" + msg.SourceExplanation() + ")\n")
	}

	b.WriteString("Message:")
	text := strings.ReplaceAll(msg.Text(), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("\n" + escape.Escape(line))
	}
	return b.String()
}

func (s *Service) logDiagnostic(name string, freq float64, env Envelope) {
	s.log.Info(Diagnostic(name, freq, env.Time, env.Parsed),
		zap.String("receiver", name),
		zap.Float64("frequency", freq),
	)
}
