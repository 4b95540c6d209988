package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"time"

	"wxaloft/internal/acars"
)

// Envelope is a validated ingest request.
type Envelope struct {
	Auth    string
	Time    time.Time // UTC
	Channel json.Number
	Message string
	Parsed  *acars.Message

	rawTime string
	channel float64
}

const (
	reasonUnparseableMessage = "unparseable ACARS message"
	reasonUnparseableTime    = "unparseable time"
)

// Millisecond precision and an explicit zone are both required. The zone
// may be Z, ±HHMM, ±HH:MM or ±HH.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05.000Z07",
}

// ParseTime parses an envelope timestamp and normalises it to UTC.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// ParseEnvelope validates a request body. Fields are checked in the order
// auth, time, channel, message; the ACARS block is parsed before the
// timestamp. Nothing is trimmed or case-folded. On failure the returned
// error is an *Error and the Envelope holds whatever was read so far.
func ParseEnvelope(body []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Envelope{}, &Error{Kind: KindMalformed, Reason: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Envelope{}, malformed("invalid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Envelope{}, malformed("expecting JSON object")
	}

	var env Envelope
	var err error
	if env.Auth, err = stringField(obj, "auth"); err != nil {
		return Envelope{}, err
	}
	if env.Auth == "" {
		return Envelope{}, malformed("missing auth")
	}
	if env.rawTime, err = stringField(obj, "time"); err != nil {
		return Envelope{}, err
	}
	if env.Channel, err = numberField(obj, "channel"); err != nil {
		return Envelope{}, err
	}
	if env.Message, err = stringField(obj, "message"); err != nil {
		return Envelope{}, err
	}

	env.channel, err = strconv.ParseFloat(env.Channel.String(), 64)
	if err != nil || math.IsInf(env.channel, 0) {
		return Envelope{}, malformed("invalid channel")
	}

	env.Parsed = acars.New(env.Message)
	if !env.Parsed.Parse() {
		return env, malformed(reasonUnparseableMessage)
	}
	if env.Time, err = ParseTime(env.rawTime); err != nil {
		return env, &Error{Kind: KindMalformed, Reason: reasonUnparseableTime, Err: err}
	}
	return env, nil
}

func stringField(obj map[string]any, name string) (string, error) {
	v, ok := obj[name]
	if !ok {
		return "", malformed("missing " + name)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("invalid " + name)
	}
	return s, nil
}

func numberField(obj map[string]any, name string) (json.Number, error) {
	v, ok := obj[name]
	if !ok {
		return "", malformed("missing " + name)
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", malformed("invalid " + name)
	}
	return n, nil
}
