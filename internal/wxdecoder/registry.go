// Package wxdecoder turns airline-specific ACARS telemetry into weather
// observations. Decoders register themselves from init; import
// wxaloft/internal/wxdecoder/decoders for side effects to load them all.
package wxdecoder

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"wxaloft/internal/acars"
	"wxaloft/internal/patterns"
)

var (
	// ErrInvalidFlightID means the flight id is not airline + number.
	ErrInvalidFlightID = errors.New("invalid flight id")
	// ErrUnknownAirline means no decoder handles the airline.
	ErrUnknownAirline = errors.New("unknown airline")
)

// Decoder extracts observations from one airline message format.
type Decoder interface {
	// Name identifies the format, e.g. "posn".
	Name() string

	// Airlines lists the two-character designators sent in this format.
	Airlines() []string

	// Decode reports false when the message carries no weather. The sequence
	// may yield incomplete observations; callers filter with Complete.
	Decode(msg *acars.Message, received time.Time) (iter.Seq[Observation], bool)
}

// Registry maps airlines to decoders.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Decoder
	byAirline map[string]Decoder
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName:    make(map[string]Decoder),
		byAirline: make(map[string]Decoder),
	}
}

var defaultRegistry = New()

// Default returns the global registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a decoder to the default registry.
func Register(d Decoder) {
	defaultRegistry.Register(d)
}

// ForFlight selects a decoder from the default registry.
func ForFlight(flightID string) (Decoder, error) {
	return defaultRegistry.ForFlight(flightID)
}

// Register adds d and routes its airlines to it. A later registration for
// the same airline replaces the earlier one.
func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[d.Name()] = d
	for _, a := range d.Airlines() {
		r.byAirline[strings.ToUpper(a)] = d
	}
}

// Assign routes an extra airline to an already registered format.
func (r *Registry) Assign(airline, format string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byName[format]
	if !ok {
		return fmt.Errorf("assign %s: unknown format %q", airline, format)
	}
	if len(airline) != 2 {
		return fmt.Errorf("assign %q: airline designator must be two characters", airline)
	}
	r.byAirline[strings.ToUpper(airline)] = d
	return nil
}

// ForFlight selects the decoder for the airline part of a flight id.
func (r *Registry) ForFlight(flightID string) (Decoder, error) {
	airline, err := Airline(flightID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byAirline[airline]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAirline, airline)
	}
	return d, nil
}

// Airlines returns the routed airline designators in order.
func (r *Registry) Airlines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byAirline))
	for a := range r.byAirline {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Formats returns the registered format names in order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var flightCompiler = func() *patterns.Compiler {
	c := patterns.NewCompiler([]patterns.Format{{
		Name:    "flight",
		Pattern: `^(?P<airline>[A-Z0-9]{2})(?P<number>\d{1,4})(?P<suffix>[A-Z]?)$`,
	}}, nil)
	if err := c.Compile(); err != nil {
		panic(err)
	}
	return c
}()

// Airline returns the upper-cased airline designator of a flight id, after
// trimming the space and dot padding receivers leave in the field.
func Airline(flightID string) (string, error) {
	trimmed := strings.Trim(flightID, " .")
	m := flightCompiler.Parse(trimmed)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFlightID, flightID)
	}
	return m.Get("airline"), nil
}
