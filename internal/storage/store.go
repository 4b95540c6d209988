// Package storage persists receivers, areas and weather observations.
//
// Two backends implement Store: PostgreSQL for production and SQLite for
// single-node installs and tests. Both share the same schema and the same
// kilometers(lat1, lon1, lat2, lon2) SQL function.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means a lookup matched no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate means an insert violated a uniqueness constraint.
	ErrDuplicate = errors.New("storage: duplicate")
	// ErrReadFailed wraps query failures.
	ErrReadFailed = errors.New("storage: read failed")
	// ErrWriteFailed wraps insert, update and delete failures.
	ErrWriteFailed = errors.New("storage: write failed")
)

func readError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrReadFailed, msg, err)
}

func writeError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrWriteFailed, msg, err)
}

// Receiver is a client allowed to submit messages.
type Receiver struct {
	ID       int64
	Name     string
	LogAll   bool
	RecordWx bool
}

// Client is a receiver with its registered location, as shown by admin
// tooling.
type Client struct {
	ID       int64
	Name     string
	Location string // empty when none is registered
}

// NewClient describes a receiver to provision.
type NewClient struct {
	Name     string
	AuthHash []byte
	LogAll   bool
	RecordWx bool
	Location string // optional; created on first use
}

// Area is a named point that observations are linked to.
type Area struct {
	ID        int64
	Name      string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Observation is a stored weather sample.
type Observation struct {
	ID            int64
	Received      time.Time
	Observed      time.Time
	Frequency     float64
	ClientID      int64
	Altitude      int
	WindSpeed     *int
	WindDirection *int
	Temperature   *float64
	Source        string
	Latitude      float64
	Longitude     float64
}

// Store is a storage backend.
type Store interface {
	// Acquire reserves a connection for one ingest request.
	Acquire(ctx context.Context) (Session, error)

	// LookupArea finds an area by numeric id or by name.
	LookupArea(ctx context.Context, idOrName string) (Area, error)
	// ObservationsForArea returns observations linked to an area with
	// observed after since, oldest first.
	ObservationsForArea(ctx context.Context, areaID int64, since time.Time) ([]Observation, error)

	// FindClient finds a receiver by numeric id or by name.
	FindClient(ctx context.Context, idOrName string) (Client, error)
	// SetClientAuth replaces a receiver's stored authenticator hash.
	SetClientAuth(ctx context.Context, clientID int64, hash []byte) error
	// PurgeObservations deletes observations observed before the cutoff
	// and returns how many went.
	PurgeObservations(ctx context.Context, before time.Time) (int64, error)

	// AddClient provisions a receiver.
	AddClient(ctx context.Context, c NewClient) (int64, error)
	// SetFrequency maps a receiver channel number to a frequency in MHz.
	SetFrequency(ctx context.Context, clientID int64, channel int, mhz float64) error
	// AddArea creates an area.
	AddArea(ctx context.Context, a Area) (int64, error)

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
	Close() error
}

// Session is one reserved connection. Release must be called on every path.
type Session interface {
	// LookupReceiver finds the receiver whose stored hash equals hash.
	LookupReceiver(ctx context.Context, hash []byte) (Receiver, error)
	// LookupFrequency maps a receiver's channel number to MHz.
	LookupFrequency(ctx context.Context, clientID int64, channel int) (float64, error)
	// PrepareObservations prepares the insert and link statements on this
	// connection.
	PrepareObservations(ctx context.Context) (ObservationWriter, error)
	Release()
}

// ObservationWriter holds the prepared statements of one request.
type ObservationWriter interface {
	// Insert stores an observation and returns its id. A natural-key
	// collision returns ErrDuplicate.
	Insert(ctx context.Context, o Observation) (int64, error)
	// LinkAreas links an observation to every area within radiusKm of the
	// given point and returns how many links were made.
	LinkAreas(ctx context.Context, observationID int64, lat, lon, radiusKm float64) (int64, error)
	Close() error
}
