// Package admin implements the operator commands behind wxaloftctl.
package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"wxaloft/internal/auth"
	"wxaloft/internal/storage"
)

// ErrAborted means the operator declined the confirmation prompt.
var ErrAborted = errors.New("aborted")

// Store is the subset of storage.Store the tools use.
type Store interface {
	FindClient(ctx context.Context, idOrName string) (storage.Client, error)
	SetClientAuth(ctx context.Context, clientID int64, hash []byte) error
	PurgeObservations(ctx context.Context, before time.Time) (int64, error)
	AddClient(ctx context.Context, c storage.NewClient) (int64, error)
	SetFrequency(ctx context.Context, clientID int64, channel int, mhz float64) error
	AddArea(ctx context.Context, a storage.Area) (int64, error)
	LookupArea(ctx context.Context, idOrName string) (storage.Area, error)
	ObservationsForArea(ctx context.Context, areaID int64, since time.Time) ([]storage.Observation, error)
}

// Tools runs admin operations against a store, talking to the operator on
// In and Out.
type Tools struct {
	Store Store
	In    io.Reader
	Out   io.Writer
	Now   func() time.Time
}

func (t *Tools) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Confirmed reports whether an answer to "OK?" is affirmative: anything
// starting with t or y, ignoring case and surrounding space.
func Confirmed(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return strings.HasPrefix(a, "t") || strings.HasPrefix(a, "y")
}

// RotateAuth replaces a receiver's authenticator. An empty authenticator
// is generated. Unless skipConfirm is set the operator must approve the
// change.
func (t *Tools) RotateAuth(ctx context.Context, clientRef, authenticator string, skipConfirm bool) error {
	c, err := t.Store.FindClient(ctx, clientRef)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("unknown client %q", clientRef)
	}
	if err != nil {
		return err
	}

	plain := []byte(authenticator)
	if authenticator == "" {
		if plain, err = auth.Generate(); err != nil {
			return err
		}
	}

	fmt.Fprintf(t.Out, "Client ID: %d\n", c.ID)
	fmt.Fprintf(t.Out, "Client name: %s\n", c.Name)
	if c.Location != "" {
		fmt.Fprintf(t.Out, "Location: %s\n", c.Location)
	}
	fmt.Fprintln(t.Out)
	fmt.Fprintf(t.Out, "New authenticator: %s\n", plain)

	if !skipConfirm {
		fmt.Fprint(t.Out, "OK? ")
		answer, err := bufio.NewReader(t.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if !Confirmed(answer) {
			return ErrAborted
		}
	}

	if err := t.Store.SetClientAuth(ctx, c.ID, auth.Hash(plain)); err != nil {
		return err
	}
	fmt.Fprintln(t.Out, "Authenticator changed.")
	return nil
}

// Purge deletes observations observed more than days days ago.
func (t *Tools) Purge(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, errors.New("number of days must be positive")
	}
	cutoff := t.now().AddDate(0, 0, -days)
	fmt.Fprintf(t.Out, "Purging data older than %s (%s)\n",
		cutoff.Format("2006-01-02T15:04:05-0700"), humanize.RelTime(cutoff, t.now(), "ago", "from now"))

	n, err := t.Store.PurgeObservations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("unable to purge data: %w", err)
	}
	fmt.Fprintf(t.Out, "%s observation%s deleted\n", humanize.Comma(n), plural(n))
	return n, nil
}

// AddClient provisions a receiver and prints its authenticator, which is
// shown only this once.
func (t *Tools) AddClient(ctx context.Context, name, location string, logAll, recordWx bool) (int64, error) {
	plain, err := auth.Generate()
	if err != nil {
		return 0, err
	}
	id, err := t.Store.AddClient(ctx, storage.NewClient{
		Name:     name,
		AuthHash: auth.Hash(plain),
		LogAll:   logAll,
		RecordWx: recordWx,
		Location: location,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return 0, fmt.Errorf("client %q already exists", name)
	}
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(t.Out, "Client ID: %d\n", id)
	fmt.Fprintf(t.Out, "Client name: %s\n", name)
	fmt.Fprintf(t.Out, "Authenticator: %s\n", plain)
	return id, nil
}

// SetChannel maps a receiver channel number to a frequency.
func (t *Tools) SetChannel(ctx context.Context, clientRef string, channel int, mhz float64) error {
	if channel < 0 || channel >= 100 {
		return fmt.Errorf("channel %d out of range 0-99", channel)
	}
	if math.IsNaN(mhz) || math.IsInf(mhz, 0) {
		return fmt.Errorf("invalid frequency %v", mhz)
	}
	if mhz < 100 {
		return fmt.Errorf("frequency %.3f MHz is below the airband", mhz)
	}
	c, err := t.Store.FindClient(ctx, clientRef)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("unknown client %q", clientRef)
	}
	if err != nil {
		return err
	}
	if err := t.Store.SetFrequency(ctx, c.ID, channel, mhz); err != nil {
		return err
	}
	fmt.Fprintf(t.Out, "Client %s channel %d is %.3f MHz\n", c.Name, channel, mhz)
	return nil
}

// AddArea creates an area. The timezone must be a known IANA zone.
func (t *Tools) AddArea(ctx context.Context, a storage.Area) (int64, error) {
	if math.IsNaN(a.Latitude) || math.IsNaN(a.Longitude) {
		return 0, errors.New("position must be a number")
	}
	if a.Latitude < -90 || a.Latitude > 90 || a.Longitude < -180 || a.Longitude > 180 {
		return 0, fmt.Errorf("position %.4f,%.4f out of range", a.Latitude, a.Longitude)
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return 0, fmt.Errorf("timezone %q: %w", a.Timezone, err)
	}
	id, err := t.Store.AddArea(ctx, a)
	if errors.Is(err, storage.ErrDuplicate) {
		return 0, fmt.Errorf("area %q already exists", a.Name)
	}
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(t.Out, "Area ID: %d\n", id)
	return id, nil
}

func plural(n int64) string {
	if n == 1 {
		return ""
	}
	return "s"
}
