package storage

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share. It expects an
// empty, migrated store.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx), "migrate must be idempotent")

	clientID, err := s.AddClient(ctx, NewClient{
		Name:     "KSEA-1",
		AuthHash: []byte("hash-one"),
		RecordWx: true,
		Location: "Seattle",
	})
	require.NoError(t, err)

	_, err = s.AddClient(ctx, NewClient{Name: "KSEA-1"})
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, s.SetFrequency(ctx, clientID, 1, 131.550))
	require.NoError(t, s.SetFrequency(ctx, clientID, 2, 130.025))
	require.NoError(t, s.SetFrequency(ctx, clientID, 2, 130.450), "frequency upsert")

	near, err := s.AddArea(ctx, Area{Name: "EQ0", Latitude: 0, Longitude: 0, Timezone: "UTC"})
	require.NoError(t, err)
	north, err := s.AddArea(ctx, Area{Name: "EQ2N", Latitude: 2, Longitude: 0})
	require.NoError(t, err)
	_, err = s.AddArea(ctx, Area{Name: "FAR", Latitude: 40, Longitude: 100, Timezone: "Asia/Shanghai"})
	require.NoError(t, err)

	t.Run("session lookups", func(t *testing.T) {
		sess, err := s.Acquire(ctx)
		require.NoError(t, err)
		defer sess.Release()

		r, err := sess.LookupReceiver(ctx, []byte("hash-one"))
		require.NoError(t, err)
		assert.Equal(t, Receiver{ID: clientID, Name: "KSEA-1", RecordWx: true}, r)

		_, err = sess.LookupReceiver(ctx, []byte("nope"))
		assert.ErrorIs(t, err, ErrNotFound)

		mhz, err := sess.LookupFrequency(ctx, clientID, 2)
		require.NoError(t, err)
		assert.Equal(t, 130.450, mhz)

		_, err = sess.LookupFrequency(ctx, clientID, 9)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	observed := time.Date(2024, 3, 10, 12, 34, 0, 0, time.UTC)
	received := observed.Add(5 * time.Minute)
	base := Observation{
		Received:      received,
		Observed:      observed,
		Frequency:     131.55,
		ClientID:      clientID,
		Altitude:      35000,
		WindSpeed:     ptr(45),
		WindDirection: ptr(270),
		Temperature:   ptr(-52.0),
		Source:        "N123AB",
		Latitude:      0,
		Longitude:     3.0,
	}

	var firstID int64
	t.Run("insert and link", func(t *testing.T) {
		sess, err := s.Acquire(ctx)
		require.NoError(t, err)
		defer sess.Release()

		w, err := sess.PrepareObservations(ctx)
		require.NoError(t, err)
		defer func() { assert.NoError(t, w.Close()) }()

		firstID, err = w.Insert(ctx, base)
		require.NoError(t, err)
		assert.Positive(t, firstID)

		// (0,3) is about 334 km from EQ0 and 401 km from EQ2N.
		n, err := w.LinkAreas(ctx, firstID, base.Latitude, base.Longitude, 350)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = w.Insert(ctx, base)
		assert.True(t, errors.Is(err, ErrDuplicate), "got %v", err)

		other := base
		other.Longitude = 1.0
		other.WindSpeed, other.WindDirection, other.Temperature = nil, nil, nil
		id, err := w.Insert(ctx, other)
		require.NoError(t, err)
		n, err = w.LinkAreas(ctx, id, other.Latitude, other.Longitude, 350)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("query area", func(t *testing.T) {
		a, err := s.LookupArea(ctx, "EQ0")
		require.NoError(t, err)
		assert.Equal(t, near, a.ID)
		assert.Equal(t, "UTC", a.Timezone)

		a, err = s.LookupArea(ctx, "EQ2N")
		require.NoError(t, err)
		assert.Equal(t, "UTC", a.Timezone, "timezone defaults to UTC")

		byID, err := s.LookupArea(ctx, itoa(north))
		require.NoError(t, err)
		assert.Equal(t, "EQ2N", byID.Name)

		_, err = s.LookupArea(ctx, "NOWHERE")
		assert.ErrorIs(t, err, ErrNotFound)

		obs, err := s.ObservationsForArea(ctx, near, observed.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, obs, 2)
		assert.Equal(t, firstID, obs[0].ID)
		assert.True(t, observed.Equal(obs[0].Observed))
		assert.True(t, received.Equal(obs[0].Received))
		assert.Equal(t, 35000, obs[0].Altitude)
		require.NotNil(t, obs[0].WindSpeed)
		assert.Equal(t, 45, *obs[0].WindSpeed)
		assert.Equal(t, -52.0, *obs[0].Temperature)
		assert.Nil(t, obs[1].WindSpeed)
		assert.Nil(t, obs[1].Temperature)

		obs, err = s.ObservationsForArea(ctx, north, observed.Add(-time.Hour))
		require.NoError(t, err)
		assert.Len(t, obs, 1)

		obs, err = s.ObservationsForArea(ctx, near, observed)
		require.NoError(t, err)
		assert.Empty(t, obs, "since is exclusive")
	})

	t.Run("admin", func(t *testing.T) {
		c, err := s.FindClient(ctx, "KSEA-1")
		require.NoError(t, err)
		assert.Equal(t, Client{ID: clientID, Name: "KSEA-1", Location: "Seattle"}, c)

		c, err = s.FindClient(ctx, itoa(clientID))
		require.NoError(t, err)
		assert.Equal(t, "KSEA-1", c.Name)

		_, err = s.FindClient(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SetClientAuth(ctx, clientID, []byte("hash-two")))
		sess, err := s.Acquire(ctx)
		require.NoError(t, err)
		_, err = sess.LookupReceiver(ctx, []byte("hash-one"))
		assert.ErrorIs(t, err, ErrNotFound)
		r, err := sess.LookupReceiver(ctx, []byte("hash-two"))
		sess.Release()
		require.NoError(t, err)
		assert.Equal(t, clientID, r.ID)

		assert.ErrorIs(t, s.SetClientAuth(ctx, 99999, []byte("x")), ErrNotFound)

		n, err := s.PurgeObservations(ctx, observed)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, "cutoff is exclusive")

		n, err = s.PurgeObservations(ctx, observed.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		obs, err := s.ObservationsForArea(ctx, near, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, obs)
	})
}

func ptr[T any](v T) *T { return &v }

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
