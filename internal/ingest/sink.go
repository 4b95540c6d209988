package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wxaloft/internal/escape"
	"wxaloft/internal/storage"
	"wxaloft/internal/wxdecoder"
)

// Radius is the great-circle distance in km within which an observation is
// linked to an area.
const Radius = 350.0

// Tally counts what happened to the observations of one message.
type Tally struct {
	Stored     int
	Duplicates int
	Failed     int
	Incomplete int
	Links      int64
}

// record decodes the weather carried by a message and stores it.
// Statements are prepared only once a decoder accepts the message. Failing
// to prepare them fails the request; everything after that is absorbed per
// observation.
func (s *Service) record(ctx context.Context, sess storage.Session, r storage.Receiver, freq float64, env Envelope) (Tally, error) {
	var t Tally

	msg := env.Parsed
	flight, ok := msg.FlightID()
	if !ok {
		return t, nil
	}
	dec, err := s.decoders.ForFlight(flight)
	switch {
	case errors.Is(err, wxdecoder.ErrInvalidFlightID):
		// Probably a ground-to-air reply.
		return t, nil
	case errors.Is(err, wxdecoder.ErrUnknownAirline):
		return t, nil
	case err != nil:
		s.log.Error("selecting decoder", zap.String("flight", escape.Quote(flight)), zap.Error(err))
		return t, nil
	}

	observations, ok := dec.Decode(msg, env.Time)
	if !ok {
		return t, nil
	}

	w, err := sess.PrepareObservations(ctx)
	if err != nil {
		s.log.Error("unable to prepare statements", zap.Error(err))
		return t, internal("unable to prepare statements", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			s.log.Warn("closing prepared statements", zap.Error(err))
		}
	}()

	for o := range observations {
		if err := ctx.Err(); err != nil {
			return t, internal("request cancelled", err)
		}
		if !o.Complete() {
			t.Incomplete++
			continue
		}

		id, err := w.Insert(ctx, storage.Observation{
			Received:      env.Time,
			Observed:      *o.Observed,
			Frequency:     freq,
			ClientID:      r.ID,
			Altitude:      *o.Altitude,
			WindSpeed:     o.WindSpeed,
			WindDirection: o.WindDirection,
			Temperature:   o.Temperature,
			Source:        msg.Registration(),
			Latitude:      *o.Latitude,
			Longitude:     *o.Longitude,
		})
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			t.Duplicates++
			continue
		case err != nil:
			s.log.Error("unable to insert observation",
				zap.String("receiver", escape.Quote(r.Name)), zap.String("decoder", dec.Name()), zap.Error(err))
			t.Failed++
			continue
		}
		t.Stored++

		n, err := w.LinkAreas(ctx, id, *o.Latitude, *o.Longitude, Radius)
		if err != nil {
			s.log.Error("unable to link observation to areas", zap.Int64("observation_id", id), zap.Error(err))
			continue
		}
		t.Links += n
	}
	return t, nil
}
