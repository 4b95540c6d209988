package ingest

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"wxaloft/internal/auth"
	"wxaloft/internal/escape"
	"wxaloft/internal/storage"
)

// MinFrequency separates channel numbers from frequencies. The airband
// starts at 108 MHz, so anything below this is a channel index.
const MinFrequency = 100

func (s *Service) authenticate(ctx context.Context, sess storage.Session, env Envelope) (storage.Receiver, error) {
	r, err := sess.LookupReceiver(ctx, auth.HashString(env.Auth))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Warn("unknown authenticator", zap.String("auth", escape.Quote(env.Auth)))
		return storage.Receiver{}, &Error{Kind: KindForbidden, Reason: "unknown authenticator"}
	case err != nil:
		s.log.Error("error authenticating", zap.String("auth", escape.Quote(env.Auth)), zap.Error(err))
		return storage.Receiver{}, internal("unable to authenticate", err)
	}
	return r, nil
}

// resolveFrequency returns the frequency in MHz the message was heard on.
// Values whose integer part is below MinFrequency are channel numbers and
// go through the receiver's frequency table.
func (s *Service) resolveFrequency(ctx context.Context, sess storage.Session, r storage.Receiver, env Envelope) (float64, error) {
	if env.channel >= MinFrequency {
		return env.channel, nil
	}
	if env.channel <= math.MinInt32 {
		return 0, malformed("unknown channel")
	}
	channel := int(math.Trunc(env.channel))
	mhz, err := sess.LookupFrequency(ctx, r.ID, channel)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Warn("no frequency for channel",
			zap.Int("channel", channel), zap.Int64("client_id", r.ID), zap.String("receiver", escape.Quote(r.Name)))
		return 0, malformed("unknown channel")
	case err != nil:
		s.log.Error("error getting frequency",
			zap.Int("channel", channel), zap.Int64("client_id", r.ID), zap.String("receiver", escape.Quote(r.Name)), zap.Error(err))
		return 0, internal("unable to get frequency", err)
	}
	return mhz, nil
}
