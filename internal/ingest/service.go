// Package ingest turns receiver envelopes into stored weather observations.
//
// A Service is transport-neutral: the HTTP handler and the NATS subscriber
// both hand it a raw body and report the Result back to the receiver.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wxaloft/internal/escape"
	"wxaloft/internal/storage"
	"wxaloft/internal/wxdecoder"
	_ "wxaloft/internal/wxdecoder/decoders"
)

// Acquirer hands out one storage session per request.
type Acquirer interface {
	Acquire(ctx context.Context) (storage.Session, error)
}

// Archiver keeps a copy of accepted messages.
type Archiver interface {
	Archive(ctx context.Context, r storage.ArchiveRecord) error
}

// Options configures a Service. Store is required.
type Options struct {
	Store    Acquirer
	Decoders *wxdecoder.Registry // defaults to wxdecoder.Default()
	Logger   *zap.Logger         // defaults to a no-op logger
	Metrics  *Metrics            // optional
	Archive  Archiver            // optional
	Now      func() time.Time    // defaults to time.Now
}

// Service processes ingest envelopes. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	store    Acquirer
	decoders *wxdecoder.Registry
	log      *zap.Logger
	metrics  *Metrics
	archive  Archiver
	now      func() time.Time
}

// NewService builds a Service from opts.
func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		decoders: opts.Decoders,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		archive:  opts.Archive,
		now:      opts.Now,
	}
	if s.decoders == nil {
		s.decoders = wxdecoder.Default()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Process handles one envelope and reports how it went.
func (s *Service) Process(ctx context.Context, body []byte) Result {
	start := s.now()
	res := resultFor(s.process(ctx, body))
	s.metrics.request(res, s.now().Sub(start))
	return res
}

func (s *Service) process(ctx context.Context, body []byte) error {
	env, err := ParseEnvelope(body)
	if err != nil {
		s.logRejected(err, env)
		return err
	}

	sess, err := s.store.Acquire(ctx)
	if err != nil {
		s.log.Error("unable to obtain database connection", zap.Error(err))
		return internal("unable to obtain DB connection", err)
	}
	defer sess.Release()

	r, err := s.authenticate(ctx, sess, env)
	if err != nil {
		return err
	}
	freq, err := s.resolveFrequency(ctx, sess, r, env)
	if err != nil {
		return err
	}

	if r.LogAll {
		s.logDiagnostic(r.Name, freq, env)
	}

	var t Tally
	if r.RecordWx {
		t, err = s.record(ctx, sess, r, freq, env)
		s.metrics.tally(t)
		if err != nil {
			return err
		}
		if t.Stored > 0 || t.Duplicates > 0 || t.Failed > 0 {
			s.log.Debug("recorded observations",
				zap.String("receiver", r.Name),
				zap.Int("stored", t.Stored),
				zap.Int("duplicates", t.Duplicates),
				zap.Int("failed", t.Failed),
				zap.Int64("links", t.Links),
			)
		}
	}

	s.archiveMessage(ctx, r, freq, env, t)
	return nil
}

func (s *Service) logRejected(err error, env Envelope) {
	var ie *Error
	if !errors.As(err, &ie) {
		return
	}
	switch ie.Reason {
	case reasonUnparseableMessage:
		s.log.Error("unable to parse ACARS message", zap.String("message", escape.Quote(env.Message)))
	case reasonUnparseableTime:
		s.log.Error("unable to parse time", zap.String("time", escape.Quote(env.rawTime)))
	default:
		s.log.Warn("bad request", zap.String("reason", ie.Reason))
	}
}

func (s *Service) archiveMessage(ctx context.Context, r storage.Receiver, freq float64, env Envelope, t Tally) {
	if s.archive == nil {
		return
	}
	msg := env.Parsed
	flight, _ := msg.FlightID()
	rec := storage.ArchiveRecord{
		Received:     env.Time,
		Receiver:     r.Name,
		Frequency:    freq,
		Mode:         string(rune(msg.Mode())),
		Label:        msg.Label(),
		BlockID:      string(rune(msg.BlockID())),
		Registration: msg.Registration(),
		FlightID:     flight,
		Text:         msg.Text(),
		Stored:       uint32(t.Stored),
	}
	if err := s.archive.Archive(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("unable to archive message", zap.String("receiver", r.Name), zap.Error(err))
	}
}
