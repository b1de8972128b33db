package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"tweetcastr/internal/metrics"
	"tweetcastr/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Signal tells the supervisor whether to keep consuming.
type Signal int

const (
	SignalContinue Signal = iota
	SignalStop
)

// Error classes recorded in the error log.
const (
	ClassMissingField = "missing_field"
	ClassFieldType    = "field_type"
	ClassStatus       = "status"
	ClassRateLimit    = "rate_limit"
	ClassIdleTimeout  = "idle_timeout"
	ClassProtocol     = "protocol"
	ClassReadTimeout  = "read_timeout"
)

// SessionOptions configures the side effects of a Session.
type SessionOptions struct {
	// ErrorLog receives every locally recovered error. Nil discards them.
	ErrorLog *ErrorLog

	// CoordinatesLog receives the point of each persisted geo event.
	CoordinatesLog *CoordinatesLog

	// TextLog, when set, receives the text of each event persisted through
	// the dedup path.
	TextLog *TextLog

	// MaxSeenKeys bounds the dedup seen set; zero keeps every key.
	MaxSeenKeys int
}

// SessionStats is a snapshot of session counters.
type SessionStats struct {
	Received   int64
	Persisted  int64
	Duplicates int64
	Ignored    int64
	Errors     int64
	SeenKeys   int
}

// Session processes raw stream payloads one at a time. HandlePayload must
// not be called concurrently.
type Session struct {
	id     string
	filter *FilterConfig
	dedup  *DedupEngine
	opts   SessionOptions

	seenKeys   atomic.Int64
	received   atomic.Int64
	persisted  atomic.Int64
	duplicates atomic.Int64
	ignored    atomic.Int64
	errs       atomic.Int64
}

// NewSession creates a session writing to filter's destination.
func NewSession(filter *FilterConfig, opts SessionOptions) *Session {
	s := &Session{
		id:     uuid.NewString(),
		filter: filter,
		dedup:  NewDedupEngine(opts.MaxSeenKeys),
		opts:   opts,
	}

	log.Info().
		Str("session", s.id).
		Str("collection", filter.Destination().Name()).
		Int("target", filter.TargetCount()).
		Bool("geo", filter.GeoMode()).
		Strs("stop_words", filter.StopWords()).
		Msg("stream: session created")

	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Filter returns the session's filter configuration.
func (s *Session) Filter() *FilterConfig {
	return s.filter
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Received:   s.received.Load(),
		Persisted:  s.persisted.Load(),
		Duplicates: s.duplicates.Load(),
		Ignored:    s.ignored.Load(),
		Errors:     s.errs.Load(),
		SeenKeys:   int(s.seenKeys.Load()),
	}
}

// DestinationSize returns the current destination size.
func (s *Session) DestinationSize(ctx context.Context) (int, error) {
	ctx, span := tracing.StoreSpan(ctx, "count", s.filter.Destination().Name())
	defer span.End()

	n, err := s.filter.Destination().Count(ctx)
	tracing.EndWithError(span, err)
	return n, err
}

// TargetReached reports whether the destination already holds the target.
func (s *Session) TargetReached(ctx context.Context) (bool, error) {
	n, err := s.DestinationSize(ctx)
	if err != nil {
		return false, fmt.Errorf("count destination: %w", err)
	}
	return n >= s.filter.TargetCount(), nil
}

// HandlePayload processes one delivery. It returns SignalStop once the
// destination holds the target count. Missing-field and type errors are
// recorded and swallowed; any returned error is fatal to the pipeline.
func (s *Session) HandlePayload(ctx context.Context, payload []byte) (Signal, error) {
	reached, err := s.TargetReached(ctx)
	if err != nil {
		return SignalContinue, err
	}
	if reached {
		return SignalStop, nil
	}

	// Keep-alive newlines carry no event.
	if len(bytes.TrimSpace(payload)) == 0 {
		return SignalContinue, nil
	}

	ev, err := DecodeEvent(payload)
	if err != nil {
		return SignalContinue, err
	}
	s.received.Add(1)

	c := Classify(ev, s.filter.GeoMode())
	metrics.EventsTotal.WithLabelValues(c.Route.String()).Inc()

	switch c.Route {
	case RouteIgnore:
		s.ignored.Add(1)
		metrics.IgnoredTotal.WithLabelValues(c.Reason).Inc()
		return SignalContinue, nil
	case RouteGeo:
		err = s.acceptGeo(ctx, ev)
	case RouteDedup:
		err = s.acceptUnique(ctx, ev)
	}

	if err != nil {
		if class, ok := recoverableClass(err); ok {
			s.recordError(class, err)
			return SignalContinue, nil
		}
		return SignalContinue, err
	}
	return SignalContinue, nil
}

func recoverableClass(err error) (string, bool) {
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		return ClassMissingField, true
	}
	var typeErr *FieldTypeError
	if errors.As(err, &typeErr) {
		return ClassFieldType, true
	}
	return "", false
}

func (s *Session) recordError(class string, err error) {
	s.errs.Add(1)
	metrics.HandledErrorsTotal.WithLabelValues(class).Inc()
	log.Warn().Err(err).Str("session", s.id).Str("class", class).Msg("stream: event skipped")
	s.opts.ErrorLog.Record(class, err)
}

func (s *Session) acceptGeo(ctx context.Context, ev RawEvent) error {
	lon, lat, ok, err := ev.Coordinates()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := s.insert(ctx, ev, "geo"); err != nil {
		return err
	}

	log.Debug().Str("session", s.id).Str("lon", lon).Str("lat", lat).Msg("stream: geo event stored")

	if s.opts.CoordinatesLog != nil {
		if err := s.opts.CoordinatesLog.Append(lon, lat); err != nil {
			log.Warn().Err(err).Msg("stream: failed to append coordinates")
		}
	}
	return nil
}

func (s *Session) acceptUnique(ctx context.Context, ev RawEvent) error {
	text, err := ev.Text()
	if err != nil {
		return err
	}

	key, ok := ExtractKey(Normalize(text))
	if !ok {
		if err := s.insert(ctx, ev, "plain"); err != nil {
			return err
		}
		s.audit(text)
		return nil
	}

	decision := s.dedup.Decide(key)
	s.seenKeys.Store(int64(s.dedup.Len()))

	switch decision {
	case DecisionRecordOnly:
		log.Debug().Str("session", s.id).Str("key", key).Msg("stream: first key recorded")
	case DecisionDuplicate:
		s.duplicates.Add(1)
		metrics.DuplicatesTotal.Inc()
	case DecisionAccept:
		ev[FieldText] = key
		if err := s.insert(ctx, ev, "dedup"); err != nil {
			return err
		}
		s.audit(key)
	}
	return nil
}

func (s *Session) audit(text string) {
	if s.opts.TextLog == nil {
		return
	}
	if err := s.opts.TextLog.Append(text); err != nil {
		log.Warn().Err(err).Msg("stream: failed to append audit text")
	}
}

func (s *Session) insert(ctx context.Context, ev RawEvent, path string) error {
	dest := s.filter.Destination()

	ctx, span := tracing.StoreSpan(ctx, "insert", dest.Name())
	defer span.End()

	if err := dest.Insert(ctx, ev.Document()); err != nil {
		tracing.EndWithError(span, err)
		return fmt.Errorf("insert into %s: %w", dest.Name(), err)
	}

	s.persisted.Add(1)
	metrics.PersistedTotal.WithLabelValues(path).Inc()

	text, _ := ev[FieldText].(string)
	log.Info().Str("session", s.id).Str("path", path).Str("text", text).Msg("stream: inserted")
	return nil
}
