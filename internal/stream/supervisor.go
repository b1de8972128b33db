package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tweetcastr/internal/metrics"
	"tweetcastr/internal/tracing"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle position of a Supervisor.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StatePaused
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	default:
		return "terminated"
	}
}

// Action is how the supervisor responds to a transport error class.
type Action int

const (
	// ActionKeepAlive logs the error and keeps reading the same subscription.
	ActionKeepAlive Action = iota
	// ActionResubscribe closes the subscription and opens a new one at once.
	ActionResubscribe
	// ActionPauseThenResubscribe waits RateLimitPause before reopening.
	ActionPauseThenResubscribe
)

// Policy maps error classes to actions.
type Policy map[string]Action

// DefaultPolicy keeps the connection through status errors and idle
// timeouts, resubscribes on connection failures and pauses on rate limits.
func DefaultPolicy() Policy {
	return Policy{
		ClassRateLimit:   ActionPauseThenResubscribe,
		ClassStatus:      ActionKeepAlive,
		ClassIdleTimeout: ActionKeepAlive,
		ClassProtocol:    ActionResubscribe,
		ClassReadTimeout: ActionResubscribe,
	}
}

// DefaultRateLimitPause is the wait after a rate-limit status.
const DefaultRateLimitPause = 15 * time.Minute

// SupervisorConfig holds configuration for the Supervisor.
type SupervisorConfig struct {
	// Spec is the filter requested on every subscription.
	Spec FilterSpec

	// RateLimitPause defaults to DefaultRateLimitPause.
	RateLimitPause time.Duration

	// DialRetryDelay is waited after a failed Open before the next attempt.
	// Errors raised while streaming are retried immediately.
	DialRetryDelay time.Duration

	// ErrorLog receives every handled transport error.
	ErrorLog *ErrorLog

	// Policy defaults to DefaultPolicy.
	Policy Policy
}

type outcome int

const (
	outcomeInterrupted outcome = iota
	outcomeTargetReached
	outcomeResubscribe
	outcomePause
)

// Supervisor owns the subscription lifecycle for one Session.
type Supervisor struct {
	transport Transport
	session   *Session
	config    SupervisorConfig

	state         atomic.Int32
	targetReached atomic.Bool
	subscriptions atomic.Int64

	// sleep waits d or until ctx is done; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSupervisor creates a supervisor in the idle state.
func NewSupervisor(transport Transport, session *Session, config SupervisorConfig) *Supervisor {
	if config.RateLimitPause <= 0 {
		config.RateLimitPause = DefaultRateLimitPause
	}
	if config.Policy == nil {
		config.Policy = DefaultPolicy()
	}
	return &Supervisor{
		transport: transport,
		session:   session,
		config:    config,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// IsStreaming returns true while a subscription is being read.
func (s *Supervisor) IsStreaming() bool {
	return s.State() == StateStreaming
}

// TargetReached reports whether Run ended because the destination is full.
func (s *Supervisor) TargetReached() bool {
	return s.targetReached.Load()
}

// Subscriptions returns the number of subscriptions opened so far.
func (s *Supervisor) Subscriptions() int64 {
	return s.subscriptions.Load()
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if st == StateStreaming {
		metrics.ConnectionState.Set(1)
	} else {
		metrics.ConnectionState.Set(0)
	}
}

// Run consumes the stream until the context is cancelled or the destination
// reaches its target; both end with a nil error. Transport errors are
// retried without limit. Decode and storage failures are returned.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateTerminated)

	for {
		if ctx.Err() != nil {
			log.Info().Msg("stream: interrupted, stopping supervisor")
			return nil
		}

		// Never resubscribe once the target is met.
		reached, err := s.session.TargetReached(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if reached {
			s.finish()
			return nil
		}

		s.setState(StateConnecting)
		log.Info().Str("mode", s.config.Spec.Mode()).Msg("stream: starting new stream")

		sub, err := s.transport.Open(ctx, s.config.Spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			class, ok := classifyTransportError(err)
			if !ok {
				return fmt.Errorf("open subscription: %w", err)
			}
			s.record(class, err)
			if s.config.Policy[class] == ActionPauseThenResubscribe {
				if s.pause(ctx) != nil {
					return nil
				}
			} else if s.sleep(ctx, s.config.DialRetryDelay) != nil {
				return nil
			}
			metrics.ReconnectsTotal.WithLabelValues(class).Inc()
			continue
		}
		s.subscriptions.Add(1)

		out, err := s.consume(ctx, sub)
		if err != nil {
			return err
		}

		switch out {
		case outcomeInterrupted:
			log.Info().Msg("stream: interrupted, subscription closed")
			return nil
		case outcomeTargetReached:
			s.finish()
			return nil
		case outcomePause:
			if s.pause(ctx) != nil {
				return nil
			}
		}
		log.Info().Msg("stream: restarting stream")
	}
}

func (s *Supervisor) finish() {
	s.targetReached.Store(true)
	log.Info().
		Str("collection", s.session.Filter().Destination().Name()).
		Int("target", s.session.Filter().TargetCount()).
		Msg("stream: destination reached target count")
}

func (s *Supervisor) pause(ctx context.Context) error {
	s.setState(StatePaused)
	metrics.RateLimitPausesTotal.Inc()
	log.Warn().Dur("pause", s.config.RateLimitPause).Msg("stream: rate limited, sleeping")
	return s.sleep(ctx, s.config.RateLimitPause)
}

// consume reads one subscription until it must be replaced or abandoned.
func (s *Supervisor) consume(ctx context.Context, sub Subscription) (out outcome, err error) {
	spanCtx, span := tracing.SubscriptionSpan(ctx, s.config.Spec.Mode(), s.session.ID())
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()
	defer sub.Close()

	s.setState(StateStreaming)

	for {
		payload, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return outcomeInterrupted, nil
			}
			class, ok := classifyTransportError(err)
			if !ok {
				return 0, fmt.Errorf("read stream: %w", err)
			}
			s.record(class, err)

			switch s.config.Policy[class] {
			case ActionKeepAlive:
				continue
			case ActionPauseThenResubscribe:
				metrics.ReconnectsTotal.WithLabelValues(class).Inc()
				return outcomePause, nil
			default:
				metrics.ReconnectsTotal.WithLabelValues(class).Inc()
				return outcomeResubscribe, nil
			}
		}

		metrics.BytesReceivedTotal.Add(float64(len(payload)))

		sig, err := s.session.HandlePayload(spanCtx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return outcomeInterrupted, nil
			}
			return 0, err
		}
		if sig == SignalStop {
			return outcomeTargetReached, nil
		}
	}
}

func (s *Supervisor) record(class string, err error) {
	metrics.HandledErrorsTotal.WithLabelValues(class).Inc()
	log.Warn().Err(err).Str("class", class).Msg("stream: transport error")
	s.config.ErrorLog.Record(class, err)
}

// classifyTransportError returns the policy class of a transport error.
func classifyTransportError(err error) (string, bool) {
	if errors.Is(err, ErrIdleTimeout) {
		return ClassIdleTimeout, true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.RateLimited() {
			return ClassRateLimit, true
		}
		return ClassStatus, true
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		if connErr.Kind == ConnectionReadTimeout {
			return ClassReadTimeout, true
		}
		return ClassProtocol, true
	}

	return "", false
}
