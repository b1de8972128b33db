package stream

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tweetcastr/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one scripted delivery: a payload or an error.
type step struct {
	payload string
	err     error
}

type fakeSubscription struct {
	steps  []step
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

func (f *fakeSubscription) Next(ctx context.Context) ([]byte, error) {
	if len(f.steps) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	st := f.steps[0]
	f.steps = f.steps[1:]
	if st.err != nil {
		return nil, st.err
	}
	return []byte(st.payload), nil
}

func (f *fakeSubscription) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscription) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// opening is one scripted Open result.
type opening struct {
	sub *fakeSubscription
	err error
}

type fakeTransport struct {
	openings []opening
	cancel   context.CancelFunc
	specs    []FilterSpec
}

func (f *fakeTransport) Open(ctx context.Context, spec FilterSpec) (Subscription, error) {
	f.specs = append(f.specs, spec)
	if len(f.openings) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	o := f.openings[0]
	f.openings = f.openings[1:]
	if o.err != nil {
		return nil, o.err
	}
	o.sub.cancel = f.cancel
	return o.sub, nil
}

func (f *fakeTransport) opens() int {
	return len(f.specs)
}

type supervisorFixture struct {
	ctx       context.Context
	dest      *database.MockCollection
	transport *fakeTransport
	sup       *Supervisor
	errPath   string
	sleeps    []time.Duration
}

func newSupervisorFixture(t *testing.T, target int, config SupervisorConfig, openings ...opening) *supervisorFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &supervisorFixture{
		ctx:       ctx,
		dest:      &database.MockCollection{NameValue: "tweets"},
		transport: &fakeTransport{openings: openings, cancel: cancel},
		errPath:   filepath.Join(t.TempDir(), "logfile.log"),
	}

	filter := NewFilterConfig(DefaultStopWords, f.dest, target)
	errLog := NewErrorLog(f.errPath)
	session := NewSession(filter, SessionOptions{ErrorLog: errLog})

	if config.Spec.Track == nil && config.Spec.Locations == nil {
		config.Spec = KeywordSpec([]string{"news"})
	}
	config.ErrorLog = errLog
	f.sup = NewSupervisor(f.transport, session, config)
	f.sup.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return ctx.Err()
	}
	return f
}

func payloads(texts ...string) []step {
	out := make([]step, len(texts))
	for i, text := range texts {
		out[i] = step{payload: `{"text":"` + text + `"}`}
	}
	return out
}

func TestSupervisor_StopsAtTargetWithoutResubscribing(t *testing.T) {
	sub := &fakeSubscription{steps: payloads("one", "two", "three", "four")}
	f := newSupervisorFixture(t, 2, SupervisorConfig{}, opening{sub: sub})

	err := f.sup.Run(f.ctx)

	require.NoError(t, err)
	assert.True(t, f.sup.TargetReached())
	assert.Equal(t, 1, f.transport.opens())
	assert.Len(t, f.dest.Documents(), 2)
	assert.True(t, sub.isClosed())
	assert.Equal(t, StateTerminated, f.sup.State())
	assert.Empty(t, f.sleeps)
}

func TestSupervisor_FullDestinationNeverOpens(t *testing.T) {
	f := newSupervisorFixture(t, 0, SupervisorConfig{})

	err := f.sup.Run(f.ctx)

	require.NoError(t, err)
	assert.True(t, f.sup.TargetReached())
	assert.Equal(t, 0, f.transport.opens())
}

func TestSupervisor_PassesFilterSpec(t *testing.T) {
	sub := &fakeSubscription{steps: payloads("one")}
	f := newSupervisorFixture(t, 1, SupervisorConfig{Spec: GeoSpec()}, opening{sub: sub})

	require.NoError(t, f.sup.Run(f.ctx))

	require.Len(t, f.transport.specs, 1)
	assert.Equal(t, "geo", f.transport.specs[0].Mode())
	assert.Equal(t, ContinentalAmerica, f.transport.specs[0].Locations)
	assert.Equal(t, []string{"en"}, f.transport.specs[0].Languages)
}

func TestSupervisor_RateLimitOnOpenPausesOnce(t *testing.T) {
	sub := &fakeSubscription{steps: payloads("one")}
	f := newSupervisorFixture(t, 1, SupervisorConfig{DialRetryDelay: time.Second},
		opening{err: &StatusError{Code: StatusEnhanceYourCalm}},
		opening{sub: sub},
	)

	require.NoError(t, f.sup.Run(f.ctx))

	assert.Equal(t, []time.Duration{DefaultRateLimitPause}, f.sleeps)
	assert.Equal(t, 2, f.transport.opens())
	assert.Len(t, f.dest.Documents(), 1)
}

func TestSupervisor_RateLimitMidStreamPausesThenResubscribes(t *testing.T) {
	first := &fakeSubscription{steps: []step{
		{payload: `{"text":"one"}`},
		{err: &StatusError{Code: StatusTooManyRequests}},
	}}
	second := &fakeSubscription{steps: payloads("two", "three")}
	f := newSupervisorFixture(t, 2, SupervisorConfig{RateLimitPause: time.Minute},
		opening{sub: first},
		opening{sub: second},
	)

	require.NoError(t, f.sup.Run(f.ctx))

	assert.Equal(t, []time.Duration{time.Minute}, f.sleeps)
	assert.True(t, first.isClosed())
	assert.Equal(t, 2, f.transport.opens())
	assert.True(t, f.sup.TargetReached())
}

func TestSupervisor_KeepsSubscriptionThroughStatusAndIdle(t *testing.T) {
	sub := &fakeSubscription{steps: []step{
		{err: &StatusError{Code: 500, Reason: "Internal Server Error"}},
		{err: ErrIdleTimeout},
		{payload: `{"text":"one"}`},
		{payload: `{"text":"two"}`},
	}}
	f := newSupervisorFixture(t, 2, SupervisorConfig{}, opening{sub: sub})

	require.NoError(t, f.sup.Run(f.ctx))

	assert.Equal(t, 1, f.transport.opens())
	assert.Len(t, f.dest.Documents(), 2)
	assert.Empty(t, f.sleeps)

	lines := readLines(t, f.errPath)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"error_class":"status"`)
	assert.Contains(t, lines[1], `"error_class":"idle_timeout"`)
}

func TestSupervisor_ConnectionErrorsResubscribeImmediately(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class string
	}{
		{"protocol", &ConnectionError{Kind: ConnectionProtocol, Err: errors.New("bad frame")}, ClassProtocol},
		{"read timeout", &ConnectionError{Kind: ConnectionReadTimeout, Err: errors.New("i/o timeout")}, ClassReadTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := &fakeSubscription{steps: []step{{err: tt.err}}}
			second := &fakeSubscription{steps: payloads("one")}
			f := newSupervisorFixture(t, 1, SupervisorConfig{DialRetryDelay: time.Second},
				opening{sub: first},
				opening{sub: second},
			)

			require.NoError(t, f.sup.Run(f.ctx))

			assert.Equal(t, 2, f.transport.opens())
			assert.True(t, first.isClosed())
			assert.Empty(t, f.sleeps)
			lines := readLines(t, f.errPath)
			require.Len(t, lines, 1)
			assert.Contains(t, lines[0], `"error_class":"`+tt.class+`"`)
		})
	}
}

func TestSupervisor_FailedOpenWaitsDialRetryDelay(t *testing.T) {
	sub := &fakeSubscription{steps: payloads("one")}
	f := newSupervisorFixture(t, 1, SupervisorConfig{DialRetryDelay: 2 * time.Second},
		opening{err: &ConnectionError{Kind: ConnectionProtocol, Err: errors.New("refused")}},
		opening{err: &StatusError{Code: 503}},
		opening{sub: sub},
	)

	require.NoError(t, f.sup.Run(f.ctx))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, f.sleeps)
	assert.Equal(t, 3, f.transport.opens())
	assert.Equal(t, int64(1), f.sup.Subscriptions())
}

func TestSupervisor_DecodeErrorIsFatal(t *testing.T) {
	sub := &fakeSubscription{steps: []step{{payload: `{"text":`}}}
	f := newSupervisorFixture(t, 5, SupervisorConfig{}, opening{sub: sub})

	err := f.sup.Run(f.ctx)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, sub.isClosed())
	assert.False(t, f.sup.TargetReached())
}

func TestSupervisor_UnknownOpenErrorIsFatal(t *testing.T) {
	boom := errors.New("boom")
	f := newSupervisorFixture(t, 5, SupervisorConfig{}, opening{err: boom})

	err := f.sup.Run(f.ctx)

	assert.ErrorIs(t, err, boom)
}

func TestSupervisor_StorageErrorIsFatal(t *testing.T) {
	boom := errors.New("disk full")
	sub := &fakeSubscription{steps: payloads("one")}
	f := newSupervisorFixture(t, 5, SupervisorConfig{}, opening{sub: sub})
	f.dest.InsertFunc = func(ctx context.Context, doc database.Document) error { return boom }

	err := f.sup.Run(f.ctx)

	assert.ErrorIs(t, err, boom)
}

func TestSupervisor_InterruptReturnsNil(t *testing.T) {
	sub := &fakeSubscription{steps: payloads("one", "two")}
	f := newSupervisorFixture(t, 100, SupervisorConfig{}, opening{sub: sub})

	err := f.sup.Run(f.ctx)

	require.NoError(t, err)
	assert.False(t, f.sup.TargetReached())
	assert.Len(t, f.dest.Documents(), 2)
	assert.True(t, sub.isClosed())
	assert.Equal(t, StateTerminated, f.sup.State())
}

func TestSupervisor_CancelledBeforeRun(t *testing.T) {
	f := newSupervisorFixture(t, 5, SupervisorConfig{})
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	require.NoError(t, f.sup.Run(ctx))
	assert.Equal(t, 0, f.transport.opens())
}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class string
		ok    bool
	}{
		{"idle", ErrIdleTimeout, ClassIdleTimeout, true},
		{"enhance your calm", &StatusError{Code: 420}, ClassRateLimit, true},
		{"too many requests", &StatusError{Code: 429}, ClassRateLimit, true},
		{"other status", &StatusError{Code: 401}, ClassStatus, true},
		{"protocol", &ConnectionError{Kind: ConnectionProtocol}, ClassProtocol, true},
		{"read timeout", &ConnectionError{Kind: ConnectionReadTimeout}, ClassReadTimeout, true},
		{"decode", &DecodeError{Err: errors.New("x")}, "", false},
		{"plain", errors.New("x"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, ok := classifyTransportError(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.class, class)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "terminated", StateTerminated.String())
}
