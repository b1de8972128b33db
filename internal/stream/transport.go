package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// FilterSpec selects what the feed delivers on a subscription.
type FilterSpec struct {
	Track     []string
	Locations []float64
	Languages []string
}

// GeoSpec requests English geo-tagged events inside ContinentalAmerica.
func GeoSpec() FilterSpec {
	return FilterSpec{Locations: ContinentalAmerica, Languages: []string{"en"}}
}

// KeywordSpec requests English events matching any keyword.
func KeywordSpec(keywords []string) FilterSpec {
	return FilterSpec{Track: keywords, Languages: []string{"en"}}
}

// Mode names the delivery kind for logs.
func (f FilterSpec) Mode() string {
	if len(f.Track) == 0 && len(f.Locations) > 0 {
		return "geo"
	}
	return "keywords"
}

// Transport opens subscriptions on the remote feed.
type Transport interface {
	Open(ctx context.Context, spec FilterSpec) (Subscription, error)
}

// Subscription delivers raw payloads from one open connection.
//
// Next returns ErrIdleTimeout when nothing arrived within the idle window,
// *StatusError for a status reported by the feed and *ConnectionError when
// the connection failed.
type Subscription interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// TransportConfig holds configuration for the websocket transport.
type TransportConfig struct {
	// Endpoint is the websocket URL of the filtered stream.
	Endpoint string

	// BearerToken is sent as an Authorization header when set.
	BearerToken string

	// Compress requests zstd-compressed frames.
	Compress bool

	HandshakeTimeout time.Duration

	// IdleTimeout is how long Next waits before reporting ErrIdleTimeout.
	IdleTimeout time.Duration

	// ReadTimeout is the stall limit after which the connection is dropped.
	ReadTimeout time.Duration
}

// DefaultTransportConfig returns a configuration with sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Endpoint:         "wss://stream.twitter.com/1.1/statuses/filter.json",
		HandshakeTimeout: 10 * time.Second,
		IdleTimeout:      30 * time.Second,
		ReadTimeout:      90 * time.Second,
	}
}

// WebsocketTransport implements Transport over a websocket connection.
type WebsocketTransport struct {
	config TransportConfig
	dialer websocket.Dialer

	// Zstd decoder for compressed messages
	zstdDecoder *zstd.Decoder
}

// NewWebsocketTransport creates a transport. Close releases the decoder.
func NewWebsocketTransport(config TransportConfig) (*WebsocketTransport, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("stream endpoint is required")
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &WebsocketTransport{
		config: config,
		dialer: websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		zstdDecoder: decoder,
	}, nil
}

// Close releases transport resources.
func (t *WebsocketTransport) Close() {
	if t.zstdDecoder != nil {
		t.zstdDecoder.Close()
	}
}

// Open dials the feed with the filter encoded in the query string.
func (t *WebsocketTransport) Open(ctx context.Context, spec FilterSpec) (Subscription, error) {
	wsURL, err := t.buildWebSocketURL(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	header := http.Header{}
	if t.config.BearerToken != "" {
		header.Set("Authorization", "Bearer "+t.config.BearerToken)
	}

	log.Info().Str("url", wsURL).Str("mode", spec.Mode()).Msg("stream: connecting")

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, &StatusError{Code: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
		}
		return nil, &ConnectionError{Kind: ConnectionProtocol, Err: err}
	}

	return newWSSubscription(conn, t), nil
}

func (t *WebsocketTransport) buildWebSocketURL(spec FilterSpec) (string, error) {
	u, err := url.Parse(t.config.Endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if len(spec.Track) > 0 {
		q.Set("track", strings.Join(spec.Track, ","))
	}
	if len(spec.Locations) > 0 {
		parts := make([]string, len(spec.Locations))
		for i, v := range spec.Locations {
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		q.Set("locations", strings.Join(parts, ","))
	}
	if len(spec.Languages) > 0 {
		q.Set("language", strings.Join(spec.Languages, ","))
	}
	if t.config.Compress {
		q.Set("compress", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *WebsocketTransport) decodeFrame(data []byte) ([]byte, error) {
	if !t.config.Compress {
		return data, nil
	}
	// Zstd compressed data starts with magic number 0x28 0xB5 0x2F 0xFD
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD {
		decompressed, err := t.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, &ConnectionError{Kind: ConnectionProtocol, Err: fmt.Errorf("failed to decompress message: %w", err)}
		}
		return decompressed, nil
	}
	return data, nil
}

type frame struct {
	data []byte
	err  error
}

// wsSubscription reads frames in a goroutine so Next can report idleness
// without tearing down the connection.
type wsSubscription struct {
	conn      *websocket.Conn
	transport *WebsocketTransport
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSubscription(conn *websocket.Conn, t *WebsocketTransport) *wsSubscription {
	s := &wsSubscription{
		conn:      conn,
		transport: t,
		frames:    make(chan frame),
		done:      make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *wsSubscription) readLoop() {
	defer close(s.frames)

	for {
		if s.transport.config.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.transport.config.ReadTimeout))
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.frames <- frame{err: classifyReadError(err)}:
			case <-s.done:
			}
			return
		}

		select {
		case s.frames <- frame{data: message}:
		case <-s.done:
			return
		}
	}
}

// classifyReadError maps websocket read failures onto the stream taxonomy.
// Close frames with an application code 4000+N carry feed status N.
func classifyReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code >= 4000 && closeErr.Code < 5000 {
		return &StatusError{Code: closeErr.Code - 4000, Reason: closeErr.Text}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectionError{Kind: ConnectionReadTimeout, Err: err}
	}

	return &ConnectionError{Kind: ConnectionProtocol, Err: err}
}

func (s *wsSubscription) Next(ctx context.Context) ([]byte, error) {
	var idle <-chan time.Time
	if d := s.transport.config.IdleTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, &ConnectionError{Kind: ConnectionProtocol, Err: errors.New("subscription closed")}
	case <-idle:
		return nil, ErrIdleTimeout
	case f, ok := <-s.frames:
		if !ok {
			return nil, &ConnectionError{Kind: ConnectionProtocol, Err: errors.New("connection closed")}
		}
		if f.err != nil {
			return nil, f.err
		}
		return s.transport.decodeFrame(f.data)
	}
}

func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
