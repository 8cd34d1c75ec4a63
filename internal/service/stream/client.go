package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"Confluence/internal/domain/models"
	drepo "Confluence/internal/domain/repository"
	"Confluence/pkg/logger"
	"Confluence/pkg/util"
)

// TickStream implements a TickSource backed by a trade WebSocket feed.
type TickStream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	l              *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	dropped   uint64
}

type Option func(*TickStream)

func WithLogger(l *logger.Logger) Option {
	return func(s *TickStream) {
		if l != nil {
			s.l = l
		}
	}
}

func WithBufferSize(n int) Option {
	return func(s *TickStream) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// New creates a TickStream for the given symbols.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, opts ...Option) *TickStream {
	s := &TickStream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		bufferSize:     1024,
		l:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	return s
}

// Connect establishes the WebSocket connection.
func (s *TickStream) Connect(ctx context.Context) error {
	u, err := url.Parse(s.websocketURL)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("token", s.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.l.Info("tick stream connected", logger.String("url", u.Host))
	return nil
}

// Subscribe subscribes to configured symbols.
func (s *TickStream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return errors.New("stream not connected")
	}
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.l.Info("tick stream subscribed", logger.Strings("symbols", s.symbols))
	return nil
}

type wireTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

// Read streams ticks from the current connection until it fails or ctx ends.
// A read failure is delivered once on the error channel; both channels close
// afterwards, so callers must Reconnect and Read again.
func (s *TickStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, s.bufferSize)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		errs <- errors.New("stream not connected")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	done := make(chan struct{})
	go s.pingLoop(ctx, conn, done)

	go func() {
		defer close(ticks)
		defer close(errs)
		defer close(done)
		// unblock ReadMessage on cancellation
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("stream read: %w", err)
				}
				return
			}
			var m wireMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				// pings and acks
				continue
			}
			for _, d := range m.Data {
				tick := &models.Tick{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: util.FromUnixAuto(d.T)}
				select {
				case ticks <- tick:
				default:
					s.mu.Lock()
					s.dropped++
					s.mu.Unlock()
				}
			}
		}
	}()

	return ticks, errs
}

func (s *TickStream) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.pingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.l.Debug("tick stream ping failed", logger.Error(err))
			}
		}
	}
}

// Reconnect closes the connection, waits reconnectDelay and dials again.
func (s *TickStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *TickStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected indicates status.
func (s *TickStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Dropped returns the number of ticks dropped on backpressure.
func (s *TickStream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

var _ drepo.TickSource = (*TickStream)(nil)
