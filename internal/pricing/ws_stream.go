package pricing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StreamConfig configures WebSocket stream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// subscribeRequest is the wire format for subscribing to mark-price updates.
type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// markPriceMessage is one mark-price update from the feed.
type markPriceMessage struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
	TimeMs    int64  `json:"timeMs"`
}

// Stream maintains the latest mark price per subscribed symbol over a
// WebSocket feed. It reconnects with exponential backoff and resubscribes
// after a reconnect. Stale prices survive a disconnect: a lookup answers the
// last value seen.
type Stream struct {
	endpoint string
	config   StreamConfig
	logger   logrus.FieldLogger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	symbols   []string
	symbolsMu sync.Mutex

	prices   map[string]decimal.Decimal
	pricesMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
}

var _ PriceSource = (*Stream)(nil)

// NewStream connects to the endpoint and starts the read and ping loops.
func NewStream(ctx context.Context, endpoint string, config *StreamConfig, logger logrus.FieldLogger) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Stream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		prices:   make(map[string]decimal.Decimal),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the WebSocket connection.
func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// Subscribe requests mark-price updates for the given symbols. Symbols are
// remembered for resubscription after a reconnect.
func (s *Stream) Subscribe(symbols []string) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	if len(symbols) == 0 {
		return nil
	}

	s.symbolsMu.Lock()
	s.symbols = append(s.symbols, symbols...)
	s.symbolsMu.Unlock()

	return s.writeSubscribe(symbols)
}

func (s *Stream) writeSubscribe(symbols []string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(subscribeRequest{Op: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// MarkPrice returns the latest known mark price for a symbol.
func (s *Stream) MarkPrice(symbol string) (decimal.Decimal, bool) {
	s.pricesMu.RLock()
	defer s.pricesMu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}

// Close closes the stream and waits for its goroutines to exit.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil // already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop reads mark-price messages and updates the price map, reconnecting
// with exponential backoff when the connection drops.
func (s *Stream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var msg markPriceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.WithError(err).Warn("mark-price read failed, reconnecting")

			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()

			select {
			case <-s.done:
				return
			case <-time.After(reconnectDelay):
			}
			reconnectDelay *= 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			if err := s.reconnect(); err != nil {
				s.logger.WithError(err).Warn("mark-price reconnect failed")
			}
			continue
		}
		reconnectDelay = s.config.ReconnectDelay

		if msg.Symbol == "" || msg.MarkPrice == "" {
			continue
		}
		price, err := decimal.NewFromString(msg.MarkPrice)
		if err != nil {
			s.logger.WithField("symbol", msg.Symbol).WithError(err).
				Warn("discarding unparsable mark price")
			continue
		}

		s.pricesMu.Lock()
		s.prices[msg.Symbol] = price
		s.pricesMu.Unlock()
	}
}

// reconnect re-establishes the connection and resubscribes active symbols.
func (s *Stream) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		return err
	}

	s.symbolsMu.Lock()
	symbols := make([]string, len(s.symbols))
	copy(symbols, s.symbols)
	s.symbolsMu.Unlock()

	if len(symbols) == 0 {
		return nil
	}
	return s.writeSubscribe(symbols)
}

// pingLoop keeps the connection alive.
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.WithError(err).Debug("ping failed")
				}
			}
			s.connMu.Unlock()
		}
	}
}
