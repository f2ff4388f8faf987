package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
	"github.com/Samsonboadi/CryptoPro/internal/infra"
)

// wsMessage is the venue's envelope. Candles and fills share one stream.
type wsMessage struct {
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Ts         int64  `json:"ts"`

	// candle fields
	Open   string `json:"open,omitempty"`
	High   string `json:"high,omitempty"`
	Low    string `json:"low,omitempty"`
	Close  string `json:"close,omitempty"`
	Volume string `json:"volume,omitempty"`

	// fill fields
	OrderID string `json:"order_id,omitempty"`
	Price   string `json:"price,omitempty"`
	Size    string `json:"size,omitempty"`
}

type wsRequest struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`

	OrderID    string `json:"order_id,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	Side       string `json:"side,omitempty"`
	OrderType  string `json:"order_type,omitempty"`
	Price      string `json:"price,omitempty"`
	Size       string `json:"size,omitempty"`
}

// LiveClient streams candles and fills over a single websocket and submits
// orders on the same connection. It reconnects with exponential backoff and
// tolerates candle gaps after reconnects, logging them for the journal.
type LiveClient struct {
	url    string
	apiKey string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	instruments []string
	out         chan domain.Candle
	fills       chan domain.Fill
	lastTS      map[string]time.Time

	ReadTimeout    time.Duration
	PingInterval   time.Duration
	CandleInterval time.Duration
}

// NewLiveClient creates a live venue client. Start the feed with
// StreamMarketData.
func NewLiveClient(url, apiKey string, logger *slog.Logger) *LiveClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveClient{
		url:            url,
		apiKey:         apiKey,
		logger:         logger,
		fills:          make(chan domain.Fill, 256),
		lastTS:         make(map[string]time.Time),
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		CandleInterval: time.Minute,
	}
}

// StreamMarketData starts the connection loop and returns the candle
// channel. Call once.
func (c *LiveClient) StreamMarketData(ctx context.Context, instruments []string) (<-chan domain.Candle, error) {
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments to stream")
	}
	c.instruments = instruments
	c.out = make(chan domain.Candle, 64)

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.runLoop(ctx)
	return c.out, nil
}

// Fills delivers execution reports from the venue.
func (c *LiveClient) Fills() <-chan domain.Fill {
	return c.fills
}

func (c *LiveClient) runLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.out)
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Warn("WS_CONNECT_FAILED",
				slog.String("url", c.url),
				slog.Any("err", err),
				slog.Int("retry", retry))
			delay := infra.CalculateBackoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		c.process(ctx)
	}
}

func (c *LiveClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	sub := wsRequest{Op: "subscribe", Instruments: c.instruments, APIKey: c.apiKey}
	if err := c.write(sub); err != nil {
		c.closeConn()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	if c.PingInterval > 0 {
		go c.pingLoop(ctx, conn)
	}

	c.logger.Info("WS_CONNECTED", slog.String("url", c.url))
	return nil
}

func (c *LiveClient) process(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("WS_READ_ERROR", slog.Any("err", err))
			c.closeConn()
			return
		}
		c.onMessage(ctx, raw)
	}
}

func (c *LiveClient) onMessage(ctx context.Context, raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("WS_BAD_MESSAGE", slog.Any("err", err))
		return
	}

	switch msg.Type {
	case "candle":
		candle, err := msg.toCandle()
		if err != nil {
			c.logger.Warn("WS_BAD_CANDLE", slog.Any("err", err))
			return
		}
		c.noteGap(candle)
		select {
		case c.out <- candle:
		case <-ctx.Done():
		}
	case "fill":
		fill, err := msg.toFill()
		if err != nil {
			c.logger.Warn("WS_BAD_FILL", slog.Any("err", err))
			return
		}
		select {
		case c.fills <- fill:
		case <-ctx.Done():
		}
	}
}

// noteGap logs a tolerated candle gap: after a reconnect the stream resumes
// from live data and the indicator cache warms back up on its own.
func (c *LiveClient) noteGap(candle domain.Candle) {
	last, ok := c.lastTS[candle.Instrument]
	c.lastTS[candle.Instrument] = candle.Timestamp
	if !ok {
		return
	}
	if gap := candle.Timestamp.Sub(last); gap > 2*c.CandleInterval {
		c.logger.Warn("CANDLE_GAP_TOLERATED",
			slog.String("instrument", candle.Instrument),
			slog.Duration("gap", gap))
	}
}

func (m wsMessage) toCandle() (domain.Candle, error) {
	open, err := decimal.NewFromString(m.Open)
	if err != nil {
		return domain.Candle{}, err
	}
	high, err := decimal.NewFromString(m.High)
	if err != nil {
		return domain.Candle{}, err
	}
	low, err := decimal.NewFromString(m.Low)
	if err != nil {
		return domain.Candle{}, err
	}
	cl, err := decimal.NewFromString(m.Close)
	if err != nil {
		return domain.Candle{}, err
	}
	vol, err := decimal.NewFromString(m.Volume)
	if err != nil {
		return domain.Candle{}, err
	}
	return domain.Candle{
		Instrument: m.Instrument,
		Timestamp:  time.Unix(m.Ts, 0).UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      cl,
		Volume:     vol,
	}, nil
}

func (m wsMessage) toFill() (domain.Fill, error) {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return domain.Fill{}, err
	}
	size, err := decimal.NewFromString(m.Size)
	if err != nil {
		return domain.Fill{}, err
	}
	return domain.Fill{
		OrderID:   m.OrderID,
		Price:     price,
		Size:      size,
		Timestamp: time.Unix(m.Ts, 0).UTC(),
	}, nil
}

// pingLoop keeps one connection alive. It is bound to the connection it was
// started for and exits as soon as the client has moved on to a newer one,
// so reconnects never stack ping loops.
func (c *LiveClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				return
			}
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("WS_PING_ERROR", slog.Any("err", err))
				c.closeConn()
				return
			}
		}
	}
}

// SubmitOrder sends the order over the websocket. A disconnected stream is
// a transient error; the dispatcher retries with backoff.
func (c *LiveClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	msg := wsRequest{
		Op:         "order",
		OrderID:    req.OrderID,
		Instrument: req.Instrument,
		Side:       string(req.Side),
		OrderType:  string(req.Type),
		Price:      req.Price.String(),
		Size:       req.Size.String(),
	}
	if err := c.write(msg); err != nil {
		return OrderAck{}, fmt.Errorf("submit %s: %w", req.OrderID, domain.ErrNetwork)
	}
	return OrderAck{OrderID: req.OrderID, Status: domain.OrderPending}, nil
}

// CancelOrder sends a cancel request for an open order.
func (c *LiveClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.write(wsRequest{Op: "cancel", OrderID: orderID}); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, domain.ErrNetwork)
	}
	return nil
}

// AccountBalance is served from the venue's REST surface; not available on
// the stream connection. Callers in live mode seed the ledger from config.
func (c *LiveClient) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("balance query unsupported on stream connection: %w", domain.ErrRejected)
}

func (c *LiveClient) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("ws not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *LiveClient) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close stops the worker and closes the fill stream.
func (c *LiveClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConn()
	c.wg.Wait()
	close(c.fills)
	return nil
}
