package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// SimClient is the paper-trading venue: scripted market data, immediate
// fills against a virtual balance. It also backs the backtester.
type SimClient struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	prices   map[string]decimal.Decimal
	script   []domain.Candle
	failures []error
	orders   map[string]OrderRequest
	fills    chan domain.Fill
	logger   *slog.Logger

	// Delay between replayed candles. Zero replays as fast as the
	// consumer drains, which is what tests and backtests want.
	ReplayInterval time.Duration
}

// NewSimClient creates a simulated venue with a starting balance.
func NewSimClient(balance decimal.Decimal, logger *slog.Logger) *SimClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimClient{
		balance: balance,
		prices:  make(map[string]decimal.Decimal),
		orders:  make(map[string]OrderRequest),
		fills:   make(chan domain.Fill, 256),
		logger:  logger,
	}
}

// ScriptCandles appends candles to the replay script. Must be called
// before StreamMarketData.
func (s *SimClient) ScriptCandles(candles ...domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, candles...)
}

// FailNext queues errors to be returned by upcoming SubmitOrder calls, in
// order. Used to exercise the dispatcher's retry path.
func (s *SimClient) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// StreamMarketData replays the scripted candles. Instruments not in the
// requested set are skipped.
func (s *SimClient) StreamMarketData(ctx context.Context, instruments []string) (<-chan domain.Candle, error) {
	want := make(map[string]bool, len(instruments))
	for _, ins := range instruments {
		want[ins] = true
	}

	s.mu.Lock()
	script := make([]domain.Candle, len(s.script))
	copy(script, s.script)
	s.mu.Unlock()

	out := make(chan domain.Candle)
	go func() {
		defer close(out)
		for _, c := range script {
			if !want[c.Instrument] {
				continue
			}
			s.mu.Lock()
			s.prices[c.Instrument] = c.Close
			s.mu.Unlock()

			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if s.ReplayInterval > 0 {
				select {
				case <-time.After(s.ReplayInterval):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Fills delivers the simulated execution reports.
func (s *SimClient) Fills() <-chan domain.Fill {
	return s.fills
}

// SubmitOrder fills market orders immediately at the last seen price and
// limit orders at their limit price. Queued failures are consumed first.
func (s *SimClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return OrderAck{}, err
	}

	execPrice := req.Price
	if req.Type == domain.OrderMarket {
		price, ok := s.prices[req.Instrument]
		if !ok {
			return OrderAck{}, fmt.Errorf("no price for %s: %w", req.Instrument, domain.ErrRejected)
		}
		execPrice = price
	}

	if req.Side == domain.SideBuy {
		cost := execPrice.Mul(req.Size)
		if cost.GreaterThan(s.balance) {
			return OrderAck{}, fmt.Errorf("insufficient balance for %s: %w", req.Instrument, domain.ErrRejected)
		}
		s.balance = s.balance.Sub(cost)
	} else {
		s.balance = s.balance.Add(execPrice.Mul(req.Size))
	}

	s.orders[req.OrderID] = req
	fill := domain.Fill{
		OrderID:   req.OrderID,
		Price:     execPrice,
		Size:      req.Size,
		Timestamp: time.Now().UTC(),
	}
	select {
	case s.fills <- fill:
	default:
		s.logger.Warn("SIM_FILL_DROPPED", slog.String("order_id", req.OrderID))
	}

	s.logger.Info("SIM_ORDER_FILLED",
		slog.String("order_id", req.OrderID),
		slog.String("instrument", req.Instrument),
		slog.String("side", string(req.Side)),
		slog.String("price", execPrice.String()),
		slog.String("size", req.Size.String()))

	return OrderAck{OrderID: req.OrderID, ExchangeID: "sim-" + req.OrderID, Status: domain.OrderFilled}, nil
}

// CancelOrder is a no-op success for tracked orders; sim fills are
// immediate so there is nothing open to cancel.
func (s *SimClient) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return fmt.Errorf("unknown order %s: %w", orderID, domain.ErrRejected)
	}
	return nil
}

// AccountBalance returns the virtual quote balance.
func (s *SimClient) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// MarkPrice sets the last price for an instrument directly, for tests that
// submit orders without streaming candles.
func (s *SimClient) MarkPrice(instrument string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[instrument] = price
}

// Close shuts the fill stream down.
func (s *SimClient) Close() error {
	close(s.fills)
	return nil
}
