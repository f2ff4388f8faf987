// Package exchange abstracts the trading venue: market data in, orders out.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Samsonboadi/CryptoPro/internal/domain"
)

// OrderRequest is the venue-facing order payload.
type OrderRequest struct {
	OrderID    string
	Instrument string
	Side       domain.Side
	Type       domain.OrderType
	Price      decimal.Decimal
	Size       decimal.Decimal
}

// OrderAck is the venue's acceptance of an order. Fills arrive separately
// on the Fills stream.
type OrderAck struct {
	OrderID    string
	ExchangeID string
	Status     domain.OrderStatus
}

// Client is the venue connection. Implementations must be safe for
// concurrent use; SubmitOrder errors are classified with the domain
// sentinels so the dispatcher can tell transient from terminal.
type Client interface {
	// StreamMarketData starts the candle feed for the given instruments.
	// The channel closes when ctx is canceled or the stream ends.
	StreamMarketData(ctx context.Context, instruments []string) (<-chan domain.Candle, error)

	// Fills delivers execution reports, at-least-once.
	Fills() <-chan domain.Fill

	// SubmitOrder sends an order to the venue.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)

	// CancelOrder cancels an open order by id.
	CancelOrder(ctx context.Context, orderID string) error

	// AccountBalance returns the quote-currency balance at the venue.
	AccountBalance(ctx context.Context) (decimal.Decimal, error)

	// Close releases the connection.
	Close() error
}
