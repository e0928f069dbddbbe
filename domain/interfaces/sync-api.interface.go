package interfaces

import (
	"github.com/spooky-finn/go-deribit-bridge/domain"
)

// BookPayload is the decoded result of a full order book fetch.
type BookPayload struct {
	Instrument string
	Timestamp  int64
	Bids       []domain.BookLevel
	Asks       []domain.BookLevel
}

// SyncAPI is the synchronous request/response transport of the exchange.
type SyncAPI interface {
	// Authenticate performs the credential login and returns a fresh token.
	Authenticate() (*domain.Token, error)
	// Refresh exchanges a refresh token for a fresh token pair. On failure
	// the caller keeps its prior token.
	Refresh(refreshToken string) (*domain.Token, error)

	PlaceOrder(direction string, req domain.OrderRequest) (*domain.Order, error)
	EditOrder(orderID string, amount, price float64) (*domain.Order, error)
	CancelOrder(orderID string) (*domain.Order, error)

	OrderBookSnapshot(instrument string, depth int) (*BookPayload, error)
	Positions(currency, kind string) ([]domain.Position, error)
	OpenOrders(instrument string) ([]domain.Order, error)
}
