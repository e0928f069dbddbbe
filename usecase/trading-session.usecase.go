package usecase

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spooky-finn/go-deribit-bridge/config"
	"github.com/spooky-finn/go-deribit-bridge/domain"
	"github.com/spooky-finn/go-deribit-bridge/domain/interfaces"
	promclient "github.com/spooky-finn/go-deribit-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-deribit-bridge/provider/deribit"
)

var (
	ErrNotInitialized   = errors.New("trading session is not initialized")
	ErrNotAuthenticated = errors.New("trading session is not authenticated")
)

// TradingSessionUseCase composes the token lifecycle, the synchronous
// transport and the streaming session into the authenticate/trade/subscribe
// surface used by callers.
type TradingSessionUseCase struct {
	conf   *config.Config
	logger *zap.Logger

	lifecycle *domain.TokenLifecycle
	registry  *domain.SubscriptionRegistry
	books     *domain.OrderBookStorage

	// set by Initialize; tests may pre-set fakes before calling it
	syncAPI interfaces.SyncAPI
	stream  interfaces.StreamSession

	mu            sync.Mutex
	initialized   bool
	authenticated bool
}

func NewTradingSessionUseCase(conf *config.Config, logger *zap.Logger) *TradingSessionUseCase {
	return &TradingSessionUseCase{
		conf:   conf,
		logger: logger.Named("session"),
	}
}

// Initialize wires the transports. It performs no network I/O: the session
// owns its transports from here until Close.
func (u *TradingSessionUseCase) Initialize() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.initialized {
		return nil
	}

	u.lifecycle = domain.NewTokenLifecycle()
	u.registry = domain.NewSubscriptionRegistry()
	u.books = domain.NewOrderBookStorage()

	if u.syncAPI == nil {
		u.syncAPI = deribit.NewSyncAPI(
			u.conf.RestURL(),
			u.conf.APIKey,
			u.conf.APISecret,
			u.lifecycle.AccessToken,
			u.logger,
		)
	}
	if u.stream == nil {
		u.stream = deribit.NewStreamClient(
			u.conf.WsURL(),
			deribit.NewWSDialer(),
			u.books,
			u.registry,
			u.logger,
		)
	}

	u.initialized = true
	return nil
}

// Authenticate runs the full login sequence: synchronous login, token
// recording, stream connect, stream authenticate. Any failing step aborts
// the whole sequence and leaves the session unauthenticated; a synchronous
// login that succeeded but a stream authenticate that failed is a failure.
func (u *TradingSessionUseCase) Authenticate() error {
	if err := u.ensureInitialized(); err != nil {
		return err
	}

	token, err := u.syncAPI.Authenticate()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := u.lifecycle.Record(token); err != nil {
		return err
	}
	u.logger.Info("authenticated against the synchronous transport")

	if err := u.stream.Connect(); err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	access, _ := u.lifecycle.AccessToken()
	if err := u.stream.Authenticate(access); err != nil {
		u.stream.Close()
		return fmt.Errorf("stream authenticate: %w", err)
	}

	u.mu.Lock()
	u.authenticated = true
	u.mu.Unlock()

	u.logger.Info("trading session ready")
	return nil
}

// Buy places a buy order and returns the accepted order. Both directions use
// the same transport and return shape.
func (u *TradingSessionUseCase) Buy(req domain.OrderRequest) (*domain.Order, error) {
	return u.placeOrder(domain.DirectionBuy, req)
}

func (u *TradingSessionUseCase) Sell(req domain.OrderRequest) (*domain.Order, error) {
	return u.placeOrder(domain.DirectionSell, req)
}

func (u *TradingSessionUseCase) placeOrder(direction string, req domain.OrderRequest) (*domain.Order, error) {
	if err := u.ensureFreshToken(); err != nil {
		return nil, err
	}
	return u.syncAPI.PlaceOrder(direction, req)
}

func (u *TradingSessionUseCase) EditOrder(orderID string, amount, price float64) (*domain.Order, error) {
	if err := u.ensureFreshToken(); err != nil {
		return nil, err
	}
	return u.syncAPI.EditOrder(orderID, amount, price)
}

func (u *TradingSessionUseCase) CancelOrder(orderID string) (*domain.Order, error) {
	if err := u.ensureFreshToken(); err != nil {
		return nil, err
	}
	return u.syncAPI.CancelOrder(orderID)
}

func (u *TradingSessionUseCase) Positions(currency, kind string) ([]domain.Position, error) {
	if err := u.ensureFreshToken(); err != nil {
		return nil, err
	}
	return u.syncAPI.Positions(currency, kind)
}

func (u *TradingSessionUseCase) OpenOrders(instrument string) ([]domain.Order, error) {
	if err := u.ensureFreshToken(); err != nil {
		return nil, err
	}
	return u.syncAPI.OpenOrders(instrument)
}

// OrderBook fetches the full book over the synchronous transport, replaces
// the locally held book wholesale and returns a copy.
func (u *TradingSessionUseCase) OrderBook(instrument string, depth int) (*domain.BookSnapshot, error) {
	if err := u.ensureInitialized(); err != nil {
		return nil, err
	}

	payload, err := u.syncAPI.OrderBookSnapshot(instrument, depth)
	if err != nil {
		return nil, err
	}

	ob := u.books.ApplySnapshot(payload.Instrument, payload.Timestamp, payload.Bids, payload.Asks)
	return ob.TakeSnapshot(depth), nil
}

// Book returns the current locally reconstructed book of an instrument.
func (u *TradingSessionUseCase) Book(instrument string, depth int) (*domain.BookSnapshot, error) {
	if err := u.ensureInitialized(); err != nil {
		return nil, err
	}

	ob, err := u.books.Get(instrument)
	if err != nil {
		return nil, err
	}
	return ob.TakeSnapshot(depth), nil
}

// SubscribeOrderBook registers the callback and asks the stream for book
// updates of the instrument. The callback runs inline in the stream dispatch
// goroutine and must not block.
func (u *TradingSessionUseCase) SubscribeOrderBook(instrument string, cb domain.BookCallback) error {
	if err := u.ensureAuthenticated(); err != nil {
		return err
	}

	u.registry.Subscribe(instrument, cb)
	promclient.ActiveSubscriptions.Set(float64(u.registry.Len()))

	if err := u.stream.Subscribe(bookChannel(instrument)); err != nil {
		u.registry.Unsubscribe(instrument)
		promclient.ActiveSubscriptions.Set(float64(u.registry.Len()))
		return err
	}
	return nil
}

func (u *TradingSessionUseCase) UnsubscribeOrderBook(instrument string) error {
	if err := u.ensureAuthenticated(); err != nil {
		return err
	}

	u.registry.Unsubscribe(instrument)
	promclient.ActiveSubscriptions.Set(float64(u.registry.Len()))

	return u.stream.Unsubscribe(bookChannel(instrument))
}

// Close tears the streaming session down, joining its dispatch goroutine, and
// drops all subscriptions. The session cannot be reused afterwards.
func (u *TradingSessionUseCase) Close() error {
	u.mu.Lock()
	u.authenticated = false
	u.mu.Unlock()

	if u.stream != nil {
		u.stream.Close()
	}
	if u.registry != nil {
		u.registry.Clear()
		promclient.ActiveSubscriptions.Set(0)
	}
	return nil
}

// ensureFreshToken triggers a synchronous refresh when the held token is
// inside the safety margin. A refresh failure aborts the dependent operation;
// the prior token is left intact and no automatic retry happens.
func (u *TradingSessionUseCase) ensureFreshToken() error {
	if err := u.ensureAuthenticated(); err != nil {
		return err
	}

	if !u.lifecycle.IsDue(domain.RefreshSafetyMargin) {
		return nil
	}

	refresh, ok := u.lifecycle.RefreshToken()
	if !ok {
		return ErrNotAuthenticated
	}

	token, err := u.syncAPI.Refresh(refresh)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}

	u.logger.Info("access token refreshed")
	return u.lifecycle.Record(token)
}

func (u *TradingSessionUseCase) ensureInitialized() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (u *TradingSessionUseCase) ensureAuthenticated() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.initialized {
		return ErrNotInitialized
	}
	if !u.authenticated {
		return ErrNotAuthenticated
	}
	return nil
}

func bookChannel(instrument string) string {
	return "book." + instrument + ".100ms"
}
