package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-deribit-bridge/config"
	"github.com/spooky-finn/go-deribit-bridge/domain"
	"github.com/spooky-finn/go-deribit-bridge/domain/interfaces"
)

type fakeSyncAPI struct {
	token        *domain.Token
	refreshed    *domain.Token
	authErr      error
	refreshErr   error
	authCalls    int
	refreshCalls int

	placed     []string
	placeErr   error
	bookResult *interfaces.BookPayload
}

func (f *fakeSyncAPI) Authenticate() (*domain.Token, error) {
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.token, nil
}

func (f *fakeSyncAPI) Refresh(string) (*domain.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeSyncAPI) PlaceOrder(direction string, req domain.OrderRequest) (*domain.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, direction)
	return &domain.Order{OrderID: "ord-1", Direction: direction, InstrumentName: req.Instrument}, nil
}

func (f *fakeSyncAPI) EditOrder(orderID string, amount, price float64) (*domain.Order, error) {
	return &domain.Order{OrderID: orderID, Amount: amount, Price: price}, nil
}

func (f *fakeSyncAPI) CancelOrder(orderID string) (*domain.Order, error) {
	return &domain.Order{OrderID: orderID, OrderState: "cancelled"}, nil
}

func (f *fakeSyncAPI) OrderBookSnapshot(string, int) (*interfaces.BookPayload, error) {
	if f.bookResult == nil {
		return nil, errors.New("no book configured")
	}
	return f.bookResult, nil
}

func (f *fakeSyncAPI) Positions(string, string) ([]domain.Position, error) {
	return []domain.Position{{InstrumentName: "BTC-PERPETUAL", Size: 10}}, nil
}

func (f *fakeSyncAPI) OpenOrders(string) ([]domain.Order, error) {
	return nil, nil
}

type fakeStream struct {
	connectErr   error
	authErr      error
	subscribeErr error

	connectCalls int
	closeCalls   int
	authTokens   []string
	subscribed   []string
	unsubscribed []string
}

func (f *fakeStream) Connect() error {
	f.connectCalls++
	return f.connectErr
}

func (f *fakeStream) Authenticate(accessToken string) error {
	f.authTokens = append(f.authTokens, accessToken)
	return f.authErr
}

func (f *fakeStream) Subscribe(channel string) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, channel)
	return nil
}

func (f *fakeStream) Unsubscribe(channel string) error {
	f.unsubscribed = append(f.unsubscribed, channel)
	return nil
}

func (f *fakeStream) State() domain.SessionState { return domain.StateReady }

func (f *fakeStream) Close() error {
	f.closeCalls++
	return nil
}

func validToken(validity time.Duration) *domain.Token {
	return &domain.Token{
		AccessToken:  "acc-1",
		RefreshToken: "ref-1",
		IssuedAt:     time.Now(),
		ExpiresIn:    validity,
		Kind:         domain.TokenKindAuthenticated,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		APIKey:     "key",
		APISecret:  "secret",
		Testnet:    true,
		Instrument: "BTC-PERPETUAL",
	}
}

func newTestSession(t *testing.T, api *fakeSyncAPI, stream *fakeStream) *TradingSessionUseCase {
	t.Helper()

	u := NewTradingSessionUseCase(testConfig(), zap.NewNop())
	u.syncAPI = api
	u.stream = stream
	require.NoError(t, u.Initialize())
	return u
}

func TestTradingSession_AuthenticateRunsFullSequence(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	stream := &fakeStream{}
	u := newTestSession(t, api, stream)

	require.NoError(t, u.Authenticate())

	assert.Equal(t, 1, api.authCalls)
	assert.Equal(t, 1, stream.connectCalls)
	// the stream receives the token obtained by the synchronous login
	assert.Equal(t, []string{"acc-1"}, stream.authTokens)

	access, ok := u.lifecycle.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "acc-1", access)
}

func TestTradingSession_SyncLoginFailureSkipsStream(t *testing.T) {
	api := &fakeSyncAPI{authErr: errors.New("invalid_credentials")}
	stream := &fakeStream{}
	u := newTestSession(t, api, stream)

	assert.Error(t, u.Authenticate())
	assert.Equal(t, 0, stream.connectCalls)

	_, err := u.Buy(domain.OrderRequest{Instrument: "BTC-PERPETUAL", Amount: 10})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTradingSession_StreamAuthFailureIsSessionFailure(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	stream := &fakeStream{authErr: errors.New("unauthorized")}
	u := newTestSession(t, api, stream)

	err := u.Authenticate()
	assert.Error(t, err)
	// a half-open session is torn down, not kept
	assert.Equal(t, 1, stream.closeCalls)

	_, err = u.Buy(domain.OrderRequest{Instrument: "BTC-PERPETUAL", Amount: 10})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTradingSession_OperationsBeforeInitialize(t *testing.T) {
	u := NewTradingSessionUseCase(testConfig(), zap.NewNop())

	assert.ErrorIs(t, u.Authenticate(), ErrNotInitialized)

	_, err := u.OrderBook("BTC-PERPETUAL", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestTradingSession_TradeRefreshesDueToken(t *testing.T) {
	api := &fakeSyncAPI{
		token:     validToken(time.Minute),
		refreshed: validToken(900 * time.Second),
	}
	api.refreshed.AccessToken = "acc-2"

	u := newTestSession(t, api, &fakeStream{})
	require.NoError(t, u.Authenticate())

	order, err := u.Buy(domain.OrderRequest{Instrument: "BTC-PERPETUAL", Amount: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, api.refreshCalls)
	assert.Equal(t, []string{domain.DirectionBuy}, api.placed)
	assert.Equal(t, "ord-1", order.OrderID)

	access, _ := u.lifecycle.AccessToken()
	assert.Equal(t, "acc-2", access)
}

func TestTradingSession_FreshTokenSkipsRefresh(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	u := newTestSession(t, api, &fakeStream{})
	require.NoError(t, u.Authenticate())

	_, err := u.Sell(domain.OrderRequest{Instrument: "BTC-PERPETUAL", Amount: 10})
	require.NoError(t, err)

	assert.Equal(t, 0, api.refreshCalls)
	assert.Equal(t, []string{domain.DirectionSell}, api.placed)
}

func TestTradingSession_RefreshFailureAbortsTrade(t *testing.T) {
	api := &fakeSyncAPI{
		token:      validToken(time.Minute),
		refreshErr: errors.New("refresh rejected"),
	}
	u := newTestSession(t, api, &fakeStream{})
	require.NoError(t, u.Authenticate())

	_, err := u.Buy(domain.OrderRequest{Instrument: "BTC-PERPETUAL", Amount: 10})
	assert.Error(t, err)
	// nothing was sent to the exchange
	assert.Empty(t, api.placed)

	// the prior token is still held
	access, ok := u.lifecycle.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "acc-1", access)
}

func TestTradingSession_OrderBookFetchReplacesLocalBook(t *testing.T) {
	api := &fakeSyncAPI{
		token: validToken(900 * time.Second),
		bookResult: &interfaces.BookPayload{
			Instrument: "BTC-PERPETUAL",
			Timestamp:  1000,
			Bids: []domain.BookLevel{
				{Action: domain.LevelActionNew, Price: 100, Amount: 5},
			},
			Asks: []domain.BookLevel{
				{Action: domain.LevelActionNew, Price: 101, Amount: 2},
			},
		},
	}
	u := newTestSession(t, api, &fakeStream{})

	snap, err := u.OrderBook("BTC-PERPETUAL", 0)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, domain.PriceLevel{Price: 100, Amount: 5}, snap.Bids[0])

	// the fetch seeded the locally held book
	local, err := u.Book("BTC-PERPETUAL", 0)
	require.NoError(t, err)
	assert.Equal(t, snap.Bids, local.Bids)
}

func TestTradingSession_BookWithoutDataFails(t *testing.T) {
	u := newTestSession(t, &fakeSyncAPI{}, &fakeStream{})

	_, err := u.Book("BTC-PERPETUAL", 0)
	assert.ErrorIs(t, err, domain.ErrOrderBookNotFound)
}

func TestTradingSession_SubscribeOrderBook(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	stream := &fakeStream{}
	u := newTestSession(t, api, stream)
	require.NoError(t, u.Authenticate())

	require.NoError(t, u.SubscribeOrderBook("BTC-PERPETUAL", func(*domain.OrderBook) {}))

	assert.Equal(t, []string{"book.BTC-PERPETUAL.100ms"}, stream.subscribed)
	assert.Equal(t, 1, u.registry.Len())

	require.NoError(t, u.UnsubscribeOrderBook("BTC-PERPETUAL"))
	assert.Equal(t, []string{"book.BTC-PERPETUAL.100ms"}, stream.unsubscribed)
	assert.Equal(t, 0, u.registry.Len())
}

func TestTradingSession_SubscribeRollsBackOnStreamError(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	stream := &fakeStream{subscribeErr: errors.New("not ready")}
	u := newTestSession(t, api, stream)
	require.NoError(t, u.Authenticate())

	err := u.SubscribeOrderBook("BTC-PERPETUAL", func(*domain.OrderBook) {})
	assert.Error(t, err)
	assert.Equal(t, 0, u.registry.Len())
}

func TestTradingSession_SubscribeRequiresAuthentication(t *testing.T) {
	u := newTestSession(t, &fakeSyncAPI{}, &fakeStream{})

	err := u.SubscribeOrderBook("BTC-PERPETUAL", func(*domain.OrderBook) {})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTradingSession_CloseTearsDownSession(t *testing.T) {
	api := &fakeSyncAPI{token: validToken(900 * time.Second)}
	stream := &fakeStream{}
	u := newTestSession(t, api, stream)
	require.NoError(t, u.Authenticate())
	require.NoError(t, u.SubscribeOrderBook("BTC-PERPETUAL", func(*domain.OrderBook) {}))

	require.NoError(t, u.Close())

	assert.Equal(t, 1, stream.closeCalls)
	assert.Equal(t, 0, u.registry.Len())

	_, err := u.Positions("BTC", "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
