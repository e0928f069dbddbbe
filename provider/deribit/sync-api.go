package deribit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-finn/go-deribit-bridge/domain"
	"github.com/spooky-finn/go-deribit-bridge/domain/interfaces"
)

const (
	grantClientCredentials = "client_credentials"
	grantRefreshToken      = "refresh_token"

	httpRequestTimeout = 10 * time.Second
)

var ErrMissingAccessToken = errors.New("no access token held for a private call")

// TokenSource supplies the current access token for private calls.
type TokenSource func() (string, bool)

// SyncAPI is the synchronous JSON-RPC-over-HTTP transport. It is owned by the
// session that created it; nothing here is process-global.
type SyncAPI struct {
	endpoint  string
	apiKey    string
	apiSecret string

	httpc  *http.Client
	tokens TokenSource
	logger *zap.Logger
}

func NewSyncAPI(endpoint, apiKey, apiSecret string, tokens TokenSource, logger *zap.Logger) *SyncAPI {
	return &SyncAPI{
		endpoint:  endpoint,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpc:     &http.Client{Timeout: httpRequestTimeout},
		tokens:    tokens,
		logger:    logger.Named("sync-api"),
	}
}

// Call sends one JSON-RPC request and returns the raw result. A remote error
// envelope comes back as *RPCError, transport failures wrap the cause.
func (a *SyncAPI) Call(method string, params any, private bool) (json.RawMessage, error) {
	reqEnvelope := newRPCRequest(method, params)

	body, err := json.Marshal(reqEnvelope)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if private {
		token, ok := a.tokens()
		if !ok {
			return nil, ErrMissingAccessToken
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	var msg rpcMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%s: decode response (status %d): %w", method, resp.StatusCode, err)
	}

	if msg.Error != nil {
		return nil, msg.Error
	}

	if msg.ID == nil || *msg.ID != reqEnvelope.ID {
		a.logger.Warn("response id does not match request",
			zap.Int64("request_id", reqEnvelope.ID), zap.String("method", method))
	}

	return msg.Result, nil
}

type authParams struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type authResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Authenticate performs the credential login.
func (a *SyncAPI) Authenticate() (*domain.Token, error) {
	return a.auth(authParams{
		GrantType:    grantClientCredentials,
		ClientID:     a.apiKey,
		ClientSecret: a.apiSecret,
	})
}

// Refresh exchanges the refresh token for a fresh pair. The caller records
// the result; on error its prior token stays in place.
func (a *SyncAPI) Refresh(refreshToken string) (*domain.Token, error) {
	return a.auth(authParams{
		GrantType:    grantRefreshToken,
		RefreshToken: refreshToken,
	})
}

func (a *SyncAPI) auth(params authParams) (*domain.Token, error) {
	result, err := a.Call("public/auth", params, false)
	if err != nil {
		return nil, err
	}

	var res authResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode auth result: %w", err)
	}

	return &domain.Token{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		IssuedAt:     time.Now(),
		ExpiresIn:    time.Duration(res.ExpiresIn) * time.Second,
		Kind:         domain.TokenKindAuthenticated,
	}, nil
}

type orderParams struct {
	InstrumentName string  `json:"instrument_name,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Type           string  `json:"type,omitempty"`
	Price          float64 `json:"price,omitempty"`
	Label          string  `json:"label,omitempty"`
	OrderID        string  `json:"order_id,omitempty"`
}

// orderResult wraps the order/trades pair returned by buy, sell and edit.
type orderResult struct {
	Order domain.Order `json:"order"`
}

// PlaceOrder submits private/buy or private/sell and returns the accepted
// order. Both directions use the same transport and return shape.
func (a *SyncAPI) PlaceOrder(direction string, req domain.OrderRequest) (*domain.Order, error) {
	if direction != domain.DirectionBuy && direction != domain.DirectionSell {
		return nil, fmt.Errorf("unknown order direction %q", direction)
	}

	params := orderParams{
		InstrumentName: req.Instrument,
		Amount:         req.Amount,
		Type:           req.Type,
		Label:          req.Label,
	}
	if req.Type == domain.OrderTypeLimit {
		params.Price = req.Price
	}

	result, err := a.Call("private/"+direction, params, true)
	if err != nil {
		return nil, err
	}

	var res orderResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", direction, err)
	}

	a.logger.Info("order placed",
		zap.String("order_id", res.Order.OrderID),
		zap.String("instrument", res.Order.InstrumentName),
		zap.String("direction", direction))

	return &res.Order, nil
}

func (a *SyncAPI) EditOrder(orderID string, amount, price float64) (*domain.Order, error) {
	result, err := a.Call("private/edit", orderParams{
		OrderID: orderID,
		Amount:  amount,
		Price:   price,
	}, true)
	if err != nil {
		return nil, err
	}

	var res orderResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode edit result: %w", err)
	}
	return &res.Order, nil
}

func (a *SyncAPI) CancelOrder(orderID string) (*domain.Order, error) {
	result, err := a.Call("private/cancel", orderParams{OrderID: orderID}, true)
	if err != nil {
		return nil, err
	}

	var order domain.Order
	if err := json.Unmarshal(result, &order); err != nil {
		return nil, fmt.Errorf("decode cancel result: %w", err)
	}
	return &order, nil
}

type bookQueryParams struct {
	InstrumentName string `json:"instrument_name"`
	Depth          int    `json:"depth,omitempty"`
}

// OrderBookSnapshot fetches the full book of an instrument.
func (a *SyncAPI) OrderBookSnapshot(instrument string, depth int) (*interfaces.BookPayload, error) {
	result, err := a.Call("public/get_order_book", bookQueryParams{
		InstrumentName: instrument,
		Depth:          depth,
	}, false)
	if err != nil {
		return nil, err
	}

	var data bookData
	if err := json.Unmarshal(result, &data); err != nil {
		return nil, fmt.Errorf("decode order book: %w", err)
	}

	payload := &interfaces.BookPayload{
		Instrument: data.InstrumentName,
		Timestamp:  data.Timestamp,
		Bids:       toBookLevels(data.Bids),
		Asks:       toBookLevels(data.Asks),
	}
	if payload.Instrument == "" {
		payload.Instrument = instrument
	}
	return payload, nil
}

type positionsParams struct {
	Currency string `json:"currency"`
	Kind     string `json:"kind,omitempty"`
}

func (a *SyncAPI) Positions(currency, kind string) ([]domain.Position, error) {
	result, err := a.Call("private/get_positions", positionsParams{
		Currency: currency,
		Kind:     kind,
	}, true)
	if err != nil {
		return nil, err
	}

	var positions []domain.Position
	if err := json.Unmarshal(result, &positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

type openOrdersParams struct {
	InstrumentName string `json:"instrument_name,omitempty"`
}

func (a *SyncAPI) OpenOrders(instrument string) ([]domain.Order, error) {
	result, err := a.Call("private/get_open_orders_by_currency", openOrdersParams{
		InstrumentName: instrument,
	}, true)
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	if err := json.Unmarshal(result, &orders); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	return orders, nil
}
