package deribit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-deribit-bridge/domain"
	"github.com/spooky-finn/go-deribit-bridge/domain/interfaces"
	promclient "github.com/spooky-finn/go-deribit-bridge/infrastructure/prometheus"
)

// Bounded wait windows for connect and stream authentication.
var (
	connectTimeout = 5 * time.Second
	authTimeout    = 5 * time.Second
)

const (
	bookChannelPrefix = "book."

	// Uncorrelated frames (subscribe acks, heartbeats) kept for inspection.
	frameSinkCapacity = 64
)

var (
	ErrConnectTimeout = errors.New("stream connection timed out")
	ErrAuthTimeout    = errors.New("stream authentication timed out")
	ErrSessionClosed  = errors.New("stream session is closed")
)

// pendingRequest correlates an in-flight request with its response frame.
// done receives the matching frame once, or is closed without a frame when
// the transport fails first.
type pendingRequest struct {
	id   int64
	done chan *rpcMessage
}

// StreamClient drives one persistent connection through
// Disconnected -> Connecting -> Connected -> Authenticating -> Ready.
// Closed is terminal: reconnecting means constructing a new client.
//
// A single dispatch goroutine decodes and routes inbound frames, so exactly
// one frame is being processed at a time.
type StreamClient struct {
	url      string
	dialer   interfaces.StreamDialer
	books    *domain.OrderBookStorage
	registry *domain.SubscriptionRegistry
	logger   *zap.Logger

	mu          sync.Mutex
	state       domain.SessionState
	conn        interfaces.StreamConn
	pendingAuth *pendingRequest
	sink        deque.Deque[*rpcMessage]
	loopDone    chan struct{}
}

func NewStreamClient(
	url string,
	dialer interfaces.StreamDialer,
	books *domain.OrderBookStorage,
	registry *domain.SubscriptionRegistry,
	logger *zap.Logger,
) *StreamClient {
	return &StreamClient{
		url:      url,
		dialer:   dialer,
		books:    books,
		registry: registry,
		logger:   logger.Named("stream"),
		state:    domain.StateDisconnected,
	}
}

func (c *StreamClient) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the exchange and starts the dispatch goroutine. It blocks
// the caller for at most the bounded wait window; a dial finishing after the
// window is observed only as a late, discarded open.
func (c *StreamClient) Connect() error {
	c.mu.Lock()
	if c.state != domain.StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot connect from state %s", state)
	}
	c.state = domain.StateConnecting
	c.mu.Unlock()

	type dialResult struct {
		conn interfaces.StreamConn
		err  error
	}
	resCh := make(chan dialResult, 1)

	go func() {
		conn, err := c.dialer.Dial(c.url)
		resCh <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			c.transitionClosed()
			return fmt.Errorf("stream connect: %w", res.err)
		}

		c.mu.Lock()
		if c.state != domain.StateConnecting {
			c.mu.Unlock()
			res.conn.Close()
			return ErrSessionClosed
		}
		c.conn = res.conn
		c.state = domain.StateConnected
		c.loopDone = make(chan struct{})
		c.mu.Unlock()

		c.logger.Info("stream connection established", zap.String("url", c.url))
		go c.readLoop(res.conn)
		return nil

	case <-time.After(connectTimeout):
		c.transitionClosed()
		go func() {
			if res := <-resCh; res.err == nil {
				res.conn.Close()
			}
		}()
		return ErrConnectTimeout
	}
}

type streamAuthParams struct {
	GrantType   string `json:"grant_type"`
	AccessToken string `json:"access_token"`
}

// Authenticate sends the credentialed request and waits for the response
// frame carrying its correlation id. An error envelope or a timeout closes
// the session.
func (c *StreamClient) Authenticate(accessToken string) error {
	c.mu.Lock()
	if c.state != domain.StateConnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot authenticate from state %s", state)
	}

	req := newRPCRequest("public/auth", streamAuthParams{
		GrantType:   grantClientCredentials,
		AccessToken: accessToken,
	})
	pending := &pendingRequest{id: req.ID, done: make(chan *rpcMessage, 1)}
	c.pendingAuth = pending
	c.state = domain.StateAuthenticating
	conn := c.conn
	c.mu.Unlock()

	if err := c.write(conn, req); err != nil {
		c.transitionClosed()
		return fmt.Errorf("send auth request: %w", err)
	}

	select {
	case msg, ok := <-pending.done:
		if !ok {
			// transport failed while the request was in flight
			return ErrSessionClosed
		}
		if msg.Error != nil {
			c.transitionClosed()
			return msg.Error
		}

		c.mu.Lock()
		if c.state != domain.StateAuthenticating {
			c.mu.Unlock()
			return ErrSessionClosed
		}
		c.state = domain.StateReady
		c.mu.Unlock()

		c.logger.Info("stream authenticated", zap.Int64("request_id", req.ID))
		return nil

	case <-time.After(authTimeout):
		c.mu.Lock()
		c.pendingAuth = nil
		c.mu.Unlock()
		c.transitionClosed()
		return ErrAuthTimeout
	}
}

type channelsParams struct {
	Channels []string `json:"channels"`
}

// Subscribe is fire-and-forget: the request is sent and the ack, when it
// arrives, lands in the frame sink as an informational event only.
func (c *StreamClient) Subscribe(channel string) error {
	return c.sendChannelOp("public/subscribe", channel)
}

func (c *StreamClient) Unsubscribe(channel string) error {
	return c.sendChannelOp("public/unsubscribe", channel)
}

func (c *StreamClient) sendChannelOp(method, channel string) error {
	c.mu.Lock()
	if c.state != domain.StateReady {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot %s from state %s", method, state)
	}
	conn := c.conn
	c.mu.Unlock()

	req := newRPCRequest(method, channelsParams{Channels: []string{channel}})
	if err := c.write(conn, req); err != nil {
		c.transitionClosed()
		return fmt.Errorf("%s %s: %w", method, channel, err)
	}

	c.logger.Info("channel request sent",
		zap.String("method", method),
		zap.String("channel", channel),
		zap.Int64("request_id", req.ID))
	return nil
}

// Close moves the session to Closed and joins the dispatch goroutine. No
// callback runs after Close returns.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	loopDone := c.loopDone
	c.mu.Unlock()

	c.transitionClosed()

	if loopDone != nil {
		<-loopDone
	}
	return nil
}

// RecentFrames returns the uncorrelated frames currently held in the sink,
// oldest first.
func (c *StreamClient) RecentFrames() []*rpcMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*rpcMessage, c.sink.Len())
	for i := range out {
		out[i] = c.sink.At(i)
	}
	return out
}

func (c *StreamClient) write(conn interfaces.StreamConn, req *rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// transitionClosed is idempotent: late transitions against an already-closed
// session are observed and discarded.
func (c *StreamClient) transitionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StateClosed {
		return
	}
	c.state = domain.StateClosed

	if c.conn != nil {
		c.conn.Close()
	}
	if c.pendingAuth != nil {
		close(c.pendingAuth.done)
		c.pendingAuth = nil
	}
}

func (c *StreamClient) readLoop(conn interfaces.StreamConn) {
	defer close(c.loopDone)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.state == domain.StateClosed
			c.mu.Unlock()

			if !alreadyClosed {
				c.logger.Warn("stream connection lost", zap.Error(err))
			}
			c.transitionClosed()
			return
		}

		promclient.FramesReceived.Inc()

		msg := &rpcMessage{}
		if err := json.Unmarshal(data, msg); err != nil {
			promclient.FrameDecodeFailures.Inc()
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		c.dispatch(msg)
	}
}

func (c *StreamClient) dispatch(msg *rpcMessage) {
	if msg.ID != nil {
		c.mu.Lock()
		if p := c.pendingAuth; p != nil && p.id == *msg.ID {
			c.pendingAuth = nil
			c.mu.Unlock()
			p.done <- msg
			return
		}
		c.mu.Unlock()

		// subscribe/unsubscribe acks and any other uncorrelated response
		c.pushSink(msg)
		c.logger.Debug("uncorrelated response", zap.Int64p("id", msg.ID))
		return
	}

	if msg.Method == "subscription" && msg.Params != nil &&
		strings.HasPrefix(msg.Params.Channel, bookChannelPrefix) {
		c.handleBookNotification(msg.Params)
		return
	}

	c.pushSink(msg)
	c.logger.Debug("unhandled frame", zap.String("method", msg.Method))
}

func (c *StreamClient) handleBookNotification(p *notificationParams) {
	var data bookData
	if err := json.Unmarshal(p.Data, &data); err != nil {
		promclient.FrameDecodeFailures.Inc()
		c.logger.Warn("dropping malformed book notification",
			zap.String("channel", p.Channel), zap.Error(err))
		return
	}

	instrument := data.InstrumentName
	if instrument == "" {
		instrument = instrumentFromChannel(p.Channel)
	}
	if instrument == "" {
		c.logger.Warn("book notification without instrument", zap.String("channel", p.Channel))
		return
	}

	var ob *domain.OrderBook
	if data.isSnapshot() {
		ob = c.books.ApplySnapshot(instrument, data.Timestamp, toBookLevels(data.Bids), toBookLevels(data.Asks))
	} else {
		ob = c.books.ApplyDelta(instrument, data.Timestamp, toPriceLevels(data.Bids), toPriceLevels(data.Asks))
	}

	promclient.BookUpdates.Inc()

	// The callback runs inline in the dispatch goroutine and must not block.
	c.registry.Dispatch(instrument, ob)
}

func (c *StreamClient) pushSink(msg *rpcMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sink.Len() >= frameSinkCapacity {
		c.sink.PopFront()
	}
	c.sink.PushBack(msg)
}

// instrumentFromChannel extracts the instrument of a channel name such as
// book.BTC-PERPETUAL.100ms.
func instrumentFromChannel(channel string) string {
	parts := strings.Split(channel, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
