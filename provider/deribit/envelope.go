package deribit

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/spooky-finn/go-deribit-bridge/domain"
)

const jsonrpcVersion = "2.0"

// requestID is the correlation id counter shared by both transports. The
// remote end echoes the id so a response can be matched to its request.
var requestID atomic.Int64

func nextRequestID() int64 {
	return requestID.Add(1)
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func newRPCRequest(method string, params any) *rpcRequest {
	return &rpcRequest{
		Jsonrpc: jsonrpcVersion,
		ID:      nextRequestID(),
		Method:  method,
		Params:  params,
	}
}

// RPCError is a remote error envelope. It is surfaced to the pending
// operation awaiting the correlation id and never crashes the dispatch loop.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("deribit: %s (code %d): %s", e.Message, e.Code, string(e.Data))
	}
	return fmt.Sprintf("deribit: %s (code %d)", e.Message, e.Code)
}

// rpcMessage is any inbound frame: a response (ID set, Result or Error) or
// an unsolicited notification (Method set).
type rpcMessage struct {
	Jsonrpc string              `json:"jsonrpc"`
	ID      *int64              `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *RPCError           `json:"error,omitempty"`
	Params  *notificationParams `json:"params,omitempty"`
}

type notificationParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// bookLevel decodes both wire shapes of a book level:
// ["new", 100.0, 5.0] in full payloads and [100.0, 5.0] in deltas.
type bookLevel struct {
	Action string
	Price  float64
	Amount float64

	hasAction bool
}

func (l *bookLevel) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 2 {
		return fmt.Errorf("book level needs at least 2 fields, got %d", len(fields))
	}

	idx := 0
	if err := json.Unmarshal(fields[0], &l.Action); err == nil {
		l.hasAction = true
		idx = 1
		if len(fields) < 3 {
			return fmt.Errorf("book level with action needs 3 fields, got %d", len(fields))
		}
	}

	if err := json.Unmarshal(fields[idx], &l.Price); err != nil {
		return fmt.Errorf("book level price: %w", err)
	}
	if err := json.Unmarshal(fields[idx+1], &l.Amount); err != nil {
		return fmt.Errorf("book level amount: %w", err)
	}
	return nil
}

// bookData is the payload of a book fetch result or a book.* notification.
type bookData struct {
	Type           string      `json:"type,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	InstrumentName string      `json:"instrument_name"`
	Bids           []bookLevel `json:"bids"`
	Asks           []bookLevel `json:"asks"`
}

// isSnapshot reports whether the payload replaces the book wholesale. Full
// payloads carry action triplets; deltas carry bare price/amount pairs.
func (d *bookData) isSnapshot() bool {
	if d.Type != "" {
		return d.Type == "snapshot"
	}
	for _, l := range d.Bids {
		return l.hasAction
	}
	for _, l := range d.Asks {
		return l.hasAction
	}
	return false
}

func toBookLevels(levels []bookLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, len(levels))
	for i, l := range levels {
		action := l.Action
		if !l.hasAction {
			action = domain.LevelActionChange
		}
		out[i] = domain.BookLevel{Action: action, Price: l.Price, Amount: l.Amount}
	}
	return out
}

// toPriceLevels keeps the nil-ness of the input: a side absent from a delta
// must stay absent so the book leaves it untouched.
func toPriceLevels(levels []bookLevel) []domain.PriceLevel {
	if levels == nil {
		return nil
	}
	out := make([]domain.PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = domain.PriceLevel{Price: l.Price, Amount: l.Amount}
	}
	return out
}
