package interfaces

import (
	"github.com/spooky-finn/go-deribit-bridge/domain"
)

// StreamSession is the persistent-connection state machine. A session whose
// state reached Closed is finished; callers construct a new one to reconnect.
type StreamSession interface {
	Connect() error
	Authenticate(accessToken string) error
	// Subscribe and Unsubscribe are fire-and-forget: they do not wait for
	// the remote acknowledgment.
	Subscribe(channel string) error
	Unsubscribe(channel string) error
	State() domain.SessionState
	Close() error
}
