package socketio

import (
	"sync/atomic"

	"github.com/estately/presence-relay/internal/domain/registry"
)

var _ registry.Connector = (*session)(nil)

// session adapts one socket.io client to the registry. Events go through the
// same bounded mailbox as the plain WebSocket transport and a single pump
// goroutine emits them, so a slow client never blocks the registry.
type session struct {
	registry.Mailbox

	emit       func(name string, payload any)
	disconnect func()

	remoteClosed atomic.Bool
	pumped       chan struct{} // closed when pump returns
}

func newSession(mb registry.Mailbox, emit func(string, any), disconnect func()) *session {
	return &session{
		Mailbox:    mb,
		emit:       emit,
		disconnect: disconnect,
		pumped:     make(chan struct{}),
	}
}

func (s *session) markRemoteClosed() { s.remoteClosed.Store(true) }

// pump drains the mailbox until it is closed. A close that did not come from
// the client (server shutdown) disconnects the socket.
func (s *session) pump() {
	defer close(s.pumped)

	for {
		select {
		case <-s.Ready():
			for _, ev := range s.Drain() {
				s.emit(ev.GetName(), ev.GetPayload())
			}
		case <-s.Done():
			if !s.remoteClosed.Load() {
				s.disconnect()
			}
			return
		}
	}
}
