package core

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateRequesting State = "requesting"
	StateSending    State = "sending"
	StateReceiving  State = "receiving"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Done reports whether s is terminal.
func (s State) Done() bool {
	return s == StateCompleted || s == StateFailed
}

// Session is a snapshot of a transfer session.
type Session struct {
	ID        string
	Peer      string
	FileName  string
	Direction Direction
	State     State
	Reason    Reason
	Bytes     int64
	Err       error
	Started   time.Time
}

// SessionObserver receives a snapshot on every state change.
type SessionObserver func(Session)

// session owns one connection. Only the goroutine driving the transfer
// moves it forward; cancel may be called from anywhere.
type session struct {
	mu       sync.Mutex
	s        Session
	conn     net.Conn
	observe  SessionObserver
	canceled bool

	// notifyMu keeps observers seeing changes in the order they happened.
	notifyMu sync.Mutex
}

func newSession(dir Direction, peer, fileName string, state State, observe SessionObserver) *session {
	ss := &session{
		s: Session{
			ID:        uuid.NewString(),
			Peer:      peer,
			FileName:  fileName,
			Direction: dir,
			State:     state,
			Started:   time.Now(),
		},
		observe: observe,
	}
	ss.mu.Lock()
	ss.publish()
	return ss
}

func (ss *session) snapshot() Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.s
}

func (ss *session) setConn(conn net.Conn) {
	ss.mu.Lock()
	ss.conn = conn
	ss.mu.Unlock()
}

func (ss *session) setFileName(name string) {
	ss.mu.Lock()
	ss.s.FileName = name
	ss.mu.Unlock()
}

func (ss *session) addBytes(n int64) {
	ss.mu.Lock()
	ss.s.Bytes += n
	ss.mu.Unlock()
}

func (ss *session) bytes() int64 {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.s.Bytes
}

func (ss *session) cancelled() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.canceled
}

// transition moves the session to state unless it already ended.
func (ss *session) transition(state State) bool {
	ss.mu.Lock()
	if ss.s.State.Done() {
		ss.mu.Unlock()
		return false
	}
	ss.s.State = state
	ss.publish()
	return true
}

func (ss *session) fail(reason Reason, err error) bool {
	ss.mu.Lock()
	if ss.s.State.Done() {
		ss.mu.Unlock()
		return false
	}
	ss.s.State = StateFailed
	ss.s.Reason = reason
	ss.s.Err = err
	if ss.conn != nil {
		ss.conn.Close()
	}
	ss.publish()
	return true
}

func (ss *session) complete() bool {
	ss.mu.Lock()
	if ss.s.State.Done() {
		ss.mu.Unlock()
		return false
	}
	ss.s.State = StateCompleted
	if ss.conn != nil {
		ss.conn.Close()
	}
	ss.publish()
	return true
}

func (ss *session) cancel() bool {
	ss.mu.Lock()
	ss.canceled = true
	ss.mu.Unlock()

	return ss.fail(ReasonCancelled, context.Canceled)
}

// publish must be called with mu held and releases it. The snapshot is taken
// under mu and handed to the observer before any later change is.
func (ss *session) publish() {
	snap := ss.s
	ss.notifyMu.Lock()
	ss.mu.Unlock()
	defer ss.notifyMu.Unlock()

	if ss.observe != nil {
		ss.observe(snap)
	}
}

// classify maps a connection error to a failure reason.
func classify(err error) Reason {
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		return ReasonCancelled
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return ReasonTimeout
	default:
		return ReasonConnectionReset
	}
}
