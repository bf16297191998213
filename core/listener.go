package core

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Dyastin-0/lanshare/logger"
)

const (
	DefaultTransferPort   = 41235
	RequestTimeout        = 15 * time.Second
	MaxRequestLine        = 4096
	requestDelim          = '\n'
	listenerCopyBufferLen = 32 * 1024
)

type ListenerConfig struct {
	Addr           string
	RequestTimeout time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Addr:           fmt.Sprintf(":%d", DefaultTransferPort),
		RequestTimeout: RequestTimeout,
	}
}

// Listener serves shared files, one session per accepted connection.
type Listener struct {
	cfg     ListenerConfig
	library *Library
	log     logger.Logger

	ln      net.Listener
	observe SessionObserver

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

func NewListener(library *Library, cfg ListenerConfig, log logger.Logger) *Listener {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = RequestTimeout
	}

	return &Listener{
		cfg:      cfg,
		library:  library,
		log:      log.WithStr("component", "listener"),
		sessions: make(map[string]*session),
	}
}

// OnSession registers the observer for send sessions. Call before Serve.
func (l *Listener) OnSession(observe SessionObserver) {
	l.observe = observe
}

func (l *Listener) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return err
	}

	l.ln = ln
	l.log.WithStr("addr", ln.Addr().String()).Info("transfer listener ready")
	return nil
}

func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			l.log.WithErr(err).Warn("accept error")
			continue
		}

		ss := l.track(conn)
		if ss == nil {
			continue
		}

		go func() {
			defer l.wg.Done()
			defer l.untrack(ss)
			l.handleConn(conn, ss)
		}()
	}
}

func (l *Listener) track(conn net.Conn) *session {
	ss := newSession(DirectionSend, conn.RemoteAddr().String(), "", StateConnected, l.observe)
	ss.setConn(conn)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		ss.cancel()
		return nil
	}
	l.sessions[ss.s.ID] = ss
	l.wg.Add(1)
	l.mu.Unlock()

	return ss
}

func (l *Listener) untrack(ss *session) {
	l.mu.Lock()
	delete(l.sessions, ss.s.ID)
	l.mu.Unlock()
}

func (l *Listener) handleConn(conn net.Conn, ss *session) {
	log := l.log.WithStr("session", ss.s.ID).WithStr("peer", ss.s.Peer)

	name, err := l.readRequest(conn)
	if err != nil {
		reason := classify(err)
		if errors.Is(err, ErrRequestLineTooLong) || errors.Is(err, ErrFileUnavailable) {
			reason = ReasonNotFound
		}
		if ss.fail(reason, err) {
			log.WithErr(err).Warn("bad request")
		}
		return
	}

	ss.setFileName(name)
	log = log.WithStr("file", name)

	file, stat, err := l.library.Open(name)
	if err != nil {
		ss.fail(ReasonNotFound, fmt.Errorf("%w: %s", ErrFileUnavailable, name))
		log.WithErr(err).Warn("requested file not available")
		return
	}
	defer file.Close()

	if !ss.transition(StateSending) {
		return
	}

	buf := make([]byte, listenerCopyBufferLen)
	n, err := io.CopyBuffer(&sessionWriter{w: conn, ss: ss}, io.LimitReader(file, stat.Size()), buf)
	if err != nil {
		if ss.fail(classify(err), err) {
			log.WithInt64("sent", ss.bytes()).WithErr(err).Warn("send failed")
		}
		return
	}

	if ss.complete() {
		log.WithInt64("sent", n).Info("sent")
	}
}

// readRequest reads a single "<name>\n" line within the request timeout.
func (l *Listener) readRequest(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(l.cfg.RequestTimeout)); err != nil {
		return "", err
	}
	defer conn.SetReadDeadline(time.Time{})

	rd := bufio.NewReaderSize(io.LimitReader(conn, MaxRequestLine+1), 512)
	line, err := rd.ReadBytes(requestDelim)
	if err != nil {
		if len(line) > MaxRequestLine {
			return "", ErrRequestLineTooLong
		}
		return "", err
	}

	name := string(bytes.TrimRight(line, "\r\n"))
	if name == "" {
		return "", fmt.Errorf("%w: empty request", ErrFileUnavailable)
	}

	return name, nil
}

// Sessions lists active send sessions.
func (l *Listener) Sessions() []Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Session, 0, len(l.sessions))
	for _, ss := range l.sessions {
		out = append(out, ss.snapshot())
	}
	return out
}

// Cancel aborts the session with id, if it is still active.
func (l *Listener) Cancel(id string) bool {
	l.mu.Lock()
	ss, ok := l.sessions[id]
	l.mu.Unlock()

	if !ok {
		return false
	}
	return ss.cancel()
}

// Close stops accepting and cancels every active session.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	active := make([]*session, 0, len(l.sessions))
	for _, ss := range l.sessions {
		active = append(active, ss)
	}
	l.mu.Unlock()

	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}

	for _, ss := range active {
		ss.cancel()
	}

	l.wg.Wait()
	return err
}

type sessionWriter struct {
	w  io.Writer
	ss *session
}

func (sw *sessionWriter) Write(p []byte) (int, error) {
	n, err := sw.w.Write(p)
	sw.ss.addBytes(int64(n))
	return n, err
}
