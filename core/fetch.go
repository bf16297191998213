package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Dyastin-0/lanshare/logger"
)

const (
	DialTimeout = 5 * time.Second
	IdleTimeout = 30 * time.Second
)

type FetcherConfig struct {
	DialTimeout time.Duration
	// IdleTimeout bounds the wait for each read; zero disables it.
	IdleTimeout time.Duration
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		DialTimeout: DialTimeout,
		IdleTimeout: IdleTimeout,
	}
}

// Fetcher pulls offered files from peers' listeners.
type Fetcher struct {
	cfg     FetcherConfig
	log     logger.Logger
	observe SessionObserver
}

func NewFetcher(cfg FetcherConfig, log logger.Logger) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		log: log.WithStr("component", "fetcher"),
	}
}

// OnSession registers the observer for receive sessions.
func (f *Fetcher) OnSession(observe SessionObserver) {
	f.observe = observe
}

// Request dials peerAddr and asks for the offered file. The returned Download
// streams the bytes as they arrive and can be read only once.
func (f *Fetcher) Request(ctx context.Context, peerAddr string, offer Offer) (*Download, error) {
	if offer.FileName == "" || strings.ContainsAny(offer.FileName, "\r\n") {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidField, offer.FileName)
	}

	ss := newSession(DirectionReceive, peerAddr, offer.FileName, StateConnecting, f.observe)
	log := f.log.WithStr("session", ss.s.ID).WithStr("peer", peerAddr).WithStr("file", offer.FileName)

	dialer := net.Dialer{Timeout: f.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", peerAddr)
	if err != nil {
		reason := ReasonConnectFailed
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		ss.fail(reason, err)
		log.WithErr(err).Warn("connect failed")
		return nil, &TransferError{Reason: reason, Err: err}
	}

	ss.setConn(conn)
	ss.transition(StateRequesting)

	if f.cfg.IdleTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(f.cfg.IdleTimeout))
	}

	if _, err := io.WriteString(conn, offer.FileName+string(requestDelim)); err != nil {
		reason := classify(err)
		if ss.cancelled() {
			reason = ReasonCancelled
		}
		ss.fail(reason, err)
		log.WithErr(err).Warn("request failed")
		return nil, &TransferError{Reason: reason, Err: err}
	}

	conn.SetWriteDeadline(time.Time{})
	ss.transition(StateReceiving)

	d := &Download{
		conn: conn,
		ss:   ss,
		size: offer.FileSize,
		idle: f.cfg.IdleTimeout,
		log:  log,
	}
	d.stop = context.AfterFunc(ctx, func() {
		ss.cancel()
	})

	return d, nil
}

// Download is the receiving side of one transfer. It is an io.ReadCloser
// that yields the file bytes and ends with io.EOF only when exactly the
// advertised size arrived before the peer closed. Any other ending yields a
// *TransferError. Read must not be called concurrently; Close may be.
type Download struct {
	conn     net.Conn
	ss       *session
	size     int64
	idle     time.Duration
	received int64
	err      error
	stop     func() bool
	tee      io.Writer
	log      logger.Logger
}

// Tee copies every delivered byte to w, e.g. a progress bar. Write errors on
// w are ignored. Call before the first Read.
func (d *Download) Tee(w io.Writer) {
	d.tee = w
}

func (d *Download) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}

	if d.idle > 0 {
		d.conn.SetReadDeadline(time.Now().Add(d.idle))
	}

	n, err := d.conn.Read(p)
	if n > 0 {
		if over := d.received + int64(n) - d.size; over > 0 {
			n -= int(over)
			d.count(p[:n])
			return n, d.fail(ReasonSizeMismatch, fmt.Errorf("peer sent more than %d bytes", d.size))
		}
		d.count(p[:n])
	}

	if err == nil {
		return n, nil
	}

	if errors.Is(err, io.EOF) && !d.ss.cancelled() {
		if d.received == d.size {
			d.stop()
			d.ss.complete()
			d.err = io.EOF
			d.log.WithInt64("received", d.received).Info("received")
			return n, io.EOF
		}
		return n, d.fail(ReasonConnectionReset, io.ErrUnexpectedEOF)
	}

	reason := classify(err)
	if d.ss.cancelled() {
		reason = ReasonCancelled
	}
	return n, d.fail(reason, err)
}

func (d *Download) count(p []byte) {
	d.received += int64(len(p))
	d.ss.addBytes(int64(len(p)))
	if d.tee != nil {
		d.tee.Write(p)
	}
}

func (d *Download) fail(reason Reason, err error) error {
	d.stop()
	d.ss.fail(reason, err)
	d.err = &TransferError{Reason: reason, Received: d.received, Err: err}
	d.log.WithInt64("received", d.received).WithStr("reason", string(reason)).WithErr(err).Warn("transfer failed")
	return d.err
}

// abort fails the transfer on behalf of the consumer, e.g. a storage error.
func (d *Download) abort(reason Reason, err error) {
	d.stop()
	d.ss.fail(reason, err)
	if d.err == nil || d.err == io.EOF {
		d.err = &TransferError{Reason: reason, Received: d.received, Err: err}
	}
}

// Close releases the connection. Closing before completion cancels the
// transfer.
func (d *Download) Close() error {
	d.stop()
	if !d.ss.snapshot().State.Done() {
		d.ss.cancel()
	}
	return nil
}

// Size is the advertised size.
func (d *Download) Size() int64 {
	return d.size
}

// Received is the number of bytes delivered so far.
func (d *Download) Received() int64 {
	return d.ss.bytes()
}

func (d *Download) Session() Session {
	return d.ss.snapshot()
}
