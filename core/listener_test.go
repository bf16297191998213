package core

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Dyastin-0/lanshare/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startListener(t testing.TB, lib *Library, timeout time.Duration) (*Listener, *recorder) {
	t.Helper()

	rec := &recorder{}
	l := NewListener(lib, ListenerConfig{Addr: "127.0.0.1:0", RequestTimeout: timeout}, logger.Nop())
	l.OnSession(rec.observe)
	require.NoError(t, l.Listen(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return l, rec
}

func request(t testing.TB, addr net.Addr, line string) (net.Conn, []byte) {
	t.Helper()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)

	_, err = io.WriteString(conn, line)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	b, _ := io.ReadAll(conn)
	return conn, b
}

func sessionFor(conn net.Conn) func(Session) bool {
	peer := conn.LocalAddr().String()
	return func(s Session) bool {
		return s.Peer == peer && s.State.Done()
	}
}

func TestListenerServesSharedFile(t *testing.T) {
	lib := NewLibrary()
	path, content := writeRandomFile(t, t.TempDir(), "report.txt", 1024)
	_, err := lib.Add(path)
	require.NoError(t, err)

	l, rec := startListener(t, lib, 0)

	conn, got := request(t, l.Addr(), "report.txt\n")
	defer conn.Close()

	assert.Equal(t, content, got)

	s := rec.waitFor(t, sessionFor(conn))
	assert.Equal(t, StateCompleted, s.State)
	assert.Equal(t, DirectionSend, s.Direction)
	assert.Equal(t, "report.txt", s.FileName)
	assert.Equal(t, int64(1024), s.Bytes)
	assert.Equal(t, []State{StateConnected, StateSending, StateCompleted}, rec.states(s.ID))

	require.Eventually(t, func() bool { return len(l.Sessions()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestListenerAcceptsCRLF(t *testing.T) {
	lib := NewLibrary()
	path, content := writeRandomFile(t, t.TempDir(), "report.txt", 64)
	_, err := lib.Add(path)
	require.NoError(t, err)

	l, _ := startListener(t, lib, 0)

	conn, got := request(t, l.Addr(), "report.txt\r\n")
	defer conn.Close()

	assert.Equal(t, content, got)
}

func TestListenerUnknownFile(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeRandomFile(t, dir, "secret.txt", 16)

	lib := NewLibrary()
	l, rec := startListener(t, lib, 0)

	for _, line := range []string{
		"missing.txt\n",
		path + "\n",
		"../secret.txt\n",
		"\n",
	} {
		t.Run(strings.TrimSpace(line), func(t *testing.T) {
			conn, got := request(t, l.Addr(), line)
			defer conn.Close()

			assert.Empty(t, got)

			s := rec.waitFor(t, sessionFor(conn))
			assert.Equal(t, StateFailed, s.State)
			assert.Equal(t, ReasonNotFound, s.Reason)
			assert.Zero(t, s.Bytes)
		})
	}

	require.Eventually(t, func() bool { return len(l.Sessions()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestListenerRequestTooLong(t *testing.T) {
	l, rec := startListener(t, NewLibrary(), 0)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// The listener may hang up before the whole line is written.
	io.WriteString(conn, strings.Repeat("a", MaxRequestLine+512))

	s := rec.waitFor(t, sessionFor(conn))
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, ReasonNotFound, s.Reason)
	assert.ErrorIs(t, s.Err, ErrRequestLineTooLong)
}

func TestListenerRequestTimeout(t *testing.T) {
	l, rec := startListener(t, NewLibrary(), 100*time.Millisecond)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	s := rec.waitFor(t, sessionFor(conn))
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, ReasonTimeout, s.Reason)
}

func TestListenerCancelSession(t *testing.T) {
	l, rec := startListener(t, NewLibrary(), time.Minute)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	var id string
	require.Eventually(t, func() bool {
		sessions := l.Sessions()
		if len(sessions) != 1 {
			return false
		}
		id = sessions[0].ID
		return true
	}, time.Second, 10*time.Millisecond)

	assert.True(t, l.Cancel(id))

	s := rec.waitFor(t, sessionFor(conn))
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, ReasonCancelled, s.Reason)
	assert.False(t, l.Cancel(id))
}

func TestListenerStalledPeerDoesNotBlockOthers(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary()

	bigPath, big := writeRandomFile(t, dir, "big.bin", 32<<20)
	_, err := lib.Add(bigPath)
	require.NoError(t, err)

	smallPath, small := writeRandomFile(t, dir, "small.txt", 64<<10)
	_, err = lib.Add(smallPath)
	require.NoError(t, err)

	l, rec := startListener(t, lib, time.Minute)

	// The slow peer reads a little and then stops, filling the socket buffers.
	slow, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer slow.Close()

	_, err = io.WriteString(slow, "big.bin\n")
	require.NoError(t, err)

	head := make([]byte, 1024)
	slow.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(slow, head)
	require.NoError(t, err)
	assert.Equal(t, big[:1024], head)

	slowPeer := slow.LocalAddr().String()
	stalled := rec.waitFor(t, func(s Session) bool {
		return s.Peer == slowPeer && s.State == StateSending
	})

	fast, got := request(t, l.Addr(), "small.txt\n")
	defer fast.Close()
	assert.Equal(t, small, got)

	s := rec.waitFor(t, sessionFor(fast))
	assert.Equal(t, StateCompleted, s.State)
	assert.Equal(t, int64(len(small)), s.Bytes)

	// The slow transfer is still in flight and unaffected.
	_, ended := rec.find(sessionFor(slow))
	assert.False(t, ended)
	assert.Len(t, l.Sessions(), 1)

	assert.True(t, l.Cancel(stalled.ID))

	failed := rec.waitFor(t, sessionFor(slow))
	assert.Equal(t, ReasonCancelled, failed.Reason)
	assert.Less(t, failed.Bytes, int64(len(big)))

	// Cancelling one session leaves the finished one as it was.
	assert.Equal(t, []State{StateConnected, StateSending, StateCompleted}, rec.states(s.ID))
}

func TestListenerFailedPeerDoesNotAffectOthers(t *testing.T) {
	lib := NewLibrary()
	path, content := writeRandomFile(t, t.TempDir(), "report.txt", 32<<20)
	_, err := lib.Add(path)
	require.NoError(t, err)

	l, rec := startListener(t, lib, time.Minute)

	// One peer resets mid-stream while another downloads the same file.
	broken, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	_, err = io.WriteString(broken, "report.txt\n")
	require.NoError(t, err)
	_, err = io.ReadFull(broken, make([]byte, 512))
	require.NoError(t, err)

	brokenPeer := broken.LocalAddr().String()
	broken.(*net.TCPConn).SetLinger(0)
	broken.Close()

	fast, got := request(t, l.Addr(), "report.txt\n")
	defer fast.Close()
	assert.Equal(t, content, got)

	s := rec.waitFor(t, sessionFor(fast))
	assert.Equal(t, StateCompleted, s.State)

	failed := rec.waitFor(t, func(s Session) bool {
		return s.Peer == brokenPeer && s.State.Done()
	})
	assert.NotEqual(t, s.ID, failed.ID)
	assert.Equal(t, StateFailed, failed.State)
	assert.Equal(t, ReasonConnectionReset, failed.Reason)
}

func TestListenerCloseCancelsActive(t *testing.T) {
	rec := &recorder{}
	l := NewListener(NewLibrary(), ListenerConfig{Addr: "127.0.0.1:0", RequestTimeout: time.Minute}, logger.Nop())
	l.OnSession(rec.observe)
	require.NoError(t, l.Listen(t.Context()))

	done := make(chan error, 1)
	go func() { done <- l.Serve(t.Context()) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(l.Sessions()) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, l.Close())

	s := rec.waitFor(t, sessionFor(conn))
	assert.Equal(t, ReasonCancelled, s.Reason)
	assert.Empty(t, l.Sessions())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return")
	}
}

func FuzzListenerRequest(f *testing.F) {
	lib := NewLibrary()
	path, _ := writeRandomFile(f, f.TempDir(), "report.txt", 32)
	_, err := lib.Add(path)
	require.NoError(f, err)

	l, rec := startListener(f, lib, time.Second)

	f.Add("missing.txt")
	f.Add("")
	f.Add("../../etc/passwd")
	f.Add("report.txt.bak")
	f.Add(strings.Repeat("x", MaxRequestLine))

	f.Fuzz(func(t *testing.T, name string) {
		if len(name) > MaxRequestLine || strings.Contains(name, "\n") || strings.TrimRight(name, "\r") == "report.txt" {
			t.Skip()
		}

		conn, got := request(t, l.Addr(), name+"\n")
		defer conn.Close()

		assert.Empty(t, got)

		s := rec.waitFor(t, sessionFor(conn))
		assert.Equal(t, StateFailed, s.State)
		assert.Equal(t, ReasonNotFound, s.Reason)

		require.Eventually(t, func() bool { return len(l.Sessions()) == 0 }, time.Second, 10*time.Millisecond)
	})
}
