package core

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRacingCancelEndsOnce(t *testing.T) {
	rec := &recorder{}

	var wg sync.WaitGroup
	ids := make([]string, 200)
	for i := range ids {
		ss := newSession(DirectionSend, "peer", "a", StateConnected, rec.observe)
		ids[i] = ss.s.ID

		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			ss.transition(StateSending)
			ss.complete()
		}()
		go func() {
			defer wg.Done()
			<-start
			ss.cancel()
		}()
		close(start)
	}
	wg.Wait()

	for _, id := range ids {
		states := rec.states(id)
		if !assert.NotEmpty(t, states) {
			continue
		}

		assert.Equal(t, StateConnected, states[0])
		assert.True(t, states[len(states)-1].Done(), "last state %v", states[len(states)-1])

		ended := 0
		for _, s := range states {
			if s.Done() {
				ended++
			}
		}
		assert.Equal(t, 1, ended, "states %v", states)
	}
}

func TestSessionObserverSeesEachChange(t *testing.T) {
	rec := &recorder{}
	ss := newSession(DirectionReceive, "peer", "a", StateConnecting, rec.observe)

	assert.True(t, ss.transition(StateRequesting))
	ss.addBytes(10)
	assert.True(t, ss.fail(ReasonTimeout, os.ErrDeadlineExceeded))
	assert.False(t, ss.complete())
	assert.False(t, ss.transition(StateReceiving))

	assert.Equal(t, []State{StateConnecting, StateRequesting, StateFailed}, rec.states(ss.s.ID))

	last, ok := rec.find(done)
	assert.True(t, ok)
	assert.Equal(t, ReasonTimeout, last.Reason)
	assert.Equal(t, int64(10), last.Bytes)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"cancelled", context.Canceled, ReasonCancelled},
		{"closed", net.ErrClosed, ReasonCancelled},
		{"deadline", os.ErrDeadlineExceeded, ReasonTimeout},
		{"context deadline", context.DeadlineExceeded, ReasonTimeout},
		{"eof", io.ErrUnexpectedEOF, ReasonConnectionReset},
		{"other", errors.New("connection reset by peer"), ReasonConnectionReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
