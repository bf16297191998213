package core

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(size int) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(size)
	r.now = clock.now
	return r, clock
}

func TestRegistryDistinctSenders(t *testing.T) {
	r, _ := newTestRegistry(0)

	r.Put(Offer{Sender: "aa:bb", FileName: "report.txt", FileSize: 1}, net.ParseIP("10.0.0.1"))
	r.Put(Offer{Sender: "cc:dd", FileName: "report.txt", FileSize: 2}, net.ParseIP("10.0.0.2"))

	assert.Equal(t, 2, r.Len())

	a, ok := r.Get("aa:bb", "report.txt")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.FileSize)
	assert.True(t, a.Addr.Equal(net.ParseIP("10.0.0.1")))

	c, ok := r.Get("cc:dd", "report.txt")
	require.True(t, ok)
	assert.Equal(t, int64(2), c.FileSize)
}

func TestRegistryLastWriteWins(t *testing.T) {
	r, clock := newTestRegistry(0)

	first := r.Put(Offer{Sender: "aa:bb", FileName: "report.txt", FileSize: 1024}, nil)
	clock.advance(time.Second)
	second := r.Put(Offer{Sender: "aa:bb", FileName: "report.txt", FileSize: 2048}, nil)

	assert.Equal(t, 1, r.Len())

	e, ok := r.Get("aa:bb", "report.txt")
	require.True(t, ok)
	assert.Equal(t, int64(2048), e.FileSize)
	assert.Equal(t, second.ReceivedAt, e.ReceivedAt)
	assert.True(t, e.ReceivedAt.After(first.ReceivedAt))
}

func TestRegistryListNewestFirst(t *testing.T) {
	r, clock := newTestRegistry(0)

	r.Put(Offer{Sender: "aa:bb", FileName: "a", FileSize: 1}, nil)
	clock.advance(time.Second)
	r.Put(Offer{Sender: "aa:bb", FileName: "b", FileSize: 1}, nil)
	clock.advance(time.Second)
	r.Put(Offer{Sender: "aa:bb", FileName: "a", FileSize: 3}, nil)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].FileName)
	assert.Equal(t, int64(3), list[0].FileSize)
	assert.Equal(t, "b", list[1].FileName)
}

func TestRegistryPrune(t *testing.T) {
	r, clock := newTestRegistry(0)

	r.Put(Offer{Sender: "aa:bb", FileName: "old", FileSize: 1}, nil)
	clock.advance(time.Minute)
	r.Put(Offer{Sender: "aa:bb", FileName: "new", FileSize: 1}, nil)
	clock.advance(30 * time.Second)

	assert.Equal(t, 1, r.Prune(45*time.Second))

	_, ok := r.Get("aa:bb", "old")
	assert.False(t, ok)
	_, ok = r.Get("aa:bb", "new")
	assert.True(t, ok)
}

func TestRegistryEvictsOldestWhenFull(t *testing.T) {
	r, clock := newTestRegistry(3)

	for i := range 4 {
		r.Put(Offer{Sender: "aa:bb", FileName: fmt.Sprintf("f%d", i), FileSize: 1}, nil)
		clock.advance(time.Second)
	}

	assert.Equal(t, 3, r.Len())
	_, ok := r.Get("aa:bb", "f0")
	assert.False(t, ok)
	_, ok = r.Get("aa:bb", "f3")
	assert.True(t, ok)
}

func TestRegistryRemove(t *testing.T) {
	r, _ := newTestRegistry(0)

	r.Put(Offer{Sender: "aa:bb", FileName: "a", FileSize: 1}, nil)
	r.Remove("aa:bb", "a")

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List())
}
