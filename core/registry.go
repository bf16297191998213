package core

import (
	"net"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultMaxOffers = 1024

type offerKey struct {
	sender NodeIdentity
	name   string
}

// Entry is an offer seen from a peer.
type Entry struct {
	Offer
	Addr       net.IP
	ReceivedAt time.Time
}

// Registry holds the latest offer per (sender, file name). Once full, the
// least recently updated offer is evicted.
type Registry struct {
	offers *lru.Cache
	now    func() time.Time
}

func NewRegistry(size int) *Registry {
	if size <= 0 {
		size = DefaultMaxOffers
	}

	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New(size)

	return &Registry{
		offers: cache,
		now:    time.Now,
	}
}

// Put inserts or overwrites the entry for the offer's key.
func (r *Registry) Put(o Offer, addr net.IP) Entry {
	e := Entry{
		Offer:      o,
		Addr:       addr,
		ReceivedAt: r.now(),
	}
	r.offers.Add(offerKey{sender: o.Sender, name: o.FileName}, e)
	return e
}

func (r *Registry) Get(sender NodeIdentity, name string) (Entry, bool) {
	v, ok := r.offers.Peek(offerKey{sender: sender, name: name})
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

func (r *Registry) Remove(sender NodeIdentity, name string) {
	r.offers.Remove(offerKey{sender: sender, name: name})
}

func (r *Registry) Len() int {
	return r.offers.Len()
}

// List returns all entries, newest first.
func (r *Registry) List() []Entry {
	keys := r.offers.Keys()
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if v, ok := r.offers.Peek(k); ok {
			entries = append(entries, v.(Entry))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ReceivedAt.Equal(entries[j].ReceivedAt) {
			if entries[i].Sender == entries[j].Sender {
				return entries[i].FileName < entries[j].FileName
			}
			return entries[i].Sender < entries[j].Sender
		}
		return entries[i].ReceivedAt.After(entries[j].ReceivedAt)
	})

	return entries
}

// Prune drops offers not refreshed within maxAge and returns how many went.
func (r *Registry) Prune(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	n := 0
	for _, k := range r.offers.Keys() {
		v, ok := r.offers.Peek(k)
		if !ok {
			continue
		}
		if v.(Entry).ReceivedAt.Before(cutoff) {
			r.offers.Remove(k)
			n++
		}
	}
	return n
}
