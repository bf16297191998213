package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Dyastin-0/lanshare/logger"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultOfferTTL = 10 * time.Minute
	// MinOfferTTL also bounds how often the registry is swept.
	MinOfferTTL     = time.Second
	recentSessions  = 64
)

type NodeConfig struct {
	Discovery DiscoveryConfig
	Listener  ListenerConfig
	Fetcher   FetcherConfig

	// PeerPort is the transfer port dialed on peers.
	PeerPort  int
	MaxOffers int
	// OfferTTL drops offers not re-announced in time; zero keeps them.
	OfferTTL time.Duration
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Discovery: DefaultDiscoveryConfig(),
		Listener:  DefaultListenerConfig(),
		Fetcher:   DefaultFetcherConfig(),
		PeerPort:  DefaultTransferPort,
		MaxOffers: DefaultMaxOffers,
		OfferTTL:  DefaultOfferTTL,
	}
}

// Node wires identity, discovery, the listener and the fetcher together.
type Node struct {
	cfg      NodeConfig
	resolver IdentityResolver
	log      logger.Logger

	id        NodeIdentity
	registry  *Registry
	library   *Library
	discovery *Discovery
	listener  *Listener
	fetcher   *Fetcher

	group  *errgroup.Group
	cancel context.CancelFunc

	mu        sync.RWMutex
	onOffer   []AnnouncementHandler
	onSession []SessionObserver
	active    map[string]Session
	recent    []Session
}

func NewNode(cfg NodeConfig, resolver IdentityResolver, log logger.Logger) *Node {
	if cfg.PeerPort == 0 {
		cfg.PeerPort = DefaultTransferPort
	}

	library := NewLibrary()

	n := &Node{
		cfg:      cfg,
		resolver: resolver,
		log:      log,
		registry: NewRegistry(cfg.MaxOffers),
		library:  library,
		listener: NewListener(library, cfg.Listener, log),
		fetcher:  NewFetcher(cfg.Fetcher, log),
		active:   make(map[string]Session),
	}

	n.listener.OnSession(n.observe)
	n.fetcher.OnSession(n.observe)

	return n
}

func (n *Node) OnOffer(h AnnouncementHandler) {
	n.mu.Lock()
	n.onOffer = append(n.onOffer, h)
	n.mu.Unlock()
}

func (n *Node) OnSession(obs SessionObserver) {
	n.mu.Lock()
	n.onSession = append(n.onSession, obs)
	n.mu.Unlock()
}

// Start resolves the identity, binds both sockets and serves them in the
// background. Identity and bind failures are returned.
func (n *Node) Start(ctx context.Context) error {
	id, err := n.resolver.Resolve()
	if err != nil {
		return err
	}
	n.id = id
	n.log = n.log.WithStr("node", id.String())

	n.discovery = NewDiscovery(id, n.registry, n.cfg.Discovery, n.log)
	n.discovery.OnAnnouncement(n.dispatch)

	if err := n.discovery.Listen(ctx); err != nil {
		return err
	}

	if err := n.listener.Listen(ctx); err != nil {
		n.discovery.Close()
		return fmt.Errorf("transfer listener: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.discovery.Serve(gctx) })
	g.Go(func() error { return n.listener.Serve(gctx) })
	if n.cfg.OfferTTL > 0 {
		g.Go(func() error { return n.prune(gctx) })
	}
	n.group = g

	return nil
}

func (n *Node) prune(ctx context.Context) error {
	ticker := time.NewTicker(max(n.cfg.OfferTTL/2, MinOfferTTL))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if dropped := n.registry.Prune(n.cfg.OfferTTL); dropped > 0 {
				n.log.WithInt("dropped", dropped).Debug("pruned stale offers")
			}
		}
	}
}

func (n *Node) dispatch(e Entry) {
	n.mu.RLock()
	handlers := n.onOffer
	n.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

func (n *Node) observe(s Session) {
	n.mu.Lock()
	if s.State.Done() {
		delete(n.active, s.ID)
		n.recent = append(n.recent, s)
		if len(n.recent) > recentSessions {
			n.recent = n.recent[len(n.recent)-recentSessions:]
		}
	} else {
		n.active[s.ID] = s
	}
	observers := n.onSession
	n.mu.Unlock()

	for _, obs := range observers {
		obs(s)
	}
}

func (n *Node) Identity() NodeIdentity {
	return n.id
}

// Announce shares the file at path and broadcasts its offer.
func (n *Node) Announce(path string) (Offer, error) {
	if n.discovery == nil {
		return Offer{}, ErrNotListening
	}

	offer, err := n.discovery.Broadcast(path)
	if err != nil {
		// A file that can no longer be read stops being served.
		if errors.Is(err, ErrFileUnavailable) {
			n.library.Remove(filepath.Base(path))
		}
		return Offer{}, err
	}

	if _, err := n.library.Add(path); err != nil {
		return Offer{}, fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}

	return offer, nil
}

// Shared lists the names this node serves.
func (n *Node) Shared() []string {
	return n.library.Names()
}

func (n *Node) Offers() []Entry {
	return n.registry.List()
}

func (n *Node) Lookup(sender NodeIdentity, name string) (Entry, bool) {
	return n.registry.Get(sender, name)
}

// Fetch pulls the offer from the address it was announced from.
func (n *Node) Fetch(ctx context.Context, e Entry) (*Download, error) {
	if e.Addr == nil {
		return nil, &TransferError{Reason: ReasonConnectFailed, Err: errors.New("offer has no source address")}
	}

	addr := net.JoinHostPort(e.Addr.String(), strconv.Itoa(n.cfg.PeerPort))
	return n.fetcher.Request(ctx, addr, e.Offer)
}

// Sessions returns active sessions followed by recently finished ones.
func (n *Node) Sessions() []Session {
	n.mu.RLock()
	out := make([]Session, 0, len(n.active)+len(n.recent))
	for _, s := range n.active {
		out = append(out, s)
	}
	n.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})

	n.mu.RLock()
	out = append(out, n.recent...)
	n.mu.RUnlock()

	return out
}

// CancelSession aborts an active send session.
func (n *Node) CancelSession(id string) bool {
	return n.listener.Cancel(id)
}

func (n *Node) DiscoveryAddr() net.Addr {
	if n.discovery == nil {
		return nil
	}
	return n.discovery.LocalAddr()
}

func (n *Node) TransferAddr() net.Addr {
	return n.listener.Addr()
}

// Wait blocks until the node stops. Cancellation is not an error.
func (n *Node) Wait() error {
	if n.group == nil {
		return nil
	}

	err := n.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	return n.Wait()
}
