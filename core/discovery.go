package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Dyastin-0/lanshare/logger"
	"golang.org/x/net/ipv4"
)

const (
	DefaultDiscoveryPort = 41234
	DefaultGroup         = "224.0.0.114"
	DefaultMulticastTTL  = 1

	readRetryMin = 10 * time.Millisecond
	readRetryMax = time.Second
)

var ErrNotListening = errors.New("discovery is not listening")

type DiscoveryConfig struct {
	// Bind is the local address of the discovery socket, e.g. ":41234".
	Bind string
	// Group is where announcements are sent, e.g. "224.0.0.114:41234".
	// A unicast address is accepted and skips the group join.
	Group string
	TTL   int
}

func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Bind:  fmt.Sprintf(":%d", DefaultDiscoveryPort),
		Group: fmt.Sprintf("%s:%d", DefaultGroup, DefaultDiscoveryPort),
		TTL:   DefaultMulticastTTL,
	}
}

// AnnouncementHandler is called for every accepted peer offer, in arrival order.
type AnnouncementHandler func(Entry)

// Discovery owns the announcement socket.
type Discovery struct {
	cfg      DiscoveryConfig
	self     NodeIdentity
	registry *Registry
	log      logger.Logger

	conn      net.PacketConn
	group     *net.UDPAddr
	closeOnce sync.Once

	mu       sync.RWMutex
	handlers []AnnouncementHandler
}

func NewDiscovery(self NodeIdentity, registry *Registry, cfg DiscoveryConfig, log logger.Logger) *Discovery {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultMulticastTTL
	}

	return &Discovery{
		cfg:      cfg,
		self:     self,
		registry: registry,
		log:      log.WithStr("component", "discovery"),
	}
}

// Listen binds the socket and joins the group. Only the bind is fatal.
func (d *Discovery) Listen(ctx context.Context) error {
	group, err := net.ResolveUDPAddr("udp4", d.cfg.Group)
	if err != nil {
		return fmt.Errorf("%w: group %q: %v", ErrDiscoveryBind, d.cfg.Group, err)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = setReuse(fd)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp4", d.cfg.Bind)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDiscoveryBind, d.cfg.Bind, err)
	}

	d.conn = conn
	d.group = group

	if group.IP.IsMulticast() {
		d.join(ipv4.NewPacketConn(conn), group.IP)
	} else {
		d.log.WithStr("group", group.String()).Debug("unicast group, skipping multicast join")
	}

	d.log.WithStr("addr", conn.LocalAddr().String()).
		WithStr("group", group.String()).
		Info("discovery listening")

	return nil
}

func (d *Discovery) join(pc *ipv4.PacketConn, group net.IP) {
	gaddr := &net.UDPAddr{IP: group}

	var joined int
	ifaces, err := net.Interfaces()
	if err == nil {
		for i := range ifaces {
			iface := &ifaces[i]
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
				continue
			}
			if err := pc.JoinGroup(iface, gaddr); err != nil {
				d.log.WithStr("iface", iface.Name).WithErr(err).Debug("join failed on interface")
				continue
			}
			joined++
		}
	}

	if joined == 0 {
		if err := pc.JoinGroup(nil, gaddr); err != nil {
			d.log.WithErr(fmt.Errorf("%w: %v", ErrMulticastJoin, err)).
				WithStr("group", group.String()).
				Warn("running degraded, group traffic may be missed")
		}
	}

	if err := pc.SetMulticastLoopback(true); err != nil {
		d.log.WithErr(err).Debug("failed to enable multicast loopback")
	}
	if err := pc.SetMulticastTTL(d.cfg.TTL); err != nil {
		d.log.WithErr(err).Debug("failed to set multicast ttl")
	}
}

func (d *Discovery) OnAnnouncement(h AnnouncementHandler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Serve reads datagrams until ctx is done or the socket is closed.
func (d *Discovery) Serve(ctx context.Context) error {
	if d.conn == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() {
		d.Close()
	})
	defer stop()

	buf := make([]byte, MaxDatagramSize+1)
	var retry time.Duration
	for {
		n, src, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			retry = min(max(retry*2, readRetryMin), readRetryMax)
			d.log.WithErr(err).WithStr("retry", retry.String()).Warn("read error")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry):
			}
			continue
		}
		retry = 0

		d.handle(buf[:n], src)
	}
}

func (d *Discovery) handle(b []byte, src net.Addr) {
	offer, err := Decode(b)
	if err != nil {
		d.log.WithStr("from", addrString(src)).WithErr(err).Debug("dropping datagram")
		return
	}

	if offer.Sender == d.self {
		return
	}

	var ip net.IP
	if udp, ok := src.(*net.UDPAddr); ok {
		ip = udp.IP
	}

	entry := d.registry.Put(offer, ip)

	d.log.WithStr("sender", offer.Sender.String()).
		WithStr("file", offer.FileName).
		WithInt64("size", offer.FileSize).
		Debug("offer received")

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, h := range handlers {
		h(entry)
	}
}

// Broadcast announces the file at path to the group. A failed send is only
// logged; callers re-broadcast if they want retries.
func (d *Discovery) Broadcast(path string) (Offer, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Offer{}, fmt.Errorf("%w: %v", ErrFileUnavailable, err)
	}
	if stat.IsDir() {
		return Offer{}, fmt.Errorf("%w: %s is a directory", ErrFileUnavailable, path)
	}

	offer := Offer{
		Sender:   d.self,
		FileName: filepath.Base(path),
		FileSize: stat.Size(),
	}

	b, err := Encode(offer)
	if err != nil {
		return Offer{}, err
	}

	if d.conn == nil {
		return Offer{}, ErrNotListening
	}

	if _, err := d.conn.WriteTo(b, d.group); err != nil {
		d.log.WithStr("file", offer.FileName).WithErr(err).Warn("announcement not sent")
	}

	return offer, nil
}

func (d *Discovery) LocalAddr() net.Addr {
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

func (d *Discovery) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.conn != nil {
			err = d.conn.Close()
		}
	})
	return err
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
