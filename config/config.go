// Package config loads node settings from defaults, an optional TOML file
// and command line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Dyastin-0/lanshare/core"
)

const (
	defaultDir     = "lanshare/received"
	defaultLogPath = "lanshare/logs/lanshare.log"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	// Identity overrides the hardware address, e.g. to run several nodes
	// on one host.
	Identity string `toml:"identity"`

	DiscoveryBind string `toml:"discovery_bind"`
	Group         string `toml:"group"`
	TTL           int    `toml:"ttl"`

	TransferAddr string `toml:"transfer_addr"`
	PeerPort     int    `toml:"peer_port"`

	RequestTimeout Duration `toml:"request_timeout"`
	DialTimeout    Duration `toml:"dial_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`

	MaxOffers int      `toml:"max_offers"`
	OfferTTL  Duration `toml:"offer_ttl"`

	Dir      string `toml:"dir"`
	LogPath  string `toml:"log_path"`
	LogLevel string `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		DiscoveryBind:  fmt.Sprintf(":%d", core.DefaultDiscoveryPort),
		Group:          fmt.Sprintf("%s:%d", core.DefaultGroup, core.DefaultDiscoveryPort),
		TTL:            core.DefaultMulticastTTL,
		TransferAddr:   fmt.Sprintf(":%d", core.DefaultTransferPort),
		PeerPort:       core.DefaultTransferPort,
		RequestTimeout: Duration{core.RequestTimeout},
		DialTimeout:    Duration{core.DialTimeout},
		IdleTimeout:    Duration{core.IdleTimeout},
		MaxOffers:      core.DefaultMaxOffers,
		OfferTTL:       Duration{core.DefaultOfferTTL},
		Dir:            homePath(defaultDir),
		LogPath:        homePath(defaultLogPath),
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	return cfg, cfg.Validate()
}

// Find loads path, or the default config file when path is empty and one
// exists.
func Find(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	if _, err := os.Stat(DefaultPath()); err == nil {
		return Load(DefaultPath())
	}

	return Default(), nil
}

// Write stores cfg as TOML at path.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

func (c *Config) Validate() error {
	if c.Identity != "" {
		if _, err := core.StaticIdentity(c.Identity).Resolve(); err != nil {
			return fmt.Errorf("%w: identity: %v", ErrInvalidConfig, err)
		}
	}

	for name, addr := range map[string]string{
		"discovery_bind": c.DiscoveryBind,
		"group":          c.Group,
		"transfer_addr":  c.TransferAddr,
	} {
		if _, port, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		} else if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("%w: %s: bad port %q", ErrInvalidConfig, name, port)
		}
	}

	if c.PeerPort <= 0 || c.PeerPort > 65535 {
		return fmt.Errorf("%w: peer_port %d", ErrInvalidConfig, c.PeerPort)
	}
	if c.TTL < 1 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d", ErrInvalidConfig, c.TTL)
	}
	if c.MaxOffers < 0 {
		return fmt.Errorf("%w: max_offers %d", ErrInvalidConfig, c.MaxOffers)
	}
	if c.RequestTimeout.Duration < 0 || c.DialTimeout.Duration < 0 || c.IdleTimeout.Duration < 0 || c.OfferTTL.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.OfferTTL.Duration > 0 && c.OfferTTL.Duration < core.MinOfferTTL {
		return fmt.Errorf("%w: offer_ttl %s is below %s", ErrInvalidConfig, c.OfferTTL, core.MinOfferTTL)
	}

	return nil
}

// Resolver returns the configured identity, or the hardware one.
func (c *Config) Resolver() core.IdentityResolver {
	if c.Identity != "" {
		return core.StaticIdentity(c.Identity)
	}
	return core.NewHardwareResolver()
}

func (c *Config) Node() core.NodeConfig {
	return core.NodeConfig{
		Discovery: core.DiscoveryConfig{
			Bind:  c.DiscoveryBind,
			Group: c.Group,
			TTL:   c.TTL,
		},
		Listener: core.ListenerConfig{
			Addr:           c.TransferAddr,
			RequestTimeout: c.RequestTimeout.Duration,
		},
		Fetcher: core.FetcherConfig{
			DialTimeout: c.DialTimeout.Duration,
			IdleTimeout: c.IdleTimeout.Duration,
		},
		PeerPort:  c.PeerPort,
		MaxOffers: c.MaxOffers,
		OfferTTL:  c.OfferTTL.Duration,
	}
}

// DefaultPath is where the config file is looked up when no path is given.
func DefaultPath() string {
	return homePath("lanshare/config.toml")
}

func homePath(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "./"
	}
	return filepath.Join(home, rel)
}
