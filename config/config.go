// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ SIMULATOR CONFIGURATION
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: JSON Config Overlay
//
// Description:
//   A config file names only the keys it changes; everything else keeps the
//   value from Default(). Monitor() and ProxyOptions() translate the result
//   into the option sets of the packages that consume it.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"coherency/constants"
	"coherency/debug"
	"coherency/monitor"
	"coherency/protocol"
	"coherency/proxy"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
)

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full simulator configuration.
type Config struct {
	Protocol      string   `json:"protocol"`
	CacheSize     int      `json:"cache_size"` // bytes
	Threshold     uint64   `json:"threshold"`
	WindowMs      int64    `json:"detection_window_ms"`
	MaxSuspicious int      `json:"max_suspicious"`
	MaxCPUs       int      `json:"max_cpus"`
	AutoCorrect   bool     `json:"auto_correct"`
	Extensions    []string `json:"extensions"` // remote-read, owner-upgrade, all
	EventCapacity int      `json:"event_capacity"`

	RingSize   int   `json:"ring_size"`
	Pin        bool  `json:"pin"`
	CooldownMs int64 `json:"cooldown_ms"`

	DB          string `json:"db"`
	MetricsAddr string `json:"metrics_addr"`

	Log debug.Options `json:"log"`
}

// Default returns the baseline every file is overlaid on.
func Default() Config {
	return Config{
		Protocol:      protocol.MESI.String(),
		CacheSize:     1 << 20,
		Threshold:     constants.DefaultThreshold,
		WindowMs:      constants.DefaultDetectionWindow.Milliseconds(),
		MaxSuspicious: constants.DefaultMaxSuspicious,
		MaxCPUs:       64,
		AutoCorrect:   true,
		EventCapacity: constants.DefaultEventCapacity,
		RingSize:      4096,
		Pin:           true,
		CooldownMs:    1000,
		DB:            "cohsim.db",
		Log:           debug.DefaultOptions(),
	}
}

// Load reads path and overlays it on Default(). An empty path returns the
// defaults. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := sonnet.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges the monitor and proxies would otherwise reject at
// construction, so a bad file fails before any work starts.
func (c Config) Validate() error {
	if _, err := protocol.ParseProtocol(c.Protocol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if lines := c.CacheSize / constants.LineSize; lines < 1 || lines > constants.MaxCacheLines {
		return fmt.Errorf("%w: cache_size %d", ErrInvalid, c.CacheSize)
	}
	if c.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalid)
	}
	if c.WindowMs <= 0 {
		return fmt.Errorf("%w: detection_window_ms %d", ErrInvalid, c.WindowMs)
	}
	if c.MaxSuspicious <= 0 {
		return fmt.Errorf("%w: max_suspicious %d", ErrInvalid, c.MaxSuspicious)
	}
	if c.MaxCPUs <= 0 || c.MaxCPUs > constants.MaxCPUs {
		return fmt.Errorf("%w: max_cpus %d, want 1..%d", ErrInvalid, c.MaxCPUs, constants.MaxCPUs)
	}
	if c.EventCapacity <= 0 {
		return fmt.Errorf("%w: event_capacity %d", ErrInvalid, c.EventCapacity)
	}
	if c.RingSize <= 0 || c.RingSize&(c.RingSize-1) != 0 {
		return fmt.Errorf("%w: ring_size %d is not a power of two", ErrInvalid, c.RingSize)
	}
	if c.CooldownMs < 0 {
		return fmt.Errorf("%w: cooldown_ms %d", ErrInvalid, c.CooldownMs)
	}
	if _, err := c.extensions(); err != nil {
		return err
	}
	return nil
}

// ProtocolValue returns the parsed protocol. Call after Validate.
func (c Config) ProtocolValue() protocol.Protocol {
	p, _ := protocol.ParseProtocol(c.Protocol)
	return p
}

func (c Config) extensions() (protocol.Extension, error) {
	var ext protocol.Extension
	for _, name := range c.Extensions {
		switch name {
		case "remote-read":
			ext |= protocol.ExtRemoteRead
		case "owner-upgrade":
			ext |= protocol.ExtOwnerUpgrade
		case "all":
			ext |= protocol.ExtAll
		default:
			return 0, fmt.Errorf("%w: unknown extension %q", ErrInvalid, name)
		}
	}
	return ext, nil
}

// Monitor returns the monitor options c describes.
func (c Config) Monitor(log *zap.Logger) []monitor.Option {
	ext, _ := c.extensions()
	return []monitor.Option{
		monitor.WithLogger(log),
		monitor.WithThreshold(c.Threshold),
		monitor.WithDetectionWindow(time.Duration(c.WindowMs) * time.Millisecond),
		monitor.WithMaxSuspicious(c.MaxSuspicious),
		monitor.WithMaxCPUs(c.MaxCPUs),
		monitor.WithAutoCorrection(c.AutoCorrect),
		monitor.WithExtensions(ext),
		monitor.WithEventCapacity(c.EventCapacity),
	}
}

// ProxyOptions returns the proxy group options c describes.
func (c Config) ProxyOptions(log *zap.Logger) proxy.Options {
	return proxy.Options{
		RingSize: c.RingSize,
		Pin:      c.Pin,
		Cooldown: time.Duration(c.CooldownMs) * time.Millisecond,
		Logger:   log,
	}
}
