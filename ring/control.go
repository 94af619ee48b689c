// control.go — Activity and shutdown flags shared by a set of pinned consumers
//
// The producer marks activity with SignalActivity; consumers stay in the hot
// spin while the flag is up and PollCooldown clears it after an idle period.
// Shutdown is one-way.

package ring

import (
	"sync/atomic"
	"time"
)

// DefaultCooldown is the idle period after which the hot flag drops.
const DefaultCooldown = time.Second

// Control coordinates the consumers draining a family of rings.
type Control struct {
	hot      atomic.Uint32
	stop     atomic.Uint32
	lastHot  atomic.Int64 // unix ns of the last SignalActivity
	cooldown int64
}

// NewControl returns flags with the given cooldown; zero means DefaultCooldown.
func NewControl(cooldown time.Duration) *Control {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Control{cooldown: int64(cooldown)}
}

// SignalActivity raises the hot flag and stamps the activity time.
func (c *Control) SignalActivity() {
	c.lastHot.Store(time.Now().UnixNano())
	c.hot.Store(1)
}

// PollCooldown clears the hot flag once the cooldown has elapsed since the
// last activity.
func (c *Control) PollCooldown() {
	if c.hot.Load() == 1 && time.Now().UnixNano()-c.lastHot.Load() > c.cooldown {
		c.hot.Store(0)
	}
}

// Hot reports whether the producer is marked active.
func (c *Control) Hot() bool { return c.hot.Load() == 1 }

// Shutdown asks every consumer to exit.
func (c *Control) Shutdown() { c.stop.Store(1) }

// Stopped reports whether Shutdown was called.
func (c *Control) Stopped() bool { return c.stop.Load() == 1 }
