// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ CORE-PINNED CONSUMER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Dedicated Ring Draining Goroutine
//
// Description:
//   Launches a goroutine locked to its OS thread and, where the platform allows,
//   bound to one core. It drains a ring with adaptive polling: a continuous
//   spin while the producer is hot or an entry arrived within the hot window,
//   then a cpuRelax every spinBudget misses. Both phases yield periodically
//   so the producer still runs when proxies outnumber processors.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package ring

import (
	"runtime"
	"time"
)

const (
	// hotWindow keeps the consumer spinning after its last entry.
	hotWindow = 50 * time.Millisecond

	// spinBudget is the number of failed polls before a relax hint.
	spinBudget = 224

	// yieldEvery bounds how many relax hints pass before the goroutine
	// yields, so an unpinned consumer on a busy GOMAXPROCS never starves
	// the producer.
	yieldEvery = 64

	// hotYield is the number of failed polls in the hot spin between yields.
	hotYield = 256
)

// ConsumerOptions configures PinnedConsumer.
type ConsumerOptions struct {
	Core int  // target core; negative disables pinning
	Poll bool // call ctl.PollCooldown while idle
}

// PinnedConsumer drains r on a dedicated goroutine, calling handler for each
// entry, until ctl is shut down and the ring is empty. done is closed on
// exit. pinned receives whether the core binding took effect; it may be nil.
func PinnedConsumer(r *Ring, ctl *Control, opts ConsumerOptions, handler func(Entry), pinned chan<- bool, done chan<- struct{}) {
	go func() {
		runtime.LockOSThread()
		ok := opts.Core >= 0 && setAffinity(opts.Core)
		if pinned != nil {
			pinned <- ok
		}

		// A pinned thread is left locked so it exits with the goroutine
		// instead of rejoining the scheduler with a one-core mask.
		defer func() {
			if !ok {
				runtime.UnlockOSThread()
			}
			close(done)
		}()

		var miss, relaxed, hot int
		lastHit := time.Now()

		for {
			if e, ok := r.Pop(); ok {
				handler(e)
				miss, hot = 0, 0
				lastHit = time.Now()
				continue
			}

			// Drain before honouring shutdown so nothing queued is lost.
			if ctl.Stopped() {
				return
			}

			if opts.Poll {
				ctl.PollCooldown()
			}

			if ctl.Hot() || time.Since(lastHit) <= hotWindow {
				if hot++; hot >= hotYield {
					hot = 0
					runtime.Gosched()
				}
				continue
			}

			if miss++; miss >= spinBudget {
				miss = 0
				cpuRelax()
				if relaxed++; relaxed >= yieldEvery {
					relaxed = 0
					runtime.Gosched()
				}
			}
		}
	}()
}
