package monitor

import (
	"time"

	"coherency/constants"
	"coherency/protocol"

	"go.uber.org/zap"
)

// Option configures a Monitor.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	threshold     uint64
	window        time.Duration
	maxSuspicious int
	maxCPUs       int
	autoCorrect   bool
	alloc         LineAllocator
	clock         func() time.Time
	extensions    protocol.Extension
	eventCapacity int
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		threshold:     constants.DefaultThreshold,
		window:        constants.DefaultDetectionWindow,
		maxSuspicious: constants.DefaultMaxSuspicious,
		maxCPUs:       constants.MaxCPUs,
		autoCorrect:   true,
		alloc:         HeapAllocator{},
		clock:         time.Now,
		eventCapacity: constants.DefaultEventCapacity,
	}
}

// WithLogger sets the diagnostic sink. nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithThreshold sets the detector's access-count threshold.
func WithThreshold(n uint64) Option {
	return func(o *options) { o.threshold = n }
}

// WithDetectionWindow sets the window over which severity recency decays.
func WithDetectionWindow(d time.Duration) Option {
	return func(o *options) { o.window = d }
}

// WithMaxSuspicious bounds the suspicious-line list.
func WithMaxSuspicious(n int) Option {
	return func(o *options) { o.maxSuspicious = n }
}

// WithMaxCPUs sizes the per-CPU barrier slots and detector CPU sets.
// CPU ids are folded modulo this value.
func WithMaxCPUs(n int) Option {
	return func(o *options) { o.maxCPUs = n }
}

// WithAutoCorrection sets the initial auto-correction flag (default on).
func WithAutoCorrection(on bool) Option {
	return func(o *options) { o.autoCorrect = on }
}

// WithAllocator supplies the line table allocator.
func WithAllocator(a LineAllocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithClock replaces time.Now. The clock should carry a monotonic reading.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithExtensions enables protocol edges beyond the normative table.
func WithExtensions(e protocol.Extension) Option {
	return func(o *options) { o.extensions = e }
}

// WithEventCapacity bounds the pending event queue.
func WithEventCapacity(n int) Option {
	return func(o *options) { o.eventCapacity = n }
}
