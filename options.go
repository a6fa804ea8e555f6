package fdloop

// loopConfig holds configuration resolved from LoopOption values.
type loopConfig struct {
	backend Backend
	logger  *logger
	metrics bool
}

// LoopOption configures a Loop at construction time.
type LoopOption interface {
	applyLoop(*loopConfig)
}

type loopOptionFunc func(*loopConfig)

func (f loopOptionFunc) applyLoop(c *loopConfig) { f(c) }

// WithBackend overrides the default epoll Backend, e.g. with a fake
// readiness source for tests that don't want to touch the kernel.
func WithBackend(b Backend) LoopOption {
	return loopOptionFunc(func(c *loopConfig) { c.backend = b })
}

// WithLogger attaches a structured logger to the Loop. Without this
// option, the Loop logs nothing.
func WithLogger(l *logger) LoopOption {
	return loopOptionFunc(func(c *loopConfig) { c.logger = l })
}

// WithMetrics enables dispatch-latency percentile tracking on the Loop,
// accessible via Loop.Metrics.
func WithMetrics(enabled bool) LoopOption {
	return loopOptionFunc(func(c *loopConfig) { c.metrics = enabled })
}

func resolveLoopOptions(opts []LoopOption) *loopConfig {
	cfg := &loopConfig{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.applyLoop(cfg)
	}
	return cfg
}
