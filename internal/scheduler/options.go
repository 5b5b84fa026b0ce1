package scheduler

import (
	"log/slog"
	"time"
)

// DefaultDepth is the number of chunks a worker may have outstanding.
const DefaultDepth = 3

// Option configures a Controller or Worker. Both sides of a run must agree
// on the depth.
type Option func(*options)

type options struct {
	depth          int
	logger         *slog.Logger
	metrics        *Metrics
	receiveTimeout time.Duration
}

func buildOptions(opts []Option) options {
	o := options{depth: DefaultDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}

// WithDepth overrides the pipeline depth.
func WithDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.depth = depth
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReceiveTimeout makes the controller give up with ErrWorkerStalled when
// no worker message arrives within d. Zero (the default) waits forever.
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *options) { o.receiveTimeout = d }
}
