package pagekit

import (
	"time"

	"go.uber.org/zap"
)

// DefaultResolveTimeout bounds a single permission resolution.
const DefaultResolveTimeout = 5 * time.Second

type options struct {
	timeout time.Duration
	logger  *zap.Logger
	cache   PermissionCache
	metrics *Metrics
}

// Option configures a Resolver or a Service.
type Option func(*options)

func defaultOptions() options {
	return options{
		timeout: DefaultResolveTimeout,
		logger:  zap.NewNop(),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout bounds each resolution. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCache enables memoization of resolved permissions per (user, page).
func WithCache(cache PermissionCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithMetrics exports resolution metrics to Prometheus.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}
