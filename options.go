package bchan

type chanConfig struct {
	logger Logger
}

// Option configures a Chan at construction time.
type Option func(*chanConfig)

// WithLogger attaches a structured tracer to a channel. Every channel is
// silent by default (see discardLogger); pass a *logrus.Logger or
// *logrus.Entry here to observe its lifecycle at Debug level.
func WithLogger(l Logger) Option {
	return func(cfg *chanConfig) {
		cfg.logger = l
	}
}
