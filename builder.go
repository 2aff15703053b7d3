package fedAuth

import (
	"context"
	"log/slog"
)

// Builder assembles a [Facade].
//
// Builder instances are intended to be configured during initialization and
// then discarded; Build may be called once.
type Builder struct {
	config    Config
	provider  IdentityProvider
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider shared by every consumer of the
// facade. It is required.
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithLogger sets the structured logger. The default is [slog.Default].
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink the audit dispatcher delivers to. Audit must
// also be enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the token latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, creates the facade and runs its
// initialization protocol: the redirect result is consumed and the provider's
// interaction-status and event streams are subscribed. The returned facade is
// in the loading state until the provider first settles.
func (b *Builder) Build() (*Facade, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	if b.provider == nil {
		return nil, ErrProviderRequired
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	size := cfg.Mailbox.BufferSize

	f := &Facade{
		config:   cfg,
		provider: b.provider,
		logger:   logger.With(slog.String("component", "fedauth")),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),

		state:    Session{IsLoading: true},
		watchers: make(map[uint64]chan Session),

		redirectCh: make(chan redirectMsg, size),
		settleCh:   make(chan struct{}, size),
		sessionCh:  make(chan sessionMsg, size),

		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.built = true
	f.start()

	return f, nil
}
