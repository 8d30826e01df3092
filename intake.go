package webhookintake

import (
	"context"
	"time"

	"github.com/goliatone/go-webhook-intake/breaker"
	"github.com/goliatone/go-webhook-intake/core"
	"github.com/goliatone/go-webhook-intake/deadletter"
	"github.com/goliatone/go-webhook-intake/dispatch"
	"github.com/goliatone/go-webhook-intake/intake"
	"github.com/goliatone/go-webhook-intake/retry"
	"github.com/goliatone/go-webhook-intake/sla"
)

type Config = core.Config

type InboundEvent = core.InboundEvent
type IntakeResult = core.IntakeResult
type RetryStats = core.RetryStats
type DeliveryAttempt = core.DeliveryAttempt
type DeadLetterRecord = core.DeadLetterRecord
type BreakerSnapshot = core.BreakerSnapshot
type SLAConfig = core.SLAConfig
type SLAStatus = core.SLAStatus
type HandlerError = core.HandlerError

type SignatureVerifier = core.SignatureVerifier
type EventHandler = core.EventHandler
type EscalationHook = core.EscalationHook
type ViolationReporter = core.ViolationReporter
type MetricsRecorder = core.MetricsRecorder

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Engine bundles the wired intake collaborators. The coordinator is the
// entry point for submissions; the registry is where callers hang their
// per-provider verifiers and handlers.
type Engine struct {
	Coordinator *intake.Coordinator
	Registry    *dispatch.Registry
	Breaker     *breaker.Registry
	Scheduler   *retry.Scheduler
	Sink        *deadletter.Sink
	Monitor     *sla.Monitor
	Poller      *intake.RetryPoller

	cfg Config
}

type Option func(*engineOptions)

type engineOptions struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metrics         core.MetricsRecorder
	attemptStore    core.DeliveryAttemptStore
	retryQueue      core.RetryQueue
	deadLetters     core.DeadLetterStore
	escalation      core.EscalationHook
	reporter        core.ViolationReporter
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
}

func WithLogger(logger core.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *engineOptions) { o.loggerProvider = provider }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *engineOptions) { o.metrics = metrics }
}

func WithDeliveryAttemptStore(store core.DeliveryAttemptStore) Option {
	return func(o *engineOptions) { o.attemptStore = store }
}

func WithRetryQueue(queue core.RetryQueue) Option {
	return func(o *engineOptions) { o.retryQueue = queue }
}

func WithDeadLetterStore(store core.DeadLetterStore) Option {
	return func(o *engineOptions) { o.deadLetters = store }
}

func WithEscalationHook(hook core.EscalationHook) Option {
	return func(o *engineOptions) { o.escalation = hook }
}

func WithViolationReporter(reporter core.ViolationReporter) Option {
	return func(o *engineOptions) { o.reporter = reporter }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *engineOptions) { o.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *engineOptions) { o.optionsResolver = resolver }
}

// New wires a complete intake engine. The config argument is the runtime
// layer; defaults and provider-loaded values are merged beneath it before
// validation. The delivery attempt store must be injected; the retry queue
// and dead letter store default to in-memory collaborators when not
// provided.
func New(cfg Config, opts ...Option) (*Engine, error) {
	options := engineOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	configProvider := options.configProvider
	if configProvider == nil {
		configProvider = core.NewCfgxConfigProvider(nil)
	}
	resolver := options.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, core.DefaultErrorMapper(err)
	}
	cfg, err = resolver.Resolve(defaults, loaded, cfg)
	if err != nil {
		return nil, core.DefaultErrorMapper(err)
	}

	_, logger := core.ResolveLogger(cfg.ServiceName, options.loggerProvider, options.logger)
	metrics := options.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	attemptStore := options.attemptStore
	queue := options.retryQueue
	if queue == nil {
		queue = retry.NewMemoryQueue()
	}
	deadLetterStore := options.deadLetters
	if deadLetterStore == nil {
		deadLetterStore = deadletter.NewMemoryStore()
	}

	backoff := retry.NewExponentialBackoff(
		time.Duration(cfg.Backoff.InitialDelayMs)*time.Millisecond,
		time.Duration(cfg.Backoff.MaxDelayMs)*time.Millisecond,
		cfg.Backoff.BackoffMultiplier,
		time.Duration(cfg.Backoff.JitterMaxMs)*time.Millisecond,
	)
	scheduler := retry.NewScheduler(backoff, queue)

	gate := breaker.NewRegistry(cfg.Breaker.Threshold, cfg.BreakerTimeout())

	registry := dispatch.NewRegistry()
	dispatcher := dispatch.NewDispatcher(registry, cfg.DispatchTimeout())
	dispatcher.Logger = logger
	dispatcher.Metrics = metrics

	sink := deadletter.NewSink(deadLetterStore, options.escalation)
	sink.Logger = logger
	sink.Metrics = metrics

	coordinator, err := intake.NewCoordinator(intake.Dependencies{
		Store:       attemptStore,
		Scheduler:   scheduler,
		Gate:        gate,
		Dispatcher:  dispatcher,
		Sink:        sink,
		DeadLetters: deadLetterStore,
		Logger:      logger,
		Metrics:     metrics,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	monitor := sla.NewMonitor(attemptStore, options.reporter)
	monitor.Logger = logger
	monitor.Metrics = metrics

	poller := intake.NewRetryPoller(coordinator, cfg.RetryPollInterval(), cfg.RetryPoll.BatchSize)
	poller.Logger = logger
	poller.Metrics = metrics

	return &Engine{
		Coordinator: coordinator,
		Registry:    registry,
		Breaker:     gate,
		Scheduler:   scheduler,
		Sink:        sink,
		Monitor:     monitor,
		Poller:      poller,
		cfg:         cfg,
	}, nil
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.cfg
}
