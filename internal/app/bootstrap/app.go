package bootstrap

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/estate-crm/internal/api/router"
	"github.com/wolfman30/estate-crm/internal/assistant"
	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/calls"
	"github.com/wolfman30/estate-crm/internal/calls/telephony"
	"github.com/wolfman30/estate-crm/internal/channels"
	"github.com/wolfman30/estate-crm/internal/channels/instagram"
	"github.com/wolfman30/estate-crm/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/estate-crm/internal/config"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/intake"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/internal/observability/metrics"
	"github.com/wolfman30/estate-crm/internal/store"
	"github.com/wolfman30/estate-crm/internal/worker/health"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// Deps are the process-level clients constructed by main. Pool, Redis and
// AWS are optional; without a pool every entity lives in memory.
type Deps struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	AWS        *aws.Config
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// App is the wired application.
type App struct {
	Handler   http.Handler
	Registry  *store.Registry
	Deliverer *events.Deliverer
	Poller    *health.Poller
	closers   []func()
}

// Run starts the background workers and blocks until ctx is done.
func (a *App) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	workers := 0
	if a.Deliverer != nil {
		workers++
		go func() { a.Deliverer.Start(ctx); done <- struct{}{} }()
	}
	if a.Poller != nil {
		workers++
		go func() { a.Poller.Run(ctx); done <- struct{}{} }()
	}
	<-ctx.Done()
	for i := 0; i < workers; i++ {
		<-done
	}
}

// Close releases resources opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// DefaultPipeline seeds the in-memory runtime.
func DefaultPipeline() leads.Pipeline {
	return leads.Pipeline{
		ID:        "default",
		Name:      "Sales",
		IsDefault: true,
		Stages: []leads.Stage{
			{ID: "new", PipelineID: "default", Name: "New", Order: 0},
			{ID: "contacted", PipelineID: "default", Name: "Contacted", Order: 1},
			{ID: "viewing", PipelineID: "default", Name: "Viewing", Order: 2},
			{ID: "negotiation", PipelineID: "default", Name: "Negotiation", Order: 3},
			{ID: "closed", PipelineID: "default", Name: "Closed", Order: 4},
		},
	}
}

// Build wires every component in dependency order.
func Build(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{}

	var (
		registry  *store.Registry
		publisher events.Publisher
		deduper   events.Deduper
		outbox    *events.OutboxStore
	)
	if deps.Pool != nil {
		registry = store.NewPostgres(deps.Pool)
		outbox = events.NewOutboxStore(deps.Pool)
		publisher = outbox
		deduper = events.NewProcessedStore(deps.Pool)
	} else {
		logger.Warn("no database configured; using in-memory stores")
		registry = store.NewMemory(DefaultPipeline())
		publisher = events.NewMemoryPublisher()
		deduper = events.NewMemoryProcessedStore()
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	app.Registry = registry

	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	crmMetrics := metrics.NewCRMMetrics(reg)

	auditService, auditDB := BuildAuditService(deps.Pool)
	if auditDB != nil {
		app.closers = append(app.closers, func() { _ = auditDB.Close() })
	}

	// Leads
	engine := leads.NewEngine(registry.Leads, logger).WithPublisher(publisher).WithMetrics(crmMetrics)
	if auditService != nil {
		engine.WithAuditor(auditService)
	}
	leadsHandler := leads.NewHandler(engine, registry.Leads, registry.Pipelines,
		channels.NewVerifier(cfg.FormWebhookSecret), deduper, logger)

	// Inbox
	inboxService := inbox.NewService(registry.Messages, registry.Accounts, logger).
		WithAdapter(channels.ChannelInstagram, inbox.NewInstagramAdapter(instagram.NewClient(cfg.GraphAPIBase, nil))).
		WithAdapter(channels.ChannelWhatsApp, inbox.NewWhatsAppAdapter(whatsapp.NewClient(cfg.WhatsAppAPIBase, nil))).
		WithPublisher(publisher).
		WithMetrics(crmMetrics)

	igWebhook := intake.NewChannelWebhook(channels.ChannelInstagram, channels.NewVerifier(cfg.InstagramAppSecret),
		instagram.NewNormalizer(logger), inboxService, deduper, logger).WithMetrics(crmMetrics)
	waWebhook := intake.NewChannelWebhook(channels.ChannelWhatsApp, channels.NewVerifier(cfg.WhatsAppAppSecret),
		whatsapp.NewNormalizer(logger), inboxService, deduper, logger).
		WithLeadIntake(engine).
		WithMetrics(crmMetrics)

	// Calls
	var placer calls.Placer
	telephonyClient, err := telephony.NewClient(telephony.Config{
		BaseURL:   cfg.TelephonyBaseURL,
		APIKey:    cfg.TelephonyAPIKey,
		APISecret: cfg.TelephonyAPISecret,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("telephony disabled", "error", err)
	} else {
		placer = telephonyClient
	}
	manager := calls.NewManager(registry.Calls, placer, registry.Leads, cfg.TelephonyFromNumber, logger).
		WithPublisher(publisher).
		WithMetrics(crmMetrics)
	if auditService != nil {
		manager.WithAuditor(auditService)
	}

	// Assistant
	providers, closeProviders := BuildProviders(ctx, cfg, deps.AWS, logger)
	app.closers = append(app.closers, closeProviders)
	contextBuilder := assistant.NewContextBuilder(registry.Leads, registry.Messages, registry.Accounts, logger)
	if deps.Redis != nil {
		contextBuilder.WithCache(deps.Redis, cfg.AIContextCacheTTL)
	}
	orchestrator := assistant.NewOrchestrator(providers, contextBuilder, logger).WithMetrics(crmMetrics)

	// Background workers
	if outbox != nil && cfg.OutboxEnabled {
		var handler events.DeliveryHandler = events.NewLogHandler(logger)
		if deps.AWS != nil && cfg.OutboxQueueURL != "" {
			handler = events.NewSQSHandler(sqs.NewFromConfig(*deps.AWS), cfg.OutboxQueueURL)
		}
		app.Deliverer = events.NewDeliverer(outbox, handler, logger).WithInterval(cfg.OutboxInterval)
	}
	if cfg.HealthPollEnabled {
		app.Poller = health.NewPoller(registry.Accounts, inboxService, logger).
			WithInterval(cfg.HealthPollInterval).
			WithMetrics(crmMetrics)
	}

	var metricsHandler http.Handler
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Resolver:           auth.NewJWTResolver(cfg.JWTSecret),
		LeadsHandler:       leadsHandler,
		InboxHandler:       inbox.NewHandler(inboxService, logger),
		CallsHandler:       calls.NewHandler(manager, cfg.TelephonyWebhookSecret, logger),
		AssistantHandler:   assistant.NewHandler(orchestrator, logger),
		InstagramWebhook:   igWebhook,
		WhatsAppWebhook:    waWebhook,
		InstagramVerify:    cfg.InstagramVerifyToken,
		WhatsAppVerify:     cfg.WhatsAppVerifyToken,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})
	return app, nil
}
