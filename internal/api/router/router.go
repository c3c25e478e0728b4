package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/estate-crm/internal/assistant"
	"github.com/wolfman30/estate-crm/internal/auth"
	"github.com/wolfman30/estate-crm/internal/calls"
	"github.com/wolfman30/estate-crm/internal/channels"
	httpmiddleware "github.com/wolfman30/estate-crm/internal/http/middleware"
	"github.com/wolfman30/estate-crm/internal/http/respond"
	"github.com/wolfman30/estate-crm/internal/inbox"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes
// unmounted.
type Config struct {
	Logger             *logging.Logger
	Resolver           auth.Resolver
	LeadsHandler       *leads.Handler
	InboxHandler       *inbox.Handler
	CallsHandler       *calls.Handler
	AssistantHandler   *assistant.Handler
	InstagramWebhook   http.Handler
	WhatsAppWebhook    http.Handler
	InstagramVerify    string
	WhatsAppVerify     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.OK(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Provider webhooks authenticate by signature, not by caller.
	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst))
		}
		if cfg.InstagramWebhook != nil {
			hooks.Get("/instagram", channels.HandshakeHandler(cfg.InstagramVerify))
			hooks.Method(http.MethodPost, "/instagram", cfg.InstagramWebhook)
		}
		if cfg.WhatsAppWebhook != nil {
			hooks.Get("/whatsapp", channels.HandshakeHandler(cfg.WhatsAppVerify))
			hooks.Method(http.MethodPost, "/whatsapp", cfg.WhatsAppWebhook)
		}
		if cfg.LeadsHandler != nil {
			hooks.Post("/forms", cfg.LeadsHandler.FormWebhook)
		}
		if cfg.CallsHandler != nil {
			hooks.Post("/telephony/calls", cfg.CallsHandler.Callback)
		}
	})

	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.RequireCaller(cfg.Resolver))

		if cfg.LeadsHandler != nil {
			api.Get("/leads/{id}", cfg.LeadsHandler.GetLead)
			api.Put("/pipelines/{id}/stages/order", cfg.LeadsHandler.ReorderStages)
		}
		if cfg.InboxHandler != nil {
			api.Get("/inbox", cfg.InboxHandler.List)
			api.Post("/inbox/messages", cfg.InboxHandler.Send)
			api.Post("/inbox/accounts", cfg.InboxHandler.Connect)
		}
		if cfg.CallsHandler != nil {
			api.Post("/calls", cfg.CallsHandler.PlaceCall)
		}
		if cfg.AssistantHandler != nil {
			api.Post("/ai/chat", cfg.AssistantHandler.Chat)
		}
	})

	return r
}
