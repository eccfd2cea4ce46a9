package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/moving-call-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/moving-call-relay/internal/http/middleware"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes
// unregistered.
type Config struct {
	Logger          *logging.Logger
	Service         *handlers.ServiceHandler
	Dialpad         *handlers.DialpadWebhookHandler
	Twilio          *handlers.TwilioVoiceHandler
	Audio           *handlers.AudioHandler
	Admin           *handlers.AdminCallsHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	// WebhookLimiter throttles provider webhooks per client IP.
	WebhookLimiter *httpmiddleware.RateLimiter
	Metrics        *metrics.RelayMetrics
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Service == nil {
		cfg.Service = handlers.NewServiceHandler(cfg.Logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", cfg.Service.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Provider webhooks
	r.Group(func(hooks chi.Router) {
		hooks.Use(httpmiddleware.RecoverWebhook(cfg.Logger))
		if cfg.WebhookLimiter != nil {
			hooks.Use(cfg.WebhookLimiter.MiddlewareWith(
				httpmiddleware.ThrottledWebhookReply(cfg.Logger, cfg.Metrics.IncThrottled),
			))
		}
		hooks.Post("/webhook/test", cfg.Service.WebhookTest)
		if cfg.Dialpad != nil {
			hooks.Post("/", cfg.Dialpad.Root)
			hooks.Post("/webhook/call-routing", cfg.Dialpad.CallRouting)
			hooks.Post("/webhook/incoming-call", cfg.Dialpad.IncomingCall)
			hooks.Post("/webhook/speech", cfg.Dialpad.Speech)
			hooks.Post("/webhook", cfg.Dialpad.Generic)
		}
		if cfg.Twilio != nil {
			hooks.Route("/twilio", func(tw chi.Router) {
				tw.Post("/voice", cfg.Twilio.Voice)
				tw.Post("/speech", cfg.Twilio.Speech)
				tw.Post("/status", cfg.Twilio.Status)
			})
		}
	})

	if cfg.Audio != nil {
		r.Group(func(media chi.Router) {
			media.Use(middleware.Recoverer)
			if cfg.WebhookLimiter != nil {
				media.Use(cfg.WebhookLimiter.Middleware)
			}
			media.Get("/audio/{clip}", cfg.Audio.Serve)
		})
	}

	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.Recoverer)
			admin.Use(middleware.Compress(5))
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			admin.Get("/calls", cfg.Admin.ListCalls)
			admin.Route("/calls/{callID}", func(call chi.Router) {
				call.Get("/", cfg.Admin.GetCall)
				// Stepping into a live call is for dispatchers only.
				call.Group(func(live chi.Router) {
					live.Use(httpmiddleware.RequireRole(httpmiddleware.RoleDispatcher))
					live.Delete("/", cfg.Admin.DeleteCall)
					live.Post("/transfer", cfg.Admin.TransferCall)
					live.Post("/say", cfg.Admin.SayToCall)
				})
			})
			admin.Get("/handoffs", cfg.Admin.ListHandoffs)
			admin.Get("/handoffs/{callID}", cfg.Admin.GetHandoff)
		})
	}

	r.NotFound(cfg.Service.CatchAll)
	r.MethodNotAllowed(cfg.Service.CatchAll)
	return r
}
