package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/moving-call-relay/cmd/mainconfig"
	"github.com/wolfman30/moving-call-relay/internal/api/router"
	"github.com/wolfman30/moving-call-relay/internal/app/bootstrap"
	"github.com/wolfman30/moving-call-relay/internal/callgraph"
	appconfig "github.com/wolfman30/moving-call-relay/internal/config"
	"github.com/wolfman30/moving-call-relay/internal/conversation"
	"github.com/wolfman30/moving-call-relay/internal/handoff"
	"github.com/wolfman30/moving-call-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/moving-call-relay/internal/http/middleware"
	"github.com/wolfman30/moving-call-relay/internal/observability/metrics"
	"github.com/wolfman30/moving-call-relay/internal/relay"
	"github.com/wolfman30/moving-call-relay/internal/telephony"
	"github.com/wolfman30/moving-call-relay/internal/twiliovoice"
	"github.com/wolfman30/moving-call-relay/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting moving-call-relay server",
		"env", cfg.Env,
		"port", cfg.Port,
		"handoff_store", cfg.HandoffStore,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := buildApp(ctx, cfg, logger, newMetricsRegistry())
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer application.cleanup()

	background := application.startBackground(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	background.Wait()
	application.drain()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler   http.Handler
	registry  *callgraph.Registry
	engine    *conversation.Engine
	dialpad   *relay.Dispatcher
	twilio    *relay.Dispatcher
	sweeper   *callgraph.Sweeper
	limiter   *httpmiddleware.RateLimiter
	closeFunc []func()
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildApp wires every component from cfg. reg receives all relay metrics
// and is served on /metrics.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	relayMetrics := metrics.NewRelayMetrics(reg)

	registry := callgraph.NewRegistry(
		callgraph.WithStrictTransitions(cfg.StrictStateTransitions),
		callgraph.WithLogger(logger),
	)
	metrics.RegisterActiveConversations(reg, registry.Len)
	a.registry = registry

	handoffs, err := buildHandoffStore(ctx, cfg, logger, a)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	openaiClient := bootstrap.BuildOpenAIClient(cfg)
	completer := bootstrap.BuildCompleter(cfg, openaiClient, logger)
	synth := bootstrap.BuildSynthesizer(cfg, openaiClient, logger)

	engineCfg := conversation.EngineConfig{
		Registry:    registry,
		Completer:   completer,
		Handoffs:    handoffs,
		Metrics:     relayMetrics,
		Logger:      logger,
		SaveTimeout: cfg.HandoffSaveTimeout,
	}
	if alerter := bootstrap.BuildHandoffAlerter(cfg, logger); alerter != nil {
		engineCfg.Notifier = alerter
	}
	a.engine = conversation.NewEngine(engineCfg)

	audio := telephony.NewAudioCache(10 * time.Minute)
	actions := bootstrap.BuildTelephonyActions(cfg, audio, relayMetrics, logger)

	greeting := relay.Greeting(cfg.CompanyName)
	connected := relay.ConnectedGreeting(cfg.CompanyName)

	a.dialpad = relay.NewDispatcher(relay.Config{
		Provider:          bootstrap.ProviderDialpad,
		Registry:          registry,
		Engine:            a.engine,
		Greeting:          greeting,
		ConnectedGreeting: connected,
		TransferTarget:    cfg.DialpadTransferTarget(),
		LiveActions:       cfg.DialpadLiveActions,
		Actions:           actions[bootstrap.ProviderDialpad],
		Synthesizer:       synth,
		Metrics:           relayMetrics,
		Logger:            logger,
	})
	a.twilio = relay.NewDispatcher(relay.Config{
		Provider:          bootstrap.ProviderTwilio,
		Registry:          registry,
		Engine:            a.engine,
		Greeting:          greeting,
		ConnectedGreeting: connected,
		TransferTarget:    cfg.TwilioTransferNumber,
		Metrics:           relayMetrics,
		Logger:            logger,
	})

	var validator *twiliovoice.SignatureValidator
	if cfg.TwilioValidateSignature && cfg.TwilioAuthToken != "" {
		validator = twiliovoice.NewSignatureValidator(cfg.TwilioAuthToken, cfg.PublicBaseURL)
	} else {
		logger.Warn("twilio signature validation disabled")
	}

	a.sweeper = callgraph.NewSweeper(registry, callgraph.SweeperConfig{
		Interval: cfg.ConversationSweepInterval,
		MaxIdle:  cfg.ConversationMaxIdle,
		Logger:   logger,
		OnPrune:  func(ids []string) { relayMetrics.AddPruned(len(ids)) },
	})
	if cfg.WebhookRateLimit > 0 {
		a.limiter = httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	}

	a.handler = router.New(&router.Config{
		Logger: logger,
		Dialpad: handlers.NewDialpadWebhookHandler(handlers.DialpadWebhookHandlerConfig{
			Dispatcher:    a.dialpad,
			WebhookSecret: cfg.DialpadWebhookSecret,
			CallRouterID:  cfg.DialpadCallRouterID,
			Metrics:       relayMetrics,
			Logger:        logger,
		}),
		Twilio: handlers.NewTwilioVoiceHandler(handlers.TwilioVoiceHandlerConfig{
			Dispatcher: a.twilio,
			Renderer:   twiliovoice.NewRenderer(cfg.TwilioVoice),
			Validator:  validator,
			Metrics:    relayMetrics,
			Logger:     logger,
		}),
		Audio: handlers.NewAudioHandler(audio),
		Admin: handlers.NewAdminCallsHandler(handlers.AdminCallsHandlerConfig{
			Registry:        registry,
			Handoffs:        handoffs,
			Actions:         actions,
			Synthesizer:     synth,
			DefaultProvider: bootstrap.ProviderDialpad,
			DefaultTargets: map[string]string{
				bootstrap.ProviderDialpad: cfg.DialpadTransferTarget(),
				bootstrap.ProviderTwilio:  cfg.TwilioTransferNumber,
			},
			Logger: logger,
		}),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookLimiter:  a.limiter,
		Metrics:         relayMetrics,
	})
	return a, nil
}

func buildHandoffStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, a *app) (handoff.Store, error) {
	var deps bootstrap.HandoffDeps
	switch cfg.HandoffStore {
	case appconfig.HandoffStoreRedis:
		if client := bootstrap.BuildRedisClient(ctx, cfg, logger, true); client != nil {
			deps.Redis = client
			a.closeFunc = append(a.closeFunc, func() { _ = client.Close() })
		}
	case appconfig.HandoffStoreS3:
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		deps.S3 = mainconfig.NewS3Client(awsCfg, cfg)
	}
	store, cleanup, err := bootstrap.BuildHandoffStore(ctx, cfg, deps, logger)
	a.closeFunc = append(a.closeFunc, cleanup)
	return store, err
}

// startBackground runs the idle sweeper and limiter janitor until ctx ends.
func (a *app) startBackground(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(ctx)
	}()
	if a.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.limiter.Run(ctx)
		}()
	}
	return &wg
}

// drain waits for in-flight live actions and handoff saves.
func (a *app) drain() {
	a.dialpad.Wait()
	a.twilio.Wait()
	a.engine.Wait()
}

func (a *app) cleanup() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		a.closeFunc[i]()
	}
	a.closeFunc = nil
}
