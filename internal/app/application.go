package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"connected/internal/api"
	"connected/internal/auth"
	"connected/internal/config"
	"connected/internal/conversation"
	"connected/internal/database"
	"connected/internal/hub"
	"connected/internal/logging"
	"connected/internal/mail"
	"connected/internal/metrics"
	"connected/internal/roster"
	"connected/internal/router"
	"connected/internal/session"
	"connected/internal/telemetry"
	"connected/internal/websocket"
	pkgdatabase "connected/pkg/database"
)

// maintenanceInterval paces rate-limiter and token-store cleanup
const maintenanceInterval = time.Minute

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	dbManager     *database.Manager
	redisClient   *redis.Client
	memoryTokens  *auth.MemoryTokenStore
	authProvider  *auth.Provider
	sessionRouter *session.Router
	rosterService *roster.Service
	conversations *conversation.Service
	registry      *websocket.Registry
	messageRouter *router.Router
	messageHub    *hub.Hub
	apiServer     *api.Server

	httpServer *http.Server
	listener   net.Listener
	telemetry  telemetry.ShutdownFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Auth → Roster → Session → Registry → Hub → Router → API → HTTP
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	app := &Application{
		config:    cfg,
		logger:    logger,
		metrics:   metrics.New(),
		telemetry: func(context.Context) error { return nil },
	}

	// STEP 1: Database manager and migrations (foundation layer)
	dbConfig := &pkgdatabase.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	app.dbManager = dbManager

	if err := dbManager.Migrate(); err != nil {
		app.closeResources()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := dbManager.ValidateSchema(); err != nil {
		app.closeResources()
		return nil, fmt.Errorf("database schema check failed: %w", err)
	}
	logger.Info("database ready", "driver", cfg.Database.Driver)

	// STEP 2: Token store, Redis when configured
	var tokens auth.TokenStore
	if cfg.Redis.Addr != "" {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := app.redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		tokens = auth.NewRedisTokenStore(app.redisClient)
	} else {
		app.memoryTokens = auth.NewMemoryTokenStore(nil)
		tokens = app.memoryTokens
	}

	// STEP 3: Mailer, SendGrid when a key is set
	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.Mail.SendGridAPIKey != "" {
		sendgrid, err := mail.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.From)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to configure sendgrid: %w", err)
		}
		mailer = sendgrid
	}

	// STEP 4: Auth provider
	app.authProvider = auth.NewProvider(auth.Options{
		Identities: dbManager,
		Tokens:     tokens,
		Mailer:     mailer,
		Logger:     logger,
		JWTSecret:  cfg.Auth.JWTSecret,
		SessionTTL: cfg.Auth.SessionTTL,
		LinkTTL:    cfg.Auth.LinkTTL,
		PublicURL:  cfg.HTTP.PublicURL,
	})

	// STEP 5: Roster, session router, conversations
	app.rosterService = roster.NewService(dbManager, logger)
	app.sessionRouter = session.NewRouter(app.authProvider, app.rosterService, session.Options{
		DevMode:     cfg.Auth.DevMode,
		DevPassword: cfg.Auth.DevPassword,
		Logger:      logger,
		Observe: func(next string) {
			screen, _, _ := strings.Cut(next, "?")
			app.metrics.LoginDecisions.WithLabelValues(screen).Inc()
		},
	})
	app.conversations = conversation.NewService(dbManager, app.rosterService, logger)

	// STEP 6: Realtime registry and hub
	app.registry = websocket.NewRegistry(app.metrics)
	app.messageHub = hub.NewHub(app.registry, app.metrics, logger)

	// STEP 7: Message router, persist then publish to the hub
	app.messageRouter = router.NewRouter(app.conversations, dbManager, app.messageHub, app.metrics, logger)

	// STEP 8: Realtime endpoint and API server
	wsHandler := websocket.NewHandler(app.registry, app.authProvider, app.conversations, app.messageRouter, cfg.WebSocket, logger)
	app.apiServer = api.NewServer(api.Options{
		Sessions:         app.authProvider,
		Router:           app.sessionRouter,
		Roster:           app.rosterService,
		Conversations:    app.conversations,
		Messages:         app.messageRouter,
		Health:           dbManager,
		Registry:         app.registry,
		Realtime:         wsHandler,
		Metrics:          app.metrics,
		Logger:           logger,
		CoordinatorToken: cfg.Coordinator.Token,
		SecureCookies:    strings.HasPrefix(cfg.HTTP.PublicURL, "https://"),
	})

	app.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.apiServer.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	if cfg.Auth.DevMode {
		logger.Warn("dev mode enabled: one-time links are bypassed and /api/dev-auth is open")
	}

	return app, nil
}

// Start begins application execution
// Hub starts first to handle messages, then the HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting ConnectED", "addr", app.httpServer.Addr)

	// STEP 1: Tracing
	app.telemetry = telemetry.Setup(ctx, "connected", app.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	// STEP 2: Start message hub (background message processing)
	if err := app.messageHub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 3: Bind first so an address in use fails Start instead of a goroutine
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		cancel()
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		defer app.wg.Done()
		app.maintain(runCtx)
	}()

	app.logger.Info("ConnectED started", "addr", listener.Addr().String())
	return nil
}

// maintain drops idle rate-limiter entries and expired in-memory tokens
func (app *Application) maintain(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.messageRouter.Cleanup()
			if app.memoryTokens != nil {
				app.memoryTokens.Cleanup()
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Realtime → Hub → Tracing → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down ConnectED")
	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Hijacked realtime sockets are not covered by Shutdown
	app.registry.CloseAll()

	// STEP 3: Stop message processing and maintenance
	if app.cancel != nil {
		app.cancel()
	}
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	app.wg.Wait()

	// STEP 4: Flush traces
	if err := app.telemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	// STEP 5: Close stores
	if err := app.closeResources(); err != nil {
		errs = append(errs, err)
	}

	logging.FlushRollbar()
	app.logger.Info("ConnectED shutdown complete")
	return errors.Join(errs...)
}

func (app *Application) closeResources() error {
	var errs []error
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Addr returns the bound address once started, the configured one before
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler returns the HTTP handler, used by tests that drive the service in-process
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// Auth exposes the auth provider for operator tooling
func (app *Application) Auth() *auth.Provider {
	return app.authProvider
}

// Database exposes the store for operator tooling
func (app *Application) Database() *database.Manager {
	return app.dbManager
}
