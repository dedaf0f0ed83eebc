package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"nonprofit-site/backend/ai"
	"nonprofit-site/backend/internal/repository"
	"nonprofit-site/backend/internal/service"
	"nonprofit-site/backend/internal/ws"
	"nonprofit-site/backend/pkg/cache"
	"nonprofit-site/backend/pkg/config"
	"nonprofit-site/backend/pkg/health"
	"nonprofit-site/backend/pkg/i18n"
	"nonprofit-site/backend/pkg/jwt"
	"nonprofit-site/backend/pkg/logger"
	"nonprofit-site/backend/pkg/middleware"
	"nonprofit-site/backend/pkg/resilience"
	"nonprofit-site/backend/pkg/secrets"
	"nonprofit-site/backend/pkg/validator"
	"nonprofit-site/backend/shared/observability"
	"nonprofit-site/backend/shared/redis"
)

// Container holds all the dependencies for the application
type Container struct {
	Config     *config.Config
	Version    string
	Logger     *logger.Logger
	Translator *i18n.Translator
	Secrets    *secrets.Manager
	Telemetry  *observability.Telemetry

	Breaker *resilience.CircuitBreaker
	Bridge  *ai.Bridge

	SessionCache *cache.Cache
	Redis        *redis.RedisClient
	Sessions     service.SessionStore
	DB           *gorm.DB
	Turns        *repository.GormTurnRepository

	Tokens      *jwt.Service
	Resolver    *service.SessionResolver
	ChatService *service.ChatService

	Hub         *ws.Hub
	WebSocket   *ws.Handler
	RateLimiter *middleware.RateLimiter
	Validator   *validator.OpenAPIValidator
	Health      *health.Checker

	closers []func() error
}

// Options tweaks how the container is built.
type Options struct {
	// Detector replaces the Dialogflow client, for tests and local runs.
	Detector ai.IntentDetector
	Version  string
}

// New creates a new dependency injection container. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Container{Config: cfg, Version: opts.Version, Logger: log}
	if err := c.build(ctx, opts); err != nil {
		c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, opts Options) error {
	cfg, log := c.Config, c.Logger

	var err error
	if c.Translator, err = i18n.New(cfg.Dialogflow.LanguageCode, cfg.Dialogflow.Languages); err != nil {
		return fmt.Errorf("failed to load translations: %w", err)
	}

	c.Secrets, err = secrets.NewManager(secrets.VaultConfig{
		Enabled:    cfg.Vault.Enabled,
		Address:    cfg.Vault.Addr,
		Token:      cfg.Vault.Token,
		Namespace:  cfg.Vault.Namespace,
		Mount:      cfg.Vault.Mount,
		Path:       cfg.Vault.Path,
		Timeout:    cfg.Vault.Timeout,
		MaxRetries: cfg.Vault.MaxRetries,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create secrets manager: %w", err)
	}

	// Telemetry goes first so the bridge instruments bind to the real providers
	c.Telemetry, err = observability.Setup(ctx, observability.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     opts.Version,
		Metrics:     cfg.Features.EnableMetrics,
		Tracing:     cfg.Features.EnableTracing,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	detector := opts.Detector
	if detector == nil {
		df, err := c.dialogflow(ctx)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, df.Close)
		detector = df
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("dialogflow")
	breakerCfg.FailureThreshold = cfg.Breaker.FailureThreshold
	breakerCfg.RetryTimeout = cfg.Breaker.RetryTimeout
	c.Breaker = resilience.NewCircuitBreaker(breakerCfg, log)

	c.Bridge = ai.NewBridge(detector, c.Breaker, ai.BridgeConfig{
		Timeout:          cfg.Dialogflow.Timeout,
		LanguageCode:     cfg.Dialogflow.LanguageCode,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	}, log)

	if err := c.sessionStore(ctx); err != nil {
		return err
	}
	if cfg.Features.EnableHistory {
		if err := c.transcript(ctx); err != nil {
			return err
		}
	}

	if err := c.sessions(ctx); err != nil {
		return err
	}

	var turns repository.TurnRepository
	if c.Turns != nil {
		turns = c.Turns
	}
	c.ChatService = service.NewChatService(c.Bridge, c.Sessions, turns, log)

	c.RateLimiter = middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc:        middleware.ClientKey,
	})

	if c.Validator, err = validator.New(cfg.OpenAPI.SchemaPath); err != nil {
		return err
	}

	if cfg.Features.EnableWebSockets {
		c.Hub = ws.NewHub()
		c.WebSocket = ws.NewHandler(c.Hub, c.ChatService, c.RateLimiter, c.Translator, ws.Options{
			AllowedOrigins:   cfg.Security.AllowedOrigins,
			MaxMessageLength: cfg.Chat.MaxMessageLength,
		}, log)
	}

	c.registerHealthChecks()

	return nil
}

func (c *Container) dialogflow(ctx context.Context) (*ai.DialogflowDetector, error) {
	cfg := c.Config
	creds, err := c.Secrets.GetSecret(ctx, secrets.KeyDialogflowCredentials)
	if err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
		return nil, fmt.Errorf("failed to read dialogflow credentials: %w", err)
	}
	if creds == "" {
		creds = cfg.Dialogflow.Credentials
	}

	df, err := ai.NewDialogflowDetector(ctx, ai.DialogflowConfig{
		ProjectID:       cfg.Dialogflow.ProjectID,
		CredentialsJSON: []byte(creds),
		CredentialsFile: cfg.Dialogflow.CredentialsFile,
		Endpoint:        cfg.Dialogflow.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogflow client: %w", err)
	}
	return df, nil
}

func (c *Container) sessionStore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Session.Store {
	case "redis":
		client, err := redis.NewRedisClient(redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  c.Secrets.GetSecretWithDefault(ctx, secrets.KeyRedisPassword, cfg.Redis.Password),
			DB:        cfg.Redis.DB,
			KeyPrefix: "chat:",
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		c.Redis = client
		c.Sessions = service.NewRedisStore(client, cfg.Session.TTL)
	default:
		c.SessionCache = cache.New(cache.Options{
			DefaultExpiration: cfg.Session.TTL,
			CleanupInterval:   time.Minute,
			MaxItems:          100_000,
		})
		c.Sessions = service.NewMemoryStore(c.SessionCache, cfg.Session.TTL)
	}
	return nil
}

func (c *Container) transcript(ctx context.Context) error {
	cfg := c.Config
	cfg.Database.Password = c.Secrets.GetSecretWithDefault(ctx, secrets.KeyDBPassword, cfg.Database.Password)

	db, err := config.NewDB(cfg)
	if err != nil {
		return err
	}
	c.DB = db
	c.closers = append(c.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	c.Turns = repository.NewGormTurnRepository(db)
	if err := c.Turns.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate chat_turns: %w", err)
	}
	return nil
}

func (c *Container) sessions(ctx context.Context) error {
	cfg := c.Config
	secret, err := c.Secrets.GetSecret(ctx, secrets.KeySessionSecret)
	if err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
		return fmt.Errorf("failed to read session secret: %w", err)
	}
	if secret == "" {
		secret = cfg.Session.Secret
	}
	if secret == "" {
		if cfg.IsProduction() {
			return errors.New("no session secret configured")
		}
		c.Logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
		secret = service.RandomSecret()
	}

	if c.Tokens, err = jwt.NewService(secret, cfg.Session.TTL); err != nil {
		return fmt.Errorf("failed to create session token service: %w", err)
	}
	if c.Resolver, err = service.NewSessionResolver(secret, c.Tokens); err != nil {
		return fmt.Errorf("failed to create session resolver: %w", err)
	}
	return nil
}

func (c *Container) registerHealthChecks() {
	c.Health = health.NewChecker(c.Logger, 30*time.Second)

	c.Health.RegisterCheck("dialogflow", false, func(context.Context) (health.Status, string, error) {
		switch c.Breaker.GetState() {
		case resilience.StateOpen:
			return health.StatusDegraded, "circuit open, requests fail fast", nil
		case resilience.StateHalfOpen:
			return health.StatusDegraded, "circuit half-open, probing", nil
		default:
			return health.StatusUp, "circuit closed", nil
		}
	})
	c.Health.RegisterDetails("dialogflow", c.Breaker.GetMetrics)
	c.Health.RegisterPingCheck("session_store", true, c.ChatService.Ping)

	if c.DB != nil {
		c.Health.RegisterPingCheck("database", true, func(ctx context.Context) error {
			return config.PingDB(ctx, c.DB)
		})
	}
	if c.Config.Vault.Enabled {
		c.Health.RegisterPingCheck("vault", false, c.Secrets.Ping)
	}
}

// Run starts the background loops and blocks until ctx is done.
func (c *Container) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	start(c.RateLimiter.Run)
	start(c.Health.Run)
	start(c.Secrets.Run)
	if c.SessionCache != nil {
		start(c.SessionCache.Run)
	}
	if c.Hub != nil {
		start(c.Hub.Run)
	}

	wg.Wait()
}

// Close flushes telemetry and releases clients in reverse order of creation.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Telemetry != nil {
		errs = append(errs, c.Telemetry.Shutdown(ctx))
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
