package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"textreply/backend/ai"
	"textreply/backend/internal/api"
	"textreply/backend/internal/facebook"
	"textreply/backend/internal/repository"
	"textreply/backend/internal/service"
	"textreply/backend/internal/ws"
	"textreply/backend/pkg/config"
	"textreply/backend/pkg/health"
	"textreply/backend/pkg/jwt"
	"textreply/backend/pkg/logger"
	"textreply/backend/pkg/middleware"
	"textreply/backend/pkg/resilience"
	"textreply/backend/shared/redis"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const memoryDedupeCapacity = 100_000

// Container holds all the dependencies for the application
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Logger      *logger.Logger
	JWTService  *jwt.Service
	Graph       *facebook.Client
	Completions *ai.Client
	Breaker     *resilience.CircuitBreaker
	Redis       *redis.Client // nil without REDIS_URL

	Users         *repository.GormUserRepository
	Pages         *repository.GormPageRepository
	Conversations *repository.GormConversationRepository
	Messages      *repository.GormMessageRepository

	Hub         *ws.Hub
	Deduper     service.Deduper
	Messenger   *service.Messenger
	PageService *service.PageService
	AuthService *service.AuthService
	Health      *health.Checker
	RateLimiter *middleware.RateLimiter

	WebhookHandler *api.WebhookHandler
	AuthHandler    *api.AuthHandler
	PagesHandler   *api.PagesHandler
	SystemHandler  *api.SystemHandler
}

// New wires every component from cfg around an open database handle.
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: config is required")
	}
	if db == nil {
		return nil, errors.New("di: database handle is required")
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Container{
		Config: cfg,
		DB:     db,
		Logger: log,
	}

	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	c.Graph = facebook.NewClient(
		facebook.WithBaseURL(cfg.Facebook.GraphAPIBase),
		facebook.WithHTTPClient(&http.Client{Timeout: cfg.Facebook.Timeout}),
		facebook.WithAppCredentials(cfg.Facebook.AppID, cfg.Facebook.AppSecret),
	)

	breakerCfg := resilience.DefaultConfig("gemini")
	breakerCfg.IsFailure = ai.IsOutage
	c.Breaker = resilience.NewCircuitBreaker(breakerCfg, log)
	c.Completions = ai.NewClient(cfg.Gemini.APIKey,
		ai.WithBaseURL(cfg.Gemini.BaseURL),
		ai.WithModel(cfg.Gemini.Model),
		ai.WithHTTPClient(&http.Client{Timeout: cfg.Gemini.Timeout}),
		ai.WithCircuitBreaker(c.Breaker),
		ai.WithLogger(log),
	)

	c.Users = repository.NewGormUserRepository(db)
	c.Pages = repository.NewGormPageRepository(db)
	c.Conversations = repository.NewGormConversationRepository(db)
	c.Messages = repository.NewGormMessageRepository(db)

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("di: %w", err)
		}
		c.Redis = client
		c.Deduper = service.NewRedisDeduper(client, cfg.Pipeline.DedupeTTL, log)
		c.Health.RegisterRedisCheck(client.Ping)
	} else {
		log.Info("REDIS_URL not set, deduplicating webhook deliveries in memory")
		c.Deduper = service.NewMemoryDeduper(cfg.Pipeline.DedupeTTL, memoryDedupeCapacity)
	}

	c.Hub = ws.NewHub(cfg.Security.AllowedOrigins, log)

	c.Messenger = service.NewMessenger(service.MessengerDeps{
		Pages:         c.Pages,
		Conversations: c.Conversations,
		Messages:      c.Messages,
		Senders:       service.NewGraphSenderDirectory(c.Graph, log),
		Completer:     c.Completions,
		Outbound:      c.Graph,
		Deduper:       c.Deduper,
		Publisher:     c.Hub,
		Logger:        log,
		HistoryLimit:  cfg.Pipeline.HistoryLimit,
		Timeout:       cfg.Pipeline.Timeout,
	})
	c.PageService = service.NewPageService(c.Users, c.Pages, c.Conversations, c.Messages, c.Graph, log)
	c.AuthService = service.NewAuthService(service.AuthConfig{
		AppID:        cfg.Facebook.AppID,
		AppSecret:    cfg.Facebook.AppSecret,
		BaseURL:      cfg.Server.BaseURL,
		DialogBase:   cfg.Facebook.DialogBase,
		GraphAPIBase: cfg.Facebook.GraphAPIBase,
		HTTPClient:   &http.Client{Timeout: cfg.Facebook.Timeout},
	}, c.Users, c.Graph, c.JWTService, log)

	c.RateLimiter = middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc:        middleware.AccountOrIPKey,
	})

	c.WebhookHandler = api.NewWebhookHandler(c.Messenger, api.WebhookConfig{
		VerifyToken:       cfg.Facebook.VerifyToken,
		AppSecret:         cfg.Facebook.AppSecret,
		ValidateSignature: cfg.Facebook.ValidateSignature,
		MaxBodySize:       cfg.Security.MaxBodySize,
	}, log)
	c.AuthHandler = api.NewAuthHandler(c.AuthService, cfg.Server.FrontendURL, cfg.IsProduction(), log)
	c.PagesHandler = api.NewPagesHandler(c.PageService, c.Hub, log)
	c.SystemHandler = api.NewSystemHandler(cfg.Server.Version)

	return c, nil
}

// Start launches the background loops. They stop when ctx is done.
func (c *Container) Start(ctx context.Context) {
	go c.Hub.Run(ctx)
	go c.RateLimiter.Run(ctx)
	c.Health.Start(ctx)
	if mem, ok := c.Deduper.(*service.MemoryDeduper); ok {
		go mem.Run(ctx)
	}
}

// Close waits for in-flight webhook work and releases the connections the
// container opened. The database handle belongs to the caller.
func (c *Container) Close() error {
	c.WebhookHandler.Wait()

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
	}
	return nil
}
