package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postwave/postwave/internal/config"
	"github.com/postwave/postwave/internal/service"
	"github.com/postwave/postwave/internal/service/reddit"
	"github.com/postwave/postwave/internal/storage"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Accounts    *service.AccountService
	Scheduler   *service.Scheduler
	PostSync    *service.PostSync
	Communities *service.CommunityService

	posts    *storage.PostStore
	activity *storage.ActivityStore
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := storage.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Stores
	creds := storage.NewCredentialStore(db)
	posts := storage.NewPostStore(db)
	usage := storage.NewUsageStore(db)
	activity := storage.NewActivityStore(db)
	synced := storage.NewSyncedPostStore(db)

	// Upstream client
	timeout, err := time.ParseDuration(cfg.Reddit.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid reddit request timeout: %w", err)
	}
	client := reddit.NewClient(reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
		BaseURL:      cfg.Reddit.BaseURL,
		TokenURL:     cfg.Reddit.TokenURL,
		Timeout:      timeout,
	}, logger)

	// Services, constructed once and handed around by reference
	cache := service.NewCache()
	rate := service.NewRateTracker(&cfg.RateLimit, usage, logger)
	tokens := service.NewTokenManager(creds, client, logger)
	accounts := service.NewAccountService(creds, rate, tokens, logger)
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, posts, creds, activity, accounts, tokens, rate, client)
	postSync := service.NewPostSync(&cfg.Sync, logger, creds, synced, tokens, rate, client)
	communities := service.NewCommunityService(logger, cache, accounts, rate, client)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:      cfg,
		DB:          db,
		Router:      router,
		Logger:      logger,
		Accounts:    accounts,
		Scheduler:   scheduler,
		PostSync:    postSync,
		Communities: communities,
		posts:       posts,
		activity:    activity,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Auth-Code")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	api.Use(s.authMiddleware())
	{
		scheduler := api.Group("/scheduler")
		{
			scheduler.POST("/run", s.handleRunScheduler)
		}

		posts := api.Group("/posts")
		{
			posts.GET("/upcoming", s.handleUpcomingPosts)
		}

		campaigns := api.Group("/campaigns")
		{
			campaigns.GET("/:id/stats", s.handleCampaignStats)
		}

		communities := api.Group("/communities")
		{
			communities.GET("/:name", s.handleCommunityInfo)
		}

		sync := api.Group("/sync")
		{
			sync.POST("/run", s.handleRunSync)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Start post sync
	if err := s.PostSync.Start(ctx); err != nil {
		return fmt.Errorf("failed to start post sync: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the pollers first so no new work starts
	s.Scheduler.Stop()
	s.PostSync.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
