package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/api/handlers"
	"github.com/claimlens/backend/internal/cache/redis"
	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/llm"
	"github.com/claimlens/backend/internal/metrics"
	"github.com/claimlens/backend/internal/middleware/ratelimit"
	"github.com/claimlens/backend/internal/middleware/security"
	"github.com/claimlens/backend/internal/middleware/validation"
	"github.com/claimlens/backend/internal/retrieval"
	"github.com/claimlens/backend/internal/search/web"
	"github.com/claimlens/backend/internal/sourcegraph"
	"github.com/claimlens/backend/internal/storage/sqlite"
	"github.com/claimlens/backend/internal/vector/milvus"
	"github.com/claimlens/backend/internal/verify"
	"github.com/claimlens/backend/pkg/config"
	appLogger "github.com/claimlens/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ClaimLens API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var embeddingCache *redis.Client
	if cfg.Redis.Enabled {
		embeddingCache, err = redis.NewClient(context.Background(), redis.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
			embeddingCache = nil
		} else {
			defer embeddingCache.Close()
		}
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var cache milvus.EmbeddingCache
	if embeddingCache != nil {
		cache = embeddingCache
	}

	store, err := milvus.NewStore(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		llmClient,
		cache,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create evidence store", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var ranker retrieval.TrustRanker
	if cfg.SourceGraph.Enabled {
		sgClient, err := sourcegraph.NewClient(context.Background(), sourcegraph.Config{
			URI:      cfg.SourceGraph.URI,
			Username: cfg.SourceGraph.Username,
			Password: cfg.SourceGraph.Password,
			Database: cfg.SourceGraph.Database,
		})
		if err != nil {
			appLogger.Warn("Source graph unavailable, trust ranks disabled", zap.Error(err))
		} else {
			defer sgClient.Close(context.Background())
			ranker = sgClient
		}
	}

	searcher := web.NewClient(cfg.Search.SerpAPIKey, time.Duration(cfg.Search.TimeoutSec)*time.Second)

	engine := verify.NewEngine(verify.EngineConfig{
		Enhancer:         enhance.NewEnhancer(llmClient),
		Retriever:        retrieval.NewRetriever(store, ranker),
		Analyst:          llmClient,
		Searcher:         searcher,
		Store:            store,
		History:          sqliteClient,
		MaxSearchResults: cfg.Search.MaxResults,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	defaults := verify.DefaultOptions()
	defaults.Enhance = cfg.Verify.Enhance
	defaults.ExternalSearch = cfg.Verify.ExternalSearch
	if cfg.Verify.TopK > 0 {
		defaults.TopK = cfg.Verify.TopK
	}

	verifyHandler := handlers.NewVerifyHandler(engine, sqliteClient, defaults)
	wsHandler := handlers.NewWebSocketHandler(engine,
		time.Duration(cfg.Verify.ClarifyTimeoutSec)*time.Second, defaults)

	api := app.Group("/api/v1")

	api.Post("/verify", verifyHandler.HandleVerify)
	api.Get("/verify/history", verifyHandler.GetHistory)
	api.Get("/verify/:id", verifyHandler.GetVerification)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
