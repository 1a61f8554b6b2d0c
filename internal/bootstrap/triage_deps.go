// Package bootstrap wires configuration, adapters, and services together.
package bootstrap

import (
	"context"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"triage_server/adapter/out/cache"
	"triage_server/adapter/out/graph"
	"triage_server/adapter/out/llm"
	"triage_server/adapter/out/persistence"
	"triage_server/config"
	"triage_server/core/port/out"
	"triage_server/core/service/triage"
	"triage_server/core/service/usercontext"
	"triage_server/pkg/logger"
)

// Dependencies holds every wired component. Optional backends (postgres,
// redis, neo4j) degrade to nil adapters: the engine keeps working from its
// in-memory state.
type Dependencies struct {
	Config *config.Config
	SQLDB  *sqlx.DB
	Redis  *redis.Client
	Neo4j  neo4j.DriverWithContext

	// Outbound adapters
	Completion    *llm.OpenAIAdapter
	ResultStore   out.ResultStore
	ResultCache   out.ResultCache
	EmailProvider out.EmailProvider
	ContextStore  out.UserContextStore

	// Services
	Classifier     *triage.ClassificationEngine
	Extractor      *triage.ExtractionEngine
	Dedup          *triage.Deduplicator
	Coordinator    *triage.Coordinator
	ContextManager *usercontext.Manager
	Processing     *triage.Service
}

// NewDependencies builds the dependency graph. The returned cleanup closes
// every connection that was opened.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (sqlx over pgx)
	if cfg.DatabaseURL != "" {
		db, err := persistence.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("database connection failed, persistence disabled")
		} else {
			deps.SQLDB = db
			cleanups = append(cleanups, func() { db.Close() })

			deps.ResultStore = persistence.NewResultAdapter(db)
			deps.EmailProvider = persistence.NewEmailAdapter(db)
			logger.Info("postgres connected")
		}
	}

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("redis connection failed, result cache disabled")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })

			deps.ResultCache = cache.NewRedisCache(redisClient, cfg.ResultCacheTTL)
			logger.Info("redis connected")
		}
	}

	// Neo4j (user context personalization)
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.WithError(err).Warn("neo4j connection failed, personalization disabled")
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() { driver.Close(context.Background()) })

			contextAdapter := graph.NewUserContextAdapter(driver, cfg.Neo4jDatabase)
			if err := contextAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.WithError(err).Warn("failed to ensure neo4j indexes")
			}
			deps.ContextStore = contextAdapter
			logger.Info("neo4j connected")
		}
	}

	// Completion adapter
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	deps.Completion = llm.NewOpenAIAdapter(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		MaxRetries:  cfg.LLMMaxRetries,
	}, zlog)

	// Core services
	evaluator := triage.NewConfidenceEvaluator()
	deps.Classifier = triage.NewClassificationEngine(deps.Completion, evaluator, cfg.ClassifyTimeout)
	deps.Extractor = triage.NewExtractionEngine(deps.Completion, cfg.ExtractTimeout)
	deps.Dedup = triage.NewDeduplicator(deps.Completion, cfg.DedupDateWindow, cfg.SimilarityThreshold)
	deps.Coordinator = triage.NewCoordinator(deps.Extractor, deps.ResultStore, deps.ResultCache)
	deps.ContextManager = usercontext.NewManager(deps.ContextStore, cfg.ContextCacheTTL)

	deps.Processing = triage.NewService(triage.ServiceDeps{
		Classifier:  deps.Classifier,
		Coordinator: deps.Coordinator,
		Dedup:       deps.Dedup,
		Contexts:    deps.ContextManager,
		Store:       deps.ResultStore,
		Cache:       deps.ResultCache,
		Provider:    deps.EmailProvider,
		Concurrency: cfg.BatchConcurrency,
	})

	return deps, cleanup, nil
}
