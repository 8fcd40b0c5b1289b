package commands

import (
	"fmt"
	"time"

	"github.com/vantagefolio/valora/internal/formula"
	"github.com/vantagefolio/valora/internal/insights"
	"github.com/vantagefolio/valora/internal/instruments"
	"github.com/vantagefolio/valora/internal/marketdata"
	"github.com/vantagefolio/valora/internal/methods"
	"github.com/vantagefolio/valora/internal/valuation"
	"github.com/vantagefolio/valora/pkg/config"
	"github.com/vantagefolio/valora/pkg/database"
	"github.com/vantagefolio/valora/pkg/logger"
	"github.com/vantagefolio/valora/pkg/redis"
)

// instrumentMetaTTL bounds staleness of cached instrument facets.
// Scope resolution tolerates this much lag; the nightly
// rematerialization sweep catches up regardless.
const instrumentMetaTTL = 15 * time.Minute

// services holds the wired dependency graph shared by all commands
// ⭐ SSOT: 의존성 조립은 이 파일에서만
type services struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
	rdb *redis.Client

	registry     *methods.Registry
	seeder       *methods.Seeder
	insightSvc   *insights.Service
	materializer *insights.Materializer
	engine       *valuation.Engine
	overrideSvc  *marketdata.OverrideService
	limiter      *redis.RateLimiter
}

// initServices loads config and builds the full service graph
func initServices() (*services, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (degrades to no-op when disabled)
	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	cache := redis.NewCache(rdb, "valora")

	// 5. Method registry and seeder share the formula catalog
	formulas := formula.Default()
	methodRepo := methods.NewRepository(db.Pool)
	registry := methods.NewRegistry(methodRepo, formulas.Has, log)
	seeder := methods.NewSeeder(methodRepo, formulas.Has, log)

	// 6. Instrument metadata, Redis-cached
	metadata := instruments.NewCachedProvider(
		instruments.NewRepository(db.Pool), cache, instrumentMetaTTL)

	// 7. Insight service, materializer and effect source
	insightRepo := insights.NewRepository(db.Pool)
	targetCache := insights.NewRedisTargetCache(cache, cfg.Valuation.TargetCacheTTL)
	insightSvc := insights.NewService(insightRepo, targetCache, log)
	materializer := insights.NewMaterializer(metadata, insightRepo, targetCache, log)

	// 8. Valuation engine
	overrideRepo := marketdata.NewOverrideRepository(db.Pool)
	resolver := valuation.NewResolver(
		marketdata.NewSnapshotRepository(db.Pool),
		overrideRepo,
		marketdata.NewDefaultRepository(db.Pool),
		marketdata.NewAggregateRepository(db.Pool),
	)
	evaluator := valuation.NewEvaluator(formulas)
	engine := valuation.NewEngine(registry, metadata, resolver, evaluator,
		insights.NewEffectSource(insightRepo), log)

	// 9. Override service
	overrideSvc := marketdata.NewOverrideService(overrideRepo, registry, log)

	return &services{
		cfg:          cfg,
		log:          log,
		db:           db,
		rdb:          rdb,
		registry:     registry,
		seeder:       seeder,
		insightSvc:   insightSvc,
		materializer: materializer,
		engine:       engine,
		overrideSvc:  overrideSvc,
		limiter:      redis.NewRateLimiter(rdb, "valora"),
	}, nil
}

// Close releases database and Redis connections
func (s *services) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
