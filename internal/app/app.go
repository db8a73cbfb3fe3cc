// Package app wires configuration into the catalog, cache, scrapers and
// services shared by the server and the CLI.
package app

import (
	"context"
	"log"
	"time"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/browser"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/cart"
	"github.com/pricelens/backend/internal/infrastructure/catalog"
	"github.com/pricelens/backend/internal/infrastructure/scraper"
	"github.com/pricelens/backend/internal/usecase"
)

const cacheKeyPrefix = "pricelens:"

// App is the wired object graph
type App struct {
	Catalog        domain.CatalogRepository
	Adapters       map[domain.Store]domain.ScrapeAdapter
	CatalogService *usecase.CatalogService
	Comparisons    *usecase.ComparisonService
	Ingestion      *usecase.IngestionService
	Carts          *usecase.CartService

	closers []func()
}

// New opens the configured infrastructure and builds the services on top of it
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	fees, err := cfg.Delivery.Fees()
	if err != nil {
		return nil, err
	}
	stores, err := cfg.Scrape.EnabledStores()
	if err != nil {
		return nil, err
	}

	a := &App{}

	store, err := openCatalog(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Catalog = store
	if closer, ok := store.(interface{ Close() }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	carts, err := openCarts(ctx, store)
	if err != nil {
		a.Close()
		return nil, err
	}

	comparisonCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := comparisonCache.Close(); err != nil {
			log.Printf("[APP] Cache close failed: %v", err)
		}
	})

	adapters := NewAdapters(cfg)
	a.Adapters = make(map[domain.Store]domain.ScrapeAdapter, len(adapters))
	for _, adapter := range adapters {
		a.Adapters[adapter.Store()] = adapter
	}

	a.Comparisons = usecase.NewComparisonService(store, comparisonCache, usecase.ComparisonConfig{
		CacheTTL:            cfg.Cache.TTL,
		EnableFuzzyMatching: cfg.Matching.EnableFuzzyMatching,
		FuzzyThreshold:      cfg.Matching.FuzzyThreshold,
		EnableDebugLogging:  cfg.Matching.EnableDebugLogging,
	})
	a.CatalogService = usecase.NewCatalogService(store, usecase.NewBasketOptimizer(fees))
	a.Carts = usecase.NewCartService(carts, a.CatalogService)
	a.Ingestion = usecase.NewIngestionService(
		adapters,
		usecase.NewReconciler(store),
		store,
		a.Comparisons,
		usecase.IngestionConfig{
			Stores:        stores,
			ScrapeTimeout: cfg.Scrape.Timeout,
			Interval:      cfg.Scheduler.Interval,
			RunOnStart:    cfg.Scheduler.RunOnStart,
		},
	)

	log.Printf("[APP] Catalog: %s, cache: %s, browser: %s, stores: %v", cfg.Database.Driver, cfg.Cache.Type, cfg.Browser.Driver, stores)
	log.Printf("[APP] Delivery fees: LAVKA %s, SAMOKAT %s", fees[domain.StoreLavka], fees[domain.StoreSamokat])

	return a, nil
}

// Close releases infrastructure in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openCatalog(ctx context.Context, cfg config.DatabaseConfig) (domain.CatalogRepository, error) {
	if cfg.Driver == "postgres" {
		store, err := catalog.NewPostgresStore(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	log.Printf("[APP] WARNING: in-memory catalog, data is lost on exit")
	return catalog.NewMemoryStore(), nil
}

// openCarts keeps carts next to the catalog: in its database when it has one
func openCarts(ctx context.Context, store domain.CatalogRepository) (domain.CartRepository, error) {
	if pg, ok := store.(*catalog.PostgresStore); ok {
		carts, err := cart.NewPostgresStore(ctx, pg.Pool())
		if err != nil {
			return nil, err
		}
		return carts, nil
	}
	return cart.NewMemoryStore(), nil
}

type closableCache interface {
	domain.CacheRepository
	Close() error
}

func openCache(ctx context.Context, cfg config.CacheConfig) (closableCache, error) {
	if cfg.Type == "redis" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisURL, cacheKeyPrefix)
		if err != nil {
			return nil, err
		}
		return redisCache, nil
	}
	return cache.NewMemoryCache(time.Minute), nil
}

// NewLauncher builds the page loader selected by browser.driver
func NewLauncher(cfg config.BrowserConfig) browser.Launcher {
	if cfg.Driver == "http" {
		return browser.NewHTTPLauncher(browser.HTTPConfig{
			UserAgent:         cfg.UserAgent,
			Timeout:           cfg.PageLoadTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	}
	return browser.NewChromeLauncher(browser.ChromeConfig{
		Headless:        cfg.Headless,
		UserAgent:       cfg.UserAgent,
		ExecPath:        cfg.ExecPath,
		PageLoadTimeout: cfg.PageLoadTimeout,
	})
}

// NewAdapters builds one adapter per supported store
func NewAdapters(cfg *config.Config) []domain.ScrapeAdapter {
	launcher := NewLauncher(cfg.Browser)
	return []domain.ScrapeAdapter{
		scraper.NewLavkaAdapter(launcher, scraper.LavkaConfig{
			URL:              cfg.Scrape.Lavka.URL,
			InitialWait:      cfg.Scrape.Lavka.InitialWait,
			ScrollStep:       cfg.Scrape.Lavka.ScrollStep,
			ScrollPause:      cfg.Scrape.Lavka.ScrollPause,
			FinalPause:       cfg.Scrape.Lavka.FinalPause,
			MaxStableRepeats: cfg.Scrape.Lavka.MaxStableRepeats,
			MaxScrolls:       cfg.Scrape.Lavka.MaxScrolls,
		}),
		scraper.NewSamokatAdapter(launcher, scraper.SamokatConfig{
			URL:         cfg.Scrape.Samokat.URL,
			InitialWait: cfg.Scrape.Samokat.InitialWait,
		}),
	}
}
