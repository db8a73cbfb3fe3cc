package usecase

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricelens/backend/internal/domain"
)

const comparisonCacheKey = "comparison:all"

// ComparisonConfig holds configuration for the comparison service
type ComparisonConfig struct {
	CacheTTL            time.Duration
	EnableFuzzyMatching bool
	FuzzyThreshold      float64 // NameSimilarity, 0-1
	EnableDebugLogging  bool
}

// ComparisonService groups catalog entries by normalized name and compares
// prices of the same product across both stores.
type ComparisonService struct {
	catalog            domain.CatalogReader
	cache              domain.CacheRepository
	cacheTTL           time.Duration
	enableFuzzy        bool
	fuzzyThreshold     float64
	enableDebugLogging bool

	// mu orders cache writes against Invalidate; generation counts invalidations
	mu         sync.Mutex
	generation uint64
}

// NewComparisonService creates a comparison service. cache may be nil.
func NewComparisonService(catalog domain.CatalogReader, cache domain.CacheRepository, config ComparisonConfig) *ComparisonService {
	cacheTTL := config.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	threshold := config.FuzzyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.92
	}

	return &ComparisonService{
		catalog:            catalog,
		cache:              cache,
		cacheTTL:           cacheTTL,
		enableFuzzy:        config.EnableFuzzyMatching,
		fuzzyThreshold:     threshold,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// GetComparisons returns every product available in both stores, sorted by product name.
// Results are served from cache until the catalog changes or the TTL expires.
func (s *ComparisonService) GetComparisons(ctx context.Context) ([]domain.ComparisonEntry, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	generation := s.currentGeneration()

	entries, err := s.catalog.AllWithParseablePrice(ctx)
	if err != nil {
		return nil, err
	}

	comparisons := MatchComparisons(entries, MatchOptions{
		EnableFuzzyMatching: s.enableFuzzy,
		FuzzyThreshold:      s.fuzzyThreshold,
	})

	if s.enableDebugLogging {
		log.Printf("[COMPARE] %d priced entries -> %d comparisons", len(entries), len(comparisons))
	}

	s.toCache(ctx, comparisons, generation)
	return comparisons, nil
}

// Invalidate drops cached comparison results. A GetComparisons call that read
// the catalog before Invalidate will not write its result back to the cache.
func (s *ComparisonService) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, comparisonCacheKey); err != nil {
		log.Printf("[COMPARE] Cache invalidation failed: %v", err)
	}
}

func (s *ComparisonService) fromCache(ctx context.Context) ([]domain.ComparisonEntry, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, comparisonCacheKey)
	if err != nil {
		return nil, false
	}
	var comparisons []domain.ComparisonEntry
	if err := json.Unmarshal(payload, &comparisons); err != nil {
		log.Printf("[COMPARE] Dropping undecodable cache entry: %v", err)
		return nil, false
	}
	return comparisons, true
}

func (s *ComparisonService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// toCache stores comparisons computed at generation, unless the catalog has changed since
func (s *ComparisonService) toCache(ctx context.Context, comparisons []domain.ComparisonEntry, generation uint64) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(comparisons)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		if s.enableDebugLogging {
			log.Printf("[COMPARE] Catalog changed during computation, not caching")
		}
		return
	}
	if err := s.cache.Set(ctx, comparisonCacheKey, payload, s.cacheTTL); err != nil {
		// Log but don't fail if caching fails
		log.Printf("[COMPARE] Cache write failed: %v", err)
	}
}

// MatchOptions tunes MatchComparisons
type MatchOptions struct {
	EnableFuzzyMatching bool
	FuzzyThreshold      float64
}

// comparisonGroup is the set of entries sharing one normalized name
type comparisonGroup struct {
	key     string
	members []domain.CatalogEntry
}

// first returns the first member sold by store
func (g *comparisonGroup) first(store domain.Store) (domain.CatalogEntry, bool) {
	for _, member := range g.members {
		if member.Store == store {
			return member, true
		}
	}
	return domain.CatalogEntry{}, false
}

// MatchComparisons groups entries by NormalizeName and emits one comparison per
// group that has at least two members and at least one entry from each store.
// The first entry per store, in input order, represents the group.
func MatchComparisons(entries []domain.CatalogEntry, opts MatchOptions) []domain.ComparisonEntry {
	var order []*comparisonGroup
	groups := make(map[string]*comparisonGroup)

	for _, entry := range entries {
		if !entry.HasPrice() {
			continue
		}
		key := NormalizeName(entry.Title)
		if key == "" {
			continue
		}
		group, ok := groups[key]
		if !ok {
			group = &comparisonGroup{key: key}
			groups[key] = group
			order = append(order, group)
		}
		group.members = append(group.members, entry)
	}

	var result []domain.ComparisonEntry
	var lavkaOnly, samokatOnly []*comparisonGroup

	for _, group := range order {
		lavka, hasLavka := group.first(domain.StoreLavka)
		samokat, hasSamokat := group.first(domain.StoreSamokat)

		if len(group.members) >= 2 && hasLavka && hasSamokat {
			result = append(result, newComparison(group.key, lavka, samokat, false))
			continue
		}
		switch {
		case hasLavka && !hasSamokat:
			lavkaOnly = append(lavkaOnly, group)
		case hasSamokat && !hasLavka:
			samokatOnly = append(samokatOnly, group)
		}
	}

	if opts.EnableFuzzyMatching {
		result = append(result, pairFuzzy(lavkaOnly, samokatOnly, opts.FuzzyThreshold)...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ProductName != result[j].ProductName {
			return result[i].ProductName < result[j].ProductName
		}
		return result[i].NormalizedName < result[j].NormalizedName
	})

	return result
}

// pairFuzzy links single-store groups whose names are near-identical.
// Each group is used at most once; the most similar candidate wins.
func pairFuzzy(lavkaOnly, samokatOnly []*comparisonGroup, threshold float64) []domain.ComparisonEntry {
	var result []domain.ComparisonEntry
	used := make(map[string]struct{})

	for _, left := range lavkaOnly {
		var best *comparisonGroup
		bestSimilarity := 0.0

		for _, right := range samokatOnly {
			if _, taken := used[right.key]; taken {
				continue
			}
			similarity := NameSimilarity(left.key, right.key)
			if similarity > bestSimilarity {
				bestSimilarity = similarity
				best = right
			}
		}

		if best == nil || bestSimilarity < threshold {
			continue
		}
		used[best.key] = struct{}{}

		lavka, _ := left.first(domain.StoreLavka)
		samokat, _ := best.first(domain.StoreSamokat)
		result = append(result, newComparison(left.key, lavka, samokat, true))
	}

	return result
}

// newComparison prices one product pair. Equal prices resolve to domain.PreferredStore.
func newComparison(key string, lavka, samokat domain.CatalogEntry, fuzzy bool) domain.ComparisonEntry {
	lavkaPrice, _ := lavka.CurrentPrice()
	samokatPrice, _ := samokat.CurrentPrice()

	return domain.ComparisonEntry{
		NormalizedName:  key,
		ProductName:     lavka.Title,
		Lavka:           lavka,
		Samokat:         samokat,
		LavkaPrice:      lavkaPrice,
		SamokatPrice:    samokatPrice,
		CheaperStore:    cheaperStore(lavkaPrice, samokatPrice),
		PriceDifference: lavkaPrice.Sub(samokatPrice).Abs(),
		Fuzzy:           fuzzy,
	}
}

// cheaperStore picks the store with the lower amount, falling back to domain.PreferredStore on a tie
func cheaperStore(lavka, samokat decimal.Decimal) domain.Store {
	switch lavka.Cmp(samokat) {
	case -1:
		return domain.StoreLavka
	case 1:
		return domain.StoreSamokat
	default:
		return domain.PreferredStore
	}
}
