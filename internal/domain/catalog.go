package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogEntry is the persisted form of a product, one per distinct reference.
type CatalogEntry struct {
	ProductRecord
	OldPriceAmount decimal.NullDecimal `json:"oldPrice"`
	NewPriceAmount decimal.NullDecimal `json:"newPrice"`
	LastUpdatedAt  time.Time           `json:"lastUpdatedAt"`
}

// CurrentPrice returns the discounted price if known, otherwise the regular one.
// The second return value is false when neither price could be parsed.
func (e CatalogEntry) CurrentPrice() (decimal.Decimal, bool) {
	if e.NewPriceAmount.Valid {
		return e.NewPriceAmount.Decimal, true
	}
	if e.OldPriceAmount.Valid {
		return e.OldPriceAmount.Decimal, true
	}
	return decimal.Zero, false
}

// HasPrice reports whether the entry has a usable current price
func (e CatalogEntry) HasPrice() bool {
	_, ok := e.CurrentPrice()
	return ok
}

// CatalogFilter narrows catalog listings
type CatalogFilter struct {
	Store Store  // empty means every store
	Query string // case-insensitive title substring
}

// ComparisonEntry pairs the same product as sold by both storefronts
type ComparisonEntry struct {
	NormalizedName  string          `json:"normalizedName"`
	ProductName     string          `json:"productName"`
	Lavka           CatalogEntry    `json:"lavkaProduct"`
	Samokat         CatalogEntry    `json:"samokatProduct"`
	LavkaPrice      decimal.Decimal `json:"lavkaPrice"`
	SamokatPrice    decimal.Decimal `json:"samokatPrice"`
	CheaperStore    Store           `json:"cheaperStore"`
	PriceDifference decimal.Decimal `json:"priceDifference"`
	Fuzzy           bool            `json:"fuzzy,omitempty"`
}

// BasketItem is one line of a basket resolved against the catalog
type BasketItem struct {
	Entry    CatalogEntry
	Quantity int
}

// BasketLine is a basket line as requested by a client, keyed by reference
type BasketLine struct {
	Reference string `json:"reference" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// BasketOptimizationResult holds per-store totals, delivery included
type BasketOptimizationResult struct {
	TotalLavka       decimal.Decimal `json:"totalLavka"`
	TotalSamokat     decimal.Decimal `json:"totalSamokat"`
	RecommendedStore Store           `json:"recommendedStore"`
}

// ReconcileResult counts what a reconciliation batch did
type ReconcileResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Add accumulates another result into r
func (r *ReconcileResult) Add(other ReconcileResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Failed += other.Failed
}

// Written is the number of entries that were inserted or updated
func (r ReconcileResult) Written() int {
	return r.Inserted + r.Updated
}

// IngestionStats summarizes the catalog for observers
type IngestionStats struct {
	TotalProducts  int           `json:"totalProducts"`
	PerStoreCounts map[Store]int `json:"perStoreCounts"`
	LastUpdate     *time.Time    `json:"lastUpdate"`
}

// RunState is the lifecycle state of an ingestion run
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// RunTrigger tells what started an ingestion run
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// IngestionRun is the observable handle of one ingestion run
type IngestionRun struct {
	ID         string     `json:"id"`
	Trigger    RunTrigger `json:"trigger"`
	Stores     []Store    `json:"stores"`
	State      RunState   `json:"state"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Scraped    int        `json:"scraped"`
	ReconcileResult
	Error string `json:"error,omitempty"`
}
