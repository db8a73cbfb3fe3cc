package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricelens/backend/internal/domain"
)

// CatalogUsecase is the read side of the catalog plus basket pricing
type CatalogUsecase interface {
	ListProducts(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogEntry, error)
	GetProduct(ctx context.Context, reference string) (*domain.CatalogEntry, error)
	OptimizeBasket(ctx context.Context, lines []domain.BasketLine) (domain.BasketOptimizationResult, error)
}

// ComparisonUsecase serves cross-store comparisons
type ComparisonUsecase interface {
	GetComparisons(ctx context.Context) ([]domain.ComparisonEntry, error)
}

// IngestionUsecase triggers and observes ingestion runs
type IngestionUsecase interface {
	RunFullIngestion(ctx context.Context) (domain.IngestionRun, error)
	RunStoreIngestion(store domain.Store) (domain.IngestionRun, error)
	Run(id string) (domain.IngestionRun, error)
	Cancel(id string) error
	Stats(ctx context.Context) (domain.IngestionStats, error)
}

// CartUsecase manages saved baskets
type CartUsecase interface {
	CreateCart(ctx context.Context) (*domain.Cart, error)
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	AddProduct(ctx context.Context, id, reference string, quantity int) (*domain.Cart, error)
	OptimizeCart(ctx context.Context, id string) (domain.BasketOptimizationResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	catalog     CatalogUsecase
	comparisons ComparisonUsecase
	ingestion   IngestionUsecase
	carts       CartUsecase
}

// NewHandler creates a new HTTP handler
func NewHandler(catalog CatalogUsecase, comparisons ComparisonUsecase, ingestion IngestionUsecase, carts CartUsecase) *Handler {
	return &Handler{
		catalog:     catalog,
		comparisons: comparisons,
		ingestion:   ingestion,
		carts:       carts,
	}
}

// BasketRequest is the body of a basket optimization request
type BasketRequest struct {
	Items []domain.BasketLine `json:"items" binding:"required,dive"`
}

// HealthCheck reports catalog health
func (h *Handler) HealthCheck(c *gin.Context) {
	stats, err := h.ingestion.Stats(c.Request.Context())
	if err != nil {
		log.Printf("[HTTP] Health check failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        "pricelens-backend",
		"total_products": stats.TotalProducts,
		"per_store":      stats.PerStoreCounts,
		"last_update":    stats.LastUpdate,
	})
}

// ListProducts handles GET /api/v1/products?store=&q=
func (h *Handler) ListProducts(c *gin.Context) {
	filter := domain.CatalogFilter{Query: c.Query("q")}
	if raw := c.Query("store"); raw != "" {
		store, err := domain.ParseStore(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Store = store
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if products == nil {
		products = []domain.CatalogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct handles GET /api/v1/products/lookup?reference=
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Query("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetComparisons handles GET /api/v1/products/comparison
func (h *Handler) GetComparisons(c *gin.Context) {
	comparisons, err := h.comparisons.GetComparisons(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if comparisons == nil {
		comparisons = []domain.ComparisonEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"comparisons": comparisons,
		"count":       len(comparisons),
	})
}

// OptimizeBasket handles POST /api/v1/basket/optimize
func (h *Handler) OptimizeBasket(c *gin.Context) {
	var req BasketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.catalog.OptimizeBasket(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateCart handles POST /api/v1/carts
func (h *Handler) CreateCart(c *gin.Context) {
	cart, err := h.carts.CreateCart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

// GetCart handles GET /api/v1/carts/:id
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// AddCartItem handles POST /api/v1/carts/:id/items
func (h *Handler) AddCartItem(c *gin.Context) {
	var req domain.BasketLine
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"message": err.Error(),
		})
		return
	}

	cart, err := h.carts.AddProduct(c.Request.Context(), c.Param("id"), req.Reference, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// OptimizeCart handles GET /api/v1/carts/:id/optimize
func (h *Handler) OptimizeCart(c *gin.Context) {
	result, err := h.carts.OptimizeCart(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RunIngestion handles POST /api/v1/ingestion/run and blocks until the run ends
func (h *Handler) RunIngestion(c *gin.Context) {
	run, err := h.ingestion.RunFullIngestion(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) || errors.Is(err, domain.ErrShuttingDown) {
			respondError(c, err)
			return
		}
		log.Printf("[HTTP] Ingestion run %s failed: %v", run.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"status":   "failed",
			"runId":    run.ID,
			"error":    err.Error(),
			"inserted": run.Inserted,
			"updated":  run.Updated,
			"failed":   run.Failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"runId":    run.ID,
		"inserted": run.Inserted,
		"updated":  run.Updated,
		"failed":   run.Failed,
	})
}

// RunStoreIngestion handles POST /api/v1/ingestion/run/:store
func (h *Handler) RunStoreIngestion(c *gin.Context) {
	store, err := domain.ParseStore(c.Param("store"))
	if err != nil {
		respondError(c, err)
		return
	}

	run, err := h.ingestion.RunStoreIngestion(store)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "started",
		"runId":  run.ID,
		"store":  store,
	})
}

// GetRun handles GET /api/v1/ingestion/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.ingestion.Run(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// CancelRun handles DELETE /api/v1/ingestion/runs/:id
func (h *Handler) CancelRun(c *gin.Context) {
	if err := h.ingestion.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	run, err := h.ingestion.Run(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// GetStats handles GET /api/v1/ingestion/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.ingestion.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownStore):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrEntryNotFound), errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrCartNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrScrapeFailed):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
