package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/cart"
	"github.com/pricelens/backend/internal/infrastructure/catalog"
	"github.com/pricelens/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// scriptedAdapter returns fixed records, optionally waiting on release first
type scriptedAdapter struct {
	store   domain.Store
	records []domain.ProductRecord
	err     error
	release chan struct{}
}

func (a *scriptedAdapter) Store() domain.Store { return a.store }

func (a *scriptedAdapter) Scrape(ctx context.Context) ([]domain.ProductRecord, error) {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.records, a.err
}

type testServer struct {
	router    *gin.Engine
	ingestion *usecase.IngestionService
	lavka     *scriptedAdapter
	samokat   *scriptedAdapter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := catalog.NewMemoryStore()
	comparisonCache := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { comparisonCache.Close() })

	lavka := &scriptedAdapter{
		store: domain.StoreLavka,
		records: []domain.ProductRecord{
			{Reference: "https://lavka.example/good/water", Title: "Вода Архыз 1 л", RawNewPrice: "60 ₽", Store: domain.StoreLavka},
			{Reference: "https://lavka.example/good/juice", Title: "Сок яблочный", RawNewPrice: "120", Store: domain.StoreLavka},
		},
	}
	samokat := &scriptedAdapter{
		store: domain.StoreSamokat,
		records: []domain.ProductRecord{
			{Reference: "https://samokat.example/product/water", Title: "Вода Архыз 1 л", RawNewPrice: "65 ₽", Store: domain.StoreSamokat},
		},
	}

	comparisons := usecase.NewComparisonService(store, comparisonCache, usecase.ComparisonConfig{})
	optimizer := usecase.NewBasketOptimizer(map[domain.Store]decimal.Decimal{
		domain.StoreLavka:   decimal.NewFromInt(199),
		domain.StoreSamokat: decimal.NewFromInt(99),
	})
	ingestion := usecase.NewIngestionService(
		[]domain.ScrapeAdapter{lavka, samokat},
		usecase.NewReconciler(store),
		store,
		comparisons,
		usecase.IngestionConfig{ScrapeTimeout: time.Second},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ingestion.Shutdown(ctx)
	})

	cfg := &config.Config{
		Server: config.ServerConfig{
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
	catalogService := usecase.NewCatalogService(store, optimizer)
	handler := NewHandler(catalogService, comparisons, ingestion, usecase.NewCartService(cart.NewMemoryStore(), catalogService))

	return &testServer{
		router:    SetupRouter(cfg, handler),
		ingestion: ingestion,
		lavka:     lavka,
		samokat:   samokat,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

// seeded returns a server whose catalog was filled by one synchronous run
func seeded(t *testing.T) *testServer {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 3, body["inserted"])
	return s
}

func TestRunIngestion(t *testing.T) {
	s := seeded(t)

	w, body := s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["inserted"])
	assert.EqualValues(t, 3, body["updated"])
	assert.NotEmpty(t, body["runId"])
}

func TestRunIngestion_AdapterFailure(t *testing.T) {
	s := newTestServer(t)
	s.samokat.err = errors.New("browser crashed")

	w, body := s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Contains(t, body["error"], "browser crashed")
	assert.EqualValues(t, 2, body["inserted"])
}

func TestListProducts(t *testing.T) {
	s := seeded(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
	}{
		{name: "all products", path: "/api/v1/products", wantStatus: http.StatusOK, wantCount: 3},
		{name: "by store, case-insensitive", path: "/api/v1/products?store=lavka", wantStatus: http.StatusOK, wantCount: 2},
		{name: "title search", path: "/api/v1/products?q=%D0%B2%D0%BE%D0%B4%D0%B0", wantStatus: http.StatusOK, wantCount: 2},
		{name: "no match", path: "/api/v1/products?q=coffee", wantStatus: http.StatusOK, wantCount: 0},
		{name: "unknown store", path: "/api/v1/products?store=ozon", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.EqualValues(t, tt.wantCount, body["count"])
				assert.Len(t, body["products"], tt.wantCount)
			}
		})
	}
}

func TestGetProduct(t *testing.T) {
	s := seeded(t)

	w, body := s.do(t, http.MethodGet, "/api/v1/products/lookup?reference=https://lavka.example/good/juice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Сок яблочный", body["title"])
	assert.Equal(t, "120", body["newPrice"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/products/lookup?reference=https://lavka.example/none", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/products/lookup", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetComparisons(t *testing.T) {
	s := seeded(t)

	w, body := s.do(t, http.MethodGet, "/api/v1/products/comparison", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, body["count"])

	comparison := body["comparisons"].([]any)[0].(map[string]any)
	assert.Equal(t, "Вода Архыз 1 л", comparison["productName"])
	assert.Equal(t, "LAVKA", comparison["cheaperStore"])
	assert.Equal(t, "5", comparison["priceDifference"])
}

func TestGetComparisons_RefreshedAfterIngestion(t *testing.T) {
	s := seeded(t)

	_, body := s.do(t, http.MethodGet, "/api/v1/products/comparison", nil)
	require.EqualValues(t, 1, body["count"])

	s.samokat.records = append(s.samokat.records, domain.ProductRecord{
		Reference: "https://samokat.example/product/juice", Title: "СОК ЯБЛОЧНЫЙ", RawNewPrice: "110", Store: domain.StoreSamokat,
	})
	w, _ := s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = s.do(t, http.MethodGet, "/api/v1/products/comparison", nil)
	assert.EqualValues(t, 2, body["count"])
}

func TestOptimizeBasket(t *testing.T) {
	s := seeded(t)

	t.Run("recommends the cheaper store with delivery", func(t *testing.T) {
		w, body := s.do(t, http.MethodPost, "/api/v1/basket/optimize", map[string]any{
			"items": []map[string]any{
				{"reference": "https://lavka.example/good/juice", "quantity": 2},
				{"reference": "https://samokat.example/product/water", "quantity": 1},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "439", body["totalLavka"])
		assert.Equal(t, "164", body["totalSamokat"])
		assert.Equal(t, "SAMOKAT", body["recommendedStore"])
	})

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{
			name:       "unknown reference",
			body:       map[string]any{"items": []map[string]any{{"reference": "https://nowhere", "quantity": 1}}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "negative quantity",
			body:       map[string]any{"items": []map[string]any{{"reference": "https://lavka.example/good/juice", "quantity": -1}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing quantity",
			body:       map[string]any{"items": []map[string]any{{"reference": "https://lavka.example/good/juice"}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty basket",
			body:       map[string]any{"items": []map[string]any{}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"items": [`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodPost, "/api/v1/basket/optimize", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestCarts(t *testing.T) {
	s := seeded(t)

	w, created := s.do(t, http.MethodPost, "/api/v1/carts", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cartID, _ := created["id"].(string)
	require.NotEmpty(t, cartID)
	assert.Empty(t, created["items"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID+"/optimize", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "an empty cart cannot be optimized")

	add := func(reference string, quantity int) (*httptest.ResponseRecorder, map[string]any) {
		return s.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", map[string]any{
			"reference": reference,
			"quantity":  quantity,
		})
	}

	w, _ = add("https://lavka.example/good/juice", 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = add("https://samokat.example/product/water", 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, body := add("https://lavka.example/good/juice", 1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	juice := items[0].(map[string]any)
	assert.Equal(t, "https://lavka.example/good/juice", juice["reference"])
	assert.EqualValues(t, 2, juice["quantity"], "adding the same product merges quantity")
	assert.Equal(t, "Сок яблочный", juice["product"].(map[string]any)["title"])

	w, body = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 2)

	w, body = s.do(t, http.MethodGet, "/api/v1/carts/"+cartID+"/optimize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "439", body["totalLavka"])
	assert.Equal(t, "164", body["totalSamokat"])
	assert.Equal(t, "SAMOKAT", body["recommendedStore"])

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "get unknown cart", method: http.MethodGet, path: "/api/v1/carts/missing", wantStatus: http.StatusNotFound},
		{name: "optimize unknown cart", method: http.MethodGet, path: "/api/v1/carts/missing/optimize", wantStatus: http.StatusNotFound},
		{
			name:       "add to unknown cart",
			method:     http.MethodPost,
			path:       "/api/v1/carts/missing/items",
			body:       map[string]any{"reference": "https://lavka.example/good/juice", "quantity": 1},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "add unknown product",
			method:     http.MethodPost,
			path:       "/api/v1/carts/" + cartID + "/items",
			body:       map[string]any{"reference": "https://nowhere", "quantity": 1},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "add negative quantity",
			method:     http.MethodPost,
			path:       "/api/v1/carts/" + cartID + "/items",
			body:       map[string]any{"reference": "https://lavka.example/good/juice", "quantity": -1},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "add without reference",
			method:     http.MethodPost,
			path:       "/api/v1/carts/" + cartID + "/items",
			body:       map[string]any{"quantity": 1},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestRunStoreIngestion(t *testing.T) {
	s := newTestServer(t)
	s.lavka.release = make(chan struct{})

	w, body := s.do(t, http.MethodPost, "/api/v1/ingestion/run/lavka", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "started", body["status"])
	runID := body["runId"].(string)
	require.NotEmpty(t, runID)

	w, body = s.do(t, http.MethodGet, "/api/v1/ingestion/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", body["state"])

	// Same store is busy until the first run completes
	w, _ = s.do(t, http.MethodPost, "/api/v1/ingestion/run/LAVKA", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(s.lavka.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	run, err := s.ingestion.Await(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunSucceeded, run.State)

	w, body = s.do(t, http.MethodGet, "/api/v1/ingestion/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "succeeded", body["state"])
	assert.EqualValues(t, 2, body["inserted"])
}

func TestRunStoreIngestion_Errors(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/v1/ingestion/run/ozon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/ingestion/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/ingestion/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRun(t *testing.T) {
	s := newTestServer(t)
	s.samokat.release = make(chan struct{})

	_, body := s.do(t, http.MethodPost, "/api/v1/ingestion/run/samokat", nil)
	runID := body["runId"].(string)

	w, _ := s.do(t, http.MethodDelete, "/api/v1/ingestion/runs/"+runID, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	run, err := s.ingestion.Await(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, run.State)
}

func TestStatsAndHealth(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["total_products"])
	assert.Nil(t, body["last_update"])

	s.do(t, http.MethodPost, "/api/v1/ingestion/run", nil)

	w, body = s.do(t, http.MethodGet, "/api/v1/ingestion/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["totalProducts"])
	perStore := body["perStoreCounts"].(map[string]any)
	assert.EqualValues(t, 2, perStore["LAVKA"])
	assert.EqualValues(t, 1, perStore["SAMOKAT"])
	assert.NotNil(t, body["lastUpdate"])
}

// brokenIngestion fails every stats read
type brokenIngestion struct {
	IngestionUsecase
}

func (brokenIngestion) Stats(ctx context.Context) (domain.IngestionStats, error) {
	return domain.IngestionStats{}, domain.ErrStorageUnavailable
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	router := SetupRouter(&config.Config{}, NewHandler(nil, nil, brokenIngestion{}, nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: domain.ErrInvalidRequest, want: http.StatusBadRequest},
		{err: domain.ErrUnknownStore, want: http.StatusBadRequest},
		{err: domain.ErrEntryNotFound, want: http.StatusNotFound},
		{err: domain.ErrRunNotFound, want: http.StatusNotFound},
		{err: domain.ErrRunInProgress, want: http.StatusConflict},
		{err: &domain.ScrapeError{Store: domain.StoreLavka, Reason: domain.ReasonTimeout, Err: context.DeadlineExceeded}, want: http.StatusBadGateway},
		{err: domain.ErrCartNotFound, want: http.StatusNotFound},
		{err: domain.ErrStorageUnavailable, want: http.StatusServiceUnavailable},
		{err: domain.ErrShuttingDown, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := gin.New()
			router.GET("/", func(c *gin.Context) { respondError(c, tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
