package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pricelens/backend/internal/domain"
)

// IngestionConfig holds configuration for the ingestion service
type IngestionConfig struct {
	Stores         []domain.Store // stores covered by a full run, in run order
	ScrapeTimeout  time.Duration  // upper bound of a single adapter run
	Interval       time.Duration
	RunOnStart     bool
	RunHistorySize int
	RunHistoryTTL  time.Duration
}

// CacheInvalidator drops derived data after the catalog changes
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// IngestionService schedules scrape runs and feeds their output to the reconciler.
// A store is scraped by at most one run at a time; overlapping triggers get domain.ErrRunInProgress.
type IngestionService struct {
	adapters    map[domain.Store]domain.ScrapeAdapter
	reconciler  *Reconciler
	catalog     domain.CatalogReader
	invalidator CacheInvalidator
	config      IngestionConfig

	mu     sync.Mutex
	busy   map[domain.Store]string // store -> run ID
	runs   *expirable.LRU[string, *runTask]
	closed bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// runTask is the mutable state behind one IngestionRun handle
type runTask struct {
	mu     sync.Mutex
	run    domain.IngestionRun
	done   chan struct{}
	cancel context.CancelFunc
}

func (t *runTask) snapshot() domain.IngestionRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	run := t.run
	run.Stores = append([]domain.Store(nil), t.run.Stores...)
	return run
}

// NewIngestionService creates an ingestion service. invalidator may be nil.
func NewIngestionService(
	adapters []domain.ScrapeAdapter,
	reconciler *Reconciler,
	catalog domain.CatalogReader,
	invalidator CacheInvalidator,
	config IngestionConfig,
) *IngestionService {
	if config.ScrapeTimeout <= 0 {
		config.ScrapeTimeout = 5 * time.Minute
	}
	if config.Interval <= 0 {
		config.Interval = 2 * time.Hour
	}
	if config.RunHistorySize <= 0 {
		config.RunHistorySize = 256
	}
	if config.RunHistoryTTL <= 0 {
		config.RunHistoryTTL = 24 * time.Hour
	}

	byStore := make(map[domain.Store]domain.ScrapeAdapter, len(adapters))
	for _, adapter := range adapters {
		byStore[adapter.Store()] = adapter
	}
	if len(config.Stores) == 0 {
		for _, store := range domain.Stores {
			if _, ok := byStore[store]; ok {
				config.Stores = append(config.Stores, store)
			}
		}
	}

	ctx, stop := context.WithCancel(context.Background())

	return &IngestionService{
		adapters:    byStore,
		reconciler:  reconciler,
		catalog:     catalog,
		invalidator: invalidator,
		config:      config,
		busy:        make(map[domain.Store]string),
		runs:        expirable.NewLRU[string, *runTask](config.RunHistorySize, nil, config.RunHistoryTTL),
		ctx:         ctx,
		stop:        stop,
	}
}

// Start runs the periodic full ingestion until ctx is cancelled or Shutdown is called.
// Shutdown waits for the scheduler loop, including a scheduled run in progress.
func (s *IngestionService) Start(ctx context.Context) error {
	if err := s.track(); err != nil {
		return err
	}
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("[INGEST] Scheduler started, interval %v, stores %v", s.config.Interval, s.config.Stores)

	if s.config.RunOnStart {
		s.runScheduled(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[INGEST] Scheduler stopping: context cancelled")
			return nil
		case <-s.ctx.Done():
			log.Println("[INGEST] Scheduler stopping: shutdown")
			return nil
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

func (s *IngestionService) runScheduled(ctx context.Context) {
	run, err := s.runFull(ctx, domain.TriggerScheduled)
	switch {
	case errors.Is(err, domain.ErrRunInProgress), errors.Is(err, domain.ErrShuttingDown):
		log.Printf("[INGEST] Scheduled run skipped: %v", err)
	case err != nil:
		log.Printf("[INGEST] Scheduled run %s failed: %v", run.ID, err)
	}
}

// track registers a unit of work with the shutdown wait group
func (s *IngestionService) track() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrShuttingDown
	}
	s.wg.Add(1)
	return nil
}

// Shutdown rejects new runs, cancels every in-flight run, scheduled, synchronous
// or background, and waits for them and the scheduler loop to finish
func (s *IngestionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunFullIngestion scrapes every configured store in sequence and reconciles
// the combined output in one batch. It blocks until the run finishes.
// Adapter failures do not discard records of the other stores; they are all
// returned joined, and the run is marked failed.
func (s *IngestionService) RunFullIngestion(ctx context.Context) (domain.IngestionRun, error) {
	return s.runFull(ctx, domain.TriggerManual)
}

func (s *IngestionService) runFull(ctx context.Context, trigger domain.RunTrigger) (domain.IngestionRun, error) {
	task, runCtx, err := s.begin(ctx, trigger, s.config.Stores)
	if err != nil {
		return domain.IngestionRun{}, err
	}
	defer s.wg.Done()
	defer task.cancel()
	unlink := context.AfterFunc(s.ctx, task.cancel)
	defer unlink()

	err = s.execute(runCtx, task)
	return task.snapshot(), err
}

// RunStoreIngestion starts a background run for one store and returns its handle
// immediately. Completion is observed through Run or Await.
func (s *IngestionService) RunStoreIngestion(store domain.Store) (domain.IngestionRun, error) {
	if _, ok := s.adapters[store]; !ok {
		return domain.IngestionRun{}, fmt.Errorf("%w: no adapter for %q", domain.ErrUnknownStore, store)
	}

	task, runCtx, err := s.begin(s.ctx, domain.TriggerManual, []domain.Store{store})
	if err != nil {
		return domain.IngestionRun{}, err
	}

	go func() {
		defer s.wg.Done()
		defer task.cancel()
		if err := s.execute(runCtx, task); err != nil {
			log.Printf("[INGEST] Run %s for %s failed: %v", task.run.ID, store, err)
		}
	}()

	return task.snapshot(), nil
}

// Run returns the current state of a run handle
func (s *IngestionService) Run(id string) (domain.IngestionRun, error) {
	task, ok := s.runs.Get(id)
	if !ok {
		return domain.IngestionRun{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return task.snapshot(), nil
}

// Await blocks until the run finishes or ctx is done
func (s *IngestionService) Await(ctx context.Context, id string) (domain.IngestionRun, error) {
	task, ok := s.runs.Get(id)
	if !ok {
		return domain.IngestionRun{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}

	select {
	case <-task.done:
		return task.snapshot(), nil
	case <-ctx.Done():
		return task.snapshot(), ctx.Err()
	}
}

// Cancel requests cancellation of a running run. Cancelling a finished run is a no-op.
func (s *IngestionService) Cancel(id string) error {
	task, ok := s.runs.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	task.cancel()
	return nil
}

// Stats summarizes the catalog. Counts and last update come from one consistent
// view, so a batch being reconciled is either fully counted or not at all.
func (s *IngestionService) Stats(ctx context.Context) (domain.IngestionStats, error) {
	stats, err := s.catalog.Stats(ctx)
	if err != nil {
		return domain.IngestionStats{}, err
	}
	if stats.PerStoreCounts == nil {
		stats.PerStoreCounts = make(map[domain.Store]int, len(domain.Stores))
	}
	for _, store := range domain.Stores {
		if _, ok := stats.PerStoreCounts[store]; !ok {
			stats.PerStoreCounts[store] = 0
		}
	}
	return stats, nil
}

// Busy reports the stores that currently have a run in flight
func (s *IngestionService) Busy() []domain.Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stores []domain.Store
	for _, store := range domain.Stores {
		if _, ok := s.busy[store]; ok {
			stores = append(stores, store)
		}
	}
	return stores
}

// begin claims every store of a new run, or none of them, and registers the run
// with the shutdown wait group. The caller must call s.wg.Done when the run ends.
// The returned context is cancelled by the task's Cancel.
func (s *IngestionService) begin(parent context.Context, trigger domain.RunTrigger, stores []domain.Store) (*runTask, context.Context, error) {
	if len(stores) == 0 {
		return nil, nil, fmt.Errorf("%w: no stores enabled", domain.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, domain.ErrShuttingDown
	}
	for _, store := range stores {
		if runID, ok := s.busy[store]; ok {
			return nil, nil, fmt.Errorf("%w: %s (run %s)", domain.ErrRunInProgress, store, runID)
		}
	}

	runCtx, cancel := context.WithCancel(parent)
	task := &runTask{
		run: domain.IngestionRun{
			ID:        uuid.NewString(),
			Trigger:   trigger,
			Stores:    append([]domain.Store(nil), stores...),
			State:     domain.RunRunning,
			StartedAt: time.Now(),
		},
		done:   make(chan struct{}),
		cancel: cancel,
	}
	for _, store := range stores {
		s.busy[store] = task.run.ID
	}
	s.runs.Add(task.run.ID, task)
	s.wg.Add(1)

	log.Printf("[INGEST] Run %s started (%s): %v", task.run.ID, trigger, stores)
	return task, runCtx, nil
}

// release frees the stores claimed by task
func (s *IngestionService) release(task *runTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, store := range task.run.Stores {
		if s.busy[store] == task.run.ID {
			delete(s.busy, store)
		}
	}
}

// execute scrapes the stores of task in order and reconciles the combined records
func (s *IngestionService) execute(ctx context.Context, task *runTask) error {
	var records []domain.ProductRecord
	var scrapeErrs []error

	for _, store := range task.run.Stores {
		if ctx.Err() != nil {
			break
		}

		adapter, ok := s.adapters[store]
		if !ok {
			scrapeErrs = append(scrapeErrs, fmt.Errorf("%w: no adapter for %q", domain.ErrUnknownStore, store))
			continue
		}

		scraped, err := s.scrape(ctx, adapter)
		if err != nil {
			log.Printf("[INGEST] Run %s: %v", task.run.ID, err)
			scrapeErrs = append(scrapeErrs, err)
		}
		records = append(records, scraped...)
	}

	if ctx.Err() != nil {
		err := errors.Join(append(scrapeErrs, ctx.Err())...)
		s.finish(task, domain.RunCancelled, domain.ReconcileResult{}, len(records), err)
		return err
	}

	result, err := s.reconciler.Reconcile(ctx, records)
	if err != nil {
		err = errors.Join(append(scrapeErrs, err)...)
		s.finish(task, domain.RunFailed, result, len(records), err)
		return err
	}

	if result.Written() > 0 && s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}

	if len(scrapeErrs) > 0 {
		err := errors.Join(scrapeErrs...)
		s.finish(task, domain.RunFailed, result, len(records), err)
		return err
	}

	s.finish(task, domain.RunSucceeded, result, len(records), nil)
	return nil
}

// scrape runs one adapter under the per-run timeout
func (s *IngestionService) scrape(ctx context.Context, adapter domain.ScrapeAdapter) ([]domain.ProductRecord, error) {
	scrapeCtx, cancel := context.WithTimeout(ctx, s.config.ScrapeTimeout)
	defer cancel()

	started := time.Now()
	records, err := adapter.Scrape(scrapeCtx)
	if err != nil {
		return records, asScrapeError(scrapeCtx, adapter.Store(), err)
	}

	log.Printf("[INGEST] %s: %d records in %v", adapter.Store(), len(records), time.Since(started).Round(time.Millisecond))
	return records, nil
}

func (s *IngestionService) finish(task *runTask, state domain.RunState, result domain.ReconcileResult, scraped int, err error) {
	finished := time.Now()

	task.mu.Lock()
	task.run.State = state
	task.run.FinishedAt = &finished
	task.run.Scraped = scraped
	task.run.ReconcileResult = result
	if err != nil {
		task.run.Error = err.Error()
	}
	task.mu.Unlock()

	s.release(task)
	close(task.done)

	log.Printf("[INGEST] Run %s %s: scraped %d, %d new, %d updated, %d failed in %v",
		task.run.ID, state, scraped, result.Inserted, result.Updated, result.Failed,
		finished.Sub(task.run.StartedAt).Round(time.Millisecond))
}

// asScrapeError makes sure every adapter failure surfaces as a *domain.ScrapeError
func asScrapeError(ctx context.Context, store domain.Store, err error) error {
	var scrapeErr *domain.ScrapeError
	if errors.As(err, &scrapeErr) {
		return err
	}

	reason := domain.ReasonDriver
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = domain.ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		reason = domain.ReasonCancelled
	}
	return &domain.ScrapeError{Store: store, Reason: reason, Err: err}
}
