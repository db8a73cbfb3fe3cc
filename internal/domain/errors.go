package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound is returned when no catalog entry exists for a reference
	ErrEntryNotFound = errors.New("catalog entry not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUnknownStore is returned for a store name outside the supported set
	ErrUnknownStore = errors.New("unknown store")

	// ErrStoreMismatch is returned when a reference is seen under a different store than the catalog holds
	ErrStoreMismatch = errors.New("reference already belongs to another store")

	// ErrScrapeFailed is matched by every *ScrapeError
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrExtractionFailed is returned when a single product card cannot be read
	ErrExtractionFailed = errors.New("product card extraction failed")

	// ErrStorageUnavailable is returned when the catalog store cannot serve a whole batch
	ErrStorageUnavailable = errors.New("catalog storage unavailable")

	// ErrRunInProgress is returned when a trigger targets a store that is already being ingested
	ErrRunInProgress = errors.New("ingestion already running for store")

	// ErrRunNotFound is returned for an unknown or expired run handle
	ErrRunNotFound = errors.New("ingestion run not found")

	// ErrShuttingDown is returned for triggers that arrive after ingestion shutdown began
	ErrShuttingDown = errors.New("ingestion is shutting down")

	// ErrCartNotFound is returned for an unknown cart ID
	ErrCartNotFound = errors.New("cart not found")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// ScrapeFailureReason classifies a run-level scrape failure
type ScrapeFailureReason string

const (
	ReasonTimeout   ScrapeFailureReason = "timeout"
	ReasonDriver    ScrapeFailureReason = "driver"
	ReasonPageLoad  ScrapeFailureReason = "page_load"
	ReasonCancelled ScrapeFailureReason = "cancelled"
)

// ScrapeError is a fatal failure of one adapter run
type ScrapeError struct {
	Store  Store
	Reason ScrapeFailureReason
	Err    error
}

func (e *ScrapeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scrape %s failed: %s", e.Store, e.Reason)
	}
	return fmt.Sprintf("scrape %s failed: %s: %v", e.Store, e.Reason, e.Err)
}

// Unwrap exposes both ErrScrapeFailed and the underlying cause to errors.Is
func (e *ScrapeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrScrapeFailed}
	}
	return []error{ErrScrapeFailed, e.Err}
}
