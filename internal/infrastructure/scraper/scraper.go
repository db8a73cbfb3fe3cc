// Package scraper turns storefront catalog pages into product records.
// Selectors are adapter-local so a markup change stays inside one adapter.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/browser"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// recordSet keeps records in first-seen order, keyed by reference
type recordSet struct {
	order   []string
	records map[string]*domain.ProductRecord
}

func newRecordSet() *recordSet {
	return &recordSet{records: make(map[string]*domain.ProductRecord)}
}

func (s *recordSet) Len() int {
	return len(s.order)
}

func (s *recordSet) Get(reference string) (*domain.ProductRecord, bool) {
	record, ok := s.records[reference]
	return record, ok
}

func (s *recordSet) Add(record domain.ProductRecord) {
	s.order = append(s.order, record.Reference)
	s.records[record.Reference] = &record
}

func (s *recordSet) Records() []domain.ProductRecord {
	result := make([]domain.ProductRecord, 0, len(s.order))
	for _, reference := range s.order {
		result = append(result, *s.records[reference])
	}
	return result
}

// cleanText collapses whitespace runs and trims
func cleanText(sel *goquery.Selection) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(sel.Text(), " "))
}

// ownText is the text of sel's direct text nodes, ignoring child elements
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
		}
	})
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(b.String(), " "))
}

// resolveReference turns a card link into an absolute URL
func resolveReference(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty link", domain.ErrExtractionFailed)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: bad link %q: %v", domain.ErrExtractionFailed, href, err)
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// scrapeFailure classifies a run-level failure of store
func scrapeFailure(ctx context.Context, store domain.Store, err error) error {
	var scrapeErr *domain.ScrapeError
	if errors.As(err, &scrapeErr) {
		return err
	}

	reason := domain.ReasonPageLoad
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		reason = domain.ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		reason = domain.ReasonCancelled
	case errors.Is(err, browser.ErrDriverUnavailable):
		reason = domain.ReasonDriver
	}
	return &domain.ScrapeError{Store: store, Reason: reason, Err: err}
}

// closeSession releases a session and logs a failing teardown
func closeSession(tag string, session browser.Session) {
	if err := session.Close(); err != nil {
		log.Printf("[%s] Session close failed: %v", tag, err)
	}
}
