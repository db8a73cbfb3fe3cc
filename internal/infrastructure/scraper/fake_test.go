package scraper

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricelens/backend/internal/infrastructure/browser"
)

// fakeSession renders one HTML frame per scroll position; the last frame repeats
type fakeSession struct {
	mu        sync.Mutex
	frames    []string
	render    func(scrolls int) string // overrides frames when set
	scrolls   int
	snapshots int
	closes    int
	snapErr   error
}

func (s *fakeSession) Snapshot(ctx context.Context) (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.snapshots++

	var page string
	switch {
	case s.render != nil:
		page = s.render(s.scrolls)
	case len(s.frames) == 0:
		page = "<html></html>"
	case s.scrolls < len(s.frames):
		page = s.frames[s.scrolls]
	default:
		page = s.frames[len(s.frames)-1]
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

func (s *fakeSession) Scroll(ctx context.Context, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls++
	return ctx.Err()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeLauncher struct {
	session *fakeSession
	err     error
	opened  []string
}

func (l *fakeLauncher) Open(ctx context.Context, url string) (browser.Session, error) {
	l.opened = append(l.opened, url)
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}
