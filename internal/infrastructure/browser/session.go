package browser

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrDriverUnavailable is returned when the page source (browser process) cannot be started
	ErrDriverUnavailable = errors.New("page driver unavailable")

	// ErrPageLoad is returned when the target page cannot be loaded in time
	ErrPageLoad = errors.New("page load failed")

	// ErrSessionClosed is returned by any call on a closed session
	ErrSessionClosed = errors.New("session closed")
)

// Session is one loaded page. It must be closed on every exit path;
// Close is safe to call more than once.
type Session interface {
	// Snapshot returns the DOM as currently rendered
	Snapshot(ctx context.Context) (*goquery.Document, error)
	// Scroll advances the viewport by dy pixels
	Scroll(ctx context.Context, dy int) error
	Close() error
}

// Launcher opens a fresh session per page
type Launcher interface {
	Open(ctx context.Context, url string) (Session, error)
}

// documentSession serves a fixed HTML document. Scrolling is a no-op.
type documentSession struct {
	html   string
	mu     sync.Mutex
	closed bool
}

// NewDocumentSession wraps already fetched HTML in a Session
func NewDocumentSession(html string) Session {
	return &documentSession{html: html}
}

func (s *documentSession) Snapshot(ctx context.Context) (*goquery.Document, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(s.html))
}

func (s *documentSession) Scroll(ctx context.Context, dy int) error {
	return s.check(ctx)
}

func (s *documentSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *documentSession) check(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}
