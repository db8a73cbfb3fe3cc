package browser

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// ChromeConfig holds configuration for the headless Chrome launcher
type ChromeConfig struct {
	Headless        bool
	UserAgent       string
	ExecPath        string // empty means look up Chrome on PATH
	PageLoadTimeout time.Duration
	WindowWidth     int
	WindowHeight    int
}

// ChromeLauncher renders pages in a dedicated Chrome process per session
type ChromeLauncher struct {
	config ChromeConfig
}

// NewChromeLauncher creates a launcher with sane defaults for unset fields
func NewChromeLauncher(config ChromeConfig) *ChromeLauncher {
	if config.PageLoadTimeout <= 0 {
		config.PageLoadTimeout = 30 * time.Second
	}
	if config.WindowWidth <= 0 || config.WindowHeight <= 0 {
		config.WindowWidth, config.WindowHeight = 1366, 900
	}
	return &ChromeLauncher{config: config}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.WindowSize(l.config.WindowWidth, l.config.WindowHeight),
	)
	if l.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.config.UserAgent))
	}
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}
	return opts
}

// Open starts Chrome, navigates to url and waits for the body to be ready.
// The browser is torn down before returning an error.
func (l *ChromeLauncher) Open(ctx context.Context, url string) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	session := &chromeSession{
		ctx: browserCtx,
		cancel: func() {
			if err := chromedp.Cancel(browserCtx); err != nil {
				log.Printf("[BROWSER] Graceful shutdown failed: %v", err)
			}
			cancelBrowser()
			cancelAlloc()
		},
	}

	// The first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}

	log.Printf("[BROWSER] Navigating to %s", url)
	loadCtx, cancelLoad := context.WithTimeout(ctx, l.config.PageLoadTimeout)
	defer cancelLoad()

	if err := session.run(loadCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrPageLoad, url, err)
	}

	return session, nil
}

type chromeSession struct {
	ctx       context.Context
	cancel    func()
	closeOnce sync.Once
}

// run executes actions on the browser tab while honoring cancellation of ctx
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromeSession) Snapshot(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *chromeSession) Scroll(ctx context.Context, dy int) error {
	var offset float64
	return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d); window.scrollY", dy), &offset))
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
