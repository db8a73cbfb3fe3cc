package scraper

import (
	"context"
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

// DefaultLavkaURL is the water category of the Lavka catalog
const DefaultLavkaURL = "https://lavka.yandex.ru/catalog/grocery/category/water"

// lavkaTitleNoiseRegex matches dash punctuation, soft hyphens and zero-width spaces
// that Lavka injects into titles for line breaking.
var lavkaTitleNoiseRegex = regexp.MustCompile(`[\p{Pd}\x{00AD}\x{200B}]`)

// LavkaSelectors locate product data in Lavka markup
type LavkaSelectors struct {
	Card          string
	Link          string
	Title         string
	Volume        string
	DiscountPrice string
	RegularPrice  string
}

// DefaultLavkaSelectors matches the current Lavka catalog markup
func DefaultLavkaSelectors() LavkaSelectors {
	return LavkaSelectors{
		Card:          `[class="p19kkpiw"]`,
		Link:          `[data-type="product-card-link"]`,
		Title:         `[class="t13q9bt7 t18stym3 bw441np r88klks r1dbrdpx n10d4det l14lhr1r"]`,
		Volume:        `[class="m12g4kzj"]`,
		DiscountPrice: `[class="b15aiivf t18stym3 b1clo64h m493tk9 m1fg51qz tnicrlv l14lhr1r"]`,
		RegularPrice:  `[class="t18stym3 bw441np r88klks r1dbrdpx t1dh4tmf l14lhr1r"]`,
	}
}

// LavkaConfig holds configuration for the Lavka adapter
type LavkaConfig struct {
	URL              string
	InitialWait      time.Duration // lazy rendering of the first screen
	ScrollStep       int           // pixels per scroll
	ScrollPause      time.Duration
	FinalPause       time.Duration
	MaxStableRepeats int // iterations without new references before stopping
	MaxScrolls       int // hard bound when the page never stabilizes
	Selectors        LavkaSelectors
}

// LavkaAdapter scrapes the infinite-scroll Lavka catalog
type LavkaAdapter struct {
	launcher browser.Launcher
	config   LavkaConfig
	baseURL  *url.URL
}

// NewLavkaAdapter creates a Lavka adapter, filling unset config with defaults
func NewLavkaAdapter(launcher browser.Launcher, config LavkaConfig) *LavkaAdapter {
	if config.URL == "" {
		config.URL = DefaultLavkaURL
	}
	if config.ScrollStep <= 0 {
		config.ScrollStep = 850
	}
	if config.MaxStableRepeats <= 0 {
		config.MaxStableRepeats = 4
	}
	if config.MaxScrolls <= 0 {
		config.MaxScrolls = 500
	}
	if config.Selectors == (LavkaSelectors{}) {
		config.Selectors = DefaultLavkaSelectors()
	}

	baseURL, err := url.Parse(config.URL)
	if err != nil {
		log.Printf("[LAVKA] Invalid catalog URL %q: %v", config.URL, err)
	}

	return &LavkaAdapter{
		launcher: launcher,
		config:   config,
		baseURL:  baseURL,
	}
}

func (a *LavkaAdapter) Store() domain.Store {
	return domain.StoreLavka
}

// Scrape scrolls the catalog until the number of distinct references stays
// unchanged for MaxStableRepeats iterations (or MaxScrolls is hit), then
// makes one last pass for late-rendered cards.
func (a *LavkaAdapter) Scrape(ctx context.Context) ([]domain.ProductRecord, error) {
	log.Printf("[LAVKA] Starting scrape of %s", a.config.URL)

	session, err := a.launcher.Open(ctx, a.config.URL)
	if err != nil {
		return nil, scrapeFailure(ctx, domain.StoreLavka, err)
	}
	defer closeSession("LAVKA", session)

	if err := sleep(ctx, a.config.InitialWait); err != nil {
		return nil, scrapeFailure(ctx, domain.StoreLavka, err)
	}

	collected := newRecordSet()
	stableRepeats, scrolls := 0, 0

	for stableRepeats < a.config.MaxStableRepeats {
		if scrolls >= a.config.MaxScrolls {
			log.Printf("[LAVKA] Page still growing after %d scrolls, stopping with %d products", scrolls, collected.Len())
			break
		}

		before := collected.Len()
		if err := a.collect(ctx, session, collected, true); err != nil {
			return nil, scrapeFailure(ctx, domain.StoreLavka, err)
		}
		if collected.Len() == before {
			stableRepeats++
		} else {
			stableRepeats = 0
		}

		if err := session.Scroll(ctx, a.config.ScrollStep); err != nil {
			return nil, scrapeFailure(ctx, domain.StoreLavka, err)
		}
		scrolls++
		if err := sleep(ctx, a.config.ScrollPause); err != nil {
			return nil, scrapeFailure(ctx, domain.StoreLavka, err)
		}
	}

	if err := sleep(ctx, a.config.FinalPause); err != nil {
		return nil, scrapeFailure(ctx, domain.StoreLavka, err)
	}
	if err := a.collect(ctx, session, collected, false); err != nil {
		return nil, scrapeFailure(ctx, domain.StoreLavka, err)
	}

	log.Printf("[LAVKA] Scrape completed after %d scrolls. Found %d products", scrolls, collected.Len())
	return collected.Records(), nil
}

// collect records every card currently rendered. A card already collected may
// only refresh its volume, and only when updateVolume is set.
func (a *LavkaAdapter) collect(ctx context.Context, session browser.Session, collected *recordSet, updateVolume bool) error {
	doc, err := session.Snapshot(ctx)
	if err != nil {
		return err
	}

	doc.Find(a.config.Selectors.Card).Each(func(i int, card *goquery.Selection) {
		record, err := a.extract(card)
		if err != nil {
			log.Printf("[LAVKA] Skipping card %d: %v", i, err)
			return
		}

		if existing, ok := collected.Get(record.Reference); ok {
			if updateVolume && record.Volume != "" {
				existing.Volume = record.Volume
			}
			return
		}
		collected.Add(record)
	})
	return nil
}

func (a *LavkaAdapter) extract(card *goquery.Selection) (domain.ProductRecord, error) {
	sel := a.config.Selectors

	href, ok := card.Find(sel.Link).First().Attr("href")
	if !ok {
		return domain.ProductRecord{}, fmt.Errorf("%w: link %s not found", domain.ErrExtractionFailed, sel.Link)
	}
	reference, err := resolveReference(a.baseURL, href)
	if err != nil {
		return domain.ProductRecord{}, err
	}

	title := lavkaTitleNoiseRegex.ReplaceAllString(cleanText(card.Find(sel.Title).First()), "")
	title = strings.TrimSpace(whitespaceRegex.ReplaceAllString(title, " "))
	if title == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: %s has no title", domain.ErrExtractionFailed, reference)
	}

	record := domain.ProductRecord{
		Reference:   reference,
		Title:       title,
		RawOldPrice: cleanText(card.Find(sel.RegularPrice).First()),
		RawNewPrice: cleanText(card.Find(sel.DiscountPrice).First()),
		Volume:      cleanText(card.Find(sel.Volume).First()),
		Store:       domain.StoreLavka,
	}
	if record.RawOldPrice == "" && record.RawNewPrice == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: %q (%s) has no price", domain.ErrExtractionFailed, title, reference)
	}
	return record, nil
}
