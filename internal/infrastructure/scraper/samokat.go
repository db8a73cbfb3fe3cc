package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/browser"
)

// DefaultSamokatURL is the water category of the Samokat catalog
const DefaultSamokatURL = "https://samokat.ru/category/voda"

const rubleSign = "₽"

// SamokatSelectors locate product data in Samokat markup
type SamokatSelectors struct {
	ProductList   string
	Card          string // relative to ProductList
	Title         string
	Volume        string
	OldPrice      string
	Content       string // current price is the first span with a ruble sign in here
	PriceFragment string
}

// DefaultSamokatSelectors matches the current Samokat catalog markup
func DefaultSamokatSelectors() SamokatSelectors {
	return SamokatSelectors{
		ProductList:   `[class="ProductsList_productList__jjQpU"]`,
		Card:          "a",
		Title:         `[class="ProductCard_name__2VDcL"] [class="Text_text__7SbT7 Text_text--type_p3SemiBold__nZftu"]`,
		Volume:        `[class="ProductCard_specification__Y0xA6"] [class="Text_text__7SbT7 Text_text--type_p3SemiBold__nZftu"]`,
		OldPrice:      `[class="ProductCardActions_oldPrice__d7vDY"]`,
		Content:       `[class="ProductCard_content__EjT48"]`,
		PriceFragment: "span",
	}
}

// SamokatConfig holds configuration for the Samokat adapter
type SamokatConfig struct {
	URL         string
	InitialWait time.Duration
	Selectors   SamokatSelectors
}

// SamokatAdapter scrapes the fully rendered Samokat catalog in a single pass
type SamokatAdapter struct {
	launcher browser.Launcher
	config   SamokatConfig
	baseURL  *url.URL
}

// NewSamokatAdapter creates a Samokat adapter, filling unset config with defaults
func NewSamokatAdapter(launcher browser.Launcher, config SamokatConfig) *SamokatAdapter {
	if config.URL == "" {
		config.URL = DefaultSamokatURL
	}
	if config.Selectors == (SamokatSelectors{}) {
		config.Selectors = DefaultSamokatSelectors()
	}

	baseURL, err := url.Parse(config.URL)
	if err != nil {
		log.Printf("[SAMOKAT] Invalid catalog URL %q: %v", config.URL, err)
	}

	return &SamokatAdapter{
		launcher: launcher,
		config:   config,
		baseURL:  baseURL,
	}
}

func (a *SamokatAdapter) Store() domain.Store {
	return domain.StoreSamokat
}

// Scrape walks every product list container once
func (a *SamokatAdapter) Scrape(ctx context.Context) ([]domain.ProductRecord, error) {
	log.Printf("[SAMOKAT] Starting scrape of %s", a.config.URL)

	session, err := a.launcher.Open(ctx, a.config.URL)
	if err != nil {
		return nil, scrapeFailure(ctx, domain.StoreSamokat, err)
	}
	defer closeSession("SAMOKAT", session)

	if err := sleep(ctx, a.config.InitialWait); err != nil {
		return nil, scrapeFailure(ctx, domain.StoreSamokat, err)
	}

	doc, err := session.Snapshot(ctx)
	if err != nil {
		return nil, scrapeFailure(ctx, domain.StoreSamokat, err)
	}

	sel := a.config.Selectors
	collected := newRecordSet()

	doc.Find(sel.ProductList).Each(func(_ int, list *goquery.Selection) {
		list.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
			reference, err := a.reference(card)
			if err != nil {
				log.Printf("[SAMOKAT] Skipping card %d: %v", i, err)
				return
			}
			if _, seen := collected.Get(reference); seen {
				return
			}

			record, err := a.extract(card, reference)
			if err != nil {
				log.Printf("[SAMOKAT] Skipping card %d: %v", i, err)
				return
			}
			collected.Add(record)
		})
	})

	log.Printf("[SAMOKAT] Scrape completed. Found %d products", collected.Len())
	return collected.Records(), nil
}

func (a *SamokatAdapter) reference(card *goquery.Selection) (string, error) {
	href, ok := card.Attr("href")
	if !ok {
		return "", fmt.Errorf("%w: card has no href", domain.ErrExtractionFailed)
	}
	return resolveReference(a.baseURL, href)
}

func (a *SamokatAdapter) extract(card *goquery.Selection, reference string) (domain.ProductRecord, error) {
	sel := a.config.Selectors

	title := cleanText(card.Find(sel.Title).First())
	if title == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: %s has no title", domain.ErrExtractionFailed, reference)
	}

	record := domain.ProductRecord{
		Reference:   reference,
		Title:       title,
		RawOldPrice: cleanText(card.Find(sel.OldPrice).First()),
		RawNewPrice: a.currentPrice(card),
		Volume:      cleanText(card.Find(sel.Volume).First()),
		Store:       domain.StoreSamokat,
	}
	if record.RawOldPrice == "" && record.RawNewPrice == "" {
		return domain.ProductRecord{}, fmt.Errorf("%w: %q (%s) has no price", domain.ErrExtractionFailed, title, reference)
	}
	return record, nil
}

// currentPrice is the first span inside the card content whose own text carries a ruble sign
func (a *SamokatAdapter) currentPrice(card *goquery.Selection) string {
	sel := a.config.Selectors

	var price string
	card.Find(sel.Content).First().Find(sel.PriceFragment).EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := ownText(span)
		if strings.Contains(text, rubleSign) {
			price = text
			return false
		}
		return true
	})
	return price
}
