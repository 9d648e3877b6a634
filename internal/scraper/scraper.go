// Package scraper extracts deal listings from promodescuentos.com.
//
// Extraction is two-layered: the embedded Vue component JSON
// (div.js-vue3[data-vue3]) is authoritative when present, with CSS selector
// fallbacks for the fields the JSON omits. The site ships both on the
// /nuevas listing page.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// Scraper is the listing-page contract the cycle loop consumes.
type Scraper interface {
	FetchNewest(ctx context.Context) ([]store.RawDeal, error)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Client scrapes the live site.
type Client struct {
	httpClient *http.Client
	newestURL  string
	logger     *slog.Logger
}

// New creates a scraping client. timeout bounds each page fetch.
func New(newestURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		newestURL:  newestURL,
		logger:     logger,
	}
}

// FetchNewest downloads and parses the newest-deals listing page. The fetch
// is retried once with backoff before giving up for this cycle.
func (c *Client) FetchNewest(ctx context.Context) ([]store.RawDeal, error) {
	var doc *goquery.Document
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			delay := time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
			c.logger.Warn("newest page fetch failed, retrying", "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if doc, err = c.fetchDocument(ctx, c.newestURL); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch newest page: %w", err)
	}

	return c.parseListing(doc), nil
}

func (c *Client) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("listing page returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// parseListing extracts one RawDeal per article, de-duplicated by URL.
func (c *Client) parseListing(doc *goquery.Document) []store.RawDeal {
	articles := doc.Find("article.thread")
	c.logger.Info("listing parsed", "articles", articles.Length())

	seen := make(map[string]struct{})
	var deals []store.RawDeal
	articles.Each(func(_ int, art *goquery.Selection) {
		deal, ok := extractDeal(art)
		if !ok {
			return
		}
		if _, dup := seen[deal.URL]; dup {
			return
		}
		seen[deal.URL] = struct{}{}
		deals = append(deals, deal)
	})
	return deals
}

const descriptionLimit = 280

func extractDeal(art *goquery.Selection) (store.RawDeal, bool) {
	vue := extractVueThread(art)

	deal := store.RawDeal{
		URL:   vue.url(),
		Title: vue.Title,
	}

	// HTML fallbacks for identity fields.
	if deal.URL == "" || deal.Title == "" {
		link := art.Find("strong.thread-title a, a.thread-link").First()
		if deal.Title == "" {
			deal.Title = strings.TrimSpace(link.Text())
		}
		if deal.URL == "" {
			if href, ok := link.Attr("href"); ok {
				deal.URL = absoluteURL(href)
			}
		}
	}
	if deal.URL == "" {
		return store.RawDeal{}, false
	}

	deal.Merchant = vue.merchantName()
	if deal.Merchant == "" {
		deal.Merchant = strings.TrimSpace(
			strings.TrimPrefix(art.Find(`a[data-t="merchantLink"], span.thread-merchant`).First().Text(), "Disponible en"))
	}

	deal.Price = vue.priceDisplay()
	if deal.Price == "" {
		deal.Price = strings.TrimSpace(art.Find(".thread-price").First().Text())
	}

	deal.Discount = vue.DiscountPercentage
	if deal.Discount == "" {
		if txt := strings.TrimSpace(art.Find(".thread-discount, .textBadge--green").First().Text()); strings.Contains(txt, "%") {
			deal.Discount = txt
		}
	}

	deal.Coupon = vue.VoucherCode
	if deal.Coupon == "" {
		deal.Coupon = strings.TrimSpace(art.Find(".voucher .buttonWithCode-code").First().Text())
	}

	deal.ImageURL = vue.imageURL()
	if deal.ImageURL == "" {
		if src, ok := art.Find("img.thread-image").First().Attr("src"); ok {
			deal.ImageURL = src
		}
	}

	if desc := strings.TrimSpace(art.Find(".thread-description .userHtml-content").First().Text()); desc != "" {
		if len([]rune(desc)) > descriptionLimit {
			desc = string([]rune(desc)[:descriptionLimit]) + "..."
		}
		deal.Description = desc
	}

	if vue.Temperature != nil {
		deal.Temperature = *vue.Temperature
		deal.TemperatureOK = true
	} else {
		deal.Temperature, deal.TemperatureOK = parseTemperature(art.Find(".vote-temp").First().Text())
	}

	if vue.PublishedAt > 0 {
		deal.PublishedAt = time.Unix(vue.PublishedAt, 0)
	} else {
		deal.PublishedAt = parseRelativeTime(art.Find("span.chip span.size--all-s").First().Text())
	}

	meta := art.Find(".thread-meta").Text()
	deal.Expired = vue.IsExpired || strings.Contains(meta, "Expiró")

	return deal, true
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return "https://www.promodescuentos.com" + href
	}
	return href
}
