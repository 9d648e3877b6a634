package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// vueThread is the subset of the ThreadMainListItemNormalizer component
// props the pipeline reads.
type vueThread struct {
	ThreadID           json.Number `json:"threadId"`
	Title              string      `json:"title"`
	TitleSlug          string      `json:"titleSlug"`
	ShareableLink      string      `json:"shareableLink"`
	Link               string      `json:"link"`
	Temperature        *float64    `json:"temperature"`
	PublishedAt        int64       `json:"publishedAt"`
	IsExpired          bool        `json:"isExpired"`
	Price              json.Number `json:"price"`
	PriceDisplay       string      `json:"priceDisplay"`
	DiscountPercentage string      `json:"discountPercentage"`
	VoucherCode        string      `json:"voucherCode"`
	MerchantName       string      `json:"merchantName"`
	Merchant           struct {
		MerchantName string `json:"merchantName"`
		Name         string `json:"name"`
	} `json:"merchant"`
	MainImage struct {
		Path string `json:"path"`
		Name string `json:"name"`
		Ext  string `json:"ext"`
	} `json:"mainImage"`
}

type vueComponent struct {
	Name  string `json:"name"`
	Props struct {
		Thread vueThread `json:"thread"`
	} `json:"props"`
}

// extractVueThread finds the thread normalizer component inside an article.
// Returns the zero value when the attribute is missing or unparsable — the
// caller falls back to CSS selectors.
func extractVueThread(art *goquery.Selection) vueThread {
	var thread vueThread
	art.Find("div.js-vue3[data-vue3]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		raw, ok := el.Attr("data-vue3")
		if !ok {
			return true
		}
		var comp vueComponent
		if err := json.Unmarshal([]byte(raw), &comp); err != nil {
			return true
		}
		if comp.Name != "ThreadMainListItemNormalizer" {
			return true
		}
		thread = comp.Props.Thread
		return false
	})
	return thread
}

func (t vueThread) url() string {
	if t.TitleSlug != "" && t.ThreadID.String() != "" {
		return fmt.Sprintf("https://www.promodescuentos.com/ofertas/%s-%s", t.TitleSlug, t.ThreadID.String())
	}
	if t.ShareableLink != "" {
		return t.ShareableLink
	}
	return t.Link
}

func (t vueThread) merchantName() string {
	if t.Merchant.MerchantName != "" {
		return t.Merchant.MerchantName
	}
	if t.Merchant.Name != "" {
		return t.Merchant.Name
	}
	return t.MerchantName
}

func (t vueThread) priceDisplay() string {
	if v, err := t.Price.Float64(); err == nil && v > 0 {
		return fmt.Sprintf("$%.2f", v)
	}
	return t.PriceDisplay
}

func (t vueThread) imageURL() string {
	img := t.MainImage
	if img.Path == "" || img.Name == "" {
		return ""
	}
	ext := img.Ext
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("https://static.promodescuentos.com/%s/%s.%s", img.Path, img.Name, ext)
}

// --------------------------------------------------------------------------
// CSS fallback parsers
// --------------------------------------------------------------------------

// parseTemperature reports whether the element text carried a readable
// temperature at all, so callers can tell 0° apart from a missing field.
func parseTemperature(text string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, "°", ""))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var relativeRe = regexp.MustCompile(`(\d+)`)

// parseRelativeTime turns the listing chip text ("hace 12 min", "hace 3 h")
// into an absolute timestamp. Zero time when unparsable, which the
// validator treats as malformed.
func parseRelativeTime(text string) time.Time {
	lower := strings.ToLower(strings.TrimSpace(text))
	m := relativeRe.FindString(lower)
	if m == "" {
		return time.Time{}
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return time.Time{}
	}

	// The unit is the text after the number; "hace" itself contains an "h".
	unit := strings.TrimSpace(lower[strings.Index(lower, m)+len(m):])
	switch {
	case strings.HasPrefix(unit, "min"):
		return time.Now().Add(-time.Duration(n) * time.Minute)
	case strings.HasPrefix(unit, "h"):
		return time.Now().Add(-time.Duration(n) * time.Hour)
	default:
		return time.Time{}
	}
}
