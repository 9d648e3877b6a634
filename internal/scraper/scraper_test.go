package scraper

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const vueArticle = `
<article class="thread">
  <div class="js-vue3" data-vue3='{"name":"ThreadMainListItemNormalizer","props":{"thread":{
    "threadId":987654,
    "title":"Pantalla 55 pulgadas",
    "titleSlug":"pantalla-55-pulgadas",
    "temperature":123.5,
    "publishedAt":1757100000,
    "isExpired":false,
    "price":7999,
    "discountPercentage":"-38%",
    "voucherCode":"HOTSALE",
    "merchant":{"merchantName":"Liverpool"},
    "mainImage":{"path":"threads/raw","name":"987654_1","ext":"jpg"}
  }}}'></div>
  <div class="thread-description"><div class="userHtml-content">Pantalla 4K con Dolby Vision.</div></div>
</article>`

const fallbackArticle = `
<article class="thread">
  <strong class="thread-title"><a href="/ofertas/cafetera-4433">Cafetera italiana</a></strong>
  <span class="thread-merchant">Walmart</span>
  <span class="thread-price">$350</span>
  <div class="vote-temp">87°</div>
  <span class="chip"><span class="size--all-s">hace 25 min</span></span>
  <div class="thread-meta">Publicado hace 25 min</div>
</article>`

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + html + "</body></html>"))
	require.NoError(t, err)
	return doc
}

func TestExtractDeal_VueData(t *testing.T) {
	doc := docFrom(t, vueArticle)

	deal, ok := extractDeal(doc.Find("article.thread").First())
	require.True(t, ok)

	assert.Equal(t, "https://www.promodescuentos.com/ofertas/pantalla-55-pulgadas-987654", deal.URL)
	assert.Equal(t, "Pantalla 55 pulgadas", deal.Title)
	assert.Equal(t, "Liverpool", deal.Merchant)
	assert.Equal(t, 123.5, deal.Temperature)
	assert.True(t, deal.TemperatureOK)
	assert.Equal(t, "$7999.00", deal.Price)
	assert.Equal(t, "-38%", deal.Discount)
	assert.Equal(t, "HOTSALE", deal.Coupon)
	assert.Equal(t, "https://static.promodescuentos.com/threads/raw/987654_1.jpg", deal.ImageURL)
	assert.Equal(t, "Pantalla 4K con Dolby Vision.", deal.Description)
	assert.Equal(t, time.Unix(1757100000, 0), deal.PublishedAt)
	assert.False(t, deal.Expired)
	assert.True(t, deal.Valid())
}

func TestExtractDeal_CSSFallback(t *testing.T) {
	doc := docFrom(t, fallbackArticle)

	deal, ok := extractDeal(doc.Find("article.thread").First())
	require.True(t, ok)

	assert.Equal(t, "https://www.promodescuentos.com/ofertas/cafetera-4433", deal.URL)
	assert.Equal(t, "Cafetera italiana", deal.Title)
	assert.Equal(t, "Walmart", deal.Merchant)
	assert.Equal(t, "$350", deal.Price)
	assert.Equal(t, 87.0, deal.Temperature)
	assert.True(t, deal.TemperatureOK)

	// "hace 25 min" resolves to roughly 25 minutes ago.
	age := time.Since(deal.PublishedAt)
	assert.InDelta(t, 25.0, age.Minutes(), 1.0)
}

func TestExtractDeal_ExpiredFromMeta(t *testing.T) {
	doc := docFrom(t, strings.Replace(fallbackArticle,
		"Publicado hace 25 min", "Expiró hace 2 h", 1))

	deal, ok := extractDeal(doc.Find("article.thread").First())
	require.True(t, ok)
	assert.True(t, deal.Expired)
}

// A listing card with neither Vue temperature nor a vote badge parses as a
// deal but fails validation — malformed, not cold.
func TestExtractDeal_MissingTemperature(t *testing.T) {
	doc := docFrom(t, `
<article class="thread">
  <strong class="thread-title"><a href="/ofertas/misterio-99">Oferta misteriosa</a></strong>
  <span class="chip"><span class="size--all-s">hace 5 min</span></span>
</article>`)

	deal, ok := extractDeal(doc.Find("article.thread").First())
	require.True(t, ok)
	assert.False(t, deal.TemperatureOK)
	assert.False(t, deal.Valid())
}

func TestExtractDeal_NoURL(t *testing.T) {
	doc := docFrom(t, `<article class="thread"><div class="vote-temp">50°</div></article>`)

	_, ok := extractDeal(doc.Find("article.thread").First())
	assert.False(t, ok)
}

func TestParseListing_DedupesByURL(t *testing.T) {
	c := New("http://example.invalid", time.Second, discardLogger())
	doc := docFrom(t, fallbackArticle+fallbackArticle)

	deals := c.parseListing(doc)
	assert.Len(t, deals, 1)
}

func TestParseTemperature(t *testing.T) {
	v, ok := parseTemperature("123°")
	assert.True(t, ok)
	assert.Equal(t, 123.0, v)

	v, ok = parseTemperature(" 55.5° ")
	assert.True(t, ok)
	assert.Equal(t, 55.5, v)

	// A parsed zero is a real reading, not a missing field.
	v, ok = parseTemperature("0°")
	assert.True(t, ok)
	assert.Zero(t, v)

	_, ok = parseTemperature("")
	assert.False(t, ok)
	_, ok = parseTemperature("muy caliente")
	assert.False(t, ok)
}

func TestParseRelativeTime(t *testing.T) {
	age := time.Since(parseRelativeTime("hace 12 min"))
	assert.InDelta(t, 12, age.Minutes(), 1.0)

	age = time.Since(parseRelativeTime("hace 3 h"))
	assert.InDelta(t, 3, age.Hours(), 0.1)

	assert.True(t, parseRelativeTime("ayer").IsZero())
	assert.True(t, parseRelativeTime("").IsZero())
}
