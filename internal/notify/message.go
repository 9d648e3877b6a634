// Package notify renders gated deals into Telegram messages and fans them
// out to the subscriber set.
//
// Pipeline: format → fan out with bounded concurrency → report delivered
// count. The progressive-rating bookkeeping stays with the caller.
package notify

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

const (
	captionLimit = 1024 // Telegram caption limit for photo messages
	textLimit    = 4096 // Telegram text message limit

	linkText = "Ver Oferta"
)

// Message is a rendered notification ready for transport.
type Message struct {
	Text     string // HTML body; becomes the caption when PhotoURL is set
	PhotoURL string
	LinkURL  string
	LinkText string
}

// Format renders a deal and its scoring breakdown into a Message. hours is
// the deal's age at observation time. Pure transform, no business logic.
func Format(deal store.RawDeal, hours float64, res scoring.Result) Message {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(deal.Title))
	fmt.Fprintf(&b, "<b>Calificación:</b> %.0f° %s\n", deal.Temperature, strings.Repeat("🔥", res.Rating))
	fmt.Fprintf(&b, "<b>Publicado hace:</b> %s\n", ageText(math.Max(0, hours)))

	merchant := deal.Merchant
	if merchant == "" {
		merchant = "N/D"
	}
	fmt.Fprintf(&b, "<b>Comercio:</b> %s", html.EscapeString(merchant))

	if deal.Price != "" {
		fmt.Fprintf(&b, "\n<b>Precio:</b> %s", html.EscapeString(deal.Price))
	}
	if deal.Discount != "" {
		fmt.Fprintf(&b, "\n<b>Descuento:</b> %s", html.EscapeString(deal.Discount))
	}
	if deal.Coupon != "" {
		fmt.Fprintf(&b, "\n<b>Cupón:</b> <code>%s</code>", html.EscapeString(deal.Coupon))
	}

	if deal.Description != "" {
		fmt.Fprintf(&b, "\n\n<b>Descripción:</b>\n%s", html.EscapeString(deal.Description))
	}

	msg := Message{
		Text:     b.String(),
		LinkURL:  deal.URL,
		LinkText: linkText,
	}
	if strings.HasPrefix(deal.ImageURL, "http") {
		msg.PhotoURL = deal.ImageURL
		msg.Text = truncate(msg.Text, captionLimit)
	} else {
		msg.Text = truncate(msg.Text, textLimit)
	}
	return msg
}

func ageText(hours float64) string {
	if hours >= 1.5 {
		return fmt.Sprintf("%.0f horas", math.Round(hours))
	}
	if hours >= 1 {
		return "1 hora"
	}
	minutes := int(math.Round(hours * 60))
	if minutes > 1 {
		return fmt.Sprintf("%d minutos", minutes)
	}
	return "1 minuto"
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
