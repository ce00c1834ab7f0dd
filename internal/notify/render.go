package notify

import (
	"fmt"
	"html"
	"strings"

	"offerwatch/internal/domain"
	"offerwatch/internal/reconcile"
)

// Digest is everything the renderer needs to build one alert message.
// AllCurrent is set only in show-all mode, when a non-empty snapshot
// produced no changes but the full list should still be displayed.
type Digest struct {
	SourceURL  string
	Changes    reconcile.Changes
	AllCurrent []domain.Offer
	Evaluation string
}

// RenderDigest builds the Telegram HTML message for one pass. Returns the
// empty string when there is nothing to show.
func RenderDigest(d Digest) string {
	var sections []string

	if len(d.Changes.New) > 0 {
		sections = append(sections, "🆕 New offers!\n"+renderOffers(d.Changes.New))
	}
	if len(d.Changes.Restocked) > 0 {
		sections = append(sections, "📦 Back in stock!\n"+renderOffers(d.Changes.Restocked))
	}
	if len(d.Changes.Removed) > 0 {
		sections = append(sections, "❌ Gone or sold out!\n"+renderOffers(d.Changes.Removed))
	}
	if len(sections) == 0 && len(d.AllCurrent) > 0 {
		sections = append(sections, "📋 All current offers:\n"+renderOffers(d.AllCurrent))
	}

	if len(sections) == 0 && d.Evaluation == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🌐 Monitored site: <b>%s</b>\n\n", html.EscapeString(d.SourceURL))
	b.WriteString(strings.Join(sections, "---\n\n"))

	if d.Evaluation != "" {
		b.WriteString("\n\nVerdict: ")
		b.WriteString(html.EscapeString(d.Evaluation))
	}

	fmt.Fprintf(&b, "\n\n🔗 %s", html.EscapeString(d.SourceURL))
	return b.String()
}

func renderOffers(offers []domain.Offer) string {
	var b strings.Builder
	for _, o := range offers {
		name := o.Name
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(&b, " 【%s】", html.EscapeString(name))
		if o.CostName != "" && o.CostName != o.Name {
			fmt.Fprintf(&b, " (%s)", html.EscapeString(o.CostName))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, " CPU: %s\n", orUnknown(o.CPU))
		fmt.Fprintf(&b, " RAM: %s\n", orUnknown(o.RAM))
		fmt.Fprintf(&b, " Storage: %s\n", orUnknown(o.Storage))
		fmt.Fprintf(&b, " Bandwidth/Traffic: %s\n", bandwidthTraffic(o))
		fmt.Fprintf(&b, " IP: %s\n", orUnknown(o.IPInfo))
		fmt.Fprintf(&b, " Price: %s", formatPrice(o))
		if o.Discount != "" {
			fmt.Fprintf(&b, " (%s)", html.EscapeString(o.Discount))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, " Stock: %s\n", stockLabel(o.Stock))
		if o.Remark != "" {
			fmt.Fprintf(&b, " Remark: %s\n", html.EscapeString(o.Remark))
		}
		if o.OrderURL != "" {
			fmt.Fprintf(&b, " Order: %s\n", html.EscapeString(o.OrderURL))
		}
		b.WriteString("-----\n")
	}
	return b.String()
}

// formatPrice prefers the parsed value+currency pair, re-attaching the
// billing period from the raw price string when the parsed form lost it.
func formatPrice(o domain.Offer) string {
	if o.PriceValue != "" && o.Currency != "" {
		price := o.Currency + o.PriceValue
		if idx := strings.Index(o.Price, "/"); idx >= 0 && !strings.Contains(price, "/") {
			price += o.Price[idx:]
		}
		return html.EscapeString(price)
	}
	return orUnknown(o.Price)
}

func bandwidthTraffic(o domain.Offer) string {
	switch {
	case o.Bandwidth != "" && o.Traffic != "":
		return html.EscapeString(o.Bandwidth + " (" + o.Traffic + ")")
	case o.Bandwidth != "":
		return html.EscapeString(o.Bandwidth)
	case o.Traffic != "":
		return html.EscapeString(o.Traffic)
	default:
		return "unknown"
	}
}

func stockLabel(s domain.StockFlag) string {
	switch s {
	case domain.StockIn:
		return "in stock"
	case domain.StockOut:
		return "out of stock"
	default:
		return "unknown"
	}
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return html.EscapeString(v)
}
