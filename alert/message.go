package alert

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/leonelquinteros/gotext"
)

// Message is the rendered notification text for a fired rule.
type Message struct {
	Title string
	Body  string
}

// BuildMessage renders the localized title and body for a fired rule.
// gotext falls back to the English source strings until a locale is loaded
// (the dashboard ships ko alongside en).
func BuildMessage(r Rule, currentValue float64) Message {
	switch r.Metric {
	case MetricDomesticPrice:
		return Message{
			Title: gotext.Get("Domestic price alert: %s", r.Symbol),
			Body: gotext.Get("%s domestic price reached %s KRW.",
				r.Symbol, formatPrice(currentValue)),
		}
	case MetricForeignPrice:
		return Message{
			Title: gotext.Get("Foreign price alert: %s", r.Symbol),
			Body: gotext.Get("%s foreign price reached %s USDT.",
				r.Symbol, formatPrice(currentValue)),
		}
	case MetricPremium:
		return Message{
			Title: gotext.Get("Premium alert: %s", r.Symbol),
			Body: gotext.Get("%s premium reached %.2f%%.",
				r.Symbol, currentValue),
		}
	default:
		// Unreachable for validated rules; keep a readable fallback anyway.
		return Message{
			Title: gotext.Get("Alert: %s", r.Symbol),
			Body:  fmt.Sprintf("%s reached %v", r.Symbol, currentValue),
		}
	}
}

// formatPrice renders prices the way the dashboard shows them: comma-grouped
// integers for large KRW values, short decimals otherwise.
func formatPrice(v float64) string {
	if v >= 1000 {
		return humanize.Commaf(float64(int64(v)))
	}
	return humanize.CommafWithDigits(v, 4)
}
