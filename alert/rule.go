// Package alert holds the threshold rule registry and evaluator. Rules are
// fire-once: the first evaluation that satisfies a rule's condition retires
// it.
package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"premium-watch-go/market"
)

// Metric selects which board value a rule watches. The set is closed; every
// switch over it is exhaustive.
type Metric int

const (
	MetricDomesticPrice Metric = iota
	MetricForeignPrice
	MetricPremium
)

const (
	metricDomesticStr = "domestic_price"
	metricForeignStr  = "foreign_price"
	metricPremiumStr  = "premium"
)

func (m Metric) String() string {
	switch m {
	case MetricDomesticPrice:
		return metricDomesticStr
	case MetricForeignPrice:
		return metricForeignStr
	case MetricPremium:
		return metricPremiumStr
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric maps the wire form back to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case metricDomesticStr:
		return MetricDomesticPrice, nil
	case metricForeignStr:
		return MetricForeignPrice, nil
	case metricPremiumStr:
		return MetricPremium, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

func (m Metric) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMetric(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value extracts the metric's current value from a board record.
func (m Metric) Value(t market.Tick) float64 {
	switch m {
	case MetricDomesticPrice:
		return t.DomesticPrice
	case MetricForeignPrice:
		return t.ForeignPrice
	case MetricPremium:
		return t.PremiumPct
	default:
		return 0
	}
}

// Condition is the comparison direction. Both comparisons are inclusive: a
// value exactly on the threshold fires.
type Condition int

const (
	Above Condition = iota
	Below
)

const (
	conditionAboveStr = "above"
	conditionBelowStr = "below"
)

func (c Condition) String() string {
	if c == Below {
		return conditionBelowStr
	}
	return conditionAboveStr
}

// ParseCondition maps the wire form back to a Condition.
func ParseCondition(s string) (Condition, error) {
	switch s {
	case conditionAboveStr:
		return Above, nil
	case conditionBelowStr:
		return Below, nil
	default:
		return 0, fmt.Errorf("unknown condition %q", s)
	}
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rule is one user-defined threshold alert. ID is assigned by the registry.
type Rule struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Metric    Metric    `json:"metric"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"createdAt"`
}

// Matches reports whether the rule's condition holds against t.
func (r Rule) Matches(t market.Tick) bool {
	v := r.Metric.Value(t)
	if r.Condition == Above {
		return v >= r.Threshold
	}
	return v <= r.Threshold
}

// Validate checks the fields a caller controls.
func (r Rule) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("rule symbol is required")
	}
	switch r.Metric {
	case MetricDomesticPrice, MetricForeignPrice, MetricPremium:
	default:
		return fmt.Errorf("unknown metric %d", int(r.Metric))
	}
	switch r.Condition {
	case Above, Below:
	default:
		return fmt.Errorf("unknown condition %d", int(r.Condition))
	}
	return nil
}

// HistoryEntry is one fired alert in the append-only history log.
type HistoryEntry struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	FiredAt time.Time `json:"firedAt"`
}

// Store persists rules and history. Implemented by internal/storage.
type Store interface {
	LoadRules() ([]Rule, error)
	SaveRules([]Rule) error
	AppendHistory(HistoryEntry) error
	LoadHistory() ([]HistoryEntry, error)
	ClearHistory() error
}
