package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Trend represents the direction of a product's price for the current cycle.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// TrendFromChange classifies a signed price change.
func TrendFromChange(change float64) Trend {
	switch {
	case change > 0:
		return TrendUp
	case change < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// ProductQuote is one raw product entry as reported by the price source.
// Price is required; a nil Price means the source could not provide one and
// the entry is excluded from tracking. All other numeric fields are optional.
type ProductQuote struct {
	Product       string   `json:"product"`
	Price         *float64 `json:"price"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	LastWeekPrice *float64 `json:"last_week_price,omitempty"`
	WeekHigh      *float64 `json:"week_high,omitempty"`
	WeekLow       *float64 `json:"week_low,omitempty"`
	Trend         Trend    `json:"trend,omitempty"`
}

// CategorySnapshot holds one category's data from a single fetch cycle.
type CategorySnapshot struct {
	UpdateTime string         `json:"update_time"`
	Source     string         `json:"source"`
	URL        string         `json:"url"`
	Currency   string         `json:"currency,omitempty"`
	Products   []ProductQuote `json:"products"`
}

// Category is a named CategorySnapshot.
type Category struct {
	Name string
	CategorySnapshot
}

// Snapshot is one fetch cycle's complete set of category/product price data.
// Categories keep the order in which the source produced them.
type Snapshot struct {
	Categories []Category
}

// Add appends a category to the snapshot.
func (s *Snapshot) Add(name string, data CategorySnapshot) {
	s.Categories = append(s.Categories, Category{Name: name, CategorySnapshot: data})
}

// Len returns the number of raw product entries across all categories.
func (s Snapshot) Len() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Products)
	}
	return n
}

// IsEmpty reports whether the snapshot carries no product entries.
func (s Snapshot) IsEmpty() bool {
	return s.Len() == 0
}

// MarshalJSON encodes the snapshot as an object keyed by category name,
// preserving category order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range s.Categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.CategorySnapshot)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by category name, keeping the
// document order of the keys.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("snapshot: expected object, got %v", tok)
	}

	s.Categories = nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("snapshot: expected category name, got %v", tok)
		}
		var cat CategorySnapshot
		if err := dec.Decode(&cat); err != nil {
			return fmt.Errorf("snapshot: category %q: %w", name, err)
		}
		s.Add(name, cat)
	}

	_, err = dec.Token()
	return err
}

// Float returns a pointer to v, for building quotes.
func Float(v float64) *float64 {
	return &v
}
