package models

import "maps"

// MaxHistoryRecords is the number of most recent snapshots kept in history.
const MaxHistoryRecords = 30

// HistoryRecord is one persisted snapshot of product prices.
type HistoryRecord struct {
	Date      string             `json:"date"`      // YYYY-MM-DD
	Timestamp string             `json:"timestamp"` // RFC 3339
	Prices    map[string]float64 `json:"prices"`
}

// History is the persisted price history: an ordered log of snapshots plus the
// last known price of every product seen in the latest merge.
type History struct {
	Records    []HistoryRecord    `json:"records"`
	LastPrices map[string]float64 `json:"last_prices"`
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		Records:    []HistoryRecord{},
		LastPrices: map[string]float64{},
	}
}

// Normalize replaces nil collections with empty ones.
func (h *History) Normalize() {
	if h.Records == nil {
		h.Records = []HistoryRecord{}
	}
	if h.LastPrices == nil {
		h.LastPrices = map[string]float64{}
	}
	for i := range h.Records {
		if h.Records[i].Prices == nil {
			h.Records[i].Prices = map[string]float64{}
		}
	}
}

// Append adds a record and drops the oldest ones so that at most
// MaxHistoryRecords remain.
func (h *History) Append(rec HistoryRecord) {
	h.Records = append(h.Records, rec)
	if over := len(h.Records) - MaxHistoryRecords; over > 0 {
		kept := make([]HistoryRecord, MaxHistoryRecords)
		copy(kept, h.Records[over:])
		h.Records = kept
	}
}

// Clone returns a deep copy of the history.
func (h *History) Clone() *History {
	out := &History{
		Records:    make([]HistoryRecord, len(h.Records)),
		LastPrices: maps.Clone(h.LastPrices),
	}
	if out.LastPrices == nil {
		out.LastPrices = map[string]float64{}
	}
	for i, r := range h.Records {
		out.Records[i] = HistoryRecord{
			Date:      r.Date,
			Timestamp: r.Timestamp,
			Prices:    maps.Clone(r.Prices),
		}
	}
	return out
}

// Latest returns the most recent record, if any.
func (h *History) Latest() (HistoryRecord, bool) {
	if len(h.Records) == 0 {
		return HistoryRecord{}, false
	}
	return h.Records[len(h.Records)-1], true
}

// TrendPoint is one product price observation drawn from history.
type TrendPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}
