package tracker

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"memwatch/internal/models"
)

// Property: the store never holds more than MaxHistoryRecords records, and
// after N > MaxHistoryRecords merges it equals the last MaxHistoryRecords
// merges in order.
func TestProperty_RetentionKeepsMostRecent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("retention bounds history to the last 30 merges", prop.ForAll(
		func(runs int) bool {
			ctx := context.Background()
			day := 0
			clock := func() time.Time {
				return time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC).AddDate(0, 0, day)
			}

			ms := &memStore{}
			tr, err := New(ctx, ms, WithClock(clock))
			if err != nil {
				return false
			}

			var expected []models.HistoryRecord
			for i := 0; i < runs; i++ {
				day = i
				price := float64(100 + i)
				if _, err := tr.UpdatePrices(ctx, snapshotOf(quote("X", price, 0, 0))); err != nil {
					return false
				}
				expected = append(expected, models.HistoryRecord{
					Date:      clock().Format("2006-01-02"),
					Timestamp: clock().Format(time.RFC3339),
					Prices:    map[string]float64{"X": price},
				})
				if len(ms.saved.Records) > models.MaxHistoryRecords {
					t.Logf("history grew to %d records", len(ms.saved.Records))
					return false
				}
			}

			if len(expected) > models.MaxHistoryRecords {
				expected = expected[len(expected)-models.MaxHistoryRecords:]
			}
			if !reflect.DeepEqual(expected, ms.saved.Records) {
				t.Logf("records mismatch after %d runs", runs)
				return false
			}
			return true
		},
		gen.IntRange(1, 75),
	))

	properties.TestingRun(t)
}

// Property: the change-set partitions products by the sign of their change,
// with rises sorted by percent descending and falls ascending, and entries
// without a price never appear anywhere.
func TestProperty_ChangeSetPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("ups, downs and flat partition all products", prop.ForAll(
		func(steps []int, missingEvery int) bool {
			quotes := make([]models.ProductQuote, 0, len(steps))
			missing := map[string]bool{}
			for i, step := range steps {
				c := float64(step) * 1.5
				name := fmt.Sprintf("P%d", i)
				q := quote(name, 100+c, c, c)
				if missingEvery > 0 && i%missingEvery == 0 {
					q.Price = nil
					missing[name] = true
				}
				quotes = append(quotes, q)
			}

			next, cs, stats := Merge(models.NewHistory(), snapshotOf(quotes...), fixedNow, DeltaFromSnapshot)

			if len(stats.MissingPrice) != len(missing) {
				return false
			}
			if cs.TotalProducts != len(steps)-len(missing) || len(cs.AllProducts) != cs.TotalProducts {
				return false
			}
			for _, p := range cs.AllProducts {
				if missing[p.Product] {
					return false
				}
			}
			for name := range missing {
				if _, ok := next.LastPrices[name]; ok {
					return false
				}
			}

			if len(cs.PriceUps)+len(cs.PriceDowns)+len(cs.Flat()) != cs.TotalProducts {
				return false
			}
			for i, p := range cs.PriceUps {
				if p.Change <= 0 {
					return false
				}
				if i > 0 && cs.PriceUps[i-1].ChangePercent < p.ChangePercent {
					return false
				}
			}
			for i, p := range cs.PriceDowns {
				if p.Change >= 0 {
					return false
				}
				if i > 0 && cs.PriceDowns[i-1].ChangePercent > p.ChangePercent {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-10, 10)),
		gen.IntRange(0, 4),
	))

	properties.Property("merge does not modify the input history", prop.ForAll(
		func(runs int) bool {
			h := models.NewHistory()
			for i := 0; i < runs; i++ {
				h.Append(models.HistoryRecord{Date: fmt.Sprintf("d%d", i), Prices: map[string]float64{"X": float64(i)}})
			}
			h.LastPrices = map[string]float64{"X": 1}
			before := h.Clone()

			Merge(h, snapshotOf(quote("X", 5, 4, 400)), fixedNow, DeltaFromHistory)
			return reflect.DeepEqual(before, h)
		},
		gen.IntRange(0, 35),
	))

	properties.TestingRun(t)
}
