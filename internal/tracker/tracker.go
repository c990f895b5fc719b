package tracker

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/rs/zerolog"

	apperrors "memwatch/internal/errors"
	"memwatch/internal/logging"
	"memwatch/internal/models"
	"memwatch/internal/store"
)

// Tracker owns the price history for the lifetime of a run. It loads the
// history once, merges each snapshot into it and persists the result.
//
// A Tracker is not safe for concurrent use; runs against the same store must
// be serialized by the caller (see store.AcquireLock).
type Tracker struct {
	store    store.HistoryStore
	history  *models.History
	now      func() time.Time
	strategy DeltaStrategy
	logger   zerolog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithDeltaStrategy selects how per-run changes are derived.
func WithDeltaStrategy(s DeltaStrategy) Option {
	return func(t *Tracker) { t.strategy = s }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker and loads the history from s.
func New(ctx context.Context, s store.HistoryStore, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		store:    s,
		now:      time.Now,
		strategy: DeltaFromSnapshot,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	h, err := s.Load(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading price history")
	}
	t.history = h

	ev := t.logger.Debug().
		Int("records", len(h.Records)).
		Int("baseline_products", len(h.LastPrices)).
		Str("delta_strategy", string(t.strategy))
	if latest, ok := h.Latest(); ok {
		ev = ev.Str("latest_date", latest.Date)
	}
	ev.Msg("Price tracker ready")

	return t, nil
}

// UpdatePrices merges snap into the history, persists it and returns the
// change-set. When persisting fails the error is returned, no change-set is
// produced and the in-memory history is left as it was.
func (t *Tracker) UpdatePrices(ctx context.Context, snap models.Snapshot) (*models.ChangeSet, error) {
	next, cs, stats := Merge(t.history, snap, t.now(), t.strategy)

	for _, product := range stats.MissingPrice {
		logger := logging.WithProduct(t.logger, product)
		logger.Debug().Msg("Skipping product without price")
	}
	for _, product := range stats.Duplicates {
		logger := logging.WithProduct(t.logger, product)
		logger.Warn().Msg("Skipping duplicate product")
	}
	if stats.Unnamed > 0 {
		t.logger.Warn().Int("count", stats.Unnamed).Msg("Skipping unnamed products")
	}

	if err := t.store.Save(ctx, next); err != nil {
		return nil, apperrors.Wrap(err, "saving price history")
	}
	t.history = next

	logging.LogChangeSet(t.logger, cs, stats.Skipped())
	return cs, nil
}

// PriceTrend yields the product's price from each of the last days history
// records that contain it, oldest first. The sequence is recomputed from the
// current history every time it is iterated.
func (t *Tracker) PriceTrend(product string, days int) iter.Seq[models.TrendPoint] {
	return func(yield func(models.TrendPoint) bool) {
		if days <= 0 {
			return
		}
		records := t.history.Records
		if len(records) > days {
			records = records[len(records)-days:]
		}
		for _, rec := range records {
			price, ok := rec.Prices[product]
			if !ok {
				continue
			}
			if !yield(models.TrendPoint{Date: rec.Date, Price: price}) {
				return
			}
		}
	}
}

// TrendPoints collects PriceTrend into a slice.
func (t *Tracker) TrendPoints(product string, days int) []models.TrendPoint {
	points := slices.Collect(t.PriceTrend(product, days))
	if points == nil {
		return []models.TrendPoint{}
	}
	return points
}

// History returns a copy of the current history.
func (t *Tracker) History() *models.History {
	return t.history.Clone()
}
