// Package source retrieves memory price snapshots from ChinaFlashMarket (CFM)
// price pages.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"

	"memwatch/internal/config"
	apperrors "memwatch/internal/errors"
	"memwatch/internal/logging"
	"memwatch/internal/models"
	"memwatch/pkg/utils"
)

const (
	// SourceName labels snapshots taken from CFM.
	SourceName = "ChinaFlashMarket (CFM)"
	// CachedSuffix is appended to the source label of a fallback snapshot.
	CachedSuffix = " (cached)"
	// Currency of CFM channel prices.
	Currency = "USD"

	// pageMarker must appear in a valid price page.
	pageMarker   = "DDR"
	maxBodyBytes = 8 << 20
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Source produces price snapshots.
type Source interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// FetchObserver is told about every page request.
type FetchObserver func(url string, duration time.Duration, err error)

// CFMSource scrapes CFM price pages.
type CFMSource struct {
	pages       []config.PageConfig
	client      *http.Client
	retry       utils.RetryConfig
	userAgents  []string
	concurrency int
	fallback    bool
	cached      map[string]models.CategorySnapshot
	observe     FetchObserver
	now         func() time.Time
}

// Option configures a CFMSource.
type Option func(*CFMSource)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *CFMSource) { s.client = c }
}

// WithRetryConfig replaces the retry policy. MaxAttempts is kept from the
// source configuration when cfg leaves it zero.
func WithRetryConfig(cfg utils.RetryConfig) Option {
	return func(s *CFMSource) {
		if cfg.MaxAttempts == 0 {
			cfg.MaxAttempts = s.retry.MaxAttempts
		}
		s.retry = cfg
	}
}

// WithCachedSnapshot registers the fallback snapshot served for url.
func WithCachedSnapshot(url string, snap models.CategorySnapshot) Option {
	return func(s *CFMSource) { s.cached[url] = snap }
}

// WithFetchObserver registers a callback for page requests.
func WithFetchObserver(fn FetchObserver) Option {
	return func(s *CFMSource) { s.observe = fn }
}

// WithClock overrides the time source used when a page has no update time.
func WithClock(now func() time.Time) Option {
	return func(s *CFMSource) { s.now = now }
}

// NewCFMSource creates a source for the configured pages.
func NewCFMSource(cfg config.SourceConfig, opts ...Option) *CFMSource {
	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	s := &CFMSource{
		pages:       cfg.Pages,
		client:      &http.Client{Timeout: cfg.Timeout},
		retry:       retry,
		userAgents:  cfg.UserAgents,
		concurrency: cfg.Concurrency,
		fallback:    cfg.Fallback,
		cached:      map[string]models.CategorySnapshot{config.DefaultPageURL: CachedDDRChannel()},
		now:         time.Now,
	}
	if len(s.userAgents) == 0 {
		s.userAgents = defaultUserAgents
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pageResult struct {
	index int
	name  string
	data  models.CategorySnapshot
}

// Fetch retrieves every configured page. Pages are fetched concurrently and
// the snapshot keeps configuration order. Pages that fail without a fallback
// are left out; the error lists them. Pages without products are omitted.
// Progress is logged to the logger carried by ctx.
func (s *CFMSource) Fetch(ctx context.Context) (models.Snapshot, error) {
	p := pool.NewWithResults[pageResult]().
		WithContext(ctx).
		WithMaxGoroutines(s.concurrency)

	for i, page := range s.pages {
		p.Go(func(ctx context.Context) (pageResult, error) {
			data, err := s.fetchPage(ctx, page)
			if err != nil {
				return pageResult{}, err
			}
			return pageResult{index: i, name: page.Category, data: data}, nil
		})
	}

	results, err := p.Wait()
	slices.SortFunc(results, func(a, b pageResult) int { return a.index - b.index })

	var snap models.Snapshot
	for _, r := range results {
		if len(r.data.Products) == 0 {
			continue
		}
		snap.Add(r.name, r.data)
	}

	if err != nil {
		logger := logging.WithOperation(logging.FromContext(ctx), "fetch")
		logger.Warn().Err(err).
			Int("pages_ok", len(snap.Categories)).
			Int("pages_total", len(s.pages)).
			Msg("Some price pages are unavailable")
	}
	return snap, err
}

// fetchPage downloads and parses one page, retrying with backoff. When every
// attempt fails the cached snapshot for the page is returned if fallback is
// enabled.
func (s *CFMSource) fetchPage(ctx context.Context, page config.PageConfig) (models.CategorySnapshot, error) {
	logger := logging.WithCategory(logging.FromContext(ctx), page.Category)

	retry := s.retry
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", retry.MaxAttempts).
			Dur("retry_in", wait).
			Msg("Price page request failed")
	}

	data, err := utils.RetryWithResult(ctx, retry, func(attempt int) (models.CategorySnapshot, error) {
		start := time.Now()
		data, err := s.scrape(ctx, page)
		elapsed := time.Since(start)
		logging.LogFetch(logger, page.URL, attempt, elapsed, err)
		if s.observe != nil {
			s.observe(page.URL, elapsed, err)
		}
		return data, err
	})
	if err == nil {
		logger.Info().Int("products", len(data.Products)).Msg("Fetched price page")
		return data, nil
	}

	srcErr := apperrors.NewSourceError(page.Category, page.URL, retry.MaxAttempts, err)
	if cached, ok := s.cached[page.URL]; ok && s.fallback {
		logger.Warn().Err(srcErr).Msg("Using cached prices")
		return cloneCategory(cached), nil
	}
	return models.CategorySnapshot{}, srcErr
}

func (s *CFMSource) scrape(ctx context.Context, page config.PageConfig) (models.CategorySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.URL, nil)
	if err != nil {
		return models.CategorySnapshot{}, fmt.Errorf("creating request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.CategorySnapshot{}, fmt.Errorf("requesting page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.CategorySnapshot{}, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.CategorySnapshot{}, fmt.Errorf("reading page: %w", err)
	}
	if !bytes.Contains(body, []byte(pageMarker)) {
		return models.CategorySnapshot{}, fmt.Errorf("page does not look like a %s price list", pageMarker)
	}

	parsed, err := ParsePage(bytes.NewReader(body))
	if err != nil {
		return models.CategorySnapshot{}, err
	}
	for _, rowErr := range parsed.RowErrors {
		logger := logging.WithProduct(logging.FromContext(ctx), rowErr.Product)
		logger.Debug().Err(rowErr.Err).Int("row", rowErr.Row).Msg("Skipping unparsable row")
	}
	if len(parsed.Products) == 0 {
		return models.CategorySnapshot{}, fmt.Errorf("no price rows found")
	}

	updateTime := parsed.UpdateTime
	if updateTime == "" {
		updateTime = s.now().Format("2006-01-02 15:04")
	}

	return models.CategorySnapshot{
		UpdateTime: updateTime,
		Source:     SourceName,
		URL:        page.URL,
		Currency:   Currency,
		Products:   parsed.Products,
	}, nil
}

func (s *CFMSource) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgents[rand.IntN(len(s.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://www.chinaflashmarket.com/")
	req.Header.Set("Cache-Control", "no-cache")
}

func cloneCategory(c models.CategorySnapshot) models.CategorySnapshot {
	out := c
	out.Products = slices.Clone(c.Products)
	return out
}
