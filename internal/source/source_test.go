package source

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memwatch/internal/config"
	apperrors "memwatch/internal/errors"
	"memwatch/internal/logging"
	"memwatch/internal/models"
	"memwatch/pkg/utils"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/ddrchannel.html")
	require.NoError(t, err)
	return data
}

func fastRetry() Option {
	return WithRetryConfig(utils.RetryConfig{
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	})
}

func sourceConfig(pages ...config.PageConfig) config.SourceConfig {
	return config.SourceConfig{
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		Fallback:    true,
		Concurrency: 2,
		Pages:       pages,
	}
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(strings.NewReader(string(fixture(t))))
	require.NoError(t, err)

	assert.Equal(t, "2026-01-20 11:00", page.UpdateTime)
	require.Len(t, page.Products, 3)
	require.Len(t, page.RowErrors, 1)
	assert.Equal(t, "DDR5 SODIMM 16GB 5600", page.RowErrors[0].Product)

	up := page.Products[0]
	assert.Equal(t, "DDR4 UDIMM 8GB 3200", up.Product)
	assert.Equal(t, 47.0, *up.Price)
	assert.Equal(t, 2.0, *up.Change)
	assert.Equal(t, 4.44, *up.ChangePercent)
	assert.Equal(t, 45.0, *up.LastWeekPrice)
	assert.Equal(t, 52.0, *up.WeekHigh)
	assert.Equal(t, 45.0, *up.WeekLow)
	assert.Equal(t, models.TrendUp, up.Trend)

	down := page.Products[1]
	assert.Equal(t, -3.0, *down.Change)
	assert.Equal(t, -3.23, *down.ChangePercent)
	assert.Equal(t, models.TrendDown, down.Trend)

	flat := page.Products[2]
	assert.Equal(t, 1270.0, *flat.Price)
	assert.Equal(t, 0.0, *flat.Change)
	assert.Equal(t, models.TrendFlat, flat.Trend)
}

func TestParsePageWithoutTable(t *testing.T) {
	page, err := ParsePage(strings.NewReader("<html><body>DDR prices coming soon</body></html>"))
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.Empty(t, page.UpdateTime)
}

func TestFetchParsesLivePage(t *testing.T) {
	body := fixture(t)
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	src := NewCFMSource(sourceConfig(config.PageConfig{Category: "DDR", URL: srv.URL}), fastRetry())
	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Categories, 1)
	cat := snap.Categories[0]
	assert.Equal(t, "DDR", cat.Name)
	assert.Equal(t, SourceName, cat.Source)
	assert.Equal(t, srv.URL, cat.URL)
	assert.Equal(t, "USD", cat.Currency)
	assert.Equal(t, "2026-01-20 11:00", cat.UpdateTime)
	assert.Len(t, cat.Products, 3)
	assert.NotEmpty(t, gotUA.Load())
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	body := fixture(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	var observed atomic.Int32
	src := NewCFMSource(sourceConfig(config.PageConfig{Category: "DDR", URL: srv.URL}),
		fastRetry(),
		WithFetchObserver(func(url string, d time.Duration, err error) { observed.Add(1) }),
	)
	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), observed.Load())
}

func TestFetchTreatsPageWithoutMarkerAsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html><body>Access denied</body></html>"))
	}))
	defer srv.Close()

	cfg := sourceConfig(config.PageConfig{Category: "DDR", URL: srv.URL})
	cfg.Fallback = false
	src := NewCFMSource(cfg, fastRetry())

	snap, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchFallsBackToCachedSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewCFMSource(sourceConfig(config.PageConfig{Category: config.DefaultCategory, URL: srv.URL}),
		fastRetry(),
		WithCachedSnapshot(srv.URL, CachedDDRChannel()),
	)
	var logs bytes.Buffer
	ctx := logging.WithLogger(context.Background(), zerolog.New(&logs))
	snap, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Using cached prices")
	assert.Contains(t, logs.String(), `"category":"DDR Memory (Channel Market)"`)

	require.Len(t, snap.Categories, 1)
	cat := snap.Categories[0]
	assert.Equal(t, SourceName+" (cached)", cat.Source)
	assert.Equal(t, "2026-01-20 11:00", cat.UpdateTime)
	require.Len(t, cat.Products, 7)
	assert.Equal(t, "DDR4 UDIMM 8GB 3200", cat.Products[0].Product)
	assert.Equal(t, 28.0, *cat.Products[3].ChangePercent)
}

func TestFetchKeepsConfigurationOrder(t *testing.T) {
	body := fixture(t)
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write(body)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer fast.Close()

	src := NewCFMSource(sourceConfig(
		config.PageConfig{Category: "First", URL: slow.URL},
		config.PageConfig{Category: "Second", URL: fast.URL},
	), fastRetry())

	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Categories, 2)
	assert.Equal(t, "First", snap.Categories[0].Name)
	assert.Equal(t, "Second", snap.Categories[1].Name)
}

func TestFetchKeepsHealthyPagesWhenOneFails(t *testing.T) {
	body := fixture(t)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cfg := sourceConfig(
		config.PageConfig{Category: "Broken", URL: bad.URL},
		config.PageConfig{Category: "Healthy", URL: good.URL},
	)
	cfg.Fallback = false
	src := NewCFMSource(cfg, fastRetry())

	snap, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	require.Len(t, snap.Categories, 1)
	assert.Equal(t, "Healthy", snap.Categories[0].Name)
}
