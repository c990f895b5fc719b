package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memwatch/internal/models"
)

func TestObserveChangeSet(t *testing.T) {
	r := NewRecorder()
	all := []models.PriceRecord{
		{Product: "DDR4 UDIMM 8GB 3200", Category: "DDR", Price: 47, Change: 2, ChangePercent: 4},
		{Product: "DDR4 UDIMM 16GB 3200", Category: "DDR", Price: 90, Change: -3, ChangePercent: -2},
	}
	cs := &models.ChangeSet{
		Date:          "2026-01-20",
		AllProducts:   all,
		PriceUps:      all[:1],
		PriceDowns:    all[1:],
		TotalProducts: 2,
	}

	r.ObserveChangeSet(cs, 3, 12)
	r.ObserveChangeSet(cs, 1, 13)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.productsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.priceUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.priceDowns))
	assert.Equal(t, 13.0, testutil.ToFloat64(r.historyRecords))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.skippedEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.averageChange))
	assert.Equal(t, 90.0, testutil.ToFloat64(r.productPrice.WithLabelValues("DDR4 UDIMM 16GB 3200", "DDR")))
}

func TestObserveRunAndFetch(t *testing.T) {
	r := NewRecorder()
	at := time.Date(2026, 1, 20, 11, 0, 0, 0, time.UTC)

	r.ObserveRun(at, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.lastRunSuccess))
	r.ObserveRun(at, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.lastRunSuccess))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(r.lastRun))

	r.ObserveFetch("https://example.com", 200*time.Millisecond, nil)
	r.ObserveFetch("https://example.com", time.Second, errors.New("timeout"))
	assert.Equal(t, 2, testutil.CollectAndCount(r.fetchDuration))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(time.Now(), true)

	path := filepath.Join(t.TempDir(), "textfile", "memwatch.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "memwatch_last_run_success 1")
	assert.Contains(t, string(data), "# TYPE memwatch_products_total gauge")

	assert.NoError(t, r.WriteTextfile(""))
}
