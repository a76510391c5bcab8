package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.SetTotalCounts(3, 30)

	c.IncUploaded(10)
	c.IncExisting(10)
	c.IncFailed()
	c.IncSkipped("unsupported_extension")
	c.IncSkipped("unsupported_extension")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues("uploaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues("existing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.skippedTotal.WithLabelValues("unsupported_extension")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.bytesTotal))

	status := c.GetProgressTracker().GetStatus()
	assert.Equal(t, int64(3), status.ProcessedFiles)
	assert.Equal(t, int64(3), status.TotalFiles)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.IncFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.filesTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.filesTotal.WithLabelValues("failed")))
}

func TestWorkerGauge(t *testing.T) {
	c := New()
	c.WorkerStarted()
	c.WorkerStarted()
	c.WorkerFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inflightWorkers))
}

func TestHandler(t *testing.T) {
	c := New()
	c.IncUploaded(5)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `import_files_total{status="uploaded"} 1`)
	assert.Contains(t, string(body), "import_bytes_total 5")
}
