package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(operationsTotal.WithLabelValues("ftp", "list", "error"))
	RecordOperation("ftp", "list", 20*time.Millisecond, false)
	RecordOperation("ftp", "list", 10*time.Millisecond, true)

	assert.Equal(t, before+1, testutil.ToFloat64(operationsTotal.WithLabelValues("ftp", "list", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(operationsTotal.WithLabelValues("ftp", "list", "success")), 1.0)
}

func TestRecordBatch(t *testing.T) {
	ok := testutil.ToFloat64(batchItemsTotal.WithLabelValues("succeeded"))
	failed := testutil.ToFloat64(batchItemsTotal.WithLabelValues("failed"))
	skipped := testutil.ToFloat64(batchItemsTotal.WithLabelValues("skipped"))

	RecordBatch(2, 1, 1)

	assert.Equal(t, ok+2, testutil.ToFloat64(batchItemsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, failed+1, testutil.ToFloat64(batchItemsTotal.WithLabelValues("failed")))
	assert.Equal(t, skipped+1, testutil.ToFloat64(batchItemsTotal.WithLabelValues("skipped")))
}

func TestSessionAndCleanupCounters(t *testing.T) {
	sessions := testutil.ToFloat64(sessionsTotal.WithLabelValues("smb", "success"))
	cleanups := testutil.ToFloat64(cleanupFailuresTotal.WithLabelValues("smb"))

	RecordSession("smb", true)
	RecordCleanupFailure("smb")
	RecordScheduledRun("nightly", true)

	assert.Equal(t, sessions+1, testutil.ToFloat64(sessionsTotal.WithLabelValues("smb", "success")))
	assert.Equal(t, cleanups+1, testutil.ToFloat64(cleanupFailuresTotal.WithLabelValues("smb")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(scheduledRunsTotal.WithLabelValues("nightly", "success")), 1.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordOperation("s3", "download", time.Second, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "yaami_operations_total")
	assert.Contains(t, string(body), "yaami_operation_duration_seconds")
}
