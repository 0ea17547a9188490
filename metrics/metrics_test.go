package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits)
	misses := testutil.ToFloat64(CacheMisses)

	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheHits))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheMisses))
}

func TestRecordIngest(t *testing.T) {
	rows := testutil.ToFloat64(RecordsIngested.WithLabelValues("mock"))
	errs := testutil.ToFloat64(IngestErrors.WithLabelValues("mock"))

	RecordIngest("mock", 25, nil)
	RecordIngest("mock", 0, errors.New("down"))

	assert.Equal(t, rows+25, testutil.ToFloat64(RecordsIngested.WithLabelValues("mock")))
	assert.Equal(t, errs+1, testutil.ToFloat64(IngestErrors.WithLabelValues("mock")))
}

func TestRecordAggregationAndRequests(t *testing.T) {
	before := testutil.ToFloat64(RecordsAggregated)
	RecordAggregation(12*time.Millisecond, 40)
	assert.Equal(t, before+40, testutil.ToFloat64(RecordsAggregated))

	series := testutil.CollectAndCount(APIRequestDuration, "shelterstat_api_request_duration_seconds")
	RecordAPIRequest("GET", "/api/dashboard", "418", 5*time.Millisecond)
	RecordAPIRequest("GET", "/api/dashboard", "418", 7*time.Millisecond)
	assert.Equal(t, series+1, testutil.CollectAndCount(APIRequestDuration, "shelterstat_api_request_duration_seconds"))
}
