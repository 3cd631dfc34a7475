package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bidsTotal.WithLabelValues("conflict"))
	RecordBid("conflict", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(bidsTotal.WithLabelValues("conflict")))

	failed := testutil.ToFloat64(relayEvents.WithLabelValues("out", "error"))
	RecordRelay("out", errors.New("boom"))
	RecordRelay("out", nil)
	assert.Equal(t, failed+1, testutil.ToFloat64(relayEvents.WithLabelValues("out", "error")))

	open := testutil.ToFloat64(sessions)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, open+1, testutil.ToFloat64(sessions))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordTransition("started")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gavel_auction_transitions_total{kind="started"}`)
}
