package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveTransfer(t *testing.T) {
	c := NewCollector()

	c.ObserveTransfer("SEND", "ok", 20*time.Millisecond)
	c.ObserveTransfer("SEND", "ok", 10*time.Millisecond)
	c.ObserveTransfer("SEND", "LED_003", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.transfers.WithLabelValues("SEND", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.transfers.WithLabelValues("SEND", "LED_003")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.transferDuration))
}

func TestCollector_ConflictRetries(t *testing.T) {
	c := NewCollector()
	c.IncConflictRetry("CASH_OUT")
	c.IncConflictRetry("CASH_OUT")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.conflictRetries.WithLabelValues("CASH_OUT")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveHTTP("POST", "/api/v1/wallets/send", 200)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{method="POST",route="/api/v1/wallets/send",status="200"} 1`)
}
