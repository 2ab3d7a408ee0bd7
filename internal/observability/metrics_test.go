package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.AddTokensDelivered(3)
	metrics.AddTokensFailed("Unavailable", 2)
	metrics.IncTokenEvicted("unregistered")
	metrics.ObserveBatchSendDuration(1, 120*time.Millisecond)
	metrics.IncBatchInflight()
	metrics.DecBatchInflight()
	metrics.IncJob("scheduled")
	metrics.IncBatchRetry()

	if got := testutil.ToFloat64(metrics.tokensDeliveredTotal); got != 3 {
		t.Fatalf("tokens_delivered_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.tokensFailedTotal.WithLabelValues("unavailable")); got != 2 {
		t.Fatalf("tokens_failed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.tokensEvictedTotal.WithLabelValues("unregistered")); got != 1 {
		t.Fatalf("tokens_evicted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchesInflight); got != 0 {
		t.Fatalf("batches_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.jobsTotal.WithLabelValues("scheduled")); got != 1 {
		t.Fatalf("jobs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchRetriesTotal); got != 1 {
		t.Fatalf("batch_retries_total = %v, want 1", got)
	}
}

func TestMetricsIgnoreNonPositiveCounts(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.AddTokensDelivered(0)
	metrics.AddTokensDelivered(-5)
	metrics.AddTokensFailed("unknown", 0)

	if got := testutil.ToFloat64(metrics.tokensDeliveredTotal); got != 0 {
		t.Fatalf("tokens_delivered_total = %v, want 0", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.AddTokensDelivered(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
