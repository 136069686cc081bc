package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCountsGameEvents(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	c.OrderCreated(ctx, 1, 10)
	c.OrderCreated(ctx, 1, 11)
	c.OrderCompleted(ctx, 1, 10, decimal.RequireFromString("6.00"))
	c.OrderCancelled(ctx, 1, 11)
	c.Restocked(ctx, 1, 3, 5, decimal.RequireFromString("5.00"))
	c.LevelUp(ctx, "alice", 2)

	out := scrape(t, c)
	assert.Contains(t, out, `cafe_orders_transitions_total{status="pending"} 2`)
	assert.Contains(t, out, `cafe_orders_transitions_total{status="completed"} 1`)
	assert.Contains(t, out, `cafe_orders_transitions_total{status="cancelled"} 1`)
	assert.Contains(t, out, `cafe_orders_revenue_total 6`)
	assert.Contains(t, out, `cafe_inventory_restocked_units_total 5`)
	assert.Contains(t, out, `cafe_players_level_ups_total{level="2"} 1`)
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	c := NewCollector()
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/v1/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/orders/"+id, nil))
	}

	out := scrape(t, c)
	assert.Contains(t, out, `cafe_http_requests_total{method="GET",route="/v1/orders/{id}",status="404"} 3`)
	assert.NotContains(t, out, `route="/v1/orders/1"`)
}
