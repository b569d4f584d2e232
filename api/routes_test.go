package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coreybb/xianyu-autodeliver/datastore"
	"github.com/coreybb/xianyu-autodeliver/metrics"
	"github.com/coreybb/xianyu-autodeliver/models"
	rh "github.com/coreybb/xianyu-autodeliver/route-handlers"
	"github.com/coreybb/xianyu-autodeliver/webutil"
)

type testServer struct {
	store   datastore.DeliveryStore
	handler http.Handler
	ticks   int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := datastore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	collector := metrics.New()
	collector.SetDeliveredOrders(1)

	ts := &testServer{store: store}
	tick := func(w http.ResponseWriter, r *http.Request) {
		ts.ticks++
		w.WriteHeader(http.StatusAccepted)
	}
	ts.handler = SetupRoutes(rh.NewDeliveryHandler(store), collector.Handler(), tick, zap.NewNop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func (ts *testServer) deliver(t *testing.T, orderID string, at time.Time) {
	t.Helper()
	require.NoError(t, ts.store.Put(context.Background(), &models.DeliveryRecord{
		ID:          "rec-" + orderID,
		OrderID:     orderID,
		Title:       "VIP服务 3个月",
		Plan:        models.PlanThreeMonths,
		DeliveredAt: at,
		Success:     true,
	}))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, webutil.ContentTypeTextPlainUTF8, rec.Header().Get(webutil.HeaderContentType))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xianyu_delivered_orders 1")
}

func TestSchedulerTick(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/scheduler/tick")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ts.ticks)

	rec = ts.do(t, http.MethodGet, "/scheduler/tick")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListDeliveries(t *testing.T) {
	ts := newTestServer(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ts.deliver(t, "O1", base)
	ts.deliver(t, "O2", base.Add(time.Minute))
	ts.deliver(t, "O3", base.Add(2*time.Minute))

	t.Run("newest first with limit", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/deliveries?limit=2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		var records []models.DeliveryRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "O3", records[0].OrderID)
		assert.Equal(t, "O2", records[1].OrderID)
	})

	t.Run("default limit", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/deliveries")
		require.Equal(t, http.StatusOK, rec.Code)

		var records []models.DeliveryRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		assert.Len(t, records, 3)
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		for _, q := range []string{"0", "-1", "ten"} {
			rec := ts.do(t, http.MethodGet, "/api/deliveries?limit="+q)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
			assert.JSONEq(t, `{"error":"limit must be a positive integer"}`, rec.Body.String())
		}
	})
}

func TestListDeliveriesEmpty(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/deliveries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetDelivery(t *testing.T) {
	ts := newTestServer(t)
	ts.deliver(t, "O1", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, ts.store.RecordAttempt(context.Background(), &models.DeliveryAttempt{
		ID:           "att-1",
		OrderID:      "P1",
		CreatedAt:    time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Status:       models.DeliveryAttemptFailed,
		ErrorMessage: "dialog never appeared",
	}))

	t.Run("delivered order", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/deliveries/O1")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			OrderID        string                `json:"order_id"`
			Delivered      bool                  `json:"delivered"`
			Record         models.DeliveryRecord `json:"record"`
			FailedAttempts int                   `json:"failed_attempts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Delivered)
		assert.Equal(t, "O1", resp.Record.OrderID)
		assert.Equal(t, models.PlanThreeMonths, resp.Record.Plan)
		assert.Zero(t, resp.FailedAttempts)
	})

	t.Run("order with only failed attempts", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/deliveries/P1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"order_id":"P1","delivered":false,"record":null,"failed_attempts":1}`, rec.Body.String())
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/deliveries/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"No delivery or attempt recorded for this order"}`, rec.Body.String())
	})
}
