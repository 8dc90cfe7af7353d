package procurement

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *memoryProcRepo) {
	t.Helper()
	svc, repo, _ := newTestService(ReceivingPolicy{})
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHandlerOrderLifecycle(t *testing.T) {
	srv, repo := newTestServer(t)

	code, body := call(t, srv, http.MethodPost, "/purchase-orders", `{
		"supplier_id": 1,
		"expected_delivery_date": "2024-05-10",
		"items": [
			{"product_id": 10, "quantity_ordered": 10, "unit_price": "5"},
			{"product_id": 11, "quantity_ordered": 4, "unit_price": "12.50"}
		]
	}`)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "PO-000001", body["number"])
	require.Equal(t, "100", body["total_amount"])
	require.Equal(t, "draft", body["status"])

	code, _ = call(t, srv, http.MethodPost, "/purchase-orders/1/send", "")
	require.Equal(t, http.StatusOK, code)
	code, body = call(t, srv, http.MethodPost, "/purchase-orders/1/approve", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "approved", body["status"])

	code, body = call(t, srv, http.MethodPost, "/purchase-orders/1/receive", `{"items":[{"item_id":2,"quantity_received":10},{"item_id":3,"quantity_received":4}]}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["complete"])

	code, body = call(t, srv, http.MethodPost, "/purchase-order-items/2/inspections", `{"inspector_id":"ana","approved_quantity":7,"rejected_quantity":3,"defects_found":["scratched"]}`)
	require.Equal(t, http.StatusCreated, code)
	record := body["record"].(map[string]any)
	require.Equal(t, "partial", record["status"])
	require.InDelta(t, 7, repo.state.stock[10], 1e-9)

	code, body = call(t, srv, http.MethodGet, "/purchase-order-items/2/inspections", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["items"], 1)

	code, body = call(t, srv, http.MethodPost, "/purchase-orders/1/cancel", "")
	require.Equal(t, http.StatusConflict, code)
	require.Contains(t, body["detail"], "received")
}

func TestHandlerErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)

	code, body := call(t, srv, http.MethodPost, "/purchase-orders", `{"supplier_id": 99}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body["detail"], "supplier 99 does not exist")

	code, _ = call(t, srv, http.MethodPost, "/purchase-orders", `{"supplier_id": 1, "expected_delivery_date": "10/05/2024"}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodGet, "/purchase-orders/42", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodGet, "/purchase-orders/abc", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/purchase-orders", `{"supplier_id": 1}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = call(t, srv, http.MethodPost, "/purchase-orders/1/send", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodDelete, "/purchase-orders/1", "")
	require.Equal(t, http.StatusNoContent, code)
}
