package payables

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

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _, _ := newTestService()
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHandlerPayableLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/payables", `{"description":"supplier invoice","total_amount_due":"500","due_date":"2024-06-20"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "open", body["status"])

	key := http.Header{IdempotencyHeader: []string{"pay-1"}}
	resp, body = do(t, srv, http.MethodPost, "/payables/1/payments", `{"amount":"300"}`, key)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	payable := body["payable"].(map[string]any)
	require.Equal(t, "200", payable["balance_due"])

	resp, _ = do(t, srv, http.MethodPost, "/payables/1/payments", `{"amount":"300"}`, key)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/payables/1/reversals", `{"amount":"400"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	require.Contains(t, body["detail"], "exceeds the amount paid")

	resp, body = do(t, srv, http.MethodGet, "/payables/1/payments", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["items"], 1)

	resp, _ = do(t, srv, http.MethodDelete, "/payables/1", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerRejectsMalformedInput(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/payables", `{"description":"x","total_amount_due":"10","due_date":"20-06-2024"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/payables", `{"description":"x","unknown":1}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/payables/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/payables/77", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/payables/reminders?as_of=tomorrow", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerSweepAndSummary(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/payables", `{"description":"late","total_amount_due":"1000","due_date":"2024-06-09"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/payables/mark-overdue?as_of=2024-06-10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["affected"])

	resp, body = do(t, srv, http.MethodGet, "/payables/summary?as_of=2024-06-10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1000", body["total_overdue"])
	require.EqualValues(t, 1, body["count_overdue"])

	resp, body = do(t, srv, http.MethodGet, "/payables/reminders?as_of=2024-06-10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["overdue"], 1)
}
