package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/shared"
)

func TestRouterHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test"}, Metrics: observability.NewMetrics()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "healthz")
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router := NewRouter(RouterParams{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestActorMiddleware(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Use(ActorMiddleware)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ActorHeader, "  clerk-7 ")
	r.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "clerk-7", seen)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "system", seen)
	require.Equal(t, "system", shared.ActorFromContext(context.Background()))
}

func TestLoadConfigRequiresTelegramChat(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "TELEGRAM_CHAT_ID")

	t.Setenv("TELEGRAM_CHAT_ID", "42")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.TelegramEnabled())
	require.Equal(t, "5 0 * * *", cfg.OverdueCron)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestInvalidateOnWrite(t *testing.T) {
	inv := &countingInvalidator{}
	r := chi.NewRouter()
	r.Use(InvalidateOnWrite(inv, nil))
	r.Get("/x", func(w http.ResponseWriter, r *http.Request) {})
	r.Post("/x", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusCreated) })
	r.Post("/bad", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/bad", nil))
	require.Zero(t, inv.calls)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, 1, inv.calls)
}
