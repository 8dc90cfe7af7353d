package directory

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
)

type stubRepo struct {
	suppliers     map[int64]Supplier
	products      map[int64]Product
	supplierCalls atomic.Int32
	productCalls  atomic.Int32
	delay         time.Duration
}

func (r *stubRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	r.supplierCalls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return Supplier{}, ctx.Err()
		}
	}
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (r *stubRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	r.productCalls.Add(1)
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *stubRepo) ListSuppliers(ctx context.Context, search string, limit, offset int) ([]Supplier, error) {
	out := make([]Supplier, 0, len(r.suppliers))
	for _, s := range r.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func newTestService(t *testing.T, repo *stubRepo) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil), mr
}

func TestSupplierIsCachedAfterFirstLookup(t *testing.T) {
	repo := &stubRepo{suppliers: map[int64]Supplier{7: {ID: 7, Name: "Acme Parts", Active: true}}}
	svc, mr := newTestService(t, repo)
	ctx := context.Background()

	sup, err := svc.Supplier(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Acme Parts", sup.Name)
	require.True(t, mr.Exists(supplierKey(7)))

	sup, err = svc.Supplier(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "Acme Parts", sup.Name)
	require.EqualValues(t, 1, repo.supplierCalls.Load())
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	svc, mr := newTestService(t, &stubRepo{})
	ctx := context.Background()

	_, err := svc.Supplier(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, mr.Exists(supplierKey(99)))

	require.ErrorIs(t, svc.ProductExists(ctx, 5), shared.ErrNotFound)
	require.ErrorIs(t, svc.SupplierExists(ctx, 0), shared.ErrNotFound)
	require.Equal(t, "supplier #99", svc.SupplierName(ctx, 99))
}

func TestConcurrentMissesCollapse(t *testing.T) {
	repo := &stubRepo{
		suppliers: map[int64]Supplier{1: {ID: 1, Name: "Bolt Co"}},
		delay:     50 * time.Millisecond,
	}
	svc := NewService(repo, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Supplier(context.Background(), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Less(t, repo.supplierCalls.Load(), int32(8))
}

func TestInvalidateDropsCachedProduct(t *testing.T) {
	repo := &stubRepo{products: map[int64]Product{3: {ID: 3, Name: "Oil filter"}}}
	svc, mr := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Product(ctx, 3)
	require.NoError(t, err)
	require.True(t, mr.Exists(productKey(3)))

	require.NoError(t, svc.cache.Invalidate(ctx, 0, 3))
	require.False(t, mr.Exists(productKey(3)))

	_, err = svc.Product(ctx, 3)
	require.NoError(t, err)
	require.EqualValues(t, 2, repo.productCalls.Load())
}

func TestCancelledLeaderDoesNotFailCollapsedCallers(t *testing.T) {
	repo := &stubRepo{
		suppliers: map[int64]Supplier{4: {ID: 4, Name: "Gear House"}},
		delay:     80 * time.Millisecond,
	}
	svc, _ := newTestService(t, repo)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Supplier(leaderCtx, 4)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return repo.supplierCalls.Load() == 1 }, time.Second, time.Millisecond)

	followerErr := make(chan error, 1)
	go func() {
		_, err := svc.Supplier(context.Background(), 4)
		followerErr <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.NoError(t, <-followerErr)
	require.NoError(t, <-leaderErr)
	require.EqualValues(t, 1, repo.supplierCalls.Load())
}

func TestProductLookupCarriesNoStock(t *testing.T) {
	repo := &stubRepo{products: map[int64]Product{3: {ID: 3, SKU: "PAD-FR-01", Name: "Front brake pads"}}}
	svc, mr := newTestService(t, repo)
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)

	get := func() map[string]any {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/3", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return body
	}

	first := get()
	require.True(t, mr.Exists(productKey(3)))
	second := get()
	require.Equal(t, first, second)
	require.Equal(t, "Front brake pads", second["name"])
	require.NotContains(t, second, "stock_quantity")

	cached, err := mr.Get(productKey(3))
	require.NoError(t, err)
	require.NotContains(t, cached, "stock")
}
