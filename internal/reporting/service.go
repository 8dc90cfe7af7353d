package reporting

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopledger/shopledger/internal/shared"
)

// RepositoryPort describes the reads reports need.
type RepositoryPort interface {
	OrdersCreatedBetween(ctx context.Context, from, to *time.Time) ([]OrderRow, error)
	OpenOrdersExpectedBefore(ctx context.Context, asOf time.Time) ([]OrderRow, error)
	AllOrders(ctx context.Context) ([]OrderRow, error)
	PayablesDueBetween(ctx context.Context, from, to *time.Time) ([]PayableRow, error)
}

// SupplierNamer resolves display names for supplier ids.
type SupplierNamer interface {
	SupplierName(ctx context.Context, id int64) string
}

const nameLookupConcurrency = 8

// Service computes read-only rollups over procurement and payables.
type Service struct {
	repo   RepositoryPort
	names  SupplierNamer
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the repository, name resolver and cache.
func NewService(repo RepositoryPort, names SupplierNamer, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, names: names, cache: cache, logger: logger, now: time.Now}
}

// Invalidate drops cached reports.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// PurchasesBySupplier totals orders created in rng per supplier.
func (s *Service) PurchasesBySupplier(ctx context.Context, rng Range) ([]SupplierPurchases, error) {
	if err := rng.validate(); err != nil {
		return nil, err
	}
	out, err := fetch(ctx, s.cache, func(ctx context.Context) ([]SupplierPurchases, error) {
		rows, err := s.repo.OrdersCreatedBetween(ctx, dateArg(rng.From), dateArg(rng.To))
		if err != nil {
			return nil, err
		}
		grouped := GroupPurchasesBySupplier(rows)
		names, err := s.resolveNames(ctx, supplierIDs(grouped, func(g SupplierPurchases) int64 { return g.SupplierID }))
		if err != nil {
			return nil, err
		}
		for i := range grouped {
			grouped[i].SupplierName = names[grouped[i].SupplierID]
		}
		return grouped, nil
	}, "purchases_by_supplier", rng.token())
	if err != nil {
		return nil, shared.Persistence("reporting: purchases by supplier", err)
	}
	return out, nil
}

// OverduePurchaseOrders lists orders whose expected delivery date is before asOf.
func (s *Service) OverduePurchaseOrders(ctx context.Context, asOf time.Time) ([]OverdueOrder, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	today := shared.DateOnly(asOf)
	out, err := fetch(ctx, s.cache, func(ctx context.Context) ([]OverdueOrder, error) {
		rows, err := s.repo.OpenOrdersExpectedBefore(ctx, today)
		if err != nil {
			return nil, err
		}
		overdue := FilterOverdue(rows, today)
		names, err := s.resolveNames(ctx, supplierIDs(overdue, func(o OverdueOrder) int64 { return o.SupplierID }))
		if err != nil {
			return nil, err
		}
		for i := range overdue {
			overdue[i].SupplierName = names[overdue[i].SupplierID]
		}
		return overdue, nil
	}, "overdue_orders", dateToken(today))
	if err != nil {
		return nil, shared.Persistence("reporting: overdue purchase orders", err)
	}
	return out, nil
}

// PurchaseOrderStats counts orders and totals per status.
func (s *Service) PurchaseOrderStats(ctx context.Context) ([]StatusStats, error) {
	out, err := fetch(ctx, s.cache, func(ctx context.Context) ([]StatusStats, error) {
		rows, err := s.repo.AllOrders(ctx)
		if err != nil {
			return nil, err
		}
		return StatsByStatus(rows), nil
	}, "order_stats")
	if err != nil {
		return nil, shared.Persistence("reporting: purchase order stats", err)
	}
	return out, nil
}

// PayablesBySupplier rolls payables due in rng up per supplier.
func (s *Service) PayablesBySupplier(ctx context.Context, rng Range) ([]SupplierPayables, error) {
	if err := rng.validate(); err != nil {
		return nil, err
	}
	out, err := fetch(ctx, s.cache, func(ctx context.Context) ([]SupplierPayables, error) {
		return s.payablesBySupplier(ctx, rng)
	}, "payables_by_supplier", rng.token())
	if err != nil {
		return nil, shared.Persistence("reporting: payables by supplier", err)
	}
	return out, nil
}

// PayablesByPeriod rolls payables due in rng up per month.
func (s *Service) PayablesByPeriod(ctx context.Context, rng Range) ([]PeriodPayables, error) {
	if err := rng.validate(); err != nil {
		return nil, err
	}
	out, err := fetch(ctx, s.cache, func(ctx context.Context) ([]PeriodPayables, error) {
		rows, err := s.repo.PayablesDueBetween(ctx, dateArg(rng.From), dateArg(rng.To))
		if err != nil {
			return nil, err
		}
		return GroupPayablesByPeriod(rows), nil
	}, "payables_by_period", rng.token())
	if err != nil {
		return nil, shared.Persistence("reporting: payables by period", err)
	}
	return out, nil
}

// ExportPayablesXLSX writes a workbook with the supplier and period rollups.
func (s *Service) ExportPayablesXLSX(ctx context.Context, rng Range, w io.Writer) error {
	if err := rng.validate(); err != nil {
		return err
	}
	var (
		bySupplier []SupplierPayables
		byPeriod   []PeriodPayables
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bySupplier, err = s.PayablesBySupplier(gctx, rng)
		return err
	})
	g.Go(func() error {
		var err error
		byPeriod, err = s.PayablesByPeriod(gctx, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return WritePayablesWorkbook(w, rng, bySupplier, byPeriod)
}

func (s *Service) payablesBySupplier(ctx context.Context, rng Range) ([]SupplierPayables, error) {
	rows, err := s.repo.PayablesDueBetween(ctx, dateArg(rng.From), dateArg(rng.To))
	if err != nil {
		return nil, err
	}
	grouped := GroupPayablesBySupplier(rows)
	names, err := s.resolveNames(ctx, supplierIDs(grouped, func(g SupplierPayables) int64 { return g.SupplierID }))
	if err != nil {
		return nil, err
	}
	for i := range grouped {
		if grouped[i].SupplierID == 0 {
			grouped[i].SupplierName = "no supplier"
			continue
		}
		grouped[i].SupplierName = names[grouped[i].SupplierID]
	}
	return grouped, nil
}

// resolveNames looks supplier names up concurrently.
func (s *Service) resolveNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if s.names == nil {
		return names, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(nameLookupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			name := s.names.SupplierName(gctx, id)
			mu.Lock()
			names[id] = name
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func supplierIDs[T any](rows []T, id func(T) int64) []int64 {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		v := id(row)
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
