package directory

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts the persistence used by the directory.
type RepositoryPort interface {
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListSuppliers(ctx context.Context, search string, limit, offset int) ([]Supplier, error)
}

// Service is a read-through supplier/product lookup.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Supplier resolves a supplier, rejecting unknown ids with ErrSupplierNotFound.
func (s *Service) Supplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, ErrSupplierNotFound
	}
	key := supplierKey(id)
	var cached Supplier
	if s.cache.get(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		fctx := context.WithoutCancel(ctx)
		sup, err := s.repo.GetSupplier(fctx, id)
		if err != nil {
			return Supplier{}, err
		}
		if err := s.cache.set(fctx, key, sup); err != nil {
			s.logger.Warn("directory cache set", slog.String("key", key), slog.Any("error", err))
		}
		return sup, nil
	})
	if err != nil {
		return Supplier{}, err
	}
	return v.(Supplier), nil
}

// Product resolves a product, rejecting unknown ids with ErrProductNotFound.
func (s *Service) Product(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductNotFound
	}
	key := productKey(id)
	var cached Product
	if s.cache.get(ctx, key, &cached) {
		return cached, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		p, err := s.repo.GetProduct(fctx, id)
		if err != nil {
			return Product{}, err
		}
		if err := s.cache.set(fctx, key, p); err != nil {
			s.logger.Warn("directory cache set", slog.String("key", key), slog.Any("error", err))
		}
		return p, nil
	})
	if err != nil {
		return Product{}, err
	}
	return v.(Product), nil
}

// SupplierExists implements the existence check consumed by procurement and payables.
func (s *Service) SupplierExists(ctx context.Context, id int64) error {
	_, err := s.Supplier(ctx, id)
	return err
}

// ProductExists implements the existence check consumed by procurement.
func (s *Service) ProductExists(ctx context.Context, id int64) error {
	_, err := s.Product(ctx, id)
	return err
}

// SupplierName returns the display name or a fallback label when lookup fails.
func (s *Service) SupplierName(ctx context.Context, id int64) string {
	sup, err := s.Supplier(ctx, id)
	if err != nil {
		return fmt.Sprintf("supplier #%d", id)
	}
	return sup.Name
}

// ListSuppliers pages through suppliers; it bypasses the cache.
func (s *Service) ListSuppliers(ctx context.Context, search string, limit, offset int) ([]Supplier, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListSuppliers(ctx, search, limit, offset)
}
