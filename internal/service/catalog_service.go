// internal/service/catalog_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pos-sync-service/internal/config"
	"pos-sync-service/internal/model"
	"pos-sync-service/internal/network"
	"pos-sync-service/internal/repository"
)

// CatalogFetcher downloads the read-mostly catalog from the back office
type CatalogFetcher interface {
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchCustomers(ctx context.Context) ([]model.Customer, error)
}

// CatalogRefreshResult reports one refresh
type CatalogRefreshResult struct {
	Products    int       `json:"products"`
	Customers   int       `json:"customers"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// CatalogService keeps the cached products and customers fresh while the
// back office is reachable.
type CatalogService struct {
	store   *repository.LocalStore
	fetcher CatalogFetcher
	probe   network.NetworkProbe
	config  config.CatalogConfig
	logger  *zap.Logger

	mutex     sync.Mutex
	wasOnline bool
	stopped   bool

	refreshMu   sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewCatalogService creates a catalog service
func NewCatalogService(
	store *repository.LocalStore,
	fetcher CatalogFetcher,
	probe network.NetworkProbe,
	cfg config.CatalogConfig,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		store:   store,
		fetcher: fetcher,
		probe:   probe,
		config:  cfg,
		logger:  logger.With(zap.String("component", "catalog_service")),
	}
}

// Start refreshes on every online transition and on the refresh interval
func (cs *CatalogService) Start() {
	if !cs.config.Enabled {
		cs.logger.Info("Catalog refresh disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs.cancel = cancel

	cs.mutex.Lock()
	cs.wasOnline = cs.probe.Status().IsOnline
	cs.mutex.Unlock()

	cs.unsubscribe = cs.probe.OnChange(func(ns model.NetworkStatus) {
		cs.mutex.Lock()
		was := cs.wasOnline
		cs.wasOnline = ns.IsOnline
		start := ns.IsOnline && !was && !cs.stopped
		if start {
			cs.wg.Add(1)
		}
		cs.mutex.Unlock()

		if start {
			go func() {
				defer cs.wg.Done()
				cs.refreshQuietly(ctx, "reconnect")
			}()
		}
	})

	if cs.config.RefreshInterval > 0 {
		cs.wg.Add(1)
		go cs.refreshLoop(ctx)
	}
}

// Stop stops the refresh loop
func (cs *CatalogService) Stop() {
	cs.mutex.Lock()
	cs.stopped = true
	cs.mutex.Unlock()

	if cs.unsubscribe != nil {
		cs.unsubscribe()
	}
	if cs.cancel != nil {
		cs.cancel()
	}
	cs.wg.Wait()
}

// Refresh downloads products and customers and swaps both cached
// collections. Nothing is replaced unless both downloads succeed.
func (cs *CatalogService) Refresh(ctx context.Context) (*CatalogRefreshResult, error) {
	if !cs.probe.Status().IsOnline {
		return nil, ErrOffline
	}

	cs.refreshMu.Lock()
	defer cs.refreshMu.Unlock()

	var (
		products  []model.Product
		customers []model.Customer
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = cs.fetcher.FetchProducts(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		customers, err = cs.fetcher.FetchCustomers(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch customers: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := cs.store.ReplaceProducts(ctx, products); err != nil {
		return nil, err
	}
	if err := cs.store.ReplaceCustomers(ctx, customers); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	cs.logger.Info("Catalog refreshed",
		zap.Int("products", len(products)),
		zap.Int("customers", len(customers)),
	)

	return &CatalogRefreshResult{
		Products:    len(products),
		Customers:   len(customers),
		RefreshedAt: now,
	}, nil
}

// GetProducts returns the cached products
func (cs *CatalogService) GetProducts(ctx context.Context) ([]model.Product, error) {
	return cs.store.GetProducts(ctx)
}

// GetCustomers returns the cached customers
func (cs *CatalogService) GetCustomers(ctx context.Context) ([]model.Customer, error) {
	return cs.store.GetCustomers(ctx)
}

func (cs *CatalogService) refreshLoop(ctx context.Context) {
	defer cs.wg.Done()

	ticker := time.NewTicker(cs.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cs.probe.Status().IsOnline {
				cs.refreshQuietly(ctx, "interval")
			}
		}
	}
}

func (cs *CatalogService) refreshQuietly(ctx context.Context, reason string) {
	if _, err := cs.Refresh(ctx); err != nil {
		cs.logger.Warn("Catalog refresh failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
