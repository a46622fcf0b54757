package service

import (
	"context"

	"github.com/logiclinic/logiclinic-backend/internal/stock/cache"
	"github.com/logiclinic/logiclinic-backend/internal/stock/events"
	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/errors"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
	"github.com/logiclinic/logiclinic-backend/pkg/tenant"
)

// CatalogService handles the drug catalog
type CatalogService struct {
	drugRepo  *repository.DrugRepository
	cache     *cache.DrugCache
	publisher *events.StockEventPublisher
	audit     *AuditService
	logger    *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	drugRepo *repository.DrugRepository,
	drugCache *cache.DrugCache,
	publisher *events.StockEventPublisher,
	audit *AuditService,
	log *logger.Logger,
) *CatalogService {
	return &CatalogService{
		drugRepo:  drugRepo,
		cache:     drugCache,
		publisher: publisher,
		audit:     audit,
		logger:    log,
	}
}

// CreateDrug creates a new drug
func (s *CatalogService) CreateDrug(ctx context.Context, drug *repository.Drug) error {
	drug.IsActive = true
	if drug.RuptureThreshold > drug.AlertThreshold {
		return errors.BadRequest("rupture threshold cannot exceed alert threshold")
	}

	if err := s.drugRepo.Create(ctx, drug); err != nil {
		return err
	}

	s.audit.Record(ctx, "drug", drug.ID, repository.AuditCreated, map[string]any{
		"code": drug.Code,
		"name": drug.Name,
	})
	return nil
}

// GetDrug gets a drug, consulting the cache first
func (s *CatalogService) GetDrug(ctx context.Context, id string) (*repository.Drug, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, errors.MissingTenantContext()
	}

	if s.cache != nil {
		if drug := s.cache.Get(ctx, tenantID, id); drug != nil {
			return drug, nil
		}
	}

	drug, err := s.drugRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, tenantID, drug)
	}
	return drug, nil
}

// ListDrugs lists active drugs
func (s *CatalogService) ListDrugs(ctx context.Context, page, perPage int) ([]*repository.Drug, int64, error) {
	return s.drugRepo.List(ctx, page, perPage)
}

// UpdateDrug updates a drug and invalidates its cache entry
func (s *CatalogService) UpdateDrug(ctx context.Context, drug *repository.Drug) error {
	if drug.RuptureThreshold > drug.AlertThreshold {
		return errors.BadRequest("rupture threshold cannot exceed alert threshold")
	}

	if err := s.drugRepo.Update(ctx, drug); err != nil {
		return err
	}

	if s.cache != nil {
		if tenantID, err := tenant.TenantID(ctx); err == nil {
			s.cache.Invalidate(ctx, tenantID, drug.ID)
		}
	}

	// Other instances hold their own in-process cache copies.
	s.publisher.PublishDrugUpdated(ctx, drug)
	return nil
}

// CacheStats returns drug cache counters
func (s *CatalogService) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.GetStats()
}
