package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kpi_tracker/internal/models"
)

// KPIService owns brands, KPI definitions, assignments and values
type KPIService struct {
	db     *gorm.DB
	cache  *RedisCache
	logger *zap.Logger
}

func NewKPIService(db *gorm.DB, cache *RedisCache, logger *zap.Logger) *KPIService {
	return &KPIService{db: db, cache: cache, logger: logger}
}

// ValueInput is one KPI value submitted for a brand and period
type ValueInput struct {
	KPIID uint    `json:"kpi_id"`
	Value float64 `json:"value"`
	Note  string  `json:"note"`
}

// AssignmentInput assigns a KPI to a brand
type AssignmentInput struct {
	KPIID  uint     `json:"kpi_id"`
	Target *float64 `json:"target"`
}

// BrandInput creates or updates a brand
type BrandInput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

// KPIInput creates or updates a KPI definition
type KPIInput struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit"`
	Description   string   `json:"description"`
	DefaultTarget *float64 `json:"default_target"`
	IsActive      *bool    `json:"is_active"`
}

// ---- access ----

// CanAccessBrand reports whether user may read and write values of brandID.
// Admins can access every brand, other users only their assigned brands.
func (s *KPIService) CanAccessBrand(ctx context.Context, user *models.User, brandID uint) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsAdmin() {
		return true, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Table("user_brands").
		Where("user_id = ? AND brand_id = ?", user.ID, brandID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check brand access: %w", err)
	}
	return count > 0, nil
}

// RequireBrand loads a brand the user is allowed to access
func (s *KPIService) RequireBrand(ctx context.Context, user *models.User, brandID uint) (*models.Brand, error) {
	brand, err := s.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}
	ok, err := s.CanAccessBrand(ctx, user, brandID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return brand, nil
}

// ---- brands ----

// ListBrandsForUser returns active brands visible to user, ordered by name
func (s *KPIService) ListBrandsForUser(ctx context.Context, user *models.User) ([]models.Brand, error) {
	query := s.db.WithContext(ctx).Model(&models.Brand{}).Where("brands.is_active = ?", true)
	if !user.IsAdmin() {
		query = query.
			Joins("JOIN user_brands ON user_brands.brand_id = brands.id").
			Where("user_brands.user_id = ?", user.ID)
	}
	var brands []models.Brand
	if err := query.Order("brands.name").Find(&brands).Error; err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

// ListBrands returns every brand, including inactive ones
func (s *KPIService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	if err := s.db.WithContext(ctx).Order("name").Find(&brands).Error; err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

func (s *KPIService) GetBrand(ctx context.Context, id uint) (*models.Brand, error) {
	var brand models.Brand
	if err := s.db.WithContext(ctx).First(&brand, id).Error; err != nil {
		return nil, translate(err, "brand")
	}
	return &brand, nil
}

// BrandByCode looks a brand up by its code, case-insensitively
func (s *KPIService) BrandByCode(ctx context.Context, code string) (*models.Brand, error) {
	var brand models.Brand
	if err := s.db.WithContext(ctx).Where("code = ?", normalizeCode(code)).First(&brand).Error; err != nil {
		return nil, translate(err, "brand")
	}
	return &brand, nil
}

func (s *KPIService) CreateBrand(ctx context.Context, in BrandInput) (*models.Brand, error) {
	code := normalizeCode(in.Code)
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, invalidf("brand code and name are required")
	}
	brand := models.Brand{Code: code, Name: strings.TrimSpace(in.Name), IsActive: true}
	if in.IsActive != nil {
		brand.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Create(&brand).Error; err != nil {
		return nil, translate(err, "brand")
	}
	return &brand, nil
}

func (s *KPIService) UpdateBrand(ctx context.Context, id uint, in BrandInput) (*models.Brand, error) {
	brand, err := s.GetBrand(ctx, id)
	if err != nil {
		return nil, err
	}
	if code := normalizeCode(in.Code); code != "" {
		brand.Code = code
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		brand.Name = name
	}
	if in.IsActive != nil {
		brand.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Save(brand).Error; err != nil {
		return nil, translate(err, "brand")
	}
	return brand, nil
}

// DeleteBrand soft-deletes a brand together with its assignments
func (s *KPIService) DeleteBrand(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("brand_id = ?", id).Delete(&models.BrandKPI{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Brand{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translate(err, "brand")
	}
	s.invalidateBrand(ctx, id)
	return nil
}

// ---- KPI definitions ----

func (s *KPIService) ListKPIs(ctx context.Context) ([]models.KPI, error) {
	var kpis []models.KPI
	if err := s.db.WithContext(ctx).Order("name").Find(&kpis).Error; err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	return kpis, nil
}

func (s *KPIService) GetKPI(ctx context.Context, id uint) (*models.KPI, error) {
	var kpi models.KPI
	if err := s.db.WithContext(ctx).First(&kpi, id).Error; err != nil {
		return nil, translate(err, "kpi")
	}
	return &kpi, nil
}

func (s *KPIService) CreateKPI(ctx context.Context, in KPIInput) (*models.KPI, error) {
	code := normalizeCode(in.Code)
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, invalidf("kpi code and name are required")
	}
	kpi := models.KPI{
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Unit:          strings.TrimSpace(in.Unit),
		Description:   in.Description,
		DefaultTarget: in.DefaultTarget,
		IsActive:      true,
	}
	if in.IsActive != nil {
		kpi.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Create(&kpi).Error; err != nil {
		return nil, translate(err, "kpi")
	}
	return &kpi, nil
}

func (s *KPIService) UpdateKPI(ctx context.Context, id uint, in KPIInput) (*models.KPI, error) {
	kpi, err := s.GetKPI(ctx, id)
	if err != nil {
		return nil, err
	}
	if code := normalizeCode(in.Code); code != "" {
		kpi.Code = code
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		kpi.Name = name
	}
	kpi.Unit = strings.TrimSpace(in.Unit)
	kpi.Description = in.Description
	kpi.DefaultTarget = in.DefaultTarget
	if in.IsActive != nil {
		kpi.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Save(kpi).Error; err != nil {
		return nil, translate(err, "kpi")
	}
	s.invalidateAll(ctx)
	return kpi, nil
}

// DeleteKPI soft-deletes a KPI definition and removes it from every brand
func (s *KPIService) DeleteKPI(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kpi_id = ?", id).Delete(&models.BrandKPI{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.KPI{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return translate(err, "kpi")
	}
	s.invalidateAll(ctx)
	return nil
}

// ---- assignments ----

// Assignments returns the active KPIs assigned to a brand, with their KPI preloaded
func (s *KPIService) Assignments(ctx context.Context, brandID uint) ([]models.BrandKPI, error) {
	var assignments []models.BrandKPI
	err := s.db.WithContext(ctx).
		Joins("KPI").
		Where("brand_kpis.brand_id = ? AND \"KPI\".is_active = ?", brandID, true).
		Order("\"KPI\".name").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return assignments, nil
}

// SetAssignments replaces the KPIs assigned to a brand
func (s *KPIService) SetAssignments(ctx context.Context, brandID uint, in []AssignmentInput) ([]models.BrandKPI, error) {
	if _, err := s.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(in))
	kpiIDs := make([]uint, 0, len(in))
	for _, a := range in {
		if a.KPIID == 0 {
			return nil, invalidf("kpi_id is required")
		}
		if seen[a.KPIID] {
			return nil, invalidf("kpi %d assigned twice", a.KPIID)
		}
		seen[a.KPIID] = true
		kpiIDs = append(kpiIDs, a.KPIID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(kpiIDs) > 0 {
			var count int64
			if err := tx.Model(&models.KPI{}).Where("id IN ?", kpiIDs).Count(&count).Error; err != nil {
				return err
			}
			if int(count) != len(kpiIDs) {
				return invalidf("unknown kpi in assignment")
			}
		}

		// Hard delete so the unique (brand, kpi) index accepts re-assignment
		if err := tx.Unscoped().Where("brand_id = ?", brandID).Delete(&models.BrandKPI{}).Error; err != nil {
			return err
		}
		if len(in) == 0 {
			return nil
		}
		rows := make([]models.BrandKPI, 0, len(in))
		for _, a := range in {
			rows = append(rows, models.BrandKPI{BrandID: brandID, KPIID: a.KPIID, Target: a.Target})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, translate(err, "assignment")
	}

	s.invalidateBrand(ctx, brandID)
	return s.Assignments(ctx, brandID)
}

// ---- values ----

// Values returns the values of a brand for one period
func (s *KPIService) Values(ctx context.Context, brandID uint, period models.Period) ([]models.KPIValue, error) {
	var values []models.KPIValue
	err := s.db.WithContext(ctx).
		Where("brand_id = ? AND period = ?", brandID, period).
		Find(&values).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load values: %w", err)
	}
	return values, nil
}

// UpsertValues writes a batch of values for a brand and period.
// Every KPI in the batch must be assigned to the brand.
func (s *KPIService) UpsertValues(ctx context.Context, user *models.User, brandID uint, period models.Period, in []ValueInput) ([]models.KPIValue, error) {
	if len(in) == 0 {
		return nil, invalidf("no values submitted")
	}

	assignments, err := s.Assignments(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if err := validateValueBatch(assignments, in); err != nil {
		return nil, err
	}

	var enteredBy *uint
	if user != nil {
		enteredBy = &user.ID
	}

	rows := make([]models.KPIValue, 0, len(in))
	for _, v := range in {
		rows = append(rows, models.KPIValue{
			UUID:        uuid.New().String(),
			BrandID:     brandID,
			KPIID:       v.KPIID,
			Period:      period,
			Value:       v.Value,
			Note:        strings.TrimSpace(v.Note),
			EnteredByID: enteredBy,
		})
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "brand_id"}, {Name: "kpi_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "note", "entered_by_id", "updated_at", "deleted_at"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save values: %w", err)
	}

	s.invalidateBrand(ctx, brandID)
	s.logger.Info("KPI values saved",
		zap.Uint("brand_id", brandID),
		zap.String("period", period.String()),
		zap.Int("count", len(rows)))

	return s.Values(ctx, brandID, period)
}

// validateValueBatch checks that every submitted KPI is assigned and appears once
func validateValueBatch(assignments []models.BrandKPI, in []ValueInput) error {
	assigned := make(map[uint]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.KPIID] = true
	}
	seen := make(map[uint]bool, len(in))
	for _, v := range in {
		if !assigned[v.KPIID] {
			return invalidf("kpi %d is not assigned to this brand", v.KPIID)
		}
		if seen[v.KPIID] {
			return invalidf("kpi %d submitted twice", v.KPIID)
		}
		seen[v.KPIID] = true
	}
	return nil
}

func (s *KPIService) invalidateBrand(ctx context.Context, brandID uint) {
	if err := s.cache.DeletePrefix(ctx, BrandCachePrefix(brandID)); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Uint("brand_id", brandID), zap.Error(err))
	}
}

func (s *KPIService) invalidateAll(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, "summary:"); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Error(err))
	}
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
