package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kpi_tracker/internal/models"
)

// SeedFile is the YAML layout accepted by `kpictl seed`
//
//	kpis:
//	  - code: revenue
//	    name: Revenue
//	    unit: EUR
//	    default_target: 100000
//	brands:
//	  - code: acme
//	    name: Acme
//	    kpis:
//	      - code: revenue
//	        target: 120000
type SeedFile struct {
	KPIs   []SeedKPI   `yaml:"kpis"`
	Brands []SeedBrand `yaml:"brands"`
}

type SeedKPI struct {
	Code          string   `yaml:"code"`
	Name          string   `yaml:"name"`
	Unit          string   `yaml:"unit"`
	Description   string   `yaml:"description"`
	DefaultTarget *float64 `yaml:"default_target"`
}

type SeedBrand struct {
	Code string           `yaml:"code"`
	Name string           `yaml:"name"`
	KPIs []SeedAssignment `yaml:"kpis"`
}

type SeedAssignment struct {
	Code   string   `yaml:"code"`
	Target *float64 `yaml:"target"`
}

// SeedResult counts what ApplySeed wrote
type SeedResult struct {
	KPIs        int
	Brands      int
	Assignments int
}

// LoadSeedFile reads and validates a seed file from disk
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes a seed document and checks that every assignment names a known KPI
func ParseSeed(r io.Reader) (*SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	kpiCodes := make(map[string]bool, len(seed.KPIs))
	for i := range seed.KPIs {
		k := &seed.KPIs[i]
		k.Code = normalizeCode(k.Code)
		if k.Code == "" || k.Name == "" {
			return nil, invalidf("kpi #%d needs code and name", i+1)
		}
		if kpiCodes[k.Code] {
			return nil, invalidf("kpi %q defined twice", k.Code)
		}
		kpiCodes[k.Code] = true
	}

	brandCodes := make(map[string]bool, len(seed.Brands))
	for i := range seed.Brands {
		b := &seed.Brands[i]
		b.Code = normalizeCode(b.Code)
		if b.Code == "" || b.Name == "" {
			return nil, invalidf("brand #%d needs code and name", i+1)
		}
		if brandCodes[b.Code] {
			return nil, invalidf("brand %q defined twice", b.Code)
		}
		brandCodes[b.Code] = true
		for j := range b.KPIs {
			b.KPIs[j].Code = normalizeCode(b.KPIs[j].Code)
			if !kpiCodes[b.KPIs[j].Code] {
				return nil, invalidf("brand %q assigns unknown kpi %q", b.Code, b.KPIs[j].Code)
			}
		}
	}
	return &seed, nil
}

// liveRows matches the partial unique indexes on code, which skip soft-deleted rows
var liveRows = clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "deleted_at IS NULL"}}}

// ApplySeed upserts KPIs and brands by code and brings assignments in line with the file
func ApplySeed(ctx context.Context, db *gorm.DB, seed *SeedFile, logger *zap.Logger) (*SeedResult, error) {
	result := &SeedResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		kpiIDs := make(map[string]uint, len(seed.KPIs))
		for _, k := range seed.KPIs {
			kpi := models.KPI{
				Code:          k.Code,
				Name:          k.Name,
				Unit:          k.Unit,
				Description:   k.Description,
				DefaultTarget: k.DefaultTarget,
				IsActive:      true,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:     []clause.Column{{Name: "code"}},
				TargetWhere: liveRows,
				DoUpdates:   clause.AssignmentColumns([]string{"name", "unit", "description", "default_target", "updated_at"}),
			}).Create(&kpi).Error
			if err != nil {
				return fmt.Errorf("kpi %q: %w", k.Code, err)
			}
			if err := tx.Where("code = ?", k.Code).First(&kpi).Error; err != nil {
				return fmt.Errorf("kpi %q: %w", k.Code, err)
			}
			kpiIDs[k.Code] = kpi.ID
			result.KPIs++
		}

		for _, b := range seed.Brands {
			brand := models.Brand{Code: b.Code, Name: b.Name, IsActive: true}
			err := tx.Clauses(clause.OnConflict{
				Columns:     []clause.Column{{Name: "code"}},
				TargetWhere: liveRows,
				DoUpdates:   clause.AssignmentColumns([]string{"name", "updated_at"}),
			}).Create(&brand).Error
			if err != nil {
				return fmt.Errorf("brand %q: %w", b.Code, err)
			}
			if err := tx.Where("code = ?", b.Code).First(&brand).Error; err != nil {
				return fmt.Errorf("brand %q: %w", b.Code, err)
			}
			result.Brands++

			if err := tx.Unscoped().Where("brand_id = ?", brand.ID).Delete(&models.BrandKPI{}).Error; err != nil {
				return fmt.Errorf("brand %q: %w", b.Code, err)
			}
			for _, a := range b.KPIs {
				row := models.BrandKPI{BrandID: brand.ID, KPIID: kpiIDs[a.Code], Target: a.Target}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("brand %q kpi %q: %w", b.Code, a.Code, err)
				}
				result.Assignments++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Seed applied",
		zap.Int("kpis", result.KPIs),
		zap.Int("brands", result.Brands),
		zap.Int("assignments", result.Assignments))
	return result, nil
}
