package models

import (
	"time"

	"gorm.io/gorm"
)

// Brand is a business unit KPI values are reported for
type Brand struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code     string `gorm:"type:varchar(50);uniqueIndex:idx_brands_code,where:deleted_at IS NULL" json:"code"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Relationships
	Users       []User     `gorm:"many2many:user_brands;" json:"users,omitempty"`
	Assignments []BrandKPI `gorm:"foreignKey:BrandID" json:"assignments,omitempty"`
}

// BrandKPI assigns a KPI to a brand, optionally with a brand-specific target
type BrandKPI struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	BrandID uint     `gorm:"uniqueIndex:idx_brand_kpi" json:"brand_id"`
	KPIID   uint     `gorm:"column:kpi_id;uniqueIndex:idx_brand_kpi" json:"kpi_id"`
	Target  *float64 `gorm:"type:decimal(18,4)" json:"target"`

	// Relationships
	Brand Brand `gorm:"foreignKey:BrandID" json:"brand,omitempty"`
	KPI   KPI   `gorm:"foreignKey:KPIID" json:"kpi,omitempty"`
}

// TableName keeps the table name readable, gorm would otherwise use brand_kp_is
func (BrandKPI) TableName() string {
	return "brand_kpis"
}

// EffectiveTarget returns the brand-specific target, falling back to the KPI default
func (a BrandKPI) EffectiveTarget() *float64 {
	if a.Target != nil {
		return a.Target
	}
	return a.KPI.DefaultTarget
}
