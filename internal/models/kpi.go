package models

import (
	"time"

	"gorm.io/gorm"
)

// KPI is the definition of a tracked metric
type KPI struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Code          string   `gorm:"type:varchar(50);uniqueIndex:idx_kpis_code,where:deleted_at IS NULL" json:"code"`
	Name          string   `gorm:"type:varchar(255)" json:"name"`
	Unit          string   `gorm:"type:varchar(50)" json:"unit"` // e.g. "EUR", "%", "orders"
	Description   string   `gorm:"type:text" json:"description"`
	DefaultTarget *float64 `gorm:"type:decimal(18,4)" json:"default_target"`
	IsActive      bool     `gorm:"default:true" json:"is_active"`
}

// TableName avoids gorm's k_p_is pluralisation
func (KPI) TableName() string {
	return "kpis"
}

// KPIValue is the value of one KPI for one brand in one month
type KPIValue struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UUID        string  `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	BrandID     uint    `gorm:"uniqueIndex:idx_kpi_value_period" json:"brand_id"`
	KPIID       uint    `gorm:"column:kpi_id;uniqueIndex:idx_kpi_value_period" json:"kpi_id"`
	Period      Period  `gorm:"type:varchar(7);uniqueIndex:idx_kpi_value_period" json:"period"`
	Value       float64 `gorm:"type:decimal(18,4)" json:"value"`
	Note        string  `gorm:"type:text" json:"note"`
	EnteredByID *uint   `json:"entered_by_id"`

	// Relationships
	Brand     Brand `gorm:"foreignKey:BrandID" json:"-"`
	KPI       KPI   `gorm:"foreignKey:KPIID" json:"-"`
	EnteredBy *User `gorm:"foreignKey:EnteredByID" json:"-"`
}

// TableName avoids gorm's k_p_i_values pluralisation
func (KPIValue) TableName() string {
	return "kpi_values"
}
