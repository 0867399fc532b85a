// Package domain defines the persistence models for companies, coupons and
// ingestion runs. These types are mapped with GORM and form the core data
// layer of the rewards backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Company is an issuing entity. Its conversion factor is the percentage of a
// coupon's MRP awarded as points.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: canonical lowercase name, unique.
//   - ConversionFactor: percentage (> 0) used to derive points from MRP.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type Company struct {
	ID               string         `json:"id"                gorm:"type:char(36);primaryKey"`
	Name             string         `json:"name"              gorm:"type:varchar(255);not null;uniqueIndex:ux_company_name"`
	ConversionFactor float64        `json:"conversion_factor" gorm:"not null;check:conversion_factor > 0"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                 gorm:"index"`
}

// TableName returns the database table name for Company.
func (Company) TableName() string { return "companies" }

// Coupon is a redeemable code worth a fixed number of points, issued by a
// company. Codes are globally unique.
type Coupon struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Code      string    `json:"code"       gorm:"type:varchar(128);not null;uniqueIndex:ux_coupon_code"`
	MRP       float64   `json:"mrp"        gorm:"not null;check:mrp >= 1"`
	CompanyID string    `json:"company_id" gorm:"type:char(36);not null;index:idx_company_coupons"`
	Points    int       `json:"points"     gorm:"not null;check:points >= 1"`
	Redeemed  bool      `json:"redeemed"   gorm:"not null;default:false"`
	RunID     *string   `json:"run_id,omitempty" gorm:"type:char(36);index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Company is the issuer. Deleting a company with coupons is refused.
	Company Company `json:"-" gorm:"foreignKey:CompanyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Coupon.
func (Coupon) TableName() string { return "coupons" }

// Run statuses.
const (
	RunRunning             = "running"
	RunCompleted           = "completed"
	RunCompletedWithErrors = "completed_with_errors"
	RunFailed              = "failed"
)

// IngestionRun records one upload of a coupon source file.
//
// Fields:
//   - Mode: "batch" or "individual".
//   - Status: running, completed, completed_with_errors or failed.
//   - Total / Succeeded / Failed: record counters, final once FinishedAt is set.
//   - Error: fatal error text for failed runs.
type IngestionRun struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string     `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_runs,priority:1"`
	Mode       string     `json:"mode"        gorm:"type:varchar(16);not null;check:mode IN ('batch','individual')"`
	FileName   string     `json:"file_name"   gorm:"type:varchar(255);not null;default:''"`
	Status     string     `json:"status"      gorm:"type:varchar(32);not null;index"`
	Total      int        `json:"total"       gorm:"not null;default:0"`
	Succeeded  int        `json:"succeeded"   gorm:"not null;default:0"`
	Failed     int        `json:"failed"      gorm:"not null;default:0"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time  `json:"created_at"  gorm:"index:idx_user_runs,priority:2"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Records []IngestionRecord `json:"records,omitempty" gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for IngestionRun.
func (IngestionRun) TableName() string { return "ingestion_runs" }

// IngestionRecord is the latest known state of one coupon within a run.
type IngestionRecord struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	RunID     string    `json:"run_id"    gorm:"type:char(36);not null;uniqueIndex:ux_run_position,priority:1"`
	Position  int       `json:"position"  gorm:"not null;uniqueIndex:ux_run_position,priority:2"`
	Row       int       `json:"row"       gorm:"not null"`
	Code      string    `json:"code"      gorm:"type:varchar(128);not null"`
	Status    string    `json:"status"    gorm:"type:varchar(16);not null;check:status IN ('pending','processing','success','failed')"`
	Message   string    `json:"message"   gorm:"type:text;not null;default:''"`
	Attempts  int       `json:"attempts"  gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for IngestionRecord.
func (IngestionRecord) TableName() string { return "ingestion_records" }
