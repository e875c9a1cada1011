package models

import (
	"gorm.io/gorm"
)

// Plan run status constants
const (
	PlanRunStatusPending    = "pending"
	PlanRunStatusProcessing = "processing"
	PlanRunStatusCompleted  = "completed"
	PlanRunStatusFailed     = "failed"
)

// PlanRun records one topical-map planning request. Planning failures are
// hard errors: a failed run enqueues nothing.
type PlanRun struct {
	gorm.Model
	PublicID          string `gorm:"column:public_id;type:uuid;not null;uniqueIndex"`
	SiteID            uint   `gorm:"not null;index"`
	Niche             string `gorm:"not null"`
	Description       string `gorm:"type:text;not null;default:''"`
	Language          string `gorm:"not null;default:'Dutch'"`
	TargetCount       int    `gorm:"not null"`
	Status            string `gorm:"not null;default:'pending'"`
	RequestedCount    int    `gorm:"not null;default:0"`
	AcceptedCount     int    `gorm:"not null;default:0"`
	DuplicatesRemoved int    `gorm:"not null;default:0"`
	ErrorMessage      string `gorm:"type:text;not null;default:''"`
}

// SiteCMSConfig holds per-site WordPress credentials. Auto-publish is
// skipped when no enabled config exists for the site.
type SiteCMSConfig struct {
	gorm.Model
	SiteID      uint   `gorm:"not null;uniqueIndex"`
	BaseURL     string `gorm:"not null"`
	Username    string `gorm:"not null"`
	AppPassword string `gorm:"not null"`
	Enabled     bool   `gorm:"not null;default:true"`
}

// CreditBalance is the thin budget view consulted by admission control.
// Ledger semantics beyond "has enough budget" live outside this service.
type CreditBalance struct {
	gorm.Model
	SiteID         uint  `gorm:"not null;uniqueIndex"`
	WordsRemaining int64 `gorm:"not null;default:0"`
}
