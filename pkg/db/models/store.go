package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Store is the seller tenant. ProductLimit mirrors the quota of Plan and is
// rewritten whenever the plan changes.
type Store struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID               uuid.UUID              `gorm:"column:owner_id;type:uuid;not null"`
	CompanyName           string                 `gorm:"column:company_name;not null"`
	IsPublished           bool                   `gorm:"column:is_published;not null"`
	IsApproved            bool                   `gorm:"column:is_approved;not null"`
	Plan                  enums.SubscriptionPlan `gorm:"column:plan;type:text;not null;default:'free'"`
	SubscriptionStartDate *time.Time             `gorm:"column:subscription_start_date"`
	SubscriptionEndDate   *time.Time             `gorm:"column:subscription_end_date"`
	ProductLimit          int                    `gorm:"column:product_limit;not null"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Store) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SubscriptionLapsed reports whether a paid plan's window ended before now.
func (s *Store) SubscriptionLapsed(now time.Time) bool {
	if s == nil || !s.Plan.IsPaid() || s.SubscriptionEndDate == nil {
		return false
	}
	return s.SubscriptionEndDate.Before(now)
}
