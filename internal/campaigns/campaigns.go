// Package campaigns holds the campaign landing pages visits are recorded
// against, and the departments a campaign can be segmented into.
package campaigns

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// CampaignNotFoundError represents an error when a campaign is not found
type CampaignNotFoundError struct {
	ID uint
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign not found: %d", e.ID)
}

// NewCampaignNotFoundError creates a new CampaignNotFoundError
func NewCampaignNotFoundError(id uint) *CampaignNotFoundError {
	return &CampaignNotFoundError{ID: id}
}

// IsNotFound reports whether err (or anything it wraps) is a CampaignNotFoundError.
func IsNotFound(err error) bool {
	var notFound *CampaignNotFoundError
	return errors.As(err, &notFound)
}

// Campaign is a landing page or campaign microsite for one account.
type Campaign struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID *uint     `gorm:"index" json:"company_id"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Department is a named segment of a campaign (for example "Finance").
// Its Key is what visits and daily stats reference.
type Department struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID uint      `gorm:"uniqueIndex:idx_department_key;not null" json:"campaign_id"`
	Key        string    `gorm:"uniqueIndex:idx_department_key;not null" json:"key"`
	Name       string    `gorm:"not null" json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// GetCampaign retrieves a campaign by ID.
func GetCampaign(db *gorm.DB, id uint) (*Campaign, error) {
	var campaign Campaign
	if err := db.First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewCampaignNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying campaign: %w", err)
	}
	return &campaign, nil
}

// EnsureExists returns a CampaignNotFoundError when id does not exist.
func EnsureExists(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&Campaign{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check campaign: %w", err)
	}
	if count == 0 {
		return NewCampaignNotFoundError(id)
	}
	return nil
}

// ListCampaignIDs returns every campaign ID in ascending order.
func ListCampaignIDs(db *gorm.DB) ([]uint, error) {
	var ids []uint
	if err := db.Model(&Campaign{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return ids, nil
}

// ListDepartmentKeys returns the department keys configured for a campaign.
func ListDepartmentKeys(db *gorm.DB, campaignID uint) ([]string, error) {
	var keys []string
	err := db.Model(&Department{}).
		Where("campaign_id = ?", campaignID).
		Order("key ASC").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return keys, nil
}

// CreateCampaign inserts a new campaign.
func CreateCampaign(db *gorm.DB, logger *slog.Logger, name, slug string, companyID *uint) (*Campaign, error) {
	campaign := &Campaign{
		CompanyID: companyID,
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(campaign).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return campaign, nil
}

// CreateDepartment adds a department segment to a campaign.
func CreateDepartment(db *gorm.DB, logger *slog.Logger, campaignID uint, key, name string) (*Department, error) {
	if err := EnsureExists(db, campaignID); err != nil {
		return nil, err
	}
	department := &Department{
		CampaignID: campaignID,
		Key:        key,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(department).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create department: %w", err)
	}
	return department, nil
}
