// Package contacts owns accounts (companies), their contacts, and the email
// engagement counters and score kept on each contact.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// ErrContactNotFound is returned when a contact lookup fails.
var ErrContactNotFound = errors.New("contact not found")

// ErrCompanyNotFound is returned when an account lookup fails.
var ErrCompanyNotFound = errors.New("company not found")

// Company is a target account.
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Domain    string    `gorm:"uniqueIndex" json:"domain"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Contact struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CompanyID uint   `gorm:"index;not null" json:"company_id"`
	Name      string `json:"name"`
	Email     string `gorm:"index" json:"email"`
	Title     string `json:"title"`

	TotalEmailsSent    int        `gorm:"not null;default:0" json:"total_emails_sent"`
	TotalEmailsOpened  int        `gorm:"not null;default:0" json:"total_emails_opened"`
	TotalEmailsClicked int        `gorm:"not null;default:0" json:"total_emails_clicked"`
	TotalEmailsReplied int        `gorm:"not null;default:0" json:"total_emails_replied"`
	LastEmailRepliedAt *time.Time `json:"last_email_replied_at"`

	EngagementScore int        `gorm:"not null;default:0" json:"engagement_score"`
	ScoreUpdatedAt  *time.Time `json:"score_updated_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Counters returns the contact's engagement counters.
func (c *Contact) Counters() EngagementCounters {
	return EngagementCounters{
		Sent:          c.TotalEmailsSent,
		Opened:        c.TotalEmailsOpened,
		Clicked:       c.TotalEmailsClicked,
		Replied:       c.TotalEmailsReplied,
		LastRepliedAt: c.LastEmailRepliedAt,
	}
}

// Seniority returns the contact's seniority from their title.
func (c *Contact) Seniority() Seniority {
	return ClassifySeniority(c.Title)
}

// FindByID retrieves a contact by ID.
func FindByID(db *gorm.DB, id uint) (*Contact, error) {
	var contact Contact
	if err := db.Where("id = ?", id).First(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	return &contact, nil
}

// CreateCompany creates a new account.
func CreateCompany(db *gorm.DB, logger *slog.Logger, name, domain string) (*Company, error) {
	company := &Company{Name: name, Domain: strings.ToLower(strings.TrimSpace(domain))}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(company).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return company, nil
}

// CreateContact creates a contact on an existing account.
func CreateContact(db *gorm.DB, logger *slog.Logger, contact *Contact) error {
	var count int64
	if err := db.Model(&Company{}).Where("id = ?", contact.CompanyID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check company: %w", err)
	}
	if count == 0 {
		return ErrCompanyNotFound
	}

	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(contact).Error
	})
}

// EmailEvent is an outbound email lifecycle event reported by a webhook.
type EmailEvent string

const (
	EmailSent    EmailEvent = "sent"
	EmailOpened  EmailEvent = "opened"
	EmailClicked EmailEvent = "clicked"
	EmailReplied EmailEvent = "replied"
)

var emailEventColumns = map[EmailEvent]string{
	EmailSent:    "total_emails_sent",
	EmailOpened:  "total_emails_opened",
	EmailClicked: "total_emails_clicked",
	EmailReplied: "total_emails_replied",
}

// RecordEmailEvent atomically bumps the counter for event. Replies also
// stamp LastEmailRepliedAt with at.
func RecordEmailEvent(ctx context.Context, db *gorm.DB, logger *slog.Logger, contactID uint, event EmailEvent, at time.Time) error {
	column, ok := emailEventColumns[event]
	if !ok {
		return fmt.Errorf("unknown email event: %q", event)
	}

	updates := map[string]any{column: gorm.Expr(column+" + ?", 1)}
	if event == EmailReplied {
		updates["last_email_replied_at"] = at.UTC()
	}

	var rowsAffected int64
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&Contact{}).Where("id = ?", contactID).Updates(updates)
		rowsAffected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("failed to record email %s: %w", event, err)
	}
	if rowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}
