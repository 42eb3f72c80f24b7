package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

const (
	maxActivityPoints     = 40
	maxRecencyPoints      = 30
	maxResponseRatePoints = 30
	maxScore              = 100
)

// EngagementCounters are the cumulative email interactions of a contact.
type EngagementCounters struct {
	Sent          int        `json:"sent"`
	Opened        int        `json:"opened"`
	Clicked       int        `json:"clicked"`
	Replied       int        `json:"replied"`
	LastRepliedAt *time.Time `json:"last_replied_at"`
}

// ScoreFactors explains a score: the raw counts plus each component.
type ScoreFactors struct {
	EngagementCounters
	ActivityPoints     int     `json:"activity_points"`
	RecencyPoints      int     `json:"recency_points"`
	ResponseRatePoints float64 `json:"response_rate_points"`
}

// ScoreResult is the outcome of rescoring one contact.
type ScoreResult struct {
	ContactID uint         `json:"contact_id"`
	Score     int          `json:"score"`
	Factors   ScoreFactors `json:"factors"`
}

// ComputeEngagementScore maps counters to a score in [0, 100].
func ComputeEngagementScore(counters EngagementCounters, now time.Time) int {
	return scoreFromFactors(computeFactors(counters, now))
}

func computeFactors(counters EngagementCounters, now time.Time) ScoreFactors {
	opened := max(0, counters.Opened)
	clicked := max(0, counters.Clicked)
	replied := max(0, counters.Replied)
	sent := max(0, counters.Sent)

	factors := ScoreFactors{EngagementCounters: counters}
	factors.ActivityPoints = min(maxActivityPoints, opened*2+clicked*5+replied*10)

	if counters.LastRepliedAt != nil {
		since := now.Sub(*counters.LastRepliedAt)
		switch {
		case since < 7*24*time.Hour:
			factors.RecencyPoints = 30
		case since < 30*24*time.Hour:
			factors.RecencyPoints = 20
		case since < 90*24*time.Hour:
			factors.RecencyPoints = 10
		}
	}

	if sent > 0 {
		factors.ResponseRatePoints = math.Min(maxResponseRatePoints, 100*float64(replied)/float64(sent))
	}

	return factors
}

func scoreFromFactors(f ScoreFactors) int {
	sum := float64(f.ActivityPoints) + float64(f.RecencyPoints) + f.ResponseRatePoints
	return min(maxScore, int(math.Round(sum)))
}

// ContactError records one contact that failed to rescore.
type ContactError struct {
	ContactID uint  `json:"contact_id"`
	Err       error `json:"-"`
}

func (e ContactError) Error() string {
	return fmt.Sprintf("contact %d: %v", e.ContactID, e.Err)
}

func (e ContactError) Unwrap() error {
	return e.Err
}

// BatchResult summarises a batch rescore.
type BatchResult struct {
	Processed int            `json:"processed"`
	Results   []ScoreResult  `json:"results"`
	Failures  []ContactError `json:"failures"`
}

// Scorer recomputes and stores engagement scores.
type Scorer struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	now       func() time.Time
}

// NewScorer creates a scorer. A nil clock means time.Now.
func NewScorer(dbManager cartridge.DBManager, logger *slog.Logger, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{dbManager: dbManager, logger: logger, now: now}
}

// RecomputeAndPersist loads a contact's counters, scores them and writes the
// score back.
func (s *Scorer) RecomputeAndPersist(ctx context.Context, contactID uint) (*ScoreResult, error) {
	db := s.dbManager.GetConnection().WithContext(ctx)

	contact, err := FindByID(db, contactID)
	if err != nil {
		return nil, err
	}
	return s.persist(db, contact)
}

func (s *Scorer) persist(db *gorm.DB, contact *Contact) (*ScoreResult, error) {
	now := s.now().UTC()
	factors := computeFactors(contact.Counters(), now)
	score := scoreFromFactors(factors)

	err := sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		return tx.Model(&Contact{}).Where("id = ?", contact.ID).Updates(map[string]any{
			"engagement_score": score,
			"score_updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store engagement score: %w", err)
	}

	return &ScoreResult{ContactID: contact.ID, Score: score, Factors: factors}, nil
}

// RecomputeForAccount rescores every contact, or only those of one account
// when companyID is set. Each contact is scored independently; failures are
// collected and the batch continues.
func (s *Scorer) RecomputeForAccount(ctx context.Context, companyID *uint) (*BatchResult, error) {
	db := s.dbManager.GetConnection().WithContext(ctx)

	query := db.Model(&Contact{}).Order("id ASC")
	if companyID != nil {
		var count int64
		if err := db.Model(&Company{}).Where("id = ?", *companyID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check company: %w", err)
		}
		if count == 0 {
			return nil, ErrCompanyNotFound
		}
		query = query.Where("company_id = ?", *companyID)
	}

	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	result := &BatchResult{Results: []ScoreResult{}, Failures: []ContactError{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, ContactError{ContactID: id, Err: err})
			continue
		}

		scored, err := s.RecomputeAndPersist(ctx, id)
		if err != nil {
			s.logger.Error("Failed to rescore contact",
				slog.Uint64("contact_id", uint64(id)),
				slog.Any("error", err))
			result.Failures = append(result.Failures, ContactError{ContactID: id, Err: err})
			continue
		}
		result.Processed++
		result.Results = append(result.Results, *scored)
	}

	attrs := []any{
		slog.Int("processed", result.Processed),
		slog.Int("failed", len(result.Failures)),
	}
	if companyID != nil {
		attrs = append(attrs, slog.Uint64("company_id", uint64(*companyID)))
	}
	s.logger.Info("Engagement rescore finished", attrs...)

	return result, nil
}

// IsNotFound reports whether err is a contact or company not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound) || errors.Is(err, ErrCompanyNotFound)
}
