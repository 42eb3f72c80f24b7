package sequences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"accountpulse/internal/contacts"
)

// Engine drives enrollments through their sequence steps.
type Engine struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a sequence engine.
func NewEngine(dbManager cartridge.DBManager, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		dbManager: dbManager,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSequence stores a sequence with its steps, numbered in the given order.
func CreateSequence(db *gorm.DB, logger *slog.Logger, name string, steps []SequenceStep) (*Sequence, error) {
	sequence := &Sequence{Name: name}
	for i := range steps {
		step := steps[i]
		step.ID = 0
		step.StepOrder = i
		if step.DayOffset < 0 {
			return nil, fmt.Errorf("step %d: day offset cannot be negative", i)
		}
		sequence.Steps = append(sequence.Steps, step)
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(sequence).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence: %w", err)
	}
	return sequence, nil
}

func loadSteps(db *gorm.DB, sequenceID uint) ([]SequenceStep, error) {
	var steps []SequenceStep
	if err := db.Where("sequence_id = ?", sequenceID).Order("step_order ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to load sequence steps: %w", err)
	}
	return steps, nil
}

// Enroll starts a contact on step 0 of a sequence.
func (e *Engine) Enroll(ctx context.Context, contactID, sequenceID uint) (*Enrollment, error) {
	db := e.dbManager.GetConnection().WithContext(ctx)

	if _, err := contacts.FindByID(db, contactID); err != nil {
		return nil, err
	}

	var sequence Sequence
	if err := db.First(&sequence, sequenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSequenceNotFound
		}
		return nil, fmt.Errorf("failed to load sequence: %w", err)
	}

	steps, err := loadSteps(db, sequenceID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	enrollment := &Enrollment{
		ContactID:  contactID,
		SequenceID: sequenceID,
		Status:     StatusActive,
		EnrolledAt: now,
	}
	if len(steps) > 0 {
		due := now.AddDate(0, 0, steps[0].DayOffset)
		enrollment.NextTouchDueAt = &due
	}

	var created bool
	err = sqlite.PerformWrite(e.logger, db, func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(enrollment)
		created = result.RowsAffected > 0
		return result.Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enroll contact: %w", err)
	}
	if !created {
		return nil, ErrAlreadyEnrolled
	}

	e.logger.Info("Contact enrolled in sequence",
		slog.Uint64("contact_id", uint64(contactID)),
		slog.Uint64("sequence_id", uint64(sequenceID)),
		slog.Uint64("enrollment_id", uint64(enrollment.ID)))

	return enrollment, nil
}

// GetNextTouchContext returns the touch due now for a contact, or nil when
// nothing is due.
func (e *Engine) GetNextTouchContext(ctx context.Context, contactID uint) (*TouchContext, error) {
	db := e.dbManager.GetConnection().WithContext(ctx)

	if _, err := contacts.FindByID(db, contactID); err != nil {
		return nil, err
	}

	var enrollments []Enrollment
	if err := db.Where("contact_id = ? AND status = ?", contactID, StatusActive).
		Order("enrolled_at ASC, id ASC").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}

	now := e.now().UTC()
	for i := range enrollments {
		steps, err := loadSteps(db, enrollments[i].SequenceID)
		if err != nil {
			return nil, err
		}
		if touch := dueTouch(&enrollments[i], steps, now); touch != nil {
			return touch, nil
		}
	}
	return nil, nil
}

// DueTouches lists up to limit touches due at now across all contacts,
// earliest first. It is the scheduler tick's entry point.
func (e *Engine) DueTouches(ctx context.Context, now time.Time, limit int) ([]TouchContext, error) {
	db := e.dbManager.GetConnection().WithContext(ctx)
	now = now.UTC()

	query := db.Where("status = ?", StatusActive).
		Where("next_touch_due_at IS NULL OR next_touch_due_at <= ?", now).
		Where("current_step_index < (SELECT COUNT(*) FROM sequence_steps WHERE sequence_steps.sequence_id = enrollments.sequence_id)").
		Order("next_touch_due_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var enrollments []Enrollment
	if err := query.Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to load due enrollments: %w", err)
	}

	stepsBySequence := make(map[uint][]SequenceStep)
	touches := make([]TouchContext, 0, len(enrollments))
	for i := range enrollments {
		sequenceID := enrollments[i].SequenceID
		steps, ok := stepsBySequence[sequenceID]
		if !ok {
			var err error
			if steps, err = loadSteps(db, sequenceID); err != nil {
				return nil, err
			}
			stepsBySequence[sequenceID] = steps
		}
		if touch := dueTouch(&enrollments[i], steps, now); touch != nil {
			touches = append(touches, *touch)
		}
	}
	return touches, nil
}

// dueTouch builds the touch for the enrollment's current step when due.
func dueTouch(enrollment *Enrollment, steps []SequenceStep, now time.Time) *TouchContext {
	if enrollment.Status != StatusActive || len(steps) == 0 {
		return nil
	}
	if enrollment.CurrentStepIndex >= len(steps) {
		return nil
	}
	if enrollment.NextTouchDueAt != nil && enrollment.NextTouchDueAt.After(now) {
		return nil
	}

	step := steps[enrollment.CurrentStepIndex]
	return &TouchContext{
		EnrollmentID:   enrollment.ID,
		ContactID:      enrollment.ContactID,
		SequenceID:     enrollment.SequenceID,
		StepIndex:      enrollment.CurrentStepIndex,
		Channel:        step.Channel,
		Role:           step.Role,
		CTAType:        step.CTAType,
		PromptTemplate: step.PromptTemplate,
		PromptContext:  BuildPromptContext(step),
		DueAt:          enrollment.NextTouchDueAt,
	}
}

// BuildPromptContext joins the step's role, CTA type and template body,
// skipping empty parts.
func BuildPromptContext(step SequenceStep) string {
	var parts []string
	if role := strings.TrimSpace(step.Role); role != "" {
		parts = append(parts, "Role: "+role)
	}
	if cta := strings.TrimSpace(step.CTAType); cta != "" {
		parts = append(parts, "CTA type: "+cta)
	}
	if body := strings.TrimSpace(step.PromptTemplate); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n")
}

// AdvanceEnrollment records that the touch for stepIndex was sent and moves
// the enrollment to its next step, completing it after the last one.
//
// stepIndex is the idempotency token: repeating a completed step returns the
// enrollment unchanged, and any other index that is not the current step
// fails with ErrStaleStep. Sequences without steps and completed enrollments
// are left as they are.
func (e *Engine) AdvanceEnrollment(ctx context.Context, enrollmentID uint, stepIndex int) (*Enrollment, error) {
	db := e.dbManager.GetConnection().WithContext(ctx)
	now := e.now().UTC()

	var enrollment Enrollment
	var advanced bool
	var outcome error
	err := sqlite.PerformWrite(e.logger, db, func(tx *gorm.DB) error {
		advanced, outcome = false, nil
		enrollment = Enrollment{}
		if err := tx.First(&enrollment, enrollmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = ErrEnrollmentNotFound
				return nil
			}
			return err
		}

		steps, err := loadSteps(tx, enrollment.SequenceID)
		if err != nil {
			return err
		}
		if len(steps) == 0 || enrollment.Status == StatusCompleted {
			return nil
		}

		if stepIndex != enrollment.CurrentStepIndex {
			var completed int64
			if err := tx.Model(&TouchCompletion{}).
				Where("enrollment_id = ? AND step_index = ?", enrollment.ID, stepIndex).
				Count(&completed).Error; err != nil {
				return err
			}
			if completed == 0 {
				outcome = ErrStaleStep
			}
			return nil
		}

		completion := TouchCompletion{EnrollmentID: enrollment.ID, StepIndex: stepIndex, SentAt: now}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&completion)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		updates := nextState(&enrollment, steps, now)
		result = tx.Model(&Enrollment{}).
			Where("id = ? AND current_step_index = ?", enrollment.ID, stepIndex).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Roll back the completion row; another advance won the step.
			outcome = ErrStaleStep
			return ErrStaleStep
		}
		advanced = true
		// NULL columns leave pointer fields untouched, so reload into a zero value.
		enrollment = Enrollment{}
		return tx.First(&enrollment, enrollmentID).Error
	})
	if outcome != nil {
		return nil, outcome
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance enrollment: %w", err)
	}

	if advanced {
		e.logger.Info("Enrollment advanced",
			slog.Uint64("enrollment_id", uint64(enrollment.ID)),
			slog.Int("step_index", enrollment.CurrentStepIndex),
			slog.String("status", string(enrollment.Status)))
	}
	return &enrollment, nil
}

func nextState(enrollment *Enrollment, steps []SequenceStep, now time.Time) map[string]any {
	nextIndex := enrollment.CurrentStepIndex + 1
	if nextIndex >= len(steps) {
		return map[string]any{
			"status":             StatusCompleted,
			"current_step_index": nextIndex,
			"completed_at":       now,
			"next_touch_due_at":  nil,
		}
	}
	return map[string]any{
		"current_step_index": nextIndex,
		"next_touch_due_at":  now.AddDate(0, 0, steps[nextIndex].DayOffset),
	}
}

// GetEnrollment loads an enrollment by ID.
func (e *Engine) GetEnrollment(ctx context.Context, enrollmentID uint) (*Enrollment, error) {
	var enrollment Enrollment
	err := e.dbManager.GetConnection().WithContext(ctx).First(&enrollment, enrollmentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return &enrollment, nil
}
