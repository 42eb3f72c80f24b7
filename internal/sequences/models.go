// Package sequences runs the per-contact outreach cadence: enrolment, the
// due check for the next touch, and advancing once a touch is sent.
package sequences

import (
	"errors"
	"time"
)

var (
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("contact already enrolled in sequence")
	// ErrStaleStep is returned when advancing with a step index that is not
	// the enrollment's current step and was never completed.
	ErrStaleStep = errors.New("step is not the enrollment's current step")
)

// EnrollmentStatus is the state of an enrollment.
type EnrollmentStatus string

const (
	StatusActive    EnrollmentStatus = "active"
	StatusCompleted EnrollmentStatus = "completed"
)

// Channel is how a touch is delivered.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
	ChannelCall     Channel = "call"
)

type Sequence struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Steps     []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// SequenceStep is one stage of a cadence, due DayOffset days after the
// previous touch (or enrolment, for the first step).
type SequenceStep struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	SequenceID     uint    `gorm:"uniqueIndex:idx_sequence_step_order;not null" json:"sequence_id"`
	StepOrder      int     `gorm:"uniqueIndex:idx_sequence_step_order;not null" json:"step_order"`
	DayOffset      int     `gorm:"not null;default:0" json:"day_offset"`
	Channel        Channel `gorm:"not null" json:"channel"`
	Role           string  `json:"role"`
	PromptTemplate string  `json:"prompt_template"`
	CTAType        string  `gorm:"column:cta_type" json:"cta_type"`
}

// Enrollment binds one contact to one sequence.
type Enrollment struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ContactID        uint             `gorm:"uniqueIndex:idx_enrollment_contact_sequence;not null" json:"contact_id"`
	SequenceID       uint             `gorm:"uniqueIndex:idx_enrollment_contact_sequence;not null" json:"sequence_id"`
	Status           EnrollmentStatus `gorm:"index;not null" json:"status"`
	CurrentStepIndex int              `gorm:"not null;default:0" json:"current_step_index"`
	EnrolledAt       time.Time        `gorm:"not null" json:"enrolled_at"`
	NextTouchDueAt   *time.Time       `gorm:"index" json:"next_touch_due_at"`
	CompletedAt      *time.Time       `json:"completed_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TouchCompletion records that the touch for one step was sent. Its unique
// key makes advancing idempotent per step.
type TouchCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EnrollmentID uint      `gorm:"uniqueIndex:idx_touch_completion_step;not null" json:"enrollment_id"`
	StepIndex    int       `gorm:"uniqueIndex:idx_touch_completion_step;not null" json:"step_index"`
	SentAt       time.Time `gorm:"not null" json:"sent_at"`
}

// TouchContext is what the drafting step needs to write the next touch.
type TouchContext struct {
	EnrollmentID   uint       `json:"enrollment_id"`
	ContactID      uint       `json:"contact_id"`
	SequenceID     uint       `json:"sequence_id"`
	StepIndex      int        `json:"step_index"`
	Channel        Channel    `json:"channel"`
	Role           string     `json:"role"`
	CTAType        string     `json:"cta_type"`
	PromptTemplate string     `json:"prompt_template"`
	PromptContext  string     `json:"prompt_context"`
	DueAt          *time.Time `json:"due_at"`
}
