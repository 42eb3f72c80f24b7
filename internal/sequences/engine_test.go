package sequences_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accountpulse/internal/contacts"
	"accountpulse/internal/sequences"
	"accountpulse/internal/testsupport"
)

var enrolledAt = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*sequences.Engine, *testsupport.MutableClock, *testsupport.TestDBManager) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	clock := testsupport.NewMutableClock(enrolledAt)
	return sequences.NewEngine(dbManager, logger, sequences.WithClock(clock.Now)), clock, dbManager
}

func TestTwoStepCadence(t *testing.T) {
	engine, clock, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	contact := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Riley", Title: "VP Sales"})
	sequence := testsupport.CreateTestSequence(t, db, "Intro cadence", 0, 3)

	enrollment, err := engine.Enroll(ctx, contact.ID, sequence.ID)
	require.NoError(t, err)
	assert.Equal(t, sequences.StatusActive, enrollment.Status)
	assert.Equal(t, 0, enrollment.CurrentStepIndex)
	require.NotNil(t, enrollment.NextTouchDueAt)
	assert.True(t, enrollment.NextTouchDueAt.Equal(enrolledAt))

	touch, err := engine.GetNextTouchContext(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, touch)
	assert.Equal(t, 0, touch.StepIndex)
	assert.Equal(t, enrollment.ID, touch.EnrollmentID)
	assert.Equal(t, sequences.ChannelEmail, touch.Channel)
	assert.Equal(t, "Role: touch 1", touch.PromptContext)

	advanced, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced.CurrentStepIndex)
	assert.Equal(t, sequences.StatusActive, advanced.Status)
	require.NotNil(t, advanced.NextTouchDueAt)
	assert.True(t, advanced.NextTouchDueAt.Equal(enrolledAt.AddDate(0, 0, 3)))

	// Nothing is due until the offset has elapsed.
	clock.Advance(72*time.Hour - time.Minute)
	touch, err = engine.GetNextTouchContext(ctx, contact.ID)
	require.NoError(t, err)
	assert.Nil(t, touch)

	clock.Advance(time.Minute)
	touch, err = engine.GetNextTouchContext(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, touch)
	assert.Equal(t, 1, touch.StepIndex)
	assert.Equal(t, "Role: touch 2", touch.PromptContext)

	// A retried send of step 0 must not move the enrollment again.
	repeated, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, repeated.CurrentStepIndex)
	assert.Equal(t, sequences.StatusActive, repeated.Status)

	completed, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, sequences.StatusCompleted, completed.Status)
	assert.Equal(t, 2, completed.CurrentStepIndex)
	assert.Nil(t, completed.NextTouchDueAt)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, completed.CompletedAt.Equal(clock.Now()))

	touch, err = engine.GetNextTouchContext(ctx, contact.ID)
	require.NoError(t, err)
	assert.Nil(t, touch)

	// Advancing a completed enrollment is a no-op.
	again, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, sequences.StatusCompleted, again.Status)
	assert.Equal(t, 2, again.CurrentStepIndex)

	var completions int64
	require.NoError(t, db.Model(&sequences.TouchCompletion{}).Where("enrollment_id = ?", enrollment.ID).Count(&completions).Error)
	assert.Equal(t, int64(2), completions)
}

func TestEnrollRejectsDuplicatesAndUnknowns(t *testing.T) {
	engine, _, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	contact := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Morgan"})
	sequence := testsupport.CreateTestSequence(t, db, "Follow up", 2)

	enrollment, err := engine.Enroll(ctx, contact.ID, sequence.ID)
	require.NoError(t, err)
	require.NotNil(t, enrollment.NextTouchDueAt)
	assert.True(t, enrollment.NextTouchDueAt.Equal(enrolledAt.AddDate(0, 0, 2)))

	_, err = engine.Enroll(ctx, contact.ID, sequence.ID)
	assert.ErrorIs(t, err, sequences.ErrAlreadyEnrolled)

	_, err = engine.Enroll(ctx, contact.ID, 999)
	assert.ErrorIs(t, err, sequences.ErrSequenceNotFound)

	_, err = engine.Enroll(ctx, 999, sequence.ID)
	assert.ErrorIs(t, err, contacts.ErrContactNotFound)

	var count int64
	require.NoError(t, db.Model(&sequences.Enrollment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEmptySequenceIsNeverDue(t *testing.T) {
	engine, clock, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	contact := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Casey"})
	sequence := testsupport.CreateTestSequence(t, db, "Empty")

	enrollment, err := engine.Enroll(ctx, contact.ID, sequence.ID)
	require.NoError(t, err)
	assert.Nil(t, enrollment.NextTouchDueAt)

	clock.Advance(30 * 24 * time.Hour)
	touch, err := engine.GetNextTouchContext(ctx, contact.ID)
	require.NoError(t, err)
	assert.Nil(t, touch)

	due, err := engine.DueTouches(ctx, clock.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	unchanged, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, sequences.StatusActive, unchanged.Status)
	assert.Equal(t, 0, unchanged.CurrentStepIndex)
}

func TestAdvanceEnrollmentRejectsStaleSteps(t *testing.T) {
	engine, _, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	contact := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Jordan"})
	sequence := testsupport.CreateTestSequence(t, db, "Three touches", 0, 1, 1)

	enrollment, err := engine.Enroll(ctx, contact.ID, sequence.ID)
	require.NoError(t, err)

	_, err = engine.AdvanceEnrollment(ctx, enrollment.ID, 2)
	assert.ErrorIs(t, err, sequences.ErrStaleStep)

	_, err = engine.AdvanceEnrollment(ctx, 12345, 0)
	assert.ErrorIs(t, err, sequences.ErrEnrollmentNotFound)

	stored, err := engine.GetEnrollment(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentStepIndex)
}

func TestDueTouches(t *testing.T) {
	engine, clock, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	immediate := testsupport.CreateTestSequence(t, db, "Immediate", 0)
	delayed := testsupport.CreateTestSequence(t, db, "Delayed", 5)

	first := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "First"})
	second := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Second"})

	_, err := engine.Enroll(ctx, first.ID, immediate.ID)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = engine.Enroll(ctx, second.ID, immediate.ID)
	require.NoError(t, err)
	_, err = engine.Enroll(ctx, first.ID, delayed.ID)
	require.NoError(t, err)

	due, err := engine.DueTouches(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ContactID)
	assert.Equal(t, second.ID, due[1].ContactID)

	limited, err := engine.DueTouches(ctx, clock.Now(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ContactID)

	later, err := engine.DueTouches(ctx, clock.Now().AddDate(0, 0, 5), 0)
	require.NoError(t, err)
	assert.Len(t, later, 3)
}

func TestBuildPromptContext(t *testing.T) {
	testCases := []struct {
		name string
		step sequences.SequenceStep
		want string
	}{
		{name: "empty step", step: sequences.SequenceStep{}, want: ""},
		{
			name: "all parts",
			step: sequences.SequenceStep{Role: "Peer intro", CTAType: "meeting", PromptTemplate: "Mention the QBR."},
			want: "Role: Peer intro\nCTA type: meeting\nMention the QBR.",
		},
		{
			name: "template only",
			step: sequences.SequenceStep{PromptTemplate: "  Keep it short.  "},
			want: "Keep it short.",
		},
		{
			name: "blank role skipped",
			step: sequences.SequenceStep{Role: "  ", CTAType: "reply"},
			want: "CTA type: reply",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sequences.BuildPromptContext(tc.step))
		})
	}
}

func TestCreateSequenceRejectsNegativeOffsets(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := sequences.CreateSequence(dbManager.GetConnection(), logger, "Broken", []sequences.SequenceStep{
		{DayOffset: 1, Channel: sequences.ChannelEmail},
		{DayOffset: -2, Channel: sequences.ChannelCall},
	})
	assert.Error(t, err)
}

func TestCompletingAdvanceMatchesStoredRow(t *testing.T) {
	engine, clock, dbManager := setupEngine(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	contact := testsupport.CreateTestContact(t, db, contacts.Contact{Name: "Avery"})
	sequence := testsupport.CreateTestSequence(t, db, "Single touch", 0)

	enrollment, err := engine.Enroll(ctx, contact.ID, sequence.ID)
	require.NoError(t, err)
	require.NotNil(t, enrollment.NextTouchDueAt)

	clock.Advance(time.Hour)
	done, err := engine.AdvanceEnrollment(ctx, enrollment.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, sequences.StatusCompleted, done.Status)
	assert.Equal(t, 1, done.CurrentStepIndex)
	assert.Nil(t, done.NextTouchDueAt)
	require.NotNil(t, done.CompletedAt)

	var stored sequences.Enrollment
	require.NoError(t, db.First(&stored, enrollment.ID).Error)
	assert.Equal(t, stored.Status, done.Status)
	assert.Equal(t, stored.CurrentStepIndex, done.CurrentStepIndex)
	assert.Nil(t, stored.NextTouchDueAt)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(*done.CompletedAt))
}
