package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"accountpulse/internal/campaigns"
	"accountpulse/internal/contacts"
	"accountpulse/internal/database"
	"accountpulse/internal/sequences"
	"accountpulse/internal/visits"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Shared-cache memory databases report table locks instead of waiting.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// FixedClock returns a clock that always reports now.
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

// MutableClock is a test clock that can be moved forward.
type MutableClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMutableClock creates a clock starting at now.
func NewMutableClock(now time.Time) *MutableClock {
	return &MutableClock{now: now}
}

// Now returns the clock's current time.
func (c *MutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *MutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CreateTestCampaign creates a campaign in the database
func CreateTestCampaign(t *testing.T, db *gorm.DB, slug string) campaigns.Campaign {
	t.Helper()
	campaign := campaigns.Campaign{Name: "Campaign " + slug, Slug: slug, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&campaign).Error)
	return campaign
}

// CreateTestVisit inserts a visit row directly, filling the required columns
// the caller left empty.
func CreateTestVisit(t *testing.T, db *gorm.DB, visit visits.Visit) visits.Visit {
	t.Helper()
	if visit.SessionID == "" {
		visit.SessionID = visits.NewSessionID()
	}
	if visit.VisitedAt.IsZero() {
		visit.VisitedAt = time.Now().UTC()
	}
	visit.VisitedAt = visit.VisitedAt.UTC()
	if visit.VisitDay == "" {
		visit.VisitDay = visit.VisitedAt.Format("2006-01-02")
	}
	if visit.LastActivityAt.IsZero() {
		visit.LastActivityAt = visit.VisitedAt
	}
	require.NoError(t, db.Create(&visit).Error)
	return visit
}

// CreateTestContact creates a company (when companyID is zero) and a contact.
func CreateTestContact(t *testing.T, db *gorm.DB, contact contacts.Contact) contacts.Contact {
	t.Helper()
	if contact.CompanyID == 0 {
		company := contacts.Company{Name: "Acme", Domain: fmt.Sprintf("acme-%d.test", time.Now().UnixNano())}
		require.NoError(t, db.Create(&company).Error)
		contact.CompanyID = company.ID
	}
	require.NoError(t, db.Create(&contact).Error)
	return contact
}

// CreateTestSequence creates a sequence whose steps have the given day offsets.
func CreateTestSequence(t *testing.T, db *gorm.DB, name string, dayOffsets ...int) sequences.Sequence {
	t.Helper()
	steps := make([]sequences.SequenceStep, len(dayOffsets))
	for i, offset := range dayOffsets {
		steps[i] = sequences.SequenceStep{
			DayOffset: offset,
			Channel:   sequences.ChannelEmail,
			Role:      fmt.Sprintf("touch %d", i+1),
		}
	}
	sequence, err := sequences.CreateSequence(db, GetLogger(), name, steps)
	require.NoError(t, err)
	return *sequence
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
