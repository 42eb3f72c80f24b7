package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"accountpulse/internal/analytics"
	"accountpulse/internal/attribution"
	"accountpulse/internal/campaigns"
	"accountpulse/internal/contacts"
	"accountpulse/internal/sequences"
	"accountpulse/internal/visits"
)

// Seeder fills a database with demo accounts, campaigns, visits and a
// sequence, then rolls the visits up and scores the contacts.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	VisitCount int
	Days       int

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, visitCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		VisitCount: visitCount,
		Days:       30,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:        time.Now,
	}
}

// WithSeed makes the generated data reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, 0x5eed))
	return s
}

// WithClock pins "now"; visits are spread over the Days before it.
func (s *Seeder) WithClock(now func() time.Time) *Seeder {
	s.now = now
	return s
}

type demoAccount struct {
	name    string
	domain  string
	people  []demoPerson
	depts   []string
	country string
}

type demoPerson struct {
	name  string
	title string
}

var demoAccounts = []demoAccount{
	{
		name:    "Acme Logistics",
		domain:  "acme-logistics.example",
		country: "US",
		depts:   []string{"operations", "finance"},
		people: []demoPerson{
			{"Dana Whitfield", "Chief Operating Officer"},
			{"Marco Ruiz", "VP of Supply Chain"},
			{"Ines Park", "Operations Analyst"},
		},
	},
	{
		name:    "Globex Health",
		domain:  "globex-health.example",
		country: "GB",
		depts:   []string{"it", "clinical"},
		people: []demoPerson{
			{"Priya Natarajan", "Director of IT"},
			{"Tom Becker", "Head of Clinical Systems"},
			{"Lea Martin", "Senior Engineer"},
		},
	},
	{
		name:    "Initech Retail",
		domain:  "initech-retail.example",
		country: "DE",
		depts:   []string{"marketing"},
		people: []demoPerson{
			{"Jonas Weber", "CMO"},
			{"Sofia Rossi", "Marketing Manager"},
		},
	},
}

// Run seeds every demo account and aggregates the generated history.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Seeding demo data...", slog.Int("visits", s.VisitCount), slog.Int("days", s.Days))

	var contactIDs []uint
	var campaignIDs []uint
	for _, account := range demoAccounts {
		campaign, ids, err := s.seedAccount(account)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", account.name, err)
		}
		campaignIDs = append(campaignIDs, campaign.ID)
		contactIDs = append(contactIDs, ids...)
	}

	if err := s.seedVisits(ctx, campaignIDs); err != nil {
		return err
	}
	if err := s.seedSequence(ctx, contactIDs); err != nil {
		return err
	}

	today := analytics.StartOfDay(s.now().UTC())
	aggregator := analytics.NewAggregator(s.DBManager, s.Logger, analytics.WithClock(s.now))
	result, err := aggregator.BackfillAggregation(ctx, today.AddDate(0, 0, -s.Days), today)
	if err != nil {
		return fmt.Errorf("failed to aggregate seeded visits: %w", err)
	}
	if result.Failed() {
		return fmt.Errorf("aggregation failed for %d units: %w", len(result.Failures), result.Failures[0])
	}

	scored, err := contacts.NewScorer(s.DBManager, s.Logger, s.now).RecomputeForAccount(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to score seeded contacts: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("campaigns", len(campaignIDs)),
		slog.Int("contacts", len(contactIDs)),
		slog.Int("stat_units", result.Processed),
		slog.Int("scored", scored.Processed),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedAccount(account demoAccount) (*campaigns.Campaign, []uint, error) {
	db := s.DBManager.GetConnection()

	company, err := contacts.CreateCompany(db, s.Logger, account.name, account.domain)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]uint, 0, len(account.people))
	for _, person := range account.people {
		contact := &contacts.Contact{
			CompanyID: company.ID,
			Name:      person.name,
			Email:     emailFor(person.name, account.domain),
			Title:     person.title,
		}
		s.fillEmailCounters(contact)
		if err := contacts.CreateContact(db, s.Logger, contact); err != nil {
			return nil, nil, err
		}
		ids = append(ids, contact.ID)
	}

	slug := strings.SplitN(account.domain, ".", 2)[0]
	campaign, err := campaigns.CreateCampaign(db, s.Logger, account.name+" ABM", slug, &company.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, key := range account.depts {
		if _, err := campaigns.CreateDepartment(db, s.Logger, campaign.ID, key, strings.ToUpper(key[:1])+key[1:]); err != nil {
			return nil, nil, err
		}
	}

	s.Logger.Debug("Seeded account", slog.String("company", account.name), slog.Uint64("campaign_id", uint64(campaign.ID)))
	return campaign, ids, nil
}

// fillEmailCounters gives a contact a plausible outbound history.
func (s *Seeder) fillEmailCounters(contact *contacts.Contact) {
	sent := s.rng.IntN(12)
	opened := 0
	if sent > 0 {
		opened = s.rng.IntN(sent + 1)
	}
	clicked := 0
	if opened > 0 {
		clicked = s.rng.IntN(opened + 1)
	}
	replied := 0
	if sent > 0 && s.rng.Float64() < 0.4 {
		replied = 1 + s.rng.IntN(2)
		repliedAt := s.now().UTC().Add(-time.Duration(s.rng.IntN(120*24)) * time.Hour)
		contact.LastEmailRepliedAt = &repliedAt
	}

	contact.TotalEmailsSent = sent
	contact.TotalEmailsOpened = opened
	contact.TotalEmailsClicked = clicked
	contact.TotalEmailsReplied = replied
}

// seedVisits records page views through the visit recorder with a moving
// clock, then sprinkles engagement signals on them.
func (s *Seeder) seedVisits(ctx context.Context, campaignIDs []uint) error {
	if len(campaignIDs) == 0 || s.VisitCount <= 0 {
		return nil
	}

	var at time.Time
	recorder := visits.NewRecorder(s.DBManager, s.Logger, visits.WithClock(func() time.Time { return at }))
	userAgents := getUserAgents()
	sources := getTrafficSources()
	end := s.now().UTC()

	for i := 0; i < s.VisitCount; i++ {
		at = end.Add(-time.Duration(s.rng.IntN(s.Days*24*60*60)) * time.Second)
		idx := s.rng.IntN(len(campaignIDs))
		campaignID := campaignIDs[idx]
		account := demoAccounts[idx]
		source := sources[s.rng.IntN(len(sources))]

		input := &visits.PageViewInput{
			CampaignID: campaignID,
			VisitorID:  fmt.Sprintf("visitor-%d", s.rng.IntN(s.VisitCount/2+1)),
			Request: attribution.RequestContext{
				UserAgent: userAgents[s.rng.IntN(len(userAgents))],
				Country:   account.country,
			},
			Attribution: source,
		}
		if s.rng.IntN(3) == 0 {
			input.DepartmentID = account.depts[s.rng.IntN(len(account.depts))]
		}

		visitID, err := recorder.RecordPageView(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to record visit: %w", err)
		}
		if err := s.engage(ctx, recorder, visitID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) engage(ctx context.Context, recorder *visits.Recorder, visitID uint) error {
	timeOnPage := 5 + s.rng.IntN(300)
	scrollDepth := s.rng.IntN(101)
	err := recorder.RecordEngagementMetrics(ctx, visitID, visits.EngagementMetrics{
		TimeOnPage:  &timeOnPage,
		ScrollDepth: &scrollDepth,
	})
	if err != nil {
		return err
	}

	if s.rng.Float64() < 0.15 {
		if err := recorder.RecordCtaClick(ctx, visitID); err != nil {
			return err
		}
	}
	if s.rng.Float64() < 0.05 {
		if err := recorder.RecordFormSubmission(ctx, visitID); err != nil {
			return err
		}
	}
	if s.rng.Float64() < 0.1 {
		for n := 1 + s.rng.IntN(4); n > 0; n-- {
			if err := recorder.IncrementChatMessageCount(ctx, visitID); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedSequence creates a three-touch sequence and enrolls every contact.
func (s *Seeder) seedSequence(ctx context.Context, contactIDs []uint) error {
	db := s.DBManager.GetConnection()
	sequence, err := sequences.CreateSequence(db, s.Logger, "Executive intro", []sequences.SequenceStep{
		{DayOffset: 0, Channel: sequences.ChannelEmail, Role: "Peer introduction", CTAType: "reply", PromptTemplate: "Open with the account's recent visits."},
		{DayOffset: 3, Channel: sequences.ChannelLinkedIn, Role: "Social follow-up", CTAType: "connect"},
		{DayOffset: 7, Channel: sequences.ChannelEmail, Role: "Case study", CTAType: "meeting", PromptTemplate: "Share the most viewed case study."},
	})
	if err != nil {
		return err
	}

	engine := sequences.NewEngine(s.DBManager, s.Logger, sequences.WithClock(s.now))
	for _, contactID := range contactIDs {
		if _, err := engine.Enroll(ctx, contactID, sequence.ID); err != nil {
			return fmt.Errorf("failed to enroll contact %d: %w", contactID, err)
		}
	}
	return nil
}

func emailFor(name, domain string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@" + domain
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
	}
}

func strPtr(s string) *string { return &s }

// getTrafficSources covers each traffic bucket the aggregator counts.
func getTrafficSources() []attribution.Attribution {
	return []attribution.Attribution{
		{},
		{UTMSource: strPtr("newsletter"), UTMMedium: strPtr("email")},
		{UTMSource: strPtr("linkedin"), UTMMedium: strPtr("social")},
		{UTMSource: strPtr("google"), UTMMedium: strPtr("cpc")},
		{Referrer: strPtr("https://www.google.com/")},
		{Referrer: strPtr("https://www.linkedin.com/feed/")},
		{Referrer: strPtr("https://news.ycombinator.com/")},
	}
}
