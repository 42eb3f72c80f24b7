// main.go - Admin control tool for accountpulse
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"accountpulse/internal"
	"accountpulse/internal/analytics"
	"accountpulse/internal/contacts"
	"accountpulse/internal/seeder"
	"accountpulse/internal/sequences"
	"accountpulse/internal/visits"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	dateLayout             = "2006-01-02"
)

var errNoApp = errors.New("app initialization failed")

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&AggregateDayCommand{},
	&AggregateYesterdayCommand{},
	&BackfillCommand{},
	&RescoreCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if _, isHelp := cmd.(*HelpCommand); !isHelp {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
		}
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// AggregateDayCommand recomputes one campaign day, or every campaign for a day
type AggregateDayCommand struct{}

func (c *AggregateDayCommand) Name() string { return "aggregate-day" }
func (c *AggregateDayCommand) Description() string {
	return "Aggregates a day: -date YYYY-MM-DD [-campaign ID] [-department KEY]"
}

func (c *AggregateDayCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	date := fs.String("date", "", "UTC day to aggregate (YYYY-MM-DD)")
	campaignID := fs.Uint("campaign", 0, "campaign ID (all campaigns when 0)")
	department := fs.String("department", analytics.OverallDepartment, "department key (campaign-wide when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	day, err := parseDay(*date)
	if err != nil {
		return err
	}
	if app == nil {
		return errNoApp
	}

	aggregator := newAggregator(app)
	if *campaignID == 0 {
		result, err := aggregator.AggregateAllCampaignsForDate(ctx, day)
		if err != nil {
			return err
		}
		return reportRun(result)
	}

	stat, err := aggregator.AggregateCampaignDay(ctx, uint(*campaignID), day, *department)
	if err != nil {
		return err
	}
	log.Printf("Campaign %d on %s: %d visits, %d unique visitors, bounce rate %d%%",
		stat.CampaignID, day.Format(dateLayout), stat.TotalVisits, stat.UniqueVisitors, stat.BounceRate)
	return nil
}

// AggregateYesterdayCommand runs the nightly aggregation by hand
type AggregateYesterdayCommand struct{}

func (c *AggregateYesterdayCommand) Name() string { return "aggregate-yesterday" }
func (c *AggregateYesterdayCommand) Description() string {
	return "Aggregates the previous UTC day for every campaign"
}

func (c *AggregateYesterdayCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}
	result, err := newAggregator(app).AggregateYesterday(ctx)
	if err != nil {
		return err
	}
	return reportRun(result)
}

// BackfillCommand aggregates an inclusive range of days
type BackfillCommand struct{}

func (c *BackfillCommand) Name() string { return "backfill" }
func (c *BackfillCommand) Description() string {
	return "Aggregates every campaign for each day: -from YYYY-MM-DD -to YYYY-MM-DD"
}

func (c *BackfillCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	fromFlag := fs.String("from", "", "first UTC day (YYYY-MM-DD)")
	toFlag := fs.String("to", "", "last UTC day, inclusive (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	from, err := parseDay(*fromFlag)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := parseDay(*toFlag)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	if app == nil {
		return errNoApp
	}

	result, err := newAggregator(app).BackfillAggregation(ctx, from, to)
	if err != nil {
		return err
	}
	return reportRun(result)
}

// RescoreCommand recomputes engagement scores
type RescoreCommand struct{}

func (c *RescoreCommand) Name() string { return "rescore" }
func (c *RescoreCommand) Description() string {
	return "Recomputes engagement scores: [-company ID] (all contacts when omitted)"
}

func (c *RescoreCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	companyID := fs.Uint("company", 0, "company ID to rescore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if app == nil {
		return errNoApp
	}

	var scope *uint
	if *companyID > 0 {
		id := uint(*companyID)
		scope = &id
	}

	result, err := contacts.NewScorer(app.DBManager, app.Logger, nil).RecomputeForAccount(ctx, scope)
	if err != nil {
		return err
	}
	app.Metrics.AddContactsRescored(result.Processed, len(result.Failures))

	log.Printf("Rescored %d contacts", result.Processed)
	for _, failure := range result.Failures {
		log.Printf("- contact %d: %v", failure.ContactID, failure.Err)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d contacts failed to rescore", len(result.Failures))
	}
	return nil
}

// SeedCommand populates the DB with demo data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with demo accounts and visits" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	visitCount := fs.Int("visits", 2000, "number of visits to generate")
	days := fs.Int("days", 30, "spread visits over this many days")
	force := fs.Bool("force", false, "allow seeding a production database without a prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if app == nil {
		return errNoApp
	}

	if app.Config.IsProduction() && !*force {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("refusing to seed a production database non-interactively (use -force)")
		}
		if !confirm(os.Stdin, os.Stdout, "Seed demo data into the production database?") {
			return errors.New("seeding cancelled")
		}
	}

	se := seeder.NewSeeder(app.DBManager, app.Logger, *visitCount)
	if *days > 0 {
		se.Days = *days
	}
	return se.Run(ctx)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}

	db := app.DBManager.GetConnection().WithContext(ctx)

	var visitCount, contactCount, activeEnrollments int64
	if err := db.Model(&visits.Visit{}).Count(&visitCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&contacts.Contact{}).Count(&contactCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&sequences.Enrollment{}).Where("status = ?", sequences.StatusActive).Count(&activeEnrollments).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Visits: %d", visitCount)
	log.Printf("- Contacts: %d", contactCount)
	log.Printf("- Active enrollments: %d", activeEnrollments)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// Helper functions

func newAggregator(app *internal.Application) *analytics.Aggregator {
	return analytics.NewAggregator(app.DBManager, app.Logger,
		analytics.WithWorkers(app.Config.GetAggregationWorkers()))
}

func reportRun(result *analytics.RunResult) error {
	log.Printf("Aggregated %d campaign days across %d campaigns", result.Processed, len(result.CampaignIDs))
	for _, failure := range result.Failures {
		log.Printf("- campaign %d on %s: %v", failure.CampaignID, failure.Date.Format(dateLayout), failure.Err)
	}
	if result.Failed() {
		return fmt.Errorf("%d campaign days failed", len(result.Failures))
	}
	return nil
}

// confirm asks a yes/no question and defaults to no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("date is required (YYYY-MM-DD)")
	}
	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return day, nil
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: pulsectl [command] [args...]")
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
