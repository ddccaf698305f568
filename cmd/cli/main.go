package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/spendsense/spendsense/internal/catalog"
	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/export"
	"github.com/spendsense/spendsense/internal/ingest"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/pipeline"
	"github.com/spendsense/spendsense/internal/recommend"
	"github.com/spendsense/spendsense/internal/store"

	_ "github.com/spendsense/spendsense/internal/store/bigquery"
	_ "github.com/spendsense/spendsense/internal/store/sqlite"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		runSeed(log)
	case "run":
		runPipeline(log)
	case "export":
		runExport(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("SpendSense CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  seed      Generate a synthetic ledger and persist it")
	fmt.Println("  run       Run the signal, persona, and recommendation pipeline")
	fmt.Println("  export    Write a JSON snapshot of derived state to Cloud Storage")
	fmt.Println("  inspect   Inspect one user's personas, signals, and recommendations")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openStore(ctx context.Context, log zerolog.Logger) store.Store {
	st, err := store.Open(ctx, store.FromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	return st
}

func runSeed(log zerolog.Logger) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	users := fs.Int("users", ingest.DefaultUsers, "Number of users to generate")
	days := fs.Int("days", ingest.DefaultDays, "Days of transaction history")
	seed := fs.Uint64("seed", ingest.DefaultSeed, "Random seed (same seed, same ledger)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, log)
	defer st.Close()

	log.Info().Int("users", *users).Int("days", *days).Uint64("seed", *seed).Msg("Generating synthetic ledger")

	ds := ingest.Generate(ingest.Config{Users: *users, Days: *days, Seed: *seed})
	if err := ds.Persist(ctx, st); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}

	fmt.Printf("Seeded %d users, %d accounts, %d transactions.\n",
		len(ds.Users), len(ds.Accounts), len(ds.Transactions))
}

func runPipeline(log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	user := fs.String("user", "", "Restrict the run to one user ID")
	window := fs.String("window", "", "Restrict the run to one window (30d or 180d)")
	bucket := fs.String("archive-bucket", os.Getenv("SPENDSENSE_ARCHIVE_BUCKET"), "GCS bucket for run archives (or set SPENDSENSE_ARCHIVE_BUCKET env)")
	fs.Parse(os.Args[2:])

	var windows []domain.TimeWindow
	if *window != "" {
		w, err := domain.ParseTimeWindow(*window)
		if err != nil {
			log.Fatal().Err(err).Msg("Error: invalid --window, expected 30d or 180d")
		}
		windows = append(windows, w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, log)
	defer st.Close()

	cat, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load content catalog")
	}
	runner := pipeline.NewRunner(st, recommend.NewEngine(cat))

	if *bucket != "" {
		writer, err := export.NewGCSWriter(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive writer")
		}
		defer writer.Close()
		runner.Archive = export.NewRunArchiver(writer)
	}

	log.Info().Str("user", *user).Str("window", *window).Msg("Starting pipeline run")

	var report pipeline.Report
	if *user != "" {
		report, err = runner.RunUsers(ctx, []string{*user}, windows...)
	} else {
		report, err = runner.Run(ctx, windows...)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline run failed")
	}

	fmt.Println("\n=== Pipeline Report ===")
	fmt.Printf("Users:           %d\n", report.Users)
	fmt.Printf("Windows:         %v\n", report.Windows)
	fmt.Printf("Signals:         %d\n", report.SignalsWritten)
	fmt.Printf("Personas:        %d\n", report.PersonasWritten)
	fmt.Printf("Recommendations: %d (%d suppressed)\n", report.RecommendationsWritten, report.Suppressed)
	fmt.Printf("Duration:        %s\n", report.Duration)
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	bucket := fs.String("bucket", os.Getenv("SPENDSENSE_ARCHIVE_BUCKET"), "GCS bucket for snapshots (or set SPENDSENSE_ARCHIVE_BUCKET env)")
	fs.Parse(os.Args[2:])

	if *bucket == "" {
		log.Fatal().Msg("Error: --bucket is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, log)
	defer st.Close()

	writer, err := export.NewGCSWriter(ctx, *bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create snapshot writer")
	}
	defer writer.Close()

	object, err := export.NewExporter(st, writer).Export(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Exported snapshot to gs://%s/%s\n", *bucket, object)
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	userID := fs.String("user", "", "User ID to inspect")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, log)
	defer st.Close()

	user, err := st.GetUser(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("User not found")
	}

	fmt.Println("\n=== User ===")
	fmt.Printf("ID:      %s\n", user.UserID)
	fmt.Printf("Name:    %s\n", user.Name)
	fmt.Printf("Flagged: %t\n", user.Flagged)
	fmt.Printf("Created: %s\n", user.CreatedAt.Format("2006-01-02"))

	fmt.Println("\n=== Personas ===")
	for _, w := range domain.Windows {
		assignment, err := st.GetAssignment(ctx, *userID, w)
		switch {
		case err == nil:
			fmt.Printf("%-5s %s (assigned %s)\n", w, assignment.Persona, assignment.AssignedAt.Format("2006-01-02"))
			for _, c := range assignment.CriteriaMet {
				fmt.Printf("      - %s\n", c)
			}
		case errors.Is(err, store.ErrNotFound):
			fmt.Printf("%-5s (none)\n", w)
		default:
			log.Fatal().Err(err).Msg("Failed to load assignment")
		}
	}

	signals, err := st.ListSignals(ctx, store.Filter{UserID: *userID})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list signals")
	}
	fmt.Printf("\n=== Signals (%d) ===\n", len(signals))
	for _, sig := range signals {
		fmt.Printf("%-5s %-20s computed %s\n", sig.TimeWindow, sig.SignalType, sig.ComputedAt.Format("2006-01-02 15:04"))
	}

	recs, err := st.ListRecommendations(ctx, store.Filter{UserID: *userID})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list recommendations")
	}
	fmt.Printf("\n=== Recommendations (%d) ===\n", len(recs))
	for i, rec := range recs {
		fmt.Printf("\n%d. %s\n", i+1, rec.Title)
		fmt.Printf("   ID:     %s\n", rec.RecommendationID)
		fmt.Printf("   Type:   %s\n", rec.Type)
		fmt.Printf("   Shown:  %s\n", rec.ShownAt.Format("2006-01-02 15:04"))
		if rec.Overridden {
			fmt.Printf("   Overridden by %s: %s\n", rec.OverriddenBy, rec.OverrideReason)
		}
	}
	fmt.Println()
}
