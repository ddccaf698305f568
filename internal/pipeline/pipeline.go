// Package pipeline orchestrates the run from raw ledger rows to persisted
// recommendations: signal detection, persona classification, recommendation
// matching, decision traces. All reads happen at run start and all writes
// land in batched flushes at the end; the detectors, classifier, and matcher
// in between stay pure. The batch path and the per-user path must produce
// identical stored output for the same ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/persona"
	"github.com/spendsense/spendsense/internal/recommend"
	"github.com/spendsense/spendsense/internal/signals"
	"github.com/spendsense/spendsense/internal/store"
)

// defaultConcurrency bounds the per-user fan-out in RunUsers.
const defaultConcurrency = 8

// Report summarizes one finished run.
type Report struct {
	Users                  int                 `json:"users"`
	Windows                []domain.TimeWindow `json:"windows"`
	SignalsWritten         int                 `json:"signals_written"`
	PersonasWritten        int                 `json:"personas_written"`
	RecommendationsWritten int                 `json:"recommendations_written"`
	Suppressed             int                 `json:"suppressed"`
	StartedAt              time.Time           `json:"started_at"`
	Duration               time.Duration       `json:"duration"`
}

// Outputs carries every row a run wrote, windows outermost and users in
// processing order, so an archived run is self-contained.
type Outputs struct {
	Signals         []domain.Signal            `json:"signals"`
	Assignments     []domain.PersonaAssignment `json:"personas"`
	Recommendations []domain.Recommendation    `json:"recommendations"`
}

func (o *Outputs) add(res userResult) {
	o.Signals = append(o.Signals, res.signals...)
	o.Assignments = append(o.Assignments, res.assignment)
	o.Recommendations = append(o.Recommendations, res.recs...)
}

// Archiver receives finished runs for storage outside the primary store.
// Archival is best-effort: a failure is logged and does not fail the run.
type Archiver interface {
	ArchiveRun(ctx context.Context, report Report, outputs Outputs) error
}

// Runner wires a repository and the matching engine into an executable
// pipeline.
type Runner struct {
	repo   store.Repository
	engine *recommend.Engine

	// Archive, when non-nil, receives the report and outputs of every
	// completed run.
	Archive Archiver

	now         func() time.Time
	concurrency int
}

// NewRunner builds a runner over the given repository and engine.
func NewRunner(repo store.Repository, engine *recommend.Engine) *Runner {
	return &Runner{
		repo:        repo,
		engine:      engine,
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
}

// Run executes the batch path for every known user: one read of the full
// ledger, grouped signal computation and classification, per-user matching,
// then one batched write per table. Passing no windows runs every supported
// window.
func (r *Runner) Run(ctx context.Context, windows ...domain.TimeWindow) (Report, error) {
	log := logger.FromContext(ctx)
	started := r.now()

	windows, err := resolveWindows(windows)
	if err != nil {
		return Report{}, fmt.Errorf("Run: %w", err)
	}

	users, err := r.repo.ListUsers(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("Run: listing users: %w", err)
	}
	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.UserID
	}

	txns, err := r.repo.ListTransactions(ctx, store.Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("Run: listing transactions: %w", err)
	}
	accounts, err := r.repo.ListAccounts(ctx, store.Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("Run: listing accounts: %w", err)
	}

	log.Info().
		Int("users", len(userIDs)).
		Int("transactions", len(txns)).
		Int("accounts", len(accounts)).
		Strs("windows", windowStrings(windows)).
		Msg("pipeline run started")

	var out Outputs
	suppressed := 0
	for _, window := range windows {
		bundles := signals.ComputeBatch(userIDs, txns, accounts, window, started)
		assignments := persona.ClassifyBatch(bundles, started)

		for _, userID := range userIDs {
			if err := ctx.Err(); err != nil {
				return Report{}, fmt.Errorf("Run: window %s: %w", window, err)
			}
			res, err := r.matchUser(ctx, bundles[userID], assignments[userID], started)
			if err != nil {
				return Report{}, fmt.Errorf("Run: user %s window %s: %w", userID, window, err)
			}
			out.add(res)
			suppressed += res.suppressed
		}
	}

	if err := r.flush(ctx, out); err != nil {
		return Report{}, fmt.Errorf("Run: %w", err)
	}

	report := r.buildReport(len(userIDs), windows, out, suppressed, started)
	r.archiveRun(ctx, report, out)
	logReport(log, report)
	return report, nil
}

// RunUsers executes the per-user path for an explicit set of users: each user
// is loaded, computed, classified, and matched independently under a bounded
// errgroup, then every result is flushed in batch order (windows outermost).
// Any unknown user fails the whole run before anything is written.
func (r *Runner) RunUsers(ctx context.Context, userIDs []string, windows ...domain.TimeWindow) (Report, error) {
	log := logger.FromContext(ctx)
	started := r.now()

	windows, err := resolveWindows(windows)
	if err != nil {
		return Report{}, fmt.Errorf("RunUsers: %w", err)
	}
	userIDs = dedupe(userIDs)

	log.Info().
		Int("users", len(userIDs)).
		Strs("windows", windowStrings(windows)).
		Msg("per-user pipeline run started")

	results := make([]userResult, len(userIDs)*len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			res, err := r.runUser(gctx, userID, windows, started)
			if err != nil {
				return err
			}
			copy(results[i*len(windows):(i+1)*len(windows)], res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("RunUsers: %w", err)
	}

	var out Outputs
	suppressed := 0
	for j := range windows {
		for i := range userIDs {
			res := results[i*len(windows)+j]
			out.add(res)
			suppressed += res.suppressed
		}
	}

	if err := r.flush(ctx, out); err != nil {
		return Report{}, fmt.Errorf("RunUsers: %w", err)
	}

	report := r.buildReport(len(userIDs), windows, out, suppressed, started)
	r.archiveRun(ctx, report, out)
	logReport(log, report)
	return report, nil
}

// userResult is one user's rows for one window.
type userResult struct {
	signals    []domain.Signal
	assignment domain.PersonaAssignment
	recs       []domain.Recommendation
	suppressed int
}

// runUser loads one user's ledger and produces rows for every window.
func (r *Runner) runUser(ctx context.Context, userID string, windows []domain.TimeWindow, asOf time.Time) ([]userResult, error) {
	if _, err := r.repo.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("runUser: user %s: %w", userID, err)
	}
	txns, err := r.repo.ListTransactions(ctx, store.Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("runUser: user %s: listing transactions: %w", userID, err)
	}
	accounts, err := r.repo.ListAccounts(ctx, store.Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("runUser: user %s: listing accounts: %w", userID, err)
	}

	out := make([]userResult, 0, len(windows))
	for _, window := range windows {
		bundle := signals.Compute(userID, txns, accounts, window, asOf)
		assignment := persona.Classify(bundle, asOf)
		res, err := r.matchUser(ctx, bundle, assignment, asOf)
		if err != nil {
			return nil, fmt.Errorf("runUser: user %s window %s: %w", userID, window, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// matchUser turns one user's bundle and assignment into persistable rows. A
// persona with no catalog coverage loses only its recommendations: the
// signals and the assignment survive, and the miss counts as suppressed.
func (r *Runner) matchUser(ctx context.Context, bundle domain.SignalBundle, assignment domain.PersonaAssignment, computedAt time.Time) (userResult, error) {
	records, err := signals.Records(bundle, computedAt)
	if err != nil {
		return userResult{}, fmt.Errorf("matchUser: %w", err)
	}

	recs, suppressed, err := r.engine.Generate(ctx, assignment, bundle)
	if err != nil {
		if !errors.Is(err, recommend.ErrContentNotFound) {
			return userResult{}, fmt.Errorf("matchUser: %w", err)
		}
		log := logger.FromContext(ctx)
		log.Warn().
			Str("user_id", assignment.UserID).
			Str("time_window", string(assignment.TimeWindow)).
			Str("persona", string(assignment.Persona)).
			Msg("no education content for persona, skipping recommendations")
		recs = nil
		suppressed++
	}

	return userResult{
		signals:    records,
		assignment: assignment,
		recs:       recs,
		suppressed: suppressed,
	}, nil
}

// flush writes a run's accumulated rows, signals before assignments before
// recommendations, so a failure part way through never leaves a
// recommendation referencing signals that were not stored.
func (r *Runner) flush(ctx context.Context, out Outputs) error {
	if err := r.repo.UpsertSignals(ctx, out.Signals); err != nil {
		return fmt.Errorf("flush: upserting signals: %w", err)
	}
	if err := r.repo.UpsertAssignments(ctx, out.Assignments); err != nil {
		return fmt.Errorf("flush: upserting assignments: %w", err)
	}
	if err := r.repo.InsertRecommendations(ctx, out.Recommendations); err != nil {
		return fmt.Errorf("flush: inserting recommendations: %w", err)
	}
	return nil
}

func (r *Runner) buildReport(users int, windows []domain.TimeWindow, out Outputs, suppressed int, started time.Time) Report {
	return Report{
		Users:                  users,
		Windows:                windows,
		SignalsWritten:         len(out.Signals),
		PersonasWritten:        len(out.Assignments),
		RecommendationsWritten: len(out.Recommendations),
		Suppressed:             suppressed,
		StartedAt:              started,
		Duration:               r.now().Sub(started),
	}
}

// archiveRun hands the finished run to the configured archiver.
func (r *Runner) archiveRun(ctx context.Context, report Report, out Outputs) {
	if r.Archive == nil {
		return
	}
	if err := r.Archive.ArchiveRun(ctx, report, out); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("archiving pipeline run failed")
	}
}

func logReport(log zerolog.Logger, report Report) {
	log.Info().
		Int("users", report.Users).
		Int("signals_written", report.SignalsWritten).
		Int("personas_written", report.PersonasWritten).
		Int("recommendations_written", report.RecommendationsWritten).
		Int("suppressed", report.Suppressed).
		Dur("duration", report.Duration).
		Msg("pipeline run finished")
}

// resolveWindows defaults to every supported window and rejects windows the
// detectors cannot anchor.
func resolveWindows(windows []domain.TimeWindow) ([]domain.TimeWindow, error) {
	if len(windows) == 0 {
		return domain.Windows, nil
	}
	for _, w := range windows {
		if w.Days() == 0 {
			return nil, fmt.Errorf("unsupported time window %q", w)
		}
	}
	return windows, nil
}

func windowStrings(windows []domain.TimeWindow) []string {
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = string(w)
	}
	return out
}

// dedupe drops repeated user IDs, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
