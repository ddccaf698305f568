// Package export ships stored run output to an object store as JSON
// snapshots, one object per export.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
	"github.com/spendsense/spendsense/internal/logger"
	"github.com/spendsense/spendsense/internal/pipeline"
	"github.com/spendsense/spendsense/internal/store"
)

// objectTimeFormat names objects by UTC capture time.
const objectTimeFormat = "20060102T150405Z"

// ObjectWriter writes one named object to a bucket. The production
// implementation targets Cloud Storage; tests substitute an in-memory one.
type ObjectWriter interface {
	WriteObject(ctx context.Context, name string, data []byte) error
}

// UserSnapshot is one user's slice of the stored state: signals, persona
// assignments, and recommendations exactly as persisted.
type UserSnapshot struct {
	UserID          string                     `json:"user_id"`
	Signals         []domain.Signal            `json:"signals"`
	Assignments     []domain.PersonaAssignment `json:"personas"`
	Recommendations []domain.Recommendation    `json:"recommendations"`
}

// Snapshot is a full export: every known user at one capture time.
type Snapshot struct {
	TakenAt time.Time      `json:"taken_at"`
	Users   []UserSnapshot `json:"users"`
}

// Exporter reads the repository and writes snapshots/<ts>.json objects.
type Exporter struct {
	repo   store.Repository
	writer ObjectWriter

	now func() time.Time
}

// NewExporter returns an Exporter over the given repository and writer.
func NewExporter(repo store.Repository, writer ObjectWriter) *Exporter {
	return &Exporter{repo: repo, writer: writer, now: time.Now}
}

// Export captures every user's stored signals, assignments, and
// recommendations and uploads them as one JSON object. It returns the
// object name written.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	takenAt := e.now().UTC()

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("Export: listing users: %w", err)
	}

	snap := Snapshot{TakenAt: takenAt, Users: []UserSnapshot{}}
	for _, u := range users {
		us := UserSnapshot{UserID: u.UserID}

		us.Signals, err = e.repo.ListSignals(ctx, store.Filter{UserID: u.UserID})
		if err != nil {
			return "", fmt.Errorf("Export: listing signals for %s: %w", u.UserID, err)
		}
		us.Assignments, err = e.repo.ListAssignments(ctx, store.Filter{UserID: u.UserID})
		if err != nil {
			return "", fmt.Errorf("Export: listing assignments for %s: %w", u.UserID, err)
		}
		us.Recommendations, err = e.repo.ListRecommendations(ctx, store.Filter{UserID: u.UserID})
		if err != nil {
			return "", fmt.Errorf("Export: listing recommendations for %s: %w", u.UserID, err)
		}

		snap.Users = append(snap.Users, us)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Export: encoding snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshots/%s.json", takenAt.Format(objectTimeFormat))
	if err := e.writer.WriteObject(ctx, name, data); err != nil {
		return "", fmt.Errorf("Export: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("object", name).
		Int("users", len(snap.Users)).
		Int("bytes", len(data)).
		Msg("snapshot exported")
	return name, nil
}

// RunArchiver persists finished pipeline runs under runs/<ts>.json. It is
// the production implementation of the pipeline's optional archive hook.
type RunArchiver struct {
	writer ObjectWriter

	now func() time.Time
}

// NewRunArchiver returns a RunArchiver over the given writer.
func NewRunArchiver(writer ObjectWriter) *RunArchiver {
	return &RunArchiver{writer: writer, now: time.Now}
}

// ArchiveRun implements pipeline.Archiver.
func (a *RunArchiver) ArchiveRun(ctx context.Context, report pipeline.Report, outputs pipeline.Outputs) error {
	payload := struct {
		Report  pipeline.Report  `json:"report"`
		Outputs pipeline.Outputs `json:"outputs"`
	}{report, outputs}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("ArchiveRun: encoding run: %w", err)
	}

	name := fmt.Sprintf("runs/%s.json", a.now().UTC().Format(objectTimeFormat))
	if err := a.writer.WriteObject(ctx, name, data); err != nil {
		return fmt.Errorf("ArchiveRun: %w", err)
	}
	return nil
}

var _ pipeline.Archiver = (*RunArchiver)(nil)
