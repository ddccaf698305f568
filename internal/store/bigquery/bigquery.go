// Package bigquery implements the BigQuery-backed store used for shared
// deployments. Rows land through streaming inserts; upserts first run a DML
// delete over the affected keys. BigQuery cannot delete rows that are still
// in the streaming buffer, so re-running a refresh immediately after a write
// can fail until the buffer drains. The analytics queries dedup with
// ROW_NUMBER so readers stay correct either way.
//
// The dataset and its tables are provisioned out of band; this package never
// issues DDL.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/spendsense/spendsense/internal/store"
)

const (
	tableUsers           = "users"
	tableAccounts        = "accounts"
	tableTransactions    = "transactions"
	tableSignals         = "computed_features"
	tableAssignments     = "persona_assignments"
	tableRecommendations = "recommendations"
	tableChatLogs        = "chat_logs"
	tableActions         = "operator_actions"
)

func init() {
	store.Register(store.BackendBigQuery, func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg.ProjectID, cfg.Dataset)
	})
}

// Store implements store.Store on top of a BigQuery dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	dataset   string
}

var _ store.Store = (*Store)(nil)

// Open connects to BigQuery. The dataset must already exist.
func Open(ctx context.Context, projectID, dataset string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("Open: project ID is required for the bigquery backend")
	}
	if dataset == "" {
		dataset = "spendsense"
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("Open: bigquery client: %w", err)
	}
	return &Store{client: client, projectID: projectID, dataset: dataset}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// table returns a fully qualified table handle so inserts work regardless of
// which project the credentials default to.
func (s *Store) table(name string) *bigquery.Table {
	return s.client.DatasetInProject(s.projectID, s.dataset).Table(name)
}

// tableSQL is the backtick-quoted name used inside query text.
func (s *Store) tableSQL(name string) string {
	return "`" + s.projectID + "." + s.dataset + "." + name + "`"
}

// runDML executes a statement and waits for the job to finish.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
