// internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

// ErrRunNotFound is returned by GetRun when no run with the id exists.
var ErrRunNotFound = errors.New("workflow run not found")

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// Store persists finished workflow runs in PostgreSQL. It is an optional
// sink: the scheduler behaves identically without one.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunStore = (*Store)(nil)

// New creates a store over an existing pool and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// NewFromConfig connects using the configured DSN. A disabled store returns
// (nil, nil); callers treat a nil store as persistence off.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const (
	sqlUpsertRun = `
        INSERT INTO workflow_runs (workflow_id, success, steps_total, completed_steps, duration_ms, definition, stored_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (workflow_id) DO UPDATE SET
            success = EXCLUDED.success,
            steps_total = EXCLUDED.steps_total,
            completed_steps = EXCLUDED.completed_steps,
            duration_ms = EXCLUDED.duration_ms,
            definition = EXCLUDED.definition,
            stored_at = EXCLUDED.stored_at;
    `
	sqlDeleteStepResults = `DELETE FROM workflow_step_results WHERE workflow_id = $1;`
	sqlDeleteRunErrors   = `DELETE FROM workflow_run_errors WHERE workflow_id = $1;`
	sqlInsertRunError    = `
        INSERT INTO workflow_run_errors (workflow_id, position, message)
        VALUES ($1, $2, $3);
    `
)

var stepResultColumns = []string{
	"id", "workflow_id", "step", "position", "data_type", "content", "metadata", "created_at",
}

// SaveRun writes one finished run and its per-step results in a single
// transaction. Saving the same workflow id again replaces the stored run.
func (s *Store) SaveRun(ctx context.Context, wf *schemas.AgentWorkflow, result *schemas.WorkflowResult) error {
	if wf == nil || result == nil {
		return fmt.Errorf("cannot save a nil workflow or result")
	}

	definition, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to encode workflow definition: %w", err)
	}
	completedSteps, err := json.Marshal(result.StepsCompleted)
	if err != nil {
		return fmt.Errorf("failed to encode completed steps: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed; that is
		// the expected no-op, not a failure.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistRunRow(ctx, tx, wf, result, definition, completedSteps); err != nil {
		return err
	}
	if err := s.persistStepResults(ctx, tx, result); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistRunRow batches the run upsert, the cleanup of any previous rows for
// this id, and the error message inserts.
func (s *Store) persistRunRow(ctx context.Context, tx pgx.Tx, wf *schemas.AgentWorkflow, result *schemas.WorkflowResult, definition, completedSteps json.RawMessage) error {
	batch := &pgx.Batch{}
	batch.Queue(sqlUpsertRun,
		result.WorkflowID,
		result.Success,
		len(wf.Steps),
		completedSteps,
		result.TotalExecutionTime.Milliseconds(),
		definition,
		time.Now().UTC(),
	)
	batch.Queue(sqlDeleteStepResults, result.WorkflowID)
	batch.Queue(sqlDeleteRunErrors, result.WorkflowID)
	for i, message := range result.ErrorMessages {
		batch.Queue(sqlInsertRunError, result.WorkflowID, i, message)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute run batch statement %d: %w", i, err)
		}
	}
	return nil
}

// persistStepResults bulk-inserts every completed step's envelopes.
func (s *Store) persistStepResults(ctx context.Context, tx pgx.Tx, result *schemas.WorkflowResult) error {
	var rows [][]any
	for _, step := range result.StepsCompleted {
		for position, envelope := range result.Results[step] {
			content, err := json.Marshal(envelope.Content)
			if err != nil {
				return fmt.Errorf("failed to encode content for envelope %s: %w", envelope.ID, err)
			}
			var metadata json.RawMessage
			if envelope.Metadata != nil {
				metadata, err = json.Marshal(envelope.Metadata)
				if err != nil {
					return fmt.Errorf("failed to encode metadata for envelope %s: %w", envelope.ID, err)
				}
			}
			rows = append(rows, []any{
				envelope.ID,
				result.WorkflowID,
				string(step),
				position,
				string(envelope.Type),
				json.RawMessage(content),
				metadata,
				envelope.CreatedAt.UTC(),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"workflow_step_results"},
		stepResultColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy step results: %w", err)
	}
	if int(copied) != len(rows) {
		return fmt.Errorf("mismatch in copied step result count: expected %d, got %d", len(rows), copied)
	}
	return nil
}

const (
	sqlSelectRun = `
        SELECT success, completed_steps, duration_ms
        FROM workflow_runs
        WHERE workflow_id = $1;
    `
	sqlSelectRunErrors = `
        SELECT message
        FROM workflow_run_errors
        WHERE workflow_id = $1
        ORDER BY position ASC;
    `
	sqlSelectStepResults = `
        SELECT id, step, data_type, content, metadata, created_at
        FROM workflow_step_results
        WHERE workflow_id = $1
        ORDER BY step ASC, position ASC;
    `
	sqlSelectRunSummaries = `
        SELECT workflow_id, success, steps_total, jsonb_array_length(completed_steps), duration_ms, stored_at
        FROM workflow_runs
        ORDER BY stored_at DESC
        LIMIT $1;
    `
)

// GetRun loads one persisted run by workflow id.
func (s *Store) GetRun(ctx context.Context, workflowID string) (*schemas.WorkflowResult, error) {
	result := schemas.NewWorkflowResult(workflowID)

	var (
		completedRaw []byte
		durationMS   int64
	)
	rows, err := s.pool.Query(ctx, sqlSelectRun, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if !rows.Next() {
		err := rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read run row: %w", err)
		}
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, workflowID)
	}
	if err := rows.Scan(&result.Success, &completedRaw, &durationMS); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}
	rows.Close()

	if err := json.Unmarshal(completedRaw, &result.StepsCompleted); err != nil {
		return nil, fmt.Errorf("failed to decode completed steps: %w", err)
	}
	result.TotalExecutionTime = time.Duration(durationMS) * time.Millisecond

	if result.ErrorMessages, err = s.loadRunErrors(ctx, workflowID); err != nil {
		return nil, err
	}
	if err := s.loadStepResults(ctx, workflowID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) loadRunErrors(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRunErrors, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run errors: %w", err)
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var message string
		if err := rows.Scan(&message); err != nil {
			return nil, fmt.Errorf("failed to scan run error row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during run error iteration: %w", err)
	}
	return messages, nil
}

func (s *Store) loadStepResults(ctx context.Context, workflowID string, result *schemas.WorkflowResult) error {
	rows, err := s.pool.Query(ctx, sqlSelectStepResults, workflowID)
	if err != nil {
		return fmt.Errorf("failed to query step results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			envelope    schemas.PatentData
			step        string
			dataType    string
			contentRaw  []byte
			metadataRaw []byte
		)
		if err := rows.Scan(&envelope.ID, &step, &dataType, &contentRaw, &metadataRaw, &envelope.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan step result row: %w", err)
		}
		envelope.Type = schemas.PatentType(dataType)
		if len(contentRaw) > 0 {
			if err := json.Unmarshal(contentRaw, &envelope.Content); err != nil {
				return fmt.Errorf("failed to decode content for envelope %s: %w", envelope.ID, err)
			}
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &envelope.Metadata); err != nil {
				return fmt.Errorf("failed to decode metadata for envelope %s: %w", envelope.ID, err)
			}
		}
		key := schemas.WorkflowStep(step)
		result.Results[key] = append(result.Results[key], envelope)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during step result iteration: %w", err)
	}
	return nil
}

// ListRuns returns summaries of the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlSelectRunSummaries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []schemas.RunSummary
	for rows.Next() {
		var (
			summary    schemas.RunSummary
			durationMS int64
		)
		if err := rows.Scan(&summary.WorkflowID, &summary.Success, &summary.StepsTotal,
			&summary.StepsCompleted, &durationMS, &summary.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary row: %w", err)
		}
		summary.Duration = time.Duration(durationMS) * time.Millisecond
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during summary iteration: %w", err)
	}
	return summaries, nil
}
