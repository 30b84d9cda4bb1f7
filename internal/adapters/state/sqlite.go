package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore records executions and stores workflow definitions in SQLite.
// Writes are serialised by a mutex; reads run concurrently.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
	now    func() time.Time
}

// SQLiteStoreOption configures the store.
type SQLiteStoreOption func(*SQLiteStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		dbPath: dbPath,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// BeginExecution implements core.ExecutionRecorder.
func (s *SQLiteStore) BeginExecution(ctx context.Context, run core.RunContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	input, err := encodeJSON(run.Input)
	if err != nil {
		return "", fmt.Errorf("marshaling execution input: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, status, input, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(run.WorkflowID), nullableString(run.UserID), string(core.StatusRunning), input, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("inserting execution: %w", err)
	}
	return id, nil
}

// BeginStep implements core.ExecutionRecorder.
func (s *SQLiteStore) BeginStep(ctx context.Context, executionID string, node core.Node, input map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	in, err := encodeJSON(input)
	if err != nil {
		return "", fmt.Errorf("marshaling step input: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_logs (id, execution_id, node_id, node_name, node_type, status, input, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, executionID, node.ID, node.Name(), string(node.Type), string(core.StatusRunning), in, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("inserting step log: %w", err)
	}
	return id, nil
}

// CompleteStep implements core.ExecutionRecorder.
func (s *SQLiteStore) CompleteStep(ctx context.Context, stepLogID string, result core.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startedAt string
	err := s.db.QueryRowContext(ctx, "SELECT started_at FROM step_logs WHERE id = ?", stepLogID).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("step log", stepLogID)
	}
	if err != nil {
		return fmt.Errorf("reading step log: %w", err)
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return err
	}

	status := core.StatusSuccess
	if !result.Success {
		status = core.StatusError
	}
	out, err := encodeJSON(result.Data)
	if err != nil {
		return fmt.Errorf("marshaling step output: %w", err)
	}

	completed := s.now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE step_logs
		SET status = ?, output = ?, error = ?, completed_at = ?, duration_ns = ?
		WHERE id = ?
	`, string(status), out, nullableString(result.Error), formatTime(completed), int64(completed.Sub(started)), stepLogID)
	if err != nil {
		return fmt.Errorf("updating step log: %w", err)
	}
	return nil
}

// SkipStep implements core.ExecutionRecorder.
func (s *SQLiteStore) SkipStep(ctx context.Context, executionID string, node core.Node, reason core.SkipReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_logs (id, execution_id, node_id, node_name, node_type, status, skip_reason, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), executionID, node.ID, node.Name(), string(node.Type), string(core.StatusSkipped), string(reason), now, now)
	if err != nil {
		return fmt.Errorf("inserting skip log: %w", err)
	}
	return nil
}

// CompleteExecution implements core.ExecutionRecorder.
func (s *SQLiteStore) CompleteExecution(ctx context.Context, executionID string, status core.ExecutionStatus, output any, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startedAt string
	err := s.db.QueryRowContext(ctx, "SELECT started_at FROM executions WHERE id = ?", executionID).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound("execution", executionID)
	}
	if err != nil {
		return fmt.Errorf("reading execution: %w", err)
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return err
	}

	out, err := encodeJSON(output)
	if err != nil {
		return fmt.Errorf("marshaling execution output: %w", err)
	}

	completed := s.now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, output = ?, error = ?, completed_at = ?, duration_ns = ?
		WHERE id = ?
	`, string(status), out, nullableString(errMsg), formatTime(completed), int64(completed.Sub(started)), executionID)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	return nil
}

// CloseInterrupted implements core.InterruptedRunCloser.
func (s *SQLiteStore) CloseInterrupted(ctx context.Context, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(s.now())
	_, err = tx.ExecContext(ctx, `
		UPDATE step_logs
		SET status = ?, error = ?, completed_at = ?
		WHERE status = ? AND execution_id IN (SELECT id FROM executions WHERE status = ?)
	`, string(core.StatusError), message, now, string(core.StatusRunning), string(core.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("closing running step logs: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, error = ?, completed_at = ?
		WHERE status = ?
	`, string(core.StatusError), message, now, string(core.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("closing running executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting closed executions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return int(n), nil
}

const executionColumns = `id, workflow_id, user_id, status, input, output, error, started_at, completed_at, duration_ns`

// GetExecution implements core.ExecutionRecorder.
func (s *SQLiteStore) GetExecution(ctx context.Context, executionID string) (*core.ExecutionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = ?", executionID)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("execution", executionID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, node_name, node_type, status, input, output,
			error, skip_reason, started_at, completed_at, duration_ns
		FROM step_logs
		WHERE execution_id = ?
		ORDER BY started_at, seq
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying step logs: %w", err)
	}
	defer rows.Close()

	steps := make([]*core.StepLog, 0)
	for rows.Next() {
		step, err := scanStepLog(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating step logs: %w", err)
	}

	return &core.ExecutionDetail{Execution: exec, Steps: steps}, nil
}

// ListExecutions implements core.ExecutionRecorder.
func (s *SQLiteStore) ListExecutions(ctx context.Context, workflowID core.WorkflowID, limit int) ([]*core.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + executionColumns + " FROM executions"
	args := []any{}
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, string(workflowID))
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	out := make([]*core.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*core.Execution, error) {
	var (
		exec                          core.Execution
		workflowID, status, startedAt string
		userID, errMsg, completedAt   sql.NullString
		input, output                 sql.NullString
		durationNS                    int64
	)
	if err := row.Scan(&exec.ID, &workflowID, &userID, &status, &input, &output, &errMsg, &startedAt, &completedAt, &durationNS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning execution: %w", err)
	}

	exec.WorkflowID = core.WorkflowID(workflowID)
	exec.UserID = userID.String
	exec.Status = core.ExecutionStatus(status)
	exec.Error = errMsg.String
	exec.Duration = time.Duration(durationNS)

	var err error
	if exec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if exec.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(input, &exec.Input); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "decoding execution input").WithCause(err)
	}
	if err := decodeJSON(output, &exec.Output); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "decoding execution output").WithCause(err)
	}
	return &exec, nil
}

func scanStepLog(row scanner) (*core.StepLog, error) {
	var (
		step                                  core.StepLog
		nodeType, status, startedAt           string
		input, output, errMsg, skipReason, ca sql.NullString
		durationNS                            int64
	)
	if err := row.Scan(&step.ID, &step.ExecutionID, &step.NodeID, &step.NodeName, &nodeType, &status,
		&input, &output, &errMsg, &skipReason, &startedAt, &ca, &durationNS); err != nil {
		return nil, fmt.Errorf("scanning step log: %w", err)
	}

	step.NodeType = core.NodeType(nodeType)
	step.Status = core.ExecutionStatus(status)
	step.Error = errMsg.String
	step.SkipReason = core.SkipReason(skipReason.String)
	step.Duration = time.Duration(durationNS)

	var err error
	if step.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if step.CompletedAt, err = parseNullableTime(ca); err != nil {
		return nil, err
	}
	if err := decodeJSON(input, &step.Input); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "decoding step input").WithCause(err)
	}
	if err := decodeJSON(output, &step.Output); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "decoding step output").WithCause(err)
	}
	return &step, nil
}

// workflowDefinition is the JSON column holding the graph.
type workflowDefinition struct {
	Nodes []core.Node `json:"nodes"`
	Edges []core.Edge `json:"edges"`
}

// SaveWorkflow implements core.WorkflowStore. A workflow without an id gets
// a new one; saving an existing id replaces its definition.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *core.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.ID == "" {
		wf.ID = core.WorkflowID(uuid.NewString())
	}
	now := s.now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	def, err := encodeJSON(workflowDefinition{Nodes: wf.Nodes, Edges: wf.Edges})
	if err != nil {
		return fmt.Errorf("marshaling workflow definition: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, user_id, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			user_id = excluded.user_id,
			definition = excluded.definition,
			updated_at = excluded.updated_at
	`, string(wf.ID), wf.Name, nullableString(wf.Description), nullableString(wf.UserID), def,
		formatTime(wf.CreatedAt), formatTime(wf.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting workflow: %w", err)
	}
	return nil
}

const workflowColumns = `id, name, description, user_id, definition, created_at, updated_at`

// GetWorkflow implements core.WorkflowStore.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = ?", string(id))
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("workflow", string(id))
	}
	return wf, err
}

// ListWorkflows implements core.WorkflowStore.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+workflowColumns+" FROM workflows ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()

	out := make([]*core.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflows: %w", err)
	}
	return out, nil
}

// DeleteWorkflow implements core.WorkflowStore. Executions are history and
// are kept.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id core.WorkflowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("workflow", string(id))
	}
	return nil
}

func scanWorkflow(row scanner) (*core.Workflow, error) {
	var (
		wf                   core.Workflow
		id, def              string
		createdAt, updatedAt string
		description, userID  sql.NullString
	)
	if err := row.Scan(&id, &wf.Name, &description, &userID, &def, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning workflow: %w", err)
	}
	wf.ID = core.WorkflowID(id)
	wf.Description = description.String
	wf.UserID = userID.String

	var graph workflowDefinition
	if err := decodeJSON(sql.NullString{String: def, Valid: true}, &graph); err != nil {
		return nil, core.ErrState(core.CodeStateCorrupted, "decoding workflow definition").WithCause(err)
	}
	wf.Nodes, wf.Edges = graph.Nodes, graph.Edges

	var err error
	if wf.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if wf.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &wf, nil
}

// sortSteps orders step logs by start time, keeping insertion order for ties.
func sortSteps(steps []*core.StepLog) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].StartedAt.Before(steps[j].StartedAt)
	})
}
