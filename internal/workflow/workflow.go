// Package workflow implements the per-run workflow log: an append-only
// record with exactly two mutations (start, finalize), backed by the
// relational store. Every mutation helper swallows its own error, so a
// logging failure never fails the analytics run it is observing.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Status is the workflow run state machine: created -> running ->
// {completed, failed}. "created" exists only before Start is called; once
// persisted a record is always running, completed, or failed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// maxErrorMessageLen truncates a failure message before persisting it.
const maxErrorMessageLen = 1000

// Entry is one WorkflowLogEntry row.
type Entry struct {
	ID            string
	ProjectID     string
	WorkflowType  string
	StartTime     time.Time
	EndTime       *time.Time
	Status        Status
	InputParams   string
	OutputSummary *string
	ErrorMessage  *string
}

// Log persists workflow run records against a Postgres table, optionally
// mirroring each mutation into a secondary append-only sink.
type Log struct {
	db   *pgxpool.Pool
	sink Sink
	log  *logrus.Logger
}

// New wraps an already-open pool. Sharing the relational pool rather than
// opening a second one keeps it one pool per backing store, not one per
// component.
func New(db *pgxpool.Pool, log *logrus.Logger) *Log {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Log{db: db, log: log}
}

// WithSink attaches a secondary sink that receives a copy of every start
// and finalize mutation. Sink failures are logged and otherwise ignored.
func (l *Log) WithSink(s Sink) *Log {
	l.sink = s
	return l
}

func (l *Log) mirror(ctx context.Context, e Entry) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Append(ctx, e); err != nil {
		l.log.WithError(err).WithField("id", e.ID).Warn("workflow: sink append failed")
	}
}

// Start inserts a new running record and returns its id. On failure it
// logs and returns an empty id; callers treat an empty id as "logging
// unavailable" and continue the analytics run regardless, since workflow
// logging must never block the user-visible operation.
func (l *Log) Start(ctx context.Context, id, projectID, workflowType, inputParams string) string {
	_, err := l.db.Exec(ctx, `
		INSERT INTO workflow_log (id, project_id, workflow_type, start_time, status, input_params)
		VALUES ($1, $2, $3, now(), $4, $5)
	`, id, projectID, workflowType, StatusRunning, inputParams)
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{"project_id": projectID, "workflow_type": workflowType}).
			Warn("workflow: failed to start log record")
		return ""
	}
	l.mirror(ctx, Entry{
		ID: id, ProjectID: projectID, WorkflowType: workflowType,
		StartTime: time.Now().UTC(), Status: StatusRunning, InputParams: inputParams,
	})
	return id
}

// Finalize transitions a record to completed (summary set, errMsg empty)
// or failed (errMsg set). A missing id is a no-op, matching Start's
// empty-id signal that logging was unavailable.
func (l *Log) Finalize(ctx context.Context, id string, status Status, summary, errMsg string) {
	if id == "" {
		return
	}
	errMsg = truncate(errMsg, maxErrorMessageLen)
	_, err := l.db.Exec(ctx, `
		UPDATE workflow_log SET end_time = now(), status = $2, output_summary = $3, error_message = $4
		WHERE id = $1
	`, id, status, nullableString(summary), nullableString(errMsg))
	if err != nil {
		l.log.WithError(err).WithField("id", id).Warn("workflow: failed to finalize log record")
		return
	}
	end := time.Now().UTC()
	var summaryPtr, errPtr *string
	if summary != "" {
		summaryPtr = &summary
	}
	if errMsg != "" {
		errPtr = &errMsg
	}
	l.mirror(ctx, Entry{ID: id, EndTime: &end, Status: status, OutputSummary: summaryPtr, ErrorMessage: errPtr})
}

// Complete is a convenience wrapper around Finalize for the success path.
func (l *Log) Complete(ctx context.Context, id, summary string) {
	l.Finalize(ctx, id, StatusCompleted, summary, "")
}

// Fail is a convenience wrapper around Finalize for the failure path.
func (l *Log) Fail(ctx context.Context, id string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	l.Finalize(ctx, id, StatusFailed, "", msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListByProject returns log entries for projectID and workflowType
// (workflowType empty matches all), most recent first.
func (l *Log) ListByProject(ctx context.Context, projectID, workflowType string, since time.Time) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, project_id, workflow_type, start_time, end_time, status, input_params, output_summary, error_message
		FROM workflow_log
		WHERE project_id = $1 AND ($2 = '' OR workflow_type = $2) AND start_time >= $3
		ORDER BY start_time DESC
	`, projectID, workflowType, since)
	if err != nil {
		return nil, fmt.Errorf("list workflow log for %s: %w", projectID, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.WorkflowType, &e.StartTime, &e.EndTime, &e.Status, &e.InputParams, &e.OutputSummary, &e.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
