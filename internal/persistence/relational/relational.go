// Package relational implements the analytics backing store: project, task, cost,
// safety and quality rows read by the analytics tool facades, plus the
// document and chunk tables the ingestion path writes. Pool sizing,
// pre-ping, and connection recycling are configurable rather than
// hard-coded.
package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Pool wraps a pgx connection pool plus the prepared queries the analytics
// tool facades issue against it.
type Pool struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// Open parses dsn, applies the configured pool bounds, and pings once
// (unless prePing is false) before returning.
func Open(ctx context.Context, dsn string, maxConns, maxOverflow int, connMaxLife time.Duration, prePing bool, log *logrus.Logger) (*Pool, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse relational DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	if maxOverflow < 0 {
		maxOverflow = 0
	}
	cfg.MaxConns = int32(maxConns + maxOverflow)
	cfg.MinConns = 0
	if connMaxLife <= 0 {
		connMaxLife = time.Hour
	}
	cfg.MaxConnLifetime = connMaxLife
	cfg.MaxConnIdleTime = 5 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open relational pool: %w", err)
	}
	if prePing {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := db.Ping(pctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping relational store: %w", err)
		}
	}
	return &Pool{db: db, log: log}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.db.Close()
}

// DB exposes the underlying pgx pool so components that share the
// relational backend (workflow log, drawing processing log) reuse one
// bounded pool instead of opening their own.
func (p *Pool) DB() *pgxpool.Pool {
	return p.db
}

// Project is a tracked construction project.
type Project struct {
	ID              string
	Name            string
	ProjectType     string
	Status          string
	PlannedProgress float64
	ActualProgress  float64
	StartDate       time.Time
	EndDate         time.Time
}

// Task is a schedule line item under a Project.
type Task struct {
	ID              string
	ProjectID       string
	Name            string
	Status          string
	Critical        bool
	PlannedProgress float64
	ActualProgress  float64
	VarianceRate    float64
}

// SPI is the task's schedule performance index, actual/planned progress.
// A zero planned progress has no defined ratio, so SPI reports 0 rather
// than dividing by zero.
func (t Task) SPI() float64 {
	if t.PlannedProgress == 0 {
		return 0
	}
	return t.ActualProgress / t.PlannedProgress
}

// Cost is a budget line item under a Project, categorized by resource kind.
type Cost struct {
	ID           string
	ProjectID    string
	Category     string // material, labor, equipment, subcontract
	BudgetAtComp float64 // BAC
	BudgetedCost float64
	ActualCost   float64
	ProgressPct  float64
}

// EarnedValue is budget * progress/100.
func (c Cost) EarnedValue() float64 {
	return c.BudgetedCost * c.ProgressPct / 100
}

// CPI is the cost performance index, earned value over actual cost.
func (c Cost) CPI() float64 {
	if c.ActualCost == 0 {
		return 0
	}
	return c.EarnedValue() / c.ActualCost
}

// VarianceRate is the percentage the actual cost deviates from budget.
func (c Cost) VarianceRate() float64 {
	if c.BudgetedCost == 0 {
		return 0
	}
	return (c.ActualCost - c.BudgetedCost) / c.BudgetedCost * 100
}

// EAC is the estimate at completion, BAC / CPI. Reports 0 (caller must
// treat as "insufficient data") when CPI is undefined.
func (c Cost) EAC() float64 {
	cpi := c.CPI()
	if cpi == 0 {
		return 0
	}
	return c.BudgetAtComp / cpi
}

// SafetyRecord is one inspection or incident entry.
type SafetyRecord struct {
	ID         string
	ProjectID  string
	DefectType string
	Level      string // low, medium, high
	Status     string // open, closed
	RecordedAt time.Time
	ClosedAt   *time.Time
}

// DaysOpen reports how many days the record has been open as of now.
func (r SafetyRecord) DaysOpen(now time.Time) int {
	end := now
	if r.ClosedAt != nil {
		end = *r.ClosedAt
	}
	d := end.Sub(r.RecordedAt)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// QualityReport is a periodic inspection summary.
type QualityReport struct {
	ID          string
	ProjectID   string
	InspectedAt time.Time
	PassRate    float64
	Notes       string
}

// ErrProjectNotFound reports a project id with no row behind it, so
// callers can turn it into a structured not-found payload instead of a
// generic database error.
var ErrProjectNotFound = errors.New("project not found")

func (p *Pool) GetProject(ctx context.Context, id string) (Project, error) {
	var pr Project
	err := p.db.QueryRow(ctx, `
		SELECT id, name, project_type, status, planned_progress, actual_progress, start_date, end_date
		FROM projects WHERE id = $1
	`, id).Scan(&pr.ID, &pr.Name, &pr.ProjectType, &pr.Status, &pr.PlannedProgress, &pr.ActualProgress, &pr.StartDate, &pr.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("get project %s: %w", id, ErrProjectNotFound)
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return pr, nil
}

func (p *Pool) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, project_id, name, status, critical, planned_progress, actual_progress, variance_rate
		FROM tasks WHERE project_id = $1 ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", projectID, err)
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &t.Critical, &t.PlannedProgress, &t.ActualProgress, &t.VarianceRate); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Pool) ListCosts(ctx context.Context, projectID string) ([]Cost, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, project_id, category, budget_at_completion, budgeted_cost, actual_cost, progress_pct
		FROM costs WHERE project_id = $1 ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list costs for %s: %w", projectID, err)
	}
	defer rows.Close()
	var out []Cost
	for rows.Next() {
		var c Cost
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Category, &c.BudgetAtComp, &c.BudgetedCost, &c.ActualCost, &c.ProgressPct); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Pool) ListSafetyRecords(ctx context.Context, projectID string, since time.Time) ([]SafetyRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, project_id, defect_type, level, status, recorded_at, closed_at
		FROM safety_records WHERE project_id = $1 AND recorded_at >= $2 ORDER BY recorded_at
	`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("list safety records for %s: %w", projectID, err)
	}
	defer rows.Close()
	var out []SafetyRecord
	for rows.Next() {
		var r SafetyRecord
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.DefectType, &r.Level, &r.Status, &r.RecordedAt, &r.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Pool) ListQualityReports(ctx context.Context, projectID string, since time.Time) ([]QualityReport, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, project_id, inspected_at, pass_rate, notes
		FROM quality_reports WHERE project_id = $1 AND inspected_at >= $2 ORDER BY inspected_at
	`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("list quality reports for %s: %w", projectID, err)
	}
	defer rows.Close()
	var out []QualityReport
	for rows.Next() {
		var q QualityReport
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.InspectedAt, &q.PassRate, &q.Notes); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Chunk is a retrievable text fragment belonging to a Document. The
// fusion step reads chunk text by id to attach to a fused candidate; the
// lexical and vector indexes only ever carry the chunk id plus a score.
type Chunk struct {
	ID              string
	DocumentID      string
	ChunkIndex      int
	Text            string
	TokenCount      int
	PageNum         int
	DocType         string
	PermissionLevel string
}

// GetChunksByIDs looks up chunk text/metadata for a set of ids, as
// returned by index searches. Missing ids are simply absent from the
// result rather than an error; retrieval skips them.
func (p *Pool) GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.token_count, c.page_num,
		       d.doc_type, d.permission_level
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get chunks by id: %w", err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.TokenCount, &c.PageNum, &c.DocType, &c.PermissionLevel); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListInProgressTasks is used by the resource-allocation-status tool.
func (p *Pool) ListInProgressTasks(ctx context.Context, projectID string) ([]Task, error) {
	tasks, err := p.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range tasks {
		if t.Status == "in_progress" {
			out = append(out, t)
		}
	}
	return out, nil
}
