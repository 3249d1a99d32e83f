package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Sink mirrors workflow-log mutations into a secondary append-only store.
// Every call is best-effort from the Log's perspective: errors are returned
// so the Log can warn, never so a run can fail.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// ClickHouseSink appends one row per log mutation (one at start, one at
// finalize), the event-log shape an analytical store expects; the
// authoritative current state stays in the Postgres table.
type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseSink opens a ClickHouse connection from dsn and verifies
// reachability before returning.
func NewClickHouseSink(ctx context.Context, dsn, table string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if table == "" {
		table = "workflow_log_events"
	}
	return &ClickHouseSink{conn: conn, table: table}, nil
}

func (s *ClickHouseSink) Append(ctx context.Context, e Entry) error {
	var endTime time.Time
	if e.EndTime != nil {
		endTime = *e.EndTime
	}
	summary, errMsg := "", ""
	if e.OutputSummary != nil {
		summary = *e.OutputSummary
	}
	if e.ErrorMessage != nil {
		errMsg = *e.ErrorMessage
	}
	query := fmt.Sprintf(`
		INSERT INTO %s
			(id, project_id, workflow_type, start_time, end_time, status, input_params, output_summary, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.table)
	return s.conn.Exec(ctx, query,
		e.ID, e.ProjectID, e.WorkflowType, e.StartTime, endTime, string(e.Status),
		e.InputParams, summary, errMsg)
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
