package drawing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecordStore persists processing records to the
// drawing_processing_log table, one row per document, upserted on each
// checkpoint.
type PostgresRecordStore struct {
	db *pgxpool.Pool
}

func NewPostgresRecordStore(db *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

func (s *PostgresRecordStore) SaveRecord(ctx context.Context, rec Record) error {
	durations := make(map[string]int64, len(rec.StepDurations))
	for step, d := range rec.StepDurations {
		durations[step] = d.Milliseconds()
	}
	stepJSON, err := json.Marshal(durations)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO drawing_processing_log
			(document_id, status, progress, step_durations_ms, entity_count,
			 relation_count, graph_synced, error_message, started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			step_durations_ms = EXCLUDED.step_durations_ms,
			entity_count = EXCLUDED.entity_count,
			relation_count = EXCLUDED.relation_count,
			graph_synced = EXCLUDED.graph_synced,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`, rec.DocumentID, string(rec.Status), rec.Progress, stepJSON, rec.EntityCount,
		rec.RelationCount, rec.GraphSynced, nullable(rec.Error), rec.StartedAt, rec.UpdatedAt)
	return err
}

// GetRecord reads one document's processing record back.
func (s *PostgresRecordStore) GetRecord(ctx context.Context, documentID string) (Record, error) {
	row := s.db.QueryRow(ctx, `
		SELECT document_id, status, progress, step_durations_ms, entity_count,
		       relation_count, graph_synced, COALESCE(error_message, ''), started_at, updated_at
		FROM drawing_processing_log WHERE document_id = $1
	`, documentID)
	var rec Record
	var status string
	var stepJSON []byte
	if err := row.Scan(&rec.DocumentID, &status, &rec.Progress, &stepJSON, &rec.EntityCount,
		&rec.RelationCount, &rec.GraphSynced, &rec.Error, &rec.StartedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	var durations map[string]int64
	if err := json.Unmarshal(stepJSON, &durations); err == nil {
		rec.StepDurations = make(map[string]time.Duration, len(durations))
		for step, millis := range durations {
			rec.StepDurations[step] = time.Duration(millis) * time.Millisecond
		}
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
