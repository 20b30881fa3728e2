package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"frame-worker/internal/domain"
	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `
id, owner_id, status, input_ref, output_ref, attempt_count, error_code, error_detail,
frame_count, archive_size_bytes, processing_seconds, created_at, started_at, completed_at, updated_at`

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.OwnerID, string(job.Status), job.InputRef, job.OutputRef, job.AttemptCount,
		job.ErrorCode, job.ErrorDetail, job.FrameCount, job.ArchiveSizeBytes, job.ProcessingSeconds,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return r.findOne(ctx, tx, q, id)
}

// FindByIDForUpdate row-locks the job until tx ends. It is only meaningful
// inside a transaction.
func (r *jobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	return r.findOne(ctx, tx, q, id)
}

func (r *jobRepo) findOne(ctx context.Context, tx repository.Tx, q, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return job, nil
}

// Update writes every mutable column. Identity columns (id, owner_id,
// input_ref, created_at) are never touched.
func (r *jobRepo) Update(ctx context.Context, tx repository.Tx, job *model.Job) error {
	const q = `
UPDATE jobs SET
  status = $2,
  output_ref = $3,
  attempt_count = $4,
  error_code = $5,
  error_detail = $6,
  frame_count = $7,
  archive_size_bytes = $8,
  processing_seconds = $9,
  started_at = $10,
  completed_at = $11,
  updated_at = $12
WHERE id = $1`

	tag, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.OutputRef, job.AttemptCount, job.ErrorCode, job.ErrorDetail,
		job.FrameCount, job.ArchiveSizeBytes, job.ProcessingSeconds, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *jobRepo) AppendEvent(ctx context.Context, tx repository.Tx, ev *model.JobEvent) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	const q = `
INSERT INTO job_events (id, job_id, event_type, old_status, new_status, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = execSQL(ctx, r.pool, tx, q,
		ev.ID, ev.JobID, ev.EventType, statusPtr(ev.OldStatus), statusPtr(ev.NewStatus), raw, ev.CreatedAt)
	return err
}

func (r *jobRepo) ListEvents(ctx context.Context, tx repository.Tx, jobID string) ([]*model.JobEvent, error) {
	const q = `
SELECT id, job_id, event_type, old_status, new_status, payload, created_at
FROM job_events
WHERE job_id = $1
ORDER BY created_at, id`

	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JobEvent
	for rows.Next() {
		var (
			ev       model.JobEvent
			old, nxt *string
			raw      []byte
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.EventType, &old, &nxt, &raw, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		ev.OldStatus = toStatus(old)
		ev.NewStatus = toStatus(nxt)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("%w: payload: %v", domain.ErrReadDatabaseRow, err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (r *jobRepo) ListExpirable(ctx context.Context, tx repository.Tx, completedBefore time.Time, limit int) ([]string, error) {
	const q = `
SELECT id FROM jobs
WHERE status = 'DONE' AND completed_at < $1
ORDER BY completed_at
LIMIT $2`

	rows, err := queryRows(ctx, r.pool, tx, q, completedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j      model.Job
		status string
	)
	err := row.Scan(
		&j.ID, &j.OwnerID, &status, &j.InputRef, &j.OutputRef, &j.AttemptCount, &j.ErrorCode, &j.ErrorDetail,
		&j.FrameCount, &j.ArchiveSizeBytes, &j.ProcessingSeconds, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status, err = model.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func statusPtr(s *model.JobStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func toStatus(s *string) *model.JobStatus {
	if s == nil {
		return nil
	}
	v := model.JobStatus(*s)
	return &v
}
