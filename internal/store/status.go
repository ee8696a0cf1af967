package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hyperengineering/ridelake/internal/types"
)

// BeginStage upserts the (batch, stage) status row to Processing. The
// primary key on (batch_id, step) guarantees repeated attempts update the
// same row rather than append; error text and end time from a previous
// attempt are cleared here, at attempt start.
func (s *PostgresStore) BeginStage(ctx context.Context, batchID uuid.UUID, stage types.Stage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO logging.pipeline_status (batch_id, step, status, start_time, rows_imported)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (batch_id, step) DO UPDATE
		SET status = EXCLUDED.status,
		    start_time = EXCLUDED.start_time,
		    end_time = NULL,
		    rows_imported = 0,
		    error_message = NULL`,
		batchID, stage, types.StatusProcessing, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("begin stage %s: %w", stage, err)
	}
	return nil
}

// CompleteStage records a terminal status for the (batch, stage) row. The
// end time is set only for terminal statuses; errMsg is stored as NULL
// when empty.
func (s *PostgresStore) CompleteStage(ctx context.Context, batchID uuid.UUID, stage types.Stage, status types.StageStatus, rows int64, errMsg string) error {
	var endTime *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		endTime = &now
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE logging.pipeline_status
		SET status = $3, rows_imported = $4, end_time = $5, error_message = $6
		WHERE batch_id = $1 AND step = $2`,
		batchID, stage, status, rows, endTime, msg)
	if err != nil {
		return fmt.Errorf("complete stage %s: %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// LatestStage returns the most recently started status row for a batch,
// which drives resume decisions.
func (s *PostgresStore) LatestStage(ctx context.Context, batchID uuid.UUID) (*types.PipelineStatus, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT batch_id, step, status, start_time, end_time, rows_imported, error_message
		FROM logging.pipeline_status
		WHERE batch_id = $1
		ORDER BY start_time DESC
		LIMIT 1`, batchID)

	st, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("latest stage: %w", err)
	}
	return st, nil
}

// PageStatus returns a time-descending window over every batch's latest
// status row plus the total batch count. Both queries travel in a single
// batched round trip.
func (s *PostgresStore) PageStatus(ctx context.Context, page, pageSize int) (*types.PagedResult[types.PipelineStatus], error) {
	offset := (page - 1) * pageSize

	b := &pgx.Batch{}
	b.Queue(`SELECT COUNT(DISTINCT batch_id) FROM logging.pipeline_status`)
	b.Queue(`
		SELECT batch_id, step, status, start_time, end_time, rows_imported, error_message
		FROM (
		    SELECT DISTINCT ON (batch_id)
		           batch_id, step, status, start_time, end_time, rows_imported, error_message
		    FROM logging.pipeline_status
		    ORDER BY batch_id, start_time DESC
		) latest
		ORDER BY start_time DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)

	results := s.pool.SendBatch(ctx, b)
	defer results.Close()

	var total int64
	if err := results.QueryRow().Scan(&total); err != nil {
		return nil, fmt.Errorf("count status rows: %w", err)
	}

	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("page status rows: %w", err)
	}
	defer rows.Close()

	items := []types.PipelineStatus{}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		items = append(items, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("page status rows: %w", err)
	}

	return &types.PagedResult[types.PipelineStatus]{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func scanStatus(row pgx.Row) (*types.PipelineStatus, error) {
	var st types.PipelineStatus
	err := row.Scan(&st.BatchID, &st.Step, &st.Status, &st.StartTime, &st.EndTime, &st.RowsImported, &st.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
