package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/STRATINT/echoloop/internal/models"
)

// InferenceLogRepository persists the generation call log.
type InferenceLogRepository struct {
	db *sql.DB
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *sql.DB) *InferenceLogRepository {
	return &InferenceLogRepository{db: db}
}

// Create records a single generation call.
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	query := `
		INSERT INTO inference_logs (
			provider, model, operation, tokens_used, input_tokens, output_tokens,
			latency_ms, status, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.Provider,
		log.Model,
		log.Operation,
		log.TokensUsed,
		log.InputTokens,
		log.OutputTokens,
		log.LatencyMs,
		log.Status,
		log.ErrorMessage,
		nullString(log.Metadata),
	)
	if err != nil {
		return storageError("create inference log", err)
	}
	return nil
}

// List returns logged calls newest first.
func (r *InferenceLogRepository) List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error) {
	sqlQuery := `
		SELECT id, provider, model, operation, tokens_used, input_tokens, output_tokens,
		       latency_ms, status, error_message, metadata, created_at
		FROM inference_logs
		WHERE 1=1
	`
	args := []interface{}{}
	argPos := 1

	if query.Operation != "" {
		sqlQuery += fmt.Sprintf(" AND operation = $%d", argPos)
		args = append(args, query.Operation)
		argPos++
	}

	if query.Status != "" {
		sqlQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, query.Status)
		argPos++
	}

	if query.Since != nil {
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *query.Since)
		argPos++
	}

	sqlQuery += " ORDER BY created_at DESC"

	if query.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, storageError("list inference logs", err)
	}
	defer rows.Close()

	var logs []models.InferenceLog
	for rows.Next() {
		var (
			log          models.InferenceLog
			inputTokens  sql.NullInt64
			outputTokens sql.NullInt64
			latency      sql.NullInt64
			errMsg       sql.NullString
			metadata     sql.NullString
		)

		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&log.TokensUsed,
			&inputTokens,
			&outputTokens,
			&latency,
			&log.Status,
			&errMsg,
			&metadata,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, storageError("scan inference log", err)
		}

		log.InputTokens = intPtr(inputTokens)
		log.OutputTokens = intPtr(outputTokens)
		log.LatencyMs = intPtr(latency)
		if errMsg.Valid {
			log.ErrorMessage = &errMsg.String
		}
		log.Metadata = metadata.String

		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list inference logs", err)
	}

	return logs, nil
}

// GetStats aggregates calls made since the given time (all time when zero).
func (r *InferenceLogRepository) GetStats(ctx context.Context, since time.Time) (*models.InferenceLogStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM inference_logs
		WHERE created_at >= $1
	`

	var stats models.InferenceLogStats
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalCalls,
		&stats.TotalTokens,
		&stats.SuccessfulCalls,
		&stats.FailedCalls,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		return nil, storageError("get inference stats", err)
	}

	return &stats, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
