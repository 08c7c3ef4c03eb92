package integlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Append(ctx context.Context, e Entry) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO integration_logs(service, operation, attempt, request_payload, response_payload,
			status_code, duration_ms, success, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.Service, e.Operation, e.Attempt, e.RequestPayload, e.ResponsePayload,
		e.StatusCode, e.Duration.Milliseconds(), e.Success, e.Error, e.CreatedAt)
	return err
}
