package shipments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const webhookColumns = `id, source, delivery_id, event_type, payload, signature, signature_valid,
	processed, failed, error, retry_count, created_at, processed_at`

// InsertWebhookEvent menyimpan delivery sebelum diproses (idempotent via UNIQUE(source, delivery_id)).
// inserted=false berarti delivery ini sudah pernah diterima; stored berisi baris yang ada.
func (r *Repo) InsertWebhookEvent(ctx context.Context, ev *WebhookEvent) (*WebhookEvent, bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO webhook_events(id, source, delivery_id, event_type, payload, signature, signature_valid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (source, delivery_id) DO NOTHING`,
		ev.ID, ev.Source, ev.DeliveryID, ev.EventType, ev.Payload, ev.Signature, ev.SignatureValid, ev.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	if ct.RowsAffected() == 1 {
		cp := *ev
		return &cp, true, nil
	}
	row := r.DB.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE source=$1 AND delivery_id=$2`,
		ev.Source, ev.DeliveryID)
	stored, err := scanWebhook(row)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func scanWebhook(row pgx.Row) (*WebhookEvent, error) {
	var ev WebhookEvent
	err := row.Scan(&ev.ID, &ev.Source, &ev.DeliveryID, &ev.EventType, &ev.Payload, &ev.Signature,
		&ev.SignatureValid, &ev.Processed, &ev.Failed, &ev.Error, &ev.RetryCount, &ev.CreatedAt, &ev.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *Repo) GetWebhookEvent(ctx context.Context, id string) (*WebhookEvent, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_events WHERE id=$1`, id)
	return scanWebhook(row)
}

func (r *Repo) MarkWebhookProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE webhook_events SET processed=true, processed_at=$2, error=''
		WHERE id=$1 AND processed=false`, id, at)
	return err
}

// MarkWebhookFailure menaikkan retry_count; begitu mencapai maxRetries event di-flag failed
// (manual review) dan tidak diambil sweep lagi.
func (r *Repo) MarkWebhookFailure(ctx context.Context, id, msg string, maxRetries int) (int, bool, error) {
	var (
		count  int
		failed bool
	)
	err := r.DB.QueryRow(ctx, `
		UPDATE webhook_events
		SET retry_count = retry_count + 1,
		    error = $2,
		    failed = (retry_count + 1) >= $3
		WHERE id=$1 AND processed=false
		RETURNING retry_count, failed`, id, msg, maxRetries).Scan(&count, &failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	return count, failed, err
}

func (r *Repo) ListRetryableWebhooks(ctx context.Context, maxRetries, limit int) ([]WebhookEvent, error) {
	return r.listWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhook_events
		WHERE processed=false AND failed=false AND retry_count < $1
		ORDER BY created_at LIMIT $2`, maxRetries, limit)
}

func (r *Repo) ListFailedWebhooks(ctx context.Context, limit int) ([]WebhookEvent, error) {
	return r.listWebhooks(ctx, `SELECT `+webhookColumns+` FROM webhook_events
		WHERE failed=true ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *Repo) listWebhooks(ctx context.Context, q string, args ...any) ([]WebhookEvent, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WebhookEvent
	for rows.Next() {
		ev, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}
