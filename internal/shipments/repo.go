package shipments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const shipmentColumns = `id, tracking_number, quote_id, client_profile, carrier, service_type, service_name,
	shipper, recipient, packages, base_rate, margin_percentage, margin_amount, final_price, currency,
	status, carrier_tracking_number, label_url, label_data, estimated_delivery, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateCheckout: shipment + invoice stub + session + history dalam satu tx.
// quote_id UNIQUE, jadi quote yang sama tidak bisa menghasilkan dua shipment.
func (r *Repo) CreateCheckout(ctx context.Context, sh *Shipment, inv *Invoice, s *CheckoutSession, ev StatusEvent) error {
	shipper, err := json.Marshal(sh.Shipper)
	if err != nil {
		return err
	}
	recipient, err := json.Marshal(sh.Recipient)
	if err != nil {
		return err
	}
	pkgs, err := json.Marshal(sh.Packages)
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO shipments(id, tracking_number, quote_id, client_profile, carrier, service_type, service_name,
			shipper, recipient, packages, base_rate, margin_percentage, margin_amount, final_price, currency,
			status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)`,
		sh.ID, sh.TrackingNumber, sh.QuoteID, sh.ClientProfile, sh.Carrier, sh.ServiceType, sh.ServiceName,
		shipper, recipient, pkgs, sh.BaseRate, sh.MarginPercentage, sh.MarginAmount, sh.FinalPrice, sh.Currency,
		string(sh.Status), sh.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO invoices(id, shipment_id, amount_minor, currency, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		inv.ID, inv.ShipmentID, inv.AmountMinor, inv.Currency, string(inv.Status), inv.CreatedAt); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO checkout_sessions(shipment_id, quote_id, amount_minor, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		s.ShipmentID, s.QuoteID, s.AmountMinor, s.Currency, string(s.Status), s.CreatedAt); err != nil {
		return err
	}

	if err = insertStatus(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertStatus(ctx context.Context, tx pgx.Tx, ev StatusEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shipment_status_history(shipment_id, status, description, location, source, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ShipmentID, ev.Status, ev.Description, ev.Location, ev.Source, ev.OccurredAt)
	return err
}

func (r *Repo) GetSession(ctx context.Context, shipmentID string) (*CheckoutSession, error) {
	var (
		s                     CheckoutSession
		status                string
		paymentID, txURL, why *string
		clientSecret          *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT shipment_id, quote_id, payment_id, transaction_url, client_secret, amount_minor, currency, status,
		       failure_reason, claimed_until, created_at, updated_at
		FROM checkout_sessions WHERE shipment_id=$1`, shipmentID).
		Scan(&s.ShipmentID, &s.QuoteID, &paymentID, &txURL, &clientSecret, &s.AmountMinor, &s.Currency, &status,
			&why, &s.ClaimedUntil, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = CheckoutStatus(status)
	s.PaymentID = deref(paymentID)
	s.TransactionURL = deref(txURL)
	s.ClientSecret = deref(clientSecret)
	s.FailureReason = deref(why)
	return &s, nil
}

func (r *Repo) GetShipment(ctx context.Context, id string) (*Shipment, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id=$1`, id)
	return scanShipment(row)
}

func (r *Repo) GetShipmentByCarrierTracking(ctx context.Context, trackingNumber string) (*Shipment, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments
		WHERE carrier_tracking_number=$1 LIMIT 1`, trackingNumber)
	return scanShipment(row)
}

func scanShipment(row pgx.Row) (*Shipment, error) {
	var (
		sh                        Shipment
		shipper, recipient, pkgs  []byte
		status                    string
		carrierTracking, labelURL *string
	)
	err := row.Scan(&sh.ID, &sh.TrackingNumber, &sh.QuoteID, &sh.ClientProfile, &sh.Carrier, &sh.ServiceType,
		&sh.ServiceName, &shipper, &recipient, &pkgs, &sh.BaseRate, &sh.MarginPercentage, &sh.MarginAmount,
		&sh.FinalPrice, &sh.Currency, &status, &carrierTracking, &labelURL, &sh.LabelData,
		&sh.EstimatedDelivery, &sh.CreatedAt, &sh.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shipper, &sh.Shipper); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipient, &sh.Recipient); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pkgs, &sh.Packages); err != nil {
		return nil, err
	}
	sh.Status = ShipmentStatus(status)
	sh.CarrierTrackingNumber = deref(carrierTracking)
	sh.LabelURL = deref(labelURL)
	return &sh, nil
}

func (r *Repo) GetInvoiceByShipment(ctx context.Context, shipmentID string) (*Invoice, error) {
	var (
		inv       Invoice
		status    string
		paymentID *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, shipment_id, amount_minor, currency, status, payment_id, created_at, paid_at
		FROM invoices WHERE shipment_id=$1`, shipmentID).
		Scan(&inv.ID, &inv.ShipmentID, &inv.AmountMinor, &inv.Currency, &status, &paymentID, &inv.CreatedAt, &inv.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Status = InvoiceStatus(status)
	inv.PaymentID = deref(paymentID)
	return &inv, nil
}

// SetPayment: CAS CHECKOUT_INITIATED -> AWAITING_PAYMENT.
func (r *Repo) SetPayment(ctx context.Context, shipmentID string, p PaymentRef) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE checkout_sessions
		SET payment_id=$2, transaction_url=NULLIF($3,''), client_secret=NULLIF($4,''),
		    status='AWAITING_PAYMENT', updated_at=now()
		WHERE shipment_id=$1 AND status='CHECKOUT_INITIATED'`, shipmentID, p.ID, p.TransactionURL, p.ClientSecret)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInvalidTransition
	}
	if _, err = tx.Exec(ctx, `UPDATE invoices SET payment_id=$2 WHERE shipment_id=$1`, shipmentID, p.ID); err != nil {
		return err
	}
	if err = insertStatus(ctx, tx, StatusEvent{
		ShipmentID: shipmentID, Status: string(StatusAwaitingPayment), Source: "checkout", OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClaimConfirm memasang lease konfirmasi. Hanya satu proses yang bisa memegang lease
// untuk session AWAITING_PAYMENT yang sama; lease yang kedaluwarsa boleh diambil ulang.
func (r *Repo) ClaimConfirm(ctx context.Context, shipmentID string, now, until time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE checkout_sessions SET claimed_until=$3, updated_at=now()
		WHERE shipment_id=$1 AND status='AWAITING_PAYMENT'
		  AND (claimed_until IS NULL OR claimed_until <= $2)`, shipmentID, now, until)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseConfirm: lease milik holder lain (setelah lease kita expire) tidak disentuh.
func (r *Repo) ReleaseConfirm(ctx context.Context, shipmentID string, until time.Time) error {
	_, err := r.DB.Exec(ctx, `UPDATE checkout_sessions SET claimed_until=NULL
		WHERE shipment_id=$1 AND claimed_until=$2`, shipmentID, until)
	return err
}

// CompleteBooking: CAS AWAITING_PAYMENT -> CONFIRMED, simpan booking carrier dan status invoice.
func (r *Repo) CompleteBooking(ctx context.Context, shipmentID string, b Booking, invStatus InvoiceStatus, paidAt *time.Time, ev StatusEvent) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE checkout_sessions SET status='CONFIRMED', claimed_until=NULL, updated_at=now()
		WHERE shipment_id=$1 AND status='AWAITING_PAYMENT'`, shipmentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInvalidTransition
	}

	if _, err = tx.Exec(ctx, `
		UPDATE shipments SET status='booked', carrier_tracking_number=$2, label_url=NULLIF($3,''),
		       label_data=$4, estimated_delivery=$5, updated_at=now()
		WHERE id=$1`, shipmentID, b.CarrierTrackingNumber, b.LabelURL, b.LabelData, b.EstimatedDelivery); err != nil {
		return err
	}

	// pending -> pending (tidak berubah) atau pending -> paid
	if _, err = tx.Exec(ctx, `
		UPDATE invoices SET status=$2, paid_at=$3
		WHERE shipment_id=$1 AND status='pending'`, shipmentID, string(invStatus), paidAt); err != nil {
		return err
	}

	if err = insertStatus(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkFailed memindahkan session non-terminal ke FAILED. payment_id tetap disimpan.
func (r *Repo) MarkFailed(ctx context.Context, shipmentID, reason string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE checkout_sessions SET status='FAILED', failure_reason=$2, claimed_until=NULL, updated_at=now()
		WHERE shipment_id=$1 AND status NOT IN ('CONFIRMED','FAILED')`, shipmentID, reason)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrInvalidTransition
	}
	if _, err = tx.Exec(ctx, `UPDATE shipments SET status='failed', updated_at=now() WHERE id=$1`, shipmentID); err != nil {
		return err
	}
	if err = insertStatus(ctx, tx, StatusEvent{
		ShipmentID: shipmentID, Status: string(StatusFailed), Description: reason, Source: "checkout", OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AppendStatus mencatat history; jika status != "" shipment.status ikut diupdate,
// tapi hanya dari status yang masih di-track carrier (booked, in_transit, exception).
func (r *Repo) AppendStatus(ctx context.Context, ev StatusEvent, status ShipmentStatus) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = insertStatus(ctx, tx, ev); err != nil {
		return err
	}
	if status != "" {
		if _, err = tx.Exec(ctx, `UPDATE shipments SET status=$2, updated_at=now()
			WHERE id=$1 AND status IN ('booked','in_transit','exception')`, ev.ShipmentID, string(status)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListStatusHistory(ctx context.Context, shipmentID string) ([]StatusEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT shipment_id, status, description, location, source, occurred_at
		FROM shipment_status_history WHERE shipment_id=$1 ORDER BY occurred_at, id`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusEvent
	for rows.Next() {
		var ev StatusEvent
		if err := rows.Scan(&ev.ShipmentID, &ev.Status, &ev.Description, &ev.Location, &ev.Source, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListActiveShipments: shipment yang sudah dibooking tapi belum selesai, untuk tracking refresh.
func (r *Repo) ListActiveShipments(ctx context.Context, limit int) ([]Shipment, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+shipmentColumns+` FROM shipments
		WHERE status IN ('booked','in_transit','exception') AND carrier_tracking_number IS NOT NULL
		ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sh)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
