package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Result is the booking as returned to the client. Replayed marks a confirm
// that found the session already CONFIRMED.
type Result struct {
	Shipment              *shipments.Shipment `json:"shipment"`
	CarrierTrackingNumber string              `json:"carrierTrackingNumber"`
	LabelURL              string              `json:"labelUrl,omitempty"`
	EstimatedDelivery     *time.Time          `json:"estimatedDelivery,omitempty"`
	Replayed              bool                `json:"replayed"`
}

func resultFrom(sh *shipments.Shipment, replayed bool) *Result {
	return &Result{
		Shipment:              sh,
		CarrierTrackingNumber: sh.CarrierTrackingNumber,
		LabelURL:              sh.LabelURL,
		EstimatedDelivery:     sh.EstimatedDelivery,
		Replayed:              replayed,
	}
}

// Confirm verifies the payment and books the shipment with the carrier.
// Calling it again for a CONFIRMED session replays the stored booking.
func (s *Service) Confirm(ctx context.Context, shipmentID, paymentID string) (*Result, error) {
	if shipmentID == "" {
		return nil, shipments.Invalid("shipmentId", "required")
	}
	sess, err := s.Store.GetSession(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	// replay dulu: retry dengan payment id lama tetap dapat booking yang sama
	if res, done, err := s.settled(ctx, sess); done {
		return res, err
	}
	if paymentID != "" && sess.PaymentID != "" && paymentID != sess.PaymentID {
		return nil, shipments.Invalid("paymentIntentId", "does not match checkout payment")
	}
	if sess.Status != shipments.StatusAwaitingPayment {
		return nil, fmt.Errorf("%w: confirm from %s", shipments.ErrInvalidTransition, sess.Status)
	}

	// satu proses: caller kedua ikut hasil caller pertama
	v, err, _ := s.confirms.Do(shipmentID, func() (any, error) {
		return s.confirm(context.WithoutCancel(ctx), shipmentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// settled handles sessions that are already terminal.
func (s *Service) settled(ctx context.Context, sess *shipments.CheckoutSession) (*Result, bool, error) {
	switch sess.Status {
	case shipments.StatusConfirmed:
		sh, err := s.Store.GetShipment(ctx, sess.ShipmentID)
		if err != nil {
			return nil, true, err
		}
		return resultFrom(sh, true), true, nil
	case shipments.StatusFailed:
		return nil, true, fmt.Errorf("%w: %s", shipments.ErrCheckoutFailed, sess.FailureReason)
	}
	return nil, false, nil
}

func (s *Service) confirm(ctx context.Context, shipmentID string) (*Result, error) {
	now := s.now()
	// presisi mikrodetik, sama dengan timestamptz
	until := now.Add(s.lease()).Truncate(time.Microsecond)
	ok, err := s.Store.ClaimConfirm(ctx, shipmentID, now, until)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.Store.GetSession(ctx, shipmentID)
		if err != nil {
			return nil, err
		}
		if res, done, err := s.settled(ctx, cur); done {
			return res, err
		}
		return nil, shipments.ErrConfirmInProgress
	}

	release := true
	defer func() {
		if !release {
			return
		}
		if err := s.Store.ReleaseConfirm(ctx, shipmentID, until); err != nil {
			s.log().Warn("release confirm lease", zap.String("shipment_id", shipmentID), zap.Error(err))
		}
	}()

	sess, err := s.Store.GetSession(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	log := s.log().With(zap.String("shipment_id", shipmentID), zap.String("payment_id", sess.PaymentID))

	status, err := s.Payments.VerifyPayment(ctx, sess.PaymentID)
	if err != nil {
		return nil, err
	}
	switch {
	case status.Settled():
	case status.InFlight():
		return nil, shipments.ErrPaymentPending
	default:
		release = false
		s.fail(ctx, shipmentID, sess.PaymentID, "payment "+string(status))
		return nil, fmt.Errorf("%w: %s", shipments.ErrPaymentNotSettled, status)
	}

	sh, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	booked, err := s.book(ctx, sh)
	if err != nil {
		// uang sudah masuk tapi carrier gagal: rekonsiliasi manual, tidak ada auto refund
		log.Error("carrier booking failed after payment",
			zap.String("carrier", sh.Carrier), zap.String("service_type", sh.ServiceType), zap.Error(err))
		release = false
		s.fail(ctx, shipmentID, sess.PaymentID, "carrier booking failed: "+err.Error())
		return nil, fmt.Errorf("%w: %v", shipments.ErrBookingFailed, err)
	}

	b := shipments.Booking{
		CarrierTrackingNumber: booked.CarrierTrackingNumber,
		LabelURL:              booked.LabelURL,
		LabelData:             booked.LabelData,
		EstimatedDelivery:     booked.EstimatedDelivery,
	}
	if b.CarrierTrackingNumber == "" {
		b.CarrierTrackingNumber = booked.TrackingNumber
	}
	if b.LabelURL == "" && len(b.LabelData) > 0 {
		b.LabelURL = s.PublicBaseURL + "/shipments/" + shipmentID + "/label"
	}
	if b.EstimatedDelivery == nil {
		b.EstimatedDelivery = sh.EstimatedDelivery
	}
	paidAt := s.now()
	ev := shipments.StatusEvent{
		ShipmentID:  shipmentID,
		Status:      string(shipments.StatusConfirmed),
		Description: "booked with " + sh.Carrier + " as " + b.CarrierTrackingNumber,
		Source:      "checkout",
		OccurredAt:  paidAt,
	}

	// CompleteBooking clears the lease itself; a failed write keeps it until
	// expiry so a retry cannot book the carrier twice.
	release = false
	if err := s.Store.CompleteBooking(ctx, shipmentID, b, shipments.InvoicePaid, &paidAt, ev); err != nil {
		if errors.Is(err, shipments.ErrInvalidTransition) {
			cur, gerr := s.Store.GetSession(ctx, shipmentID)
			if gerr == nil {
				if res, done, rerr := s.settled(ctx, cur); done {
					return res, rerr
				}
			}
		}
		log.Error("persist booking failed",
			zap.String("carrier_tracking_number", b.CarrierTrackingNumber), zap.Error(err))
		return nil, err
	}
	transitions.WithLabelValues(string(shipments.StatusConfirmed)).Inc()
	log.Info("shipment confirmed",
		zap.String("carrier", sh.Carrier), zap.String("carrier_tracking_number", b.CarrierTrackingNumber))

	final, err := s.Store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	s.publishConfirmed(final, sess.PaymentID)
	return resultFrom(final, false), nil
}

func (s *Service) book(ctx context.Context, sh *shipments.Shipment) (*carrier.ShipmentResult, error) {
	adapter, err := s.Carriers.Get(sh.Carrier)
	if err != nil {
		return nil, err
	}
	return adapter.CreateShipment(ctx, carrier.ShipmentOrder{
		Shipper:     sh.Shipper,
		Recipient:   sh.Recipient,
		Packages:    sh.Packages,
		ServiceType: sh.ServiceType,
		LabelFormat: "PDF",
		Reference:   sh.ID,
	})
}
