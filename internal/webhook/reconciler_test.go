package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shipment-booking/internal/checkout"
	"github.com/ariefcatur/go-shipment-booking/internal/hmacsig"
	"github.com/ariefcatur/go-shipment-booking/internal/payment"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

const secret = "whsec_mock"

type fakeCheckout struct {
	mu         sync.Mutex
	confirms   []string
	fails      []string
	confirmErr error
}

func (f *fakeCheckout) Confirm(_ context.Context, shipmentID, paymentID string) (*checkout.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, shipmentID+"/"+paymentID)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &checkout.Result{Shipment: &shipments.Shipment{ID: shipmentID}}, nil
}

func (f *fakeCheckout) FailPayment(_ context.Context, shipmentID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails = append(f.fails, shipmentID+"/"+reason)
	return nil
}

type topicRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (p *topicRecorder) Publish(topic string, _, _ []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func newReconciler(co Checkout) (*Reconciler, *shipments.MemoryStore) {
	store := shipments.NewMemoryStore()
	r := &Reconciler{Store: store, Checkout: co, Events: &topicRecorder{}, Producer: "shipment-api"}
	r.Register(MockSource(secret, payment.NewMockGateway(secret)))
	return r, store
}

func TestInvalidSignatureNeverProcessed(t *testing.T) {
	co := &fakeCheckout{}
	r, store := newReconciler(co)
	body := []byte(`{"deliveryId":"d1","type":"payment.captured","shipmentId":"shp_1","paymentId":"mock_pay_1"}`)

	for _, sig := range []string{"", "deadbeef", hmacsig.Sign("wrong", body)} {
		_, err := r.Receive(context.Background(), "mock", sig, body)
		assert.ErrorIs(t, err, shipments.ErrSignatureInvalid)
	}
	assert.Empty(t, co.confirms)

	pending, err := store.ListRetryableWebhooks(context.Background(), MaxWebhookRetries, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUnknownSourceIsNotFound(t *testing.T) {
	r, _ := newReconciler(&fakeCheckout{})
	_, err := r.Receive(context.Background(), "dhl", "x", []byte(`{}`))
	assert.ErrorIs(t, err, shipments.ErrNotFound)
}

func TestCapturedDispatchesConfirmOnce(t *testing.T) {
	co := &fakeCheckout{}
	r, _ := newReconciler(co)
	ctx := context.Background()
	body := []byte(`{"deliveryId":"d1","type":"payment.captured","shipmentId":"shp_1","paymentId":"mock_pay_1"}`)

	rc, err := r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, rc.Outcome)

	rc2, err := r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, rc2.Outcome)
	assert.Equal(t, rc.EventID, rc2.EventID)
	assert.Equal(t, []string{"shp_1/mock_pay_1"}, co.confirms)
}

func TestPaymentFailedDispatchesFailPayment(t *testing.T) {
	co := &fakeCheckout{}
	r, _ := newReconciler(co)
	body := []byte(`{"deliveryId":"d2","type":"payment.failed","shipmentId":"shp_2","description":"card declined"}`)

	rc, err := r.Receive(context.Background(), "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, rc.Outcome)
	assert.Equal(t, []string{"shp_2/card declined"}, co.fails)
}

func TestUnknownTypeIsIgnored(t *testing.T) {
	co := &fakeCheckout{}
	r, store := newReconciler(co)
	body := []byte(`{"deliveryId":"d3","type":"customer.updated"}`)

	rc, err := r.Receive(context.Background(), "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, rc.Outcome)

	ev, err := store.GetWebhookEvent(context.Background(), rc.EventID)
	require.NoError(t, err)
	assert.True(t, ev.Processed)
	assert.Empty(t, co.confirms)
}

func TestFailuresEscalateToManualReview(t *testing.T) {
	co := &fakeCheckout{confirmErr: shipments.ErrPaymentPending}
	r, store := newReconciler(co)
	ctx := context.Background()
	body := []byte(`{"deliveryId":"d4","type":"payment.captured","shipmentId":"shp_4","paymentId":"mock_pay_4"}`)

	rc, err := r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, rc.Outcome)

	for i := 0; i < MaxWebhookRetries-1; i++ {
		n, err := r.RetryPending(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Len(t, co.confirms, MaxWebhookRetries)

	failed, err := r.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, MaxWebhookRetries, failed[0].RetryCount)
	assert.False(t, failed[0].Processed)
	assert.Contains(t, failed[0].Error, "payment still pending")

	// sweep tidak menyentuh event yang sudah failed
	_, err = r.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, co.confirms, MaxWebhookRetries)

	pending, err := store.ListRetryableWebhooks(ctx, MaxWebhookRetries, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// provider mengirim ulang: tetap duplicate, tidak diproses lagi
	rc, err = r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, rc.Outcome)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	co := &fakeCheckout{confirmErr: errors.New("db down")}
	r, store := newReconciler(co)
	ctx := context.Background()
	body := []byte(`{"deliveryId":"d5","type":"payment.captured","shipmentId":"shp_5","paymentId":"mock_pay_5"}`)

	rc, err := r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, rc.Outcome)

	co.mu.Lock()
	co.confirmErr = nil
	co.mu.Unlock()

	n, err := r.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err := store.GetWebhookEvent(ctx, rc.EventID)
	require.NoError(t, err)
	assert.True(t, ev.Processed)
	assert.Equal(t, 1, ev.RetryCount)
}

func TestUnsignedSourceOnlyInDevelopment(t *testing.T) {
	co := &fakeCheckout{}
	store := shipments.NewMemoryStore()
	r := &Reconciler{Store: store, Checkout: co}
	r.Register(HostedSource("", nil))
	body := []byte(`{"id":"evt_h1","type":"payment.updated","data":{"id":"pay_1","status":"paid","reference":"shp_9"}}`)

	_, err := r.Receive(context.Background(), "hosted", "", body)
	assert.ErrorIs(t, err, shipments.ErrSignatureInvalid)

	r.AllowUnsigned = true
	rc, err := r.Receive(context.Background(), "hosted", "", body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, rc.Outcome)
	assert.Equal(t, []string{"shp_9/pay_1"}, co.confirms)
}

func TestFedExTrackingUpdatesShipment(t *testing.T) {
	ctx := context.Background()
	co := &fakeCheckout{}
	r, store := newReconciler(co)
	pub := r.Events.(*topicRecorder)
	r.Register(FedExSource("fx_secret", hmacVerifier("fx_secret")))

	now := time.Now().UTC()
	require.NoError(t, store.CreateCheckout(ctx,
		&shipments.Shipment{ID: "shp_t", QuoteID: "q_t", Carrier: "fedex", Status: shipments.ShipmentProcessing},
		&shipments.Invoice{ID: "inv_t", ShipmentID: "shp_t", Status: shipments.InvoicePending},
		&shipments.CheckoutSession{ShipmentID: "shp_t", QuoteID: "q_t", Status: shipments.StatusAwaitingPayment},
		shipments.StatusEvent{ShipmentID: "shp_t", Status: "CHECKOUT_INITIATED", Source: "checkout", OccurredAt: now}))
	require.NoError(t, store.CompleteBooking(ctx, "shp_t", shipments.Booking{CarrierTrackingNumber: "794600000001"},
		shipments.InvoicePaid, &now, shipments.StatusEvent{ShipmentID: "shp_t", Status: "CONFIRMED", Source: "checkout", OccurredAt: now}))

	body := []byte(`{"eventId":"fx-1","eventType":"TRACKING_UPDATE","trackingNumber":"794600000001",` +
		`"scanEvent":{"derivedStatusCode":"DL","eventDescription":"Delivered","date":"2026-03-05T14:00:00Z",` +
		`"scanLocation":{"city":"NEW YORK","countryCode":"US"}}}`)
	rc, err := r.Receive(ctx, "fedex", hmacsig.Sign("fx_secret", body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, rc.Outcome)

	sh, err := store.GetShipment(ctx, "shp_t")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentDelivered, sh.Status)

	hist, err := store.ListStatusHistory(ctx, "shp_t")
	require.NoError(t, err)
	last := hist[len(hist)-1]
	assert.Equal(t, "webhook:fedex", last.Source)
	assert.Equal(t, "NEW YORK, US", last.Location)
	assert.Equal(t, []string{shipments.TopicTrackingUpdated}, pub.topics)
}

func TestFedExUnknownTrackingRetries(t *testing.T) {
	r, _ := newReconciler(&fakeCheckout{})
	r.Register(FedExSource("fx_secret", hmacVerifier("fx_secret")))
	body := []byte(`{"eventId":"fx-2","trackingNumber":"000","scanEvent":{"derivedStatusCode":"IT"}}`)

	rc, err := r.Receive(context.Background(), "fedex", hmacsig.Sign("fx_secret", body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, rc.Outcome)
	assert.Contains(t, rc.Error, "000")
}

type hmacVerifier string

func (h hmacVerifier) ValidateWebhookSignature(payload []byte, signature string) bool {
	return hmacsig.Verify(string(h), payload, signature)
}

func stripeHeader(secret string, payload []byte, ts time.Time) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "." + string(payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(m.Sum(nil)))
}

func TestStripeSucceededConfirmsShipment(t *testing.T) {
	co := &fakeCheckout{}
	r, _ := newReconciler(co)
	gw := payment.NewStripeGateway(payment.StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_stripe"}, retry.Policy{}, nil)
	r.Register(StripeSource("whsec_stripe", gw))

	body := []byte(`{"id":"evt_s1","object":"event","type":"payment_intent.succeeded","created":1772445600,` +
		`"data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded","metadata":{"shipment_id":"shp_s"}}}}`)

	_, err := r.Receive(context.Background(), "stripe", stripeHeader("whsec_other", body, time.Now()), body)
	assert.ErrorIs(t, err, shipments.ErrSignatureInvalid)

	rc, err := r.Receive(context.Background(), "stripe", stripeHeader("whsec_stripe", body, time.Now()), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, rc.Outcome)
	assert.Equal(t, []string{"shp_s/pi_123"}, co.confirms)
}

func TestParseStripePaymentFailed(t *testing.T) {
	body := []byte(`{"id":"evt_s2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_9",` +
		`"status":"requires_payment_method","metadata":{"shipment_id":"shp_f"},"last_payment_error":{"message":"Your card was declined."}}}}`)
	ev, err := ParseStripe(body)
	require.NoError(t, err)
	assert.Equal(t, TypePaymentFailed, ev.Type)
	assert.Equal(t, "shp_f", ev.ShipmentRef)
	assert.Equal(t, "pi_9", ev.PaymentID)
	assert.Equal(t, "Your card was declined.", ev.Description)
}

func TestParseHostedStatuses(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"paid", TypePaymentCaptured},
		{"settlement", TypePaymentCaptured},
		{"failed", TypePaymentFailed},
		{"expired", TypePaymentFailed},
		{"pending", "payment.updated"},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			body := []byte(`{"id":"evt","type":"payment.updated","data":{"id":"pay","status":"` + tc.status + `","reference":"shp"}}`)
			ev, err := ParseHosted(body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.Type)
		})
	}
}

type cacheRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (c *cacheRecorder) Invalidate(_ context.Context, shipmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, shipmentID)
}

func seedShipment(t *testing.T, store *shipments.MemoryStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreateCheckout(context.Background(),
		&shipments.Shipment{ID: id, QuoteID: "q_" + id, Carrier: "fedex", TrackingNumber: "SHP-20260305-" + id, Status: shipments.ShipmentProcessing},
		&shipments.Invoice{ID: "inv_" + id, ShipmentID: id, Status: shipments.InvoicePending},
		&shipments.CheckoutSession{ShipmentID: id, QuoteID: "q_" + id, Status: shipments.StatusAwaitingPayment},
		shipments.StatusEvent{ShipmentID: id, Status: "CHECKOUT_INITIATED", Source: "checkout", OccurredAt: now}))
}

func seedBooked(t *testing.T, store *shipments.MemoryStore, id, carrierTracking string) {
	t.Helper()
	seedShipment(t, store, id)
	now := time.Now().UTC()
	require.NoError(t, store.CompleteBooking(context.Background(), id, shipments.Booking{CarrierTrackingNumber: carrierTracking},
		shipments.InvoicePaid, &now, shipments.StatusEvent{ShipmentID: id, Status: "CONFIRMED", Source: "checkout", OccurredAt: now}))
}

func fedexScan(eventID, trackingNumber, code string) []byte {
	return []byte(`{"eventId":"` + eventID + `","eventType":"TRACKING_UPDATE","trackingNumber":"` + trackingNumber + `",` +
		`"scanEvent":{"derivedStatusCode":"` + code + `","eventDescription":"scan","date":"2026-03-05T14:00:00Z"}}`)
}

func TestLateScanDoesNotReopenDeliveredShipment(t *testing.T) {
	ctx := context.Background()
	r, store := newReconciler(&fakeCheckout{})
	cache := &cacheRecorder{}
	r.Cache = cache
	r.Register(FedExSource("fx_secret", hmacVerifier("fx_secret")))
	seedBooked(t, store, "shp_late", "794600000002")

	for i, code := range []string{"DL", "IT"} {
		body := fedexScan(fmt.Sprintf("fx-late-%d", i), "794600000002", code)
		rc, err := r.Receive(ctx, "fedex", hmacsig.Sign("fx_secret", body), body)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, rc.Outcome)
	}

	sh, err := store.GetShipment(ctx, "shp_late")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentDelivered, sh.Status)

	hist, err := store.ListStatusHistory(ctx, "shp_late")
	require.NoError(t, err)
	assert.Equal(t, "IT", hist[len(hist)-1].Status)
	assert.Equal(t, []string{"shp_late", "shp_late"}, cache.ids)
	assert.Equal(t, []string{shipments.TopicTrackingUpdated}, r.Events.(*topicRecorder).topics)
}

func TestScanNeverMovesFailedCheckout(t *testing.T) {
	ctx := context.Background()
	r, store := newReconciler(&fakeCheckout{})
	r.Register(FedExSource("fx_secret", hmacVerifier("fx_secret")))
	seedShipment(t, store, "shp_dead")
	require.NoError(t, store.MarkFailed(ctx, "shp_dead", "carrier booking failed"))

	// nomor lokal SHP-... bukan nomor carrier
	body := fedexScan("fx-dead-1", "SHP-20260305-shp_dead", "DL")
	rc, err := r.Receive(ctx, "fedex", hmacsig.Sign("fx_secret", body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, rc.Outcome)

	body = []byte(`{"deliveryId":"m-dead-1","type":"tracking.updated","shipmentId":"shp_dead","status":"DL"}`)
	rc, err = r.Receive(ctx, "mock", hmacsig.Sign(secret, body), body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, rc.Outcome)

	sh, err := store.GetShipment(ctx, "shp_dead")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentFailed, sh.Status)
}

func TestPaymentEventsInvalidateShipmentCache(t *testing.T) {
	r, _ := newReconciler(&fakeCheckout{})
	cache := &cacheRecorder{}
	r.Cache = cache

	for _, body := range [][]byte{
		[]byte(`{"deliveryId":"c1","type":"payment.captured","shipmentId":"shp_c1","paymentId":"mock_pay_c1"}`),
		[]byte(`{"deliveryId":"c2","type":"payment.failed","shipmentId":"shp_c2"}`),
	} {
		rc, err := r.Receive(context.Background(), "mock", hmacsig.Sign(secret, body), body)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, rc.Outcome)
	}
	assert.Equal(t, []string{"shp_c1", "shp_c2"}, cache.ids)
}
