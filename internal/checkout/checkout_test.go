package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/payment"
	"github.com/ariefcatur/go-shipment-booking/internal/pricing"
	"github.com/ariefcatur/go-shipment-booking/internal/quote"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type countingCarrier struct {
	*carrier.Mock
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingCarrier) CreateShipment(ctx context.Context, o carrier.ShipmentOrder) (*carrier.ShipmentResult, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.Mock.CreateShipment(ctx, o)
}

type stubGateway struct {
	*payment.MockGateway
	mu        sync.Mutex
	status       payment.Status
	createErr    error
	clientSecret string
	refunds      int
}

func (g *stubGateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Payment, error) {
	g.mu.Lock()
	err, secret := g.createErr, g.clientSecret
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p, err := g.MockGateway.CreatePayment(ctx, req)
	if p != nil && secret != "" {
		p.ClientSecret = p.ID + "_secret_" + secret
	}
	return p, err
}

func (g *stubGateway) VerifyPayment(_ context.Context, _ string) (payment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, nil
}

func (g *stubGateway) RefundPayment(_ context.Context, _ string, _ int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds++
	return true, nil
}

func (g *stubGateway) set(status payment.Status, createErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
	g.createErr = createErr
}

type published struct {
	topic string
	key   string
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, _ []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key)})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	svc     *Service
	store   *shipments.MemoryStore
	quotes  *quote.Service
	carrier *countingCarrier
	gw      *stubGateway
	pub     *recordingPublisher
	clock   *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: start}
	m := carrier.NewMock("fedex", "FedEx", "USD")
	m.Now = c.Now
	cc := &countingCarrier{Mock: m}
	gw := &stubGateway{MockGateway: payment.NewMockGateway("whsec"), status: payment.StatusPaid}
	pub := &recordingPublisher{}
	store := shipments.NewMemoryStore()
	quotes := &quote.Service{Store: quote.NewMemoryStore(), TTL: 15 * time.Minute, Now: c.Now}
	svc := &Service{
		Store:         store,
		Quotes:        quotes,
		Carriers:      carrier.NewRegistry(zap.NewNop(), cc),
		Payments:      gw,
		Events:        pub,
		Log:           zap.NewNop(),
		PublicBaseURL: "http://api.test",
		Producer:      "shipment-api",
		Now:           c.Now,
	}
	return &harness{svc: svc, store: store, quotes: quotes, carrier: cc, gw: gw, pub: pub, clock: c}
}

func (h *harness) quoteID(t *testing.T) string {
	t.Helper()
	req := shipments.ShipmentRequest{
		Shipper:       shipments.ShippingAddress{Name: "Ops", StreetLines: []string{"1 Main St"}, City: "Memphis", State: "TN", PostalCode: "38116", CountryCode: "US"},
		Recipient:     shipments.ShippingAddress{Name: "Ana", StreetLines: []string{"5 Broadway"}, City: "New York", State: "NY", PostalCode: "10001", CountryCode: "US"},
		Packages:      []shipments.PackageDetails{{Weight: 2, WeightUnit: "KG", Count: 1}},
		ClientProfile: "standard",
	}
	opts := []shipments.RateQuoteOption{{
		Carrier: "fedex", CarrierName: "FedEx", ServiceType: "FEDEX_GROUND", ServiceName: "FedEx Ground",
		Currency: "USD", BaseRate: 10, MarginPercentage: 30, MarginAmount: 3, FinalPrice: 13,
	}}
	rs, _, err := h.quotes.Reserve(context.Background(), opts, req)
	require.NoError(t, err)
	return rs[0].QuoteID
}

func (h *harness) awaitingPayment(t *testing.T) string {
	t.Helper()
	res, err := h.svc.Checkout(context.Background(), h.quoteID(t))
	require.NoError(t, err)
	require.False(t, res.PaymentDeferred)
	return res.Shipment.ID
}

func TestCheckoutCreatesSessionAndPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Checkout(ctx, h.quoteID(t))
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusAwaitingPayment, res.Session.Status)
	assert.True(t, strings.HasPrefix(res.Session.PaymentID, "mock_pay_"))
	assert.Equal(t, int64(1300), res.Session.AmountMinor)
	assert.Regexp(t, `^SHP-20260302-[0-9A-F]{8}$`, res.Shipment.TrackingNumber)
	assert.Equal(t, shipments.ShipmentProcessing, res.Shipment.Status)

	inv, err := h.store.GetInvoiceByShipment(ctx, res.Shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.InvoicePending, inv.Status)
	assert.Equal(t, int64(1300), inv.AmountMinor)
	assert.Equal(t, res.Session.PaymentID, inv.PaymentID)
}

func TestCheckoutKeepsClientSecret(t *testing.T) {
	h := newHarness(t)
	h.gw.clientSecret = "abc"
	ctx := context.Background()

	res, err := h.svc.Checkout(ctx, h.quoteID(t))
	require.NoError(t, err)
	assert.Equal(t, res.Session.PaymentID+"_secret_abc", res.Session.ClientSecret)

	// retry payment mengembalikan session yang sama, secret ikut
	sess, err := h.svc.InitiatePayment(ctx, res.Shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ClientSecret, sess.ClientSecret)
}

func TestBookedPriceIsTheQuotedPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rules := pricing.NewStaticSource(pricing.DefaultRules()...)
	rater := &quote.Rater{
		Carriers: carrier.NewRegistry(zap.NewNop(), h.carrier),
		Pricing:  &pricing.Engine{Rules: rules, DefaultProfile: "regular"},
		Quotes:   h.quotes,
	}
	req := shipments.ShipmentRequest{
		Shipper:       shipments.ShippingAddress{Name: "Ops", StreetLines: []string{"1 Main St"}, City: "Memphis", State: "TN", PostalCode: "38116", CountryCode: "US"},
		Recipient:     shipments.ShippingAddress{Name: "Ana", StreetLines: []string{"5 Broadway"}, City: "New York", State: "NY", PostalCode: "10001", CountryCode: "US"},
		Packages:      []shipments.PackageDetails{{Weight: 4, WeightUnit: "KG", Count: 1}},
		ShipmentType:  "DOMESTIC",
		ClientProfile: "vip",
	}
	opts, _, err := rater.GetRates(ctx, req)
	require.NoError(t, err)
	quoted := opts[0]

	require.NoError(t, rules.Save(ctx, pricing.PricingRule{Profile: "vip", FlatMarginPercentage: 50}))
	repriced, _, err := rater.GetRates(ctx, req)
	require.NoError(t, err)
	require.Greater(t, repriced[0].FinalPrice, quoted.FinalPrice)

	res, err := h.svc.Checkout(ctx, quoted.QuoteID)
	require.NoError(t, err)
	assert.Equal(t, pricing.MinorUnits(quoted.FinalPrice, quoted.Currency), res.Session.AmountMinor)

	booked, err := h.svc.Confirm(ctx, res.Shipment.ID, "")
	require.NoError(t, err)
	assert.Equal(t, quoted.FinalPrice, booked.Shipment.FinalPrice)
	assert.Equal(t, quoted.MarginPercentage, booked.Shipment.MarginPercentage)

	inv, err := h.store.GetInvoiceByShipment(ctx, res.Shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Session.AmountMinor, inv.AmountMinor)
}

func TestConfirmBooksAndPublishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	res, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, carrier.MockTrackingNumber(id), res.CarrierTrackingNumber)
	assert.Equal(t, "http://api.test/shipments/"+id+"/label", res.LabelURL)
	require.NotNil(t, res.EstimatedDelivery)
	assert.Equal(t, shipments.ShipmentBooked, res.Shipment.Status)

	sess, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusConfirmed, sess.Status)
	assert.Nil(t, sess.ClaimedUntil)

	inv, err := h.store.GetInvoiceByShipment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.InvoicePaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)

	assert.Equal(t, []string{shipments.TopicShipmentConfirmed, shipments.TopicInvoiceFinalized}, h.pub.topics())
	for _, m := range h.pub.msgs {
		assert.Equal(t, id, m.key)
	}
}

func TestConfirmTwiceReplaysWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	first, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)
	second, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.CarrierTrackingNumber, second.CarrierTrackingNumber)
	assert.Equal(t, first.LabelURL, second.LabelURL)
	assert.Equal(t, int32(1), h.carrier.calls.Load())
	assert.Equal(t, 1, h.store.InvoiceTransitions)
	assert.Len(t, h.pub.topics(), 2)
}

func TestConcurrentConfirmBooksOnce(t *testing.T) {
	h := newHarness(t)
	h.carrier.delay = 20 * time.Millisecond
	id := h.awaitingPayment(t)

	const n = 10
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.Confirm(context.Background(), id, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, carrier.MockTrackingNumber(id), results[i].CarrierTrackingNumber)
	}
	assert.Equal(t, int32(1), h.carrier.calls.Load())
	assert.Equal(t, 1, h.store.InvoiceTransitions)
}

func TestConfirmWhileLeaseHeldElsewhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	// proses lain sedang memegang lease
	ok, err := h.store.ClaimConfirm(ctx, id, start, start.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.svc.Confirm(ctx, id, "")
	assert.ErrorIs(t, err, shipments.ErrConfirmInProgress)
	assert.Zero(t, h.carrier.calls.Load())

	h.clock.Advance(2 * time.Minute)
	res, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestConfirmPendingPaymentKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)
	h.gw.set(payment.StatusProcessing, nil)

	_, err := h.svc.Confirm(ctx, id, "")
	assert.ErrorIs(t, err, shipments.ErrPaymentPending)

	sess, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusAwaitingPayment, sess.Status)
	assert.Nil(t, sess.ClaimedUntil)
	assert.Zero(t, h.carrier.calls.Load())

	h.gw.set(payment.StatusPaid, nil)
	_, err = h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)
}

func TestConfirmUnpaidFailsWithoutBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)
	h.gw.set(payment.StatusCanceled, nil)

	_, err := h.svc.Confirm(ctx, id, "")
	assert.ErrorIs(t, err, shipments.ErrPaymentNotSettled)
	assert.Zero(t, h.carrier.calls.Load())

	sess, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusFailed, sess.Status)
	assert.Equal(t, []string{shipments.TopicCheckoutFailed}, h.pub.topics())

	_, err = h.svc.Confirm(ctx, id, "")
	assert.ErrorIs(t, err, shipments.ErrCheckoutFailed)
}

func TestCarrierFailureKeepsPaymentReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)
	h.carrier.err = shipments.ErrProviderUnavailable

	before, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.Confirm(ctx, id, "")
	assert.ErrorIs(t, err, shipments.ErrBookingFailed)

	sess, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusFailed, sess.Status)
	assert.Equal(t, before.PaymentID, sess.PaymentID)
	assert.Contains(t, sess.FailureReason, "carrier booking failed")
	assert.Zero(t, h.gw.refunds)

	inv, err := h.store.GetInvoiceByShipment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.InvoicePending, inv.Status)
}

func TestConfirmRejectsForeignPaymentID(t *testing.T) {
	h := newHarness(t)
	id := h.awaitingPayment(t)

	_, err := h.svc.Confirm(context.Background(), id, "pi_someone_else")
	assert.True(t, shipments.IsValidation(err))
	assert.Zero(t, h.carrier.calls.Load())
}

func TestReplayIgnoresStalePaymentID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	first, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)

	again, err := h.svc.Confirm(ctx, id, "pi_stale")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.CarrierTrackingNumber, again.CarrierTrackingNumber)
	assert.Equal(t, int32(1), h.carrier.calls.Load())
}

func TestCheckoutExpiredQuote(t *testing.T) {
	h := newHarness(t)
	qid := h.quoteID(t)
	h.clock.Advance(15 * time.Minute)

	_, err := h.svc.Checkout(context.Background(), qid)
	assert.ErrorIs(t, err, shipments.ErrQuoteExpired)
}

func TestCheckoutQuoteIsSingleUse(t *testing.T) {
	h := newHarness(t)
	qid := h.quoteID(t)

	_, err := h.svc.Checkout(context.Background(), qid)
	require.NoError(t, err)
	_, err = h.svc.Checkout(context.Background(), qid)
	assert.ErrorIs(t, err, shipments.ErrQuoteConsumed)
}

func TestPaymentDeferredWhenProviderUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.set(payment.StatusPaid, &shipments.TransientProviderError{Service: "stripe", StatusCode: 503, Err: shipments.ErrProviderUnavailable})

	res, err := h.svc.Checkout(ctx, h.quoteID(t))
	require.NoError(t, err)
	assert.True(t, res.PaymentDeferred)
	assert.Equal(t, shipments.StatusCheckoutInitiated, res.Session.Status)

	h.gw.set(payment.StatusPaid, nil)
	sess, err := h.svc.InitiatePayment(ctx, res.Shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusAwaitingPayment, sess.Status)

	again, err := h.svc.InitiatePayment(ctx, res.Shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.PaymentID, again.PaymentID)
}

func TestPaymentRejectionFailsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.set(payment.StatusPaid, &shipments.ProviderError{Service: "stripe", StatusCode: 402, Code: "card_declined", Message: "declined"})

	_, err := h.svc.Checkout(ctx, h.quoteID(t))
	require.Error(t, err)
	assert.True(t, shipments.IsProviderRejection(err))
	assert.Equal(t, []string{shipments.TopicCheckoutFailed}, h.pub.topics())
}

func TestFailPaymentIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)

	require.NoError(t, h.svc.FailPayment(ctx, id, "payment_intent.payment_failed"))
	require.NoError(t, h.svc.FailPayment(ctx, id, "payment_intent.payment_failed"))
	assert.Len(t, h.pub.topics(), 1)

	sess, err := h.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shipments.StatusFailed, sess.Status)
}

func TestFailPaymentAfterConfirmIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.awaitingPayment(t)
	_, err := h.svc.Confirm(ctx, id, "")
	require.NoError(t, err)

	err = h.svc.FailPayment(ctx, id, "late failure")
	assert.True(t, errors.Is(err, shipments.ErrInvalidTransition))
}
