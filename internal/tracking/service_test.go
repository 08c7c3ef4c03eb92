package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shipment-booking/internal/carrier"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

var now = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type topics []string

func (t *topics) Publish(topic string, _, _ []byte) { *t = append(*t, topic) }

func booked(t *testing.T, store *shipments.MemoryStore, id, carrierTN string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateCheckout(ctx,
		&shipments.Shipment{ID: id, QuoteID: "q_" + id, Carrier: "fedex", Status: shipments.ShipmentProcessing},
		&shipments.Invoice{ID: "inv_" + id, ShipmentID: id, Status: shipments.InvoicePending},
		&shipments.CheckoutSession{ShipmentID: id, QuoteID: "q_" + id, Status: shipments.StatusAwaitingPayment},
		shipments.StatusEvent{ShipmentID: id, Status: "CHECKOUT_INITIATED", Source: "checkout", OccurredAt: now}))
	if carrierTN == "" {
		return
	}
	require.NoError(t, store.CompleteBooking(ctx, id, shipments.Booking{CarrierTrackingNumber: carrierTN},
		shipments.InvoicePaid, &now, shipments.StatusEvent{ShipmentID: id, Status: "CONFIRMED", Source: "checkout", OccurredAt: now}))
}

func newService(store *shipments.MemoryStore, pub *topics) *Service {
	m := carrier.NewMock("fedex", "FedEx", "USD")
	m.Now = func() time.Time { return now }
	return &Service{Store: store, Carriers: carrier.NewRegistry(nil, m), Events: pub, Producer: "shipment-api"}
}

func TestTrackAppendsOnlyOnChange(t *testing.T) {
	store := shipments.NewMemoryStore()
	booked(t, store, "shp_1", "MOCK000000000001")
	pub := &topics{}
	svc := newService(store, pub)
	ctx := context.Background()

	tr, err := svc.Track(ctx, "shp_1", "tracking")
	require.NoError(t, err)
	assert.Equal(t, "IN_TRANSIT", tr.Status)
	assert.Len(t, tr.Events, 2)

	sh, err := store.GetShipment(ctx, "shp_1")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentInTransit, sh.Status)

	_, err = svc.Track(ctx, "shp_1", "tracking")
	require.NoError(t, err)

	hist, err := store.ListStatusHistory(ctx, "shp_1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "MEMPHIS, TN", hist[2].Location)
	assert.Equal(t, "tracking", hist[2].Source)
	assert.Equal(t, topics{shipments.TopicTrackingUpdated}, *pub)
}

func TestTrackRequiresBooking(t *testing.T) {
	store := shipments.NewMemoryStore()
	booked(t, store, "shp_2", "")
	svc := newService(store, &topics{})

	_, err := svc.Track(context.Background(), "shp_2", "tracking")
	assert.True(t, shipments.IsValidation(err))
}

func TestRefreshActive(t *testing.T) {
	store := shipments.NewMemoryStore()
	booked(t, store, "shp_a", "MOCK000000000002")
	booked(t, store, "shp_b", "MOCK000000000003")
	booked(t, store, "shp_c", "")
	svc := newService(store, &topics{})

	updated, failed, err := svc.RefreshActive(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Zero(t, failed)

	// kedua kalinya tidak ada perubahan status
	updated, _, err = svc.RefreshActive(context.Background(), 50)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestCancelOnlyBooked(t *testing.T) {
	store := shipments.NewMemoryStore()
	booked(t, store, "shp_x", "MOCK000000000009")
	booked(t, store, "shp_y", "")
	pub := &topics{}
	svc := newService(store, pub)
	ctx := context.Background()

	sh, err := svc.Cancel(ctx, "shp_x")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentCancelled, sh.Status)
	assert.Equal(t, topics{shipments.TopicTrackingUpdated}, *pub)

	// idempotent
	_, err = svc.Cancel(ctx, "shp_x")
	require.NoError(t, err)
	assert.Len(t, *pub, 1)

	_, err = svc.Cancel(ctx, "shp_y")
	assert.ErrorIs(t, err, shipments.ErrInvalidTransition)

	_, err = svc.Cancel(ctx, "nope")
	assert.ErrorIs(t, err, shipments.ErrNotFound)
}

func TestCancelRejectedByCarrier(t *testing.T) {
	store := shipments.NewMemoryStore()
	booked(t, store, "shp_z", "794600000001")
	svc := newService(store, &topics{})

	_, err := svc.Cancel(context.Background(), "shp_z")
	assert.True(t, shipments.IsProviderRejection(err))

	sh, err := store.GetShipment(context.Background(), "shp_z")
	require.NoError(t, err)
	assert.Equal(t, shipments.ShipmentBooked, sh.Status)
}
