package shipments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process implementation of the storage collaborator.
// It backs STORAGE_DRIVER=memory (demo mode) and the package tests.
type MemoryStore struct {
	mu        sync.Mutex
	shipments map[string]*Shipment
	sessions  map[string]*CheckoutSession
	invoices  map[string]*Invoice // by shipment id
	history   map[string][]StatusEvent
	webhooks  map[string]*WebhookEvent // by id
	deliv     map[string]string        // source|delivery -> id
	quotes    map[string]string        // quote id -> shipment id

	// InvoiceTransitions counts invoice status writes, for assertions.
	InvoiceTransitions int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shipments: map[string]*Shipment{},
		sessions:  map[string]*CheckoutSession{},
		invoices:  map[string]*Invoice{},
		history:   map[string][]StatusEvent{},
		webhooks:  map[string]*WebhookEvent{},
		deliv:     map[string]string{},
		quotes:    map[string]string{},
	}
}

func (m *MemoryStore) CreateCheckout(_ context.Context, sh *Shipment, inv *Invoice, s *CheckoutSession, ev StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quotes[sh.QuoteID]; ok {
		return ErrAlreadyExists
	}
	shc, invc, sc := *sh, *inv, *s
	m.shipments[sh.ID] = &shc
	m.invoices[sh.ID] = &invc
	m.sessions[sh.ID] = &sc
	m.quotes[sh.QuoteID] = sh.ID
	m.history[sh.ID] = append(m.history[sh.ID], ev)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, shipmentID string) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[shipmentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetShipment(_ context.Context, id string) (*Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (m *MemoryStore) GetShipmentByCarrierTracking(_ context.Context, trackingNumber string) (*Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sh := range m.shipments {
		if trackingNumber != "" && sh.CarrierTrackingNumber == trackingNumber {
			cp := *sh
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetInvoiceByShipment(_ context.Context, shipmentID string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[shipmentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) SetPayment(_ context.Context, shipmentID string, p PaymentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[shipmentID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != StatusCheckoutInitiated {
		return ErrInvalidTransition
	}
	s.PaymentID = p.ID
	s.TransactionURL = p.TransactionURL
	s.ClientSecret = p.ClientSecret
	s.Status = StatusAwaitingPayment
	s.UpdatedAt = time.Now().UTC()
	m.invoices[shipmentID].PaymentID = p.ID
	m.history[shipmentID] = append(m.history[shipmentID], StatusEvent{
		ShipmentID: shipmentID, Status: string(StatusAwaitingPayment), Source: "checkout", OccurredAt: s.UpdatedAt,
	})
	return nil
}

func (m *MemoryStore) ClaimConfirm(_ context.Context, shipmentID string, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[shipmentID]
	if !ok || s.Status != StatusAwaitingPayment {
		return false, nil
	}
	if s.ClaimedUntil != nil && s.ClaimedUntil.After(now) {
		return false, nil
	}
	u := until
	s.ClaimedUntil = &u
	return true, nil
}

func (m *MemoryStore) ReleaseConfirm(_ context.Context, shipmentID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[shipmentID]; ok && s.ClaimedUntil != nil && s.ClaimedUntil.Equal(until) {
		s.ClaimedUntil = nil
	}
	return nil
}

func (m *MemoryStore) CompleteBooking(_ context.Context, shipmentID string, b Booking, invStatus InvoiceStatus, paidAt *time.Time, ev StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[shipmentID]
	if !ok {
		return ErrNotFound
	}
	if s.Status != StatusAwaitingPayment {
		return ErrInvalidTransition
	}
	s.Status = StatusConfirmed
	s.ClaimedUntil = nil
	s.UpdatedAt = time.Now().UTC()

	sh := m.shipments[shipmentID]
	sh.Status = ShipmentBooked
	sh.CarrierTrackingNumber = b.CarrierTrackingNumber
	sh.LabelURL = b.LabelURL
	sh.LabelData = b.LabelData
	sh.EstimatedDelivery = b.EstimatedDelivery
	sh.UpdatedAt = s.UpdatedAt

	if inv := m.invoices[shipmentID]; inv.Status == InvoicePending {
		inv.Status = invStatus
		inv.PaidAt = paidAt
		m.InvoiceTransitions++
	}
	m.history[shipmentID] = append(m.history[shipmentID], ev)
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, shipmentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[shipmentID]
	if !ok {
		return ErrNotFound
	}
	if s.Status.Terminal() {
		return ErrInvalidTransition
	}
	s.Status = StatusFailed
	s.FailureReason = reason
	s.ClaimedUntil = nil
	s.UpdatedAt = time.Now().UTC()
	m.shipments[shipmentID].Status = ShipmentFailed
	m.history[shipmentID] = append(m.history[shipmentID], StatusEvent{
		ShipmentID: shipmentID, Status: string(StatusFailed), Description: reason, Source: "checkout", OccurredAt: s.UpdatedAt,
	})
	return nil
}

func (m *MemoryStore) AppendStatus(_ context.Context, ev StatusEvent, status ShipmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shipments[ev.ShipmentID]
	if !ok {
		return ErrNotFound
	}
	m.history[ev.ShipmentID] = append(m.history[ev.ShipmentID], ev)
	if status != "" && sh.Status.Tracked() {
		sh.Status = status
		sh.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) ListStatusHistory(_ context.Context, shipmentID string) ([]StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusEvent, len(m.history[shipmentID]))
	copy(out, m.history[shipmentID])
	return out, nil
}

func (m *MemoryStore) ListActiveShipments(_ context.Context, limit int) ([]Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Shipment
	for _, sh := range m.shipments {
		switch sh.Status {
		case ShipmentBooked, ShipmentInTransit, ShipmentException:
			if sh.CarrierTrackingNumber != "" {
				out = append(out, *sh)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertWebhookEvent(_ context.Context, ev *WebhookEvent) (*WebhookEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ev.Source + "|" + ev.DeliveryID
	if id, ok := m.deliv[key]; ok {
		cp := *m.webhooks[id]
		return &cp, false, nil
	}
	cp := *ev
	m.webhooks[ev.ID] = &cp
	m.deliv[key] = ev.ID
	out := cp
	return &out, true, nil
}

func (m *MemoryStore) GetWebhookEvent(_ context.Context, id string) (*WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.webhooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *MemoryStore) MarkWebhookProcessed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	if !ev.Processed {
		ev.Processed = true
		ev.ProcessedAt = &at
		ev.Error = ""
	}
	return nil
}

func (m *MemoryStore) MarkWebhookFailure(_ context.Context, id, msg string, maxRetries int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.webhooks[id]
	if !ok || ev.Processed {
		return 0, false, ErrNotFound
	}
	ev.RetryCount++
	ev.Error = msg
	ev.Failed = ev.RetryCount >= maxRetries
	return ev.RetryCount, ev.Failed, nil
}

func (m *MemoryStore) ListRetryableWebhooks(_ context.Context, maxRetries, limit int) ([]WebhookEvent, error) {
	return m.filterWebhooks(limit, func(ev *WebhookEvent) bool {
		return !ev.Processed && !ev.Failed && ev.RetryCount < maxRetries
	}), nil
}

func (m *MemoryStore) ListFailedWebhooks(_ context.Context, limit int) ([]WebhookEvent, error) {
	return m.filterWebhooks(limit, func(ev *WebhookEvent) bool { return ev.Failed }), nil
}

func (m *MemoryStore) filterWebhooks(limit int, keep func(*WebhookEvent) bool) []WebhookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WebhookEvent
	for _, ev := range m.webhooks {
		if keep(ev) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
