package shipments

type CheckoutStatus string

const (
	StatusQuoted            CheckoutStatus = "QUOTED"
	StatusCheckoutInitiated CheckoutStatus = "CHECKOUT_INITIATED"
	StatusAwaitingPayment   CheckoutStatus = "AWAITING_PAYMENT"
	StatusConfirmed         CheckoutStatus = "CONFIRMED"
	StatusFailed            CheckoutStatus = "FAILED"
)

var validNext = map[CheckoutStatus]map[CheckoutStatus]bool{
	StatusQuoted:            {StatusCheckoutInitiated: true, StatusFailed: true},
	StatusCheckoutInitiated: {StatusAwaitingPayment: true, StatusFailed: true},
	StatusAwaitingPayment:   {StatusConfirmed: true, StatusFailed: true},
	StatusConfirmed:         {},
	StatusFailed:            {},
}

func CanTransition(from, to CheckoutStatus) bool {
	return validNext[from][to]
}

func (s CheckoutStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type QuoteStatus string

const (
	QuoteReserved QuoteStatus = "reserved"
	QuoteConsumed QuoteStatus = "consumed"
	QuoteExpired  QuoteStatus = "expired"
)

type ShipmentStatus string

const (
	ShipmentProcessing ShipmentStatus = "processing"
	ShipmentBooked     ShipmentStatus = "booked"
	ShipmentInTransit  ShipmentStatus = "in_transit"
	ShipmentDelivered  ShipmentStatus = "delivered"
	ShipmentException  ShipmentStatus = "exception"
	ShipmentCancelled  ShipmentStatus = "cancelled"
	ShipmentFailed     ShipmentStatus = "failed"
)

// Final: carrier updates no longer move the shipment.
func (s ShipmentStatus) Final() bool {
	switch s {
	case ShipmentDelivered, ShipmentCancelled, ShipmentFailed:
		return true
	}
	return false
}

// Tracked: booked with a carrier and still moving, so carrier scans may
// change the status.
func (s ShipmentStatus) Tracked() bool {
	switch s {
	case ShipmentBooked, ShipmentInTransit, ShipmentException:
		return true
	}
	return false
}

// NormalizeTrackingStatus memetakan status carrier ke status shipment lokal.
// Status yang tidak dikenal -> "" (history tetap dicatat, shipment tidak diubah).
func NormalizeTrackingStatus(s string) ShipmentStatus {
	switch s {
	case "IN_TRANSIT", "in_transit", "IT", "PU", "OD", "picked_up", "out_for_delivery":
		return ShipmentInTransit
	case "DELIVERED", "delivered", "DL":
		return ShipmentDelivered
	case "EXCEPTION", "exception", "DE", "SE":
		return ShipmentException
	case "CANCELLED", "cancelled", "CA":
		return ShipmentCancelled
	}
	return ""
}

type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceVoid    InvoiceStatus = "void"
)
