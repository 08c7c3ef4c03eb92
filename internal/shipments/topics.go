package shipments

const (
	TopicShipmentConfirmed = "shipment.confirmed"
	TopicCheckoutFailed    = "shipment.checkout.failed"
	TopicInvoiceFinalized  = "billing.invoice.finalized"
	TopicTrackingUpdated   = "shipment.tracking.updated"
)

// Partition key = shipment_id, supaya semua event 1 shipment maintain urutan.
func PartitionKey(shipmentID string) []byte { return []byte(shipmentID) }
