package redisx

import "time"

const (
	// Quote reservation: hash quote:{quote_id} -> status, expires_at (unix ms), data (json)
	KeyQuote = "quote:%s"

	// Cache read shipment: shipment:{shipment_id} -> json shipment + session status
	KeyShipmentCache = "shipment:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id atau source:delivery_id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLQuoteRetention = 24 * time.Hour
	TTLShipmentCache  = 1 * time.Minute
	TTLDedup          = 48 * time.Hour
)
