// Package accounting pushes finalized invoices to the accounting system.
package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shipment-booking/internal/integlog"
	"github.com/ariefcatur/go-shipment-booking/internal/outbound"
	"github.com/ariefcatur/go-shipment-booking/internal/retry"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

// Forwarder delivers one invoice. Implementations must tolerate the same
// invoice twice; the invoice id is passed along as idempotency key.
type Forwarder interface {
	Forward(ctx context.Context, inv shipments.InvoiceFinalizedPayload) error
	Close() error
}

// HTTPForwarder posts invoices to a REST accounting endpoint.
type HTTPForwarder struct {
	Client *outbound.Client
	APIKey string
}

func (f *HTTPForwarder) Forward(ctx context.Context, inv shipments.InvoiceFinalizedPayload) error {
	h := http.Header{}
	h.Set("Idempotency-Key", "invoice:"+inv.InvoiceID)
	if f.APIKey != "" {
		h.Set("Authorization", "Bearer "+f.APIKey)
	}
	_, err := f.Client.Do(ctx, outbound.Request{Method: http.MethodPost, Path: "/invoices", Header: h, JSON: inv}, nil)
	return err
}

func (f *HTTPForwarder) Close() error { return nil }

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder publishes invoices to a durable RabbitMQ queue.
type AMQPForwarder struct {
	conn  *amqp.Connection
	ch    amqpPublisher
	queue string
	retry retry.Policy
	log   *integlog.Logger

	mu sync.Mutex
}

func NewAMQPForwarder(url, queue string, policy retry.Policy, log *integlog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	// durable, tidak auto-delete
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	f := newAMQPForwarder(ch, queue, policy, log)
	f.conn = conn
	return f, nil
}

func newAMQPForwarder(ch amqpPublisher, queue string, policy retry.Policy, log *integlog.Logger) *AMQPForwarder {
	return &AMQPForwarder{ch: ch, queue: queue, retry: policy, log: log}
}

func (f *AMQPForwarder) Forward(ctx context.Context, inv shipments.InvoiceFinalizedPayload) error {
	body, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return f.retry.Do(ctx, "accounting-amqp", func(ctx context.Context, attempt int) error {
		started := time.Now()
		f.mu.Lock()
		err := f.ch.PublishWithContext(ctx, "", f.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    inv.InvoiceID,
			Timestamp:    started.UTC(),
			Body:         body,
		})
		f.mu.Unlock()

		entry := integlog.Entry{
			Service:        "accounting-amqp",
			Operation:      "PUBLISH " + f.queue,
			Attempt:        attempt,
			RequestPayload: string(body),
			Duration:       time.Since(started),
			Success:        err == nil,
		}
		if err != nil {
			entry.Error = err.Error()
			err = &shipments.TransientProviderError{Service: "accounting-amqp", Err: err}
		}
		f.log.Record(ctx, entry)
		return err
	})
}

func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.ch.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LogForwarder only logs; dipakai kalau accounting belum dikonfigurasi.
type LogForwarder struct {
	Log *zap.Logger
}

func (f *LogForwarder) Forward(_ context.Context, inv shipments.InvoiceFinalizedPayload) error {
	f.Log.Info("invoice finalized (accounting not configured)",
		zap.String("invoice_id", inv.InvoiceID), zap.String("shipment_id", inv.ShipmentID),
		zap.Int64("amount_minor", inv.AmountMinor), zap.String("currency", inv.Currency))
	return nil
}

func (f *LogForwarder) Close() error { return nil }
