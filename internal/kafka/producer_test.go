package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Publish("shipment.confirmed", []byte("shp_1"), []byte(`{"a":1}`))
	p.Publish("billing.invoice.finalized", []byte("shp_1"), []byte(`{"b":2}`))
	p.Close()
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "shipment.confirmed", w.msgs[0].Topic)
	assert.Equal(t, "billing.invoice.finalized", w.msgs[1].Topic)
	assert.True(t, w.closed)

	// setelah close, publish di-drop tanpa panic
	assert.NotPanics(t, func() { p.Publish("x", nil, nil) })
}

func TestProducerCtxCancelCloses(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Publish("t", []byte("k"), []byte("v"))
	cancel()
	p.WaitClosed()
	assert.Len(t, w.msgs, 1)
}

func TestProducerFullInboxDrops(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 1, nil)
	// tidak di-Start: inbox cepat penuh
	p.Publish("t", nil, []byte("1"))
	assert.NotPanics(t, func() { p.Publish("t", nil, []byte("2")) })
	assert.Len(t, p.inbox, 1)
}
