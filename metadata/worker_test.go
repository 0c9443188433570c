package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/zunokit/evm-nft-indexer/shared/contracts"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/messaging"
)

type fakeConsumer struct {
	queue   string
	tag     string
	handler messaging.MessageHandler
}

func (c *fakeConsumer) Consume(queueName, consumerTag string, handler messaging.MessageHandler) error {
	c.queue = queueName
	c.tag = consumerTag
	c.handler = handler
	return nil
}

func TestWorkerRunRegistersOnMetadataFetchQueue(t *testing.T) {
	mq := &fakeConsumer{}
	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	w := NewWorker(mq, f, logging.Default(), nil)

	if err := w.Run("metadata-worker"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if mq.queue != contracts.MetadataFetchQueue {
		t.Fatalf("queue = %q, want %q", mq.queue, contracts.MetadataFetchQueue)
	}
	if mq.tag != "metadata-worker" {
		t.Fatalf("consumer tag = %q", mq.tag)
	}
	if mq.handler == nil {
		t.Fatal("expected a handler to be registered")
	}
}

func TestWorkerHandleDeliveryContractEnvelopeIsLoggedOnly(t *testing.T) {
	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	w := NewWorker(&fakeConsumer{}, f, logging.Default(), nil)

	body := []byte(`{"contract":{"address":"0x0000000000000000000000000000000000000001"}}`)
	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("expected no error for a contract envelope, got %v", err)
	}
	if len(store.metadata) != 0 {
		t.Fatal("contract envelopes must not trigger a fetch")
	}
}

func TestWorkerHandleDeliveryTokenEnvelopeFetchesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"token 7"}`))
	}))
	defer srv.Close()

	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	w := NewWorker(&fakeConsumer{}, f, logging.Default(), nil)

	body := []byte(`{"token":{"address":"0x0000000000000000000000000000000000000001","token_id":"7","token_uri":"` + srv.URL + `/7.json"}}`)
	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("handleDelivery error: %v", err)
	}
	if len(store.metadata) != 1 {
		t.Fatalf("expected one persisted metadata row, got %d", len(store.metadata))
	}
}

func TestWorkerHandleDeliveryUnrecognizedEnvelope(t *testing.T) {
	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	w := NewWorker(&fakeConsumer{}, f, logging.Default(), nil)

	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: []byte(`{"unrelated":true}`)}); err == nil {
		t.Fatal("expected an error for an unrecognized envelope")
	}
}

func TestWorkerHandleDeliveryMalformedTokenFields(t *testing.T) {
	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	w := NewWorker(&fakeConsumer{}, f, logging.Default(), nil)

	body := []byte(`{"token":{"address":"not-an-address","token_id":"7"}}`)
	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: body}); err == nil {
		t.Fatal("expected an error for an invalid contract address")
	}
}

type fakeDedupeCache struct {
	seen map[string]bool
	sets int
}

func newFakeDedupeCache() *fakeDedupeCache {
	return &fakeDedupeCache{seen: make(map[string]bool)}
}

func (c *fakeDedupeCache) Exists(_ context.Context, keys ...string) (int64, error) {
	var n int64
	for _, k := range keys {
		if c.seen[k] {
			n++
		}
	}
	return n, nil
}

func (c *fakeDedupeCache) Set(_ context.Context, key, _ string, _ time.Duration) error {
	c.seen[key] = true
	c.sets++
	return nil
}

func TestWorkerHandleDeliverySkipsDuplicateWithinWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"token 7"}`))
	}))
	defer srv.Close()

	store := newFakeFetcherStore()
	f := New(DefaultConfig(), store, logging.Default(), nil)
	dedupe := newFakeDedupeCache()
	w := NewWorker(&fakeConsumer{}, f, logging.Default(), dedupe)

	body := []byte(`{"token":{"address":"0x0000000000000000000000000000000000000001","token_id":"7","token_uri":"` + srv.URL + `/7.json"}}`)

	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("first handleDelivery error: %v", err)
	}
	if len(store.metadata) != 1 {
		t.Fatalf("expected one fetch on first delivery, got %d", len(store.metadata))
	}

	if err := w.handleDelivery(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("second handleDelivery error: %v", err)
	}
	if len(store.metadata) != 1 {
		t.Fatalf("expected the duplicate delivery to be skipped, got %d fetches", len(store.metadata))
	}
	if dedupe.sets != 1 {
		t.Fatalf("expected exactly one dedupe key to be recorded, got %d", dedupe.sets)
	}
}
