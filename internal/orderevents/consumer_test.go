package orderevents

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/storefront-ledger/internal/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func encode(t *testing.T, evt Event) []byte {
	t.Helper()
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return raw
}

func TestConsumerCommitsHandledAndPoisonMessages(t *testing.T) {
	handler, db := newTestHandler(t, nil)
	users, _ := ledgertest.CreateChain(t, db, 2, baseTime)
	orderID := ledgertest.CreateOrder(t, db, users[1], "paid", "1000.00", baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: []byte("not json")},
			{Offset: 2, Value: encode(t, Event{OrderID: orderID, Type: TypeOrderPaid})},
			{Offset: 3, Value: []byte(`{"order_id":"` + uuid.NewString() + `","type":"ORDER.PAID"}`)},
		},
	}
	consumer := NewConsumer(reader, handler, zap.NewNop())

	require.NoError(t, consumer.Run(ctx))
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.True(t, ledgertest.Dec("80").Equal(ledgertest.Balance(t, db, users[0])))
}

func TestConsumerGivesUpAfterRetries(t *testing.T) {
	handler, db := newTestHandler(t, failingCommission{})
	userID := ledgertest.CreateAccount(t, db, ledgertest.AccountSeed{})
	orderID := ledgertest.CreateOrder(t, db, userID, "paid", "100.00", baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel:   cancel,
		messages: []kafka.Message{{Offset: 7, Value: encode(t, Event{OrderID: orderID, Type: TypeOrderPaid})}},
	}
	consumer := NewConsumer(reader, handler, zap.NewNop())
	consumer.backoff = 0

	require.NoError(t, consumer.Run(ctx))
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestDecodeEventNormalizesType(t *testing.T) {
	id := uuid.New()
	evt, err := DecodeEvent([]byte(`{"order_id":"` + id.String() + `","type":" Order.Refunded "}`))
	require.NoError(t, err)
	assert.Equal(t, TypeOrderRefunded, evt.Type)
	assert.Equal(t, id, evt.OrderID)

	_, err = DecodeEvent([]byte(`{"order_id":"` + id.String() + `","type":"order.created"}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestHeaderValueIsCaseInsensitive(t *testing.T) {
	headers := []kafka.Header{
		{Key: "x-correlation-id", Value: []byte("evt-1")},
		{Key: "trace_id", Value: []byte("abc")},
	}

	assert.Equal(t, "evt-1", headerValue(headers, "X-Correlation-ID"))
	assert.Equal(t, "abc", headerValue(headers, "trace_id"))
	assert.Empty(t, headerValue(headers, "span_id"))
}
