package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/commission"
	"github.com/xraph/affiliate/intake/queue"
	"github.com/xraph/affiliate/store/memory"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
	once      sync.Once
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	for i := range msgs {
		msgs[i].Offset = int64(i)
	}
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	r.once.Do(func() { close(r.drained) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// run consumes until the reader is drained.
func run(t *testing.T, c *queue.Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.drained:
	case err := <-done:
		cancel()
		require.NoError(t, err)
		return
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("consumer did not drain")
	}
	cancel()
	require.NoError(t, <-done)
}

const sale = `{"transaction_type":"SALE","transaction_id":"CB-1","product_id":"54",
	"customer_wpid":"7","sponsor_wpid":"1001","commission":"248.50"}`

func TestConsumerFeedsEngine(t *testing.T) {
	accounts := memory.NewAccounts()
	accounts.AddUser("42", "1001")
	st := memory.New()
	engine := affiliate.New(st, catalog.Default(), accounts)
	require.NoError(t, engine.Start(context.Background()))

	r := newFakeReader(
		kafka.Message{Topic: "payments", Headers: []kafka.Header{{Key: "provider", Value: []byte("clickbank")}}, Value: []byte(sale)},
		kafka.Message{Topic: "clickbank", Value: []byte(sale)},
		kafka.Message{Topic: "cb", Value: []byte(`{`)},
	)
	c := queue.New(r, engine, queue.WithTopicProvider("cb", "clickbank"))
	run(t, c, r)

	assert.Equal(t, []int64{0, 1, 2}, r.commits())

	entries, err := engine.Ledger().List(context.Background(), commission.ListOpts{EarnerID: "1001"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type flaky struct {
	mu    sync.Mutex
	fails int
	calls []string
	err   error
}

func (f *flaky) Handle(_ context.Context, provider string, _ []byte) (*affiliate.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, provider)
	if f.fails > 0 {
		f.fails--
		return nil, f.err
	}
	return &affiliate.Outcome{Status: affiliate.StatusRecorded}, nil
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	p := &flaky{fails: 2, err: &affiliate.TransientError{Err: errors.New("db down")}}
	r := newFakeReader(kafka.Message{Topic: "stripe", Value: []byte(`{}`)})
	c := queue.New(r, p, queue.WithRetryBackoff(time.Millisecond))
	run(t, c, r)

	assert.Equal(t, []string{"stripe", "stripe", "stripe"}, p.calls)
	assert.Equal(t, []int64{0}, r.commits())
}

func TestConsumerDropsPermanentFailures(t *testing.T) {
	p := &flaky{fails: 1, err: errors.New("bug")}
	r := newFakeReader(
		kafka.Message{Topic: "stripe", Value: []byte(`{}`)},
		kafka.Message{Topic: "stripe", Value: []byte(`{}`)},
	)
	c := queue.New(r, p, queue.WithRetryBackoff(time.Millisecond))
	run(t, c, r)

	assert.Len(t, p.calls, 2)
	assert.Equal(t, []int64{0, 1}, r.commits())
}

func TestNewReaderValidates(t *testing.T) {
	_, err := queue.NewReader(queue.ReaderConfig{GroupID: "g", Topics: []string{"t"}})
	assert.Error(t, err)
	_, err = queue.NewReader(queue.ReaderConfig{Brokers: []string{"localhost:9092"}, Topics: []string{"t"}})
	assert.Error(t, err)
	_, err = queue.NewReader(queue.ReaderConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"})
	assert.Error(t, err)
}
