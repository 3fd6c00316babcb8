package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	failNext  bool
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	close(r.drained)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("broker unavailable")
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumerCommitsOnlyOnCheckpoint(t *testing.T) {
	r := &fakeReader{
		queue: []kafka.Message{
			{Offset: 1, Value: []byte(`ok`)},
			{Offset: 2, Value: []byte(`bad`)},
			{Offset: 3, Value: []byte(`retry`)},
		},
		drained: make(chan struct{}),
	}
	var handled []string
	c := newConsumer(r, "docs", func(_ context.Context, _ []byte, value []byte) error {
		handled = append(handled, string(value))
		switch string(value) {
		case "bad":
			return ErrSkip
		case "retry":
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	<-r.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"ok", "bad", "retry"}, handled)
	assert.Empty(t, r.committed, "nothing acknowledged before checkpoint")

	r.failNext = true
	require.Error(t, c.Checkpoint(context.Background()))
	assert.Empty(t, r.committed)

	require.NoError(t, c.Checkpoint(context.Background()))
	require.Len(t, r.committed, 2)
	assert.Equal(t, int64(1), r.committed[0].Offset)
	assert.Equal(t, int64(2), r.committed[1].Offset)

	require.NoError(t, c.Checkpoint(context.Background()))
	assert.Len(t, r.committed, 2)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "docs")
	type payload struct {
		Filename string `json:"filename"`
	}
	require.NoError(t, p.Publish(context.Background(), Event{Key: "a.md", Value: payload{Filename: "a.md"}}))
	require.NoError(t, p.PublishBatch(context.Background(), nil))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a.md", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"filename":"a.md"}`, string(w.msgs[0].Value))

	decoded, err := DecodeJSON[payload](w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "a.md", decoded.Filename)

	_, err = DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}

func TestBrokersPing(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, Brokers(nil).Ping(ctx))

	err := Brokers{"127.0.0.1:1"}.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
