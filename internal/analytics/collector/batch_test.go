package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func search(q string) analytics.Event {
	return analytics.NewSearchEvent(analytics.SearchEvent{Query: q})
}

func TestFullBatchFlushesEarly(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track(search("a"))
	bc.Track(search("b"))
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	bc.Track(search("c"))
	cancel()
	bc.Close()
	assert.Equal(t, 3, pub.count(), "shutdown flushes the rest")
	assert.Equal(t, "search", pub.batches[0][0].Key)
}

func TestFailedFlushRequeuesBounded(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	bc := NewBatchCollector(pub, 2, time.Hour)
	for i := 0; i < 10; i++ {
		bc.Track(search("q"))
	}
	bc.Flush(context.Background())
	assert.Equal(t, 6, bc.BufferLen())

	pub.err = nil
	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Equal(t, 6, pub.count())
}
