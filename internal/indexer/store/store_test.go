package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func commit(t *testing.T, b *index.Builder, docs ...string) *index.Generation {
	t.Helper()
	for i, content := range docs {
		_, err := b.AddDocument(fmt.Sprintf("doc%d.md", i), content)
		require.NoError(t, err)
	}
	gen, err := b.Commit()
	require.NoError(t, err)
	return gen
}

func TestNewStoreServesEmptyGeneration(t *testing.T) {
	s := New()
	h := s.Acquire()
	defer h.Release()
	assert.Equal(t, 0, h.Generation().DocCount())
	assert.Equal(t, uint64(0), s.Active())
	assert.Equal(t, 1, s.Retained())
}

func TestHandleSurvivesActivation(t *testing.T) {
	var retired []uint64
	s := New(WithRetireHook(func(g *index.Generation) { retired = append(retired, g.ID()) }))

	first := commit(t, s.NewBuilder(), "old content")
	require.NoError(t, s.Publish(first))

	h := s.Acquire()
	second := commit(t, s.NewBuilder(), "new content")
	require.NoError(t, s.Publish(second))

	assert.Equal(t, uint64(2), s.Active())
	assert.Equal(t, uint64(1), h.Generation().ID(), "held handle still sees its generation")
	assert.NotNil(t, h.Generation().Postings(index.FieldContent, "old"))
	assert.Equal(t, 2, s.Retained())
	assert.Equal(t, []uint64{0}, retired)

	h.Release()
	h.Release()
	assert.Equal(t, 1, s.Retained())
	assert.Equal(t, []uint64{0, 1}, retired)
}

func TestPublishDetectsConflict(t *testing.T) {
	s := New()
	a := s.NewBuilder()
	b := s.NewBuilder()

	require.NoError(t, s.Publish(commit(t, a, "from a")))
	err := s.Publish(commit(t, b, "from b"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCommitConflict)
	assert.Equal(t, uint64(1), s.Active())
	assert.Equal(t, 1, s.Retained())

	retry := s.NewBuilder()
	require.NoError(t, s.Publish(commit(t, retry, "from b")))
	assert.Equal(t, uint64(2), s.Active())

	h := s.Acquire()
	defer h.Release()
	assert.Equal(t, 2, h.Generation().DocCount(), "rebuilt generation includes the winner's documents")
}

func TestActivateIsUnconditional(t *testing.T) {
	s := New()
	gen := commit(t, index.NewBuilder(), "standalone")
	s.Activate(gen)
	s.Activate(gen)
	assert.Equal(t, uint64(1), s.Active())
}

func TestConcurrentReadersNeverSeeTornGeneration(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	var stop atomic.Bool
	var bad atomic.Int64

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				h := s.Acquire()
				gen := h.Generation()
				// Every generation n holds exactly n documents containing "term".
				if gen.DocFreq(index.FieldContent, "term") != gen.DocCount() {
					bad.Add(1)
				}
				h.Release()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		b := s.NewBuilder()
		_, err := b.AddDocument(fmt.Sprintf("d%d.md", i), "term")
		require.NoError(t, err)
		gen, err := b.Commit()
		require.NoError(t, err)
		require.NoError(t, s.Publish(gen))
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, bad.Load())
	assert.Equal(t, uint64(50), s.Active())
	assert.Equal(t, 1, s.Retained())
}
