// Package store holds the active index generation. Readers acquire
// reference-counted handles without taking locks; writers swap the active
// pointer atomically, and a replaced generation is retired once its last
// handle is released.
package store

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// entry pairs a generation with its reference count. The store's active
// pointer owns one reference; every live Handle owns one more.
type entry struct {
	gen  *index.Generation
	refs atomic.Int64
}

// tryRetain takes a reference unless the count already dropped to zero,
// in which case the entry is retired and must not be revived.
func (e *entry) tryRetain() bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Store publishes generations to concurrent readers.
type Store struct {
	active   atomic.Pointer[entry]
	retained atomic.Int64
	onRetire func(*index.Generation)
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetireHook registers fn to run exactly once per generation, after it
// has been replaced and its last handle released.
func WithRetireHook(fn func(*index.Generation)) Option {
	return func(s *Store) { s.onRetire = fn }
}

// New creates a Store whose active generation is empty.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.Default().With("component", "index-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.active.Store(s.newEntry(index.Empty()))
	return s
}

func (s *Store) newEntry(gen *index.Generation) *entry {
	e := &entry{gen: gen}
	e.refs.Store(1)
	s.retained.Add(1)
	return e
}

func (s *Store) release(e *entry) {
	if e.refs.Add(-1) != 0 {
		return
	}
	s.retained.Add(-1)
	s.logger.Debug("generation retired", "generation", e.gen.ID())
	if s.onRetire != nil {
		s.onRetire(e.gen)
	}
}

// Activate makes gen the active generation unconditionally. In-flight
// readers keep the generation they acquired.
func (s *Store) Activate(gen *index.Generation) {
	old := s.active.Swap(s.newEntry(gen))
	s.logger.Info("generation activated",
		"generation", gen.ID(),
		"previous", old.gen.ID(),
		"docs", gen.DocCount(),
		"terms", gen.VocabularySize(),
	)
	s.release(old)
}

// Publish activates gen only if it was built on the currently active
// generation. Otherwise it returns ErrCommitConflict and the caller must
// rebuild against the latest generation.
func (s *Store) Publish(gen *index.Generation) error {
	next := s.newEntry(gen)
	for {
		old := s.active.Load()
		if old.gen.ID() != gen.BaseID() {
			s.retained.Add(-1)
			return fmt.Errorf("%w: generation %d built on %d, active is %d",
				apperrors.ErrCommitConflict, gen.ID(), gen.BaseID(), old.gen.ID())
		}
		if s.active.CompareAndSwap(old, next) {
			s.logger.Info("generation published",
				"generation", gen.ID(),
				"docs", gen.DocCount(),
				"terms", gen.VocabularySize(),
			)
			s.release(old)
			return nil
		}
	}
}

// Acquire returns a handle on the active generation. The generation stays
// alive until the handle is released, even if another generation is
// activated meanwhile.
func (s *Store) Acquire() *Handle {
	for {
		e := s.active.Load()
		if e.tryRetain() {
			return &Handle{store: s, entry: e}
		}
	}
}

// NewBuilder returns a Builder extending the active generation, so its
// commit can be published with Publish.
func (s *Store) NewBuilder() *index.Builder {
	h := s.Acquire()
	defer h.Release()
	return index.NewBuilder(index.WithBase(h.Generation()))
}

// Active returns the ID of the active generation.
func (s *Store) Active() uint64 {
	return s.active.Load().gen.ID()
}

// Retained counts generations that are active or still held by a handle.
func (s *Store) Retained() int {
	return int(s.retained.Load())
}

// Handle is a reader's reference to one generation.
type Handle struct {
	store    *Store
	entry    *entry
	released atomic.Bool
}

func (h *Handle) Generation() *index.Generation {
	return h.entry.gen
}

// Release drops the reference. Calling it more than once is a no-op.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.store.release(h.entry)
	}
}
