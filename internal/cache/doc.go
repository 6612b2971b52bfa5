// Package cache provides the two memoization tiers the language engine
// builds derived document data on: a lazy per-document tier and an eagerly
// populated per-workspace tier. Both subscribe to workspace lifecycle
// events and stay consistent as documents change, appear and disappear.
package cache

import (
	"context"
	"sync"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/workspace"
)

// Compute derives the cached value for one document snapshot.
type Compute[T any] func(ctx context.Context, doc workspace.Document) (T, error)

// entry is one deferred computation plus its cancellation handle. The
// computation starts on first get and runs exactly once.
type entry[T any] struct {
	cctx    context.Context
	cancel  context.CancelFunc
	doc     workspace.Document
	compute Compute[T]

	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newEntry[T any](doc workspace.Document, compute Compute[T]) *entry[T] {
	cctx, cancel := context.WithCancel(context.Background())
	return &entry[T]{
		cctx:    cctx,
		cancel:  cancel,
		doc:     doc,
		compute: compute,
		done:    make(chan struct{}),
	}
}

func (e *entry[T]) get(ctx context.Context) (T, error) {
	e.once.Do(func() {
		go func() {
			defer close(e.done)
			e.value, e.err = e.compute(e.cctx, e.doc)
		}()
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-e.done:
		return e.value, e.err
	}
}

// load deduplicates concurrent OpenDocument calls for one URI.
type load struct {
	done chan struct{}
	doc  workspace.Document
	err  error
}

// DocCache memoizes one derived value per document, computed lazily on
// first access. A changed document gets a fresh deferred computation; the
// superseded one is left to finish and its result is discarded. Deleting a
// document cancels its outstanding computation and drops the entry.
type DocCache[T any] struct {
	mu      sync.Mutex
	ws      workspace.Workspace
	compute Compute[T]
	entries map[protocol.DocumentUri]*entry[T]
	loading map[protocol.DocumentUri]*load
	subs    []workspace.Disposable
	log     commonlog.Logger
}

func NewDocCache[T any](ws workspace.Workspace, compute Compute[T]) *DocCache[T] {
	c := &DocCache[T]{
		ws:      ws,
		compute: compute,
		entries: make(map[protocol.DocumentUri]*entry[T]),
		loading: make(map[protocol.DocumentUri]*load),
		log:     commonlog.GetLogger("mdls.cache"),
	}
	c.subs = append(c.subs,
		ws.OnDidChangeDocument(c.invalidate),
		ws.OnDidCreateDocument(c.invalidate),
		ws.OnDidDeleteDocument(c.remove),
	)
	return c
}

// Get returns the memoized value for uri, opening the document through the
// workspace if it is not resident yet. Concurrent loads of the same
// document share one OpenDocument call.
func (c *DocCache[T]) Get(ctx context.Context, uri protocol.DocumentUri) (T, error) {
	var zero T

	c.mu.Lock()
	if e, ok := c.entries[uri]; ok {
		c.mu.Unlock()
		return e.get(ctx)
	}
	l, inflight := c.loading[uri]
	if !inflight {
		l = &load{done: make(chan struct{})}
		c.loading[uri] = l
		go c.openAndInstall(uri, l)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-l.done:
	}
	if l.err != nil {
		return zero, l.err
	}
	return c.GetForDocument(ctx, l.doc)
}

func (c *DocCache[T]) openAndInstall(uri protocol.DocumentUri, l *load) {
	l.doc, l.err = c.ws.OpenDocument(context.Background(), uri)

	c.mu.Lock()
	delete(c.loading, uri)
	if l.err == nil {
		if _, exists := c.entries[uri]; !exists {
			c.entries[uri] = newEntry(l.doc, c.compute)
		}
	}
	c.mu.Unlock()
	close(l.done)
}

// GetForDocument returns the memoized value for an already-open document.
func (c *DocCache[T]) GetForDocument(ctx context.Context, doc workspace.Document) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[doc.URI()]
	if !ok {
		e = newEntry(doc, c.compute)
		c.entries[doc.URI()] = e
	}
	c.mu.Unlock()
	return e.get(ctx)
}

// invalidate swaps in a fresh deferred computation for a changed document.
// The old computation keeps its cancellation handle; only deletion cancels.
func (c *DocCache[T]) invalidate(doc workspace.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[doc.URI()]; ok {
		c.entries[doc.URI()] = newEntry(doc, c.compute)
	}
}

func (c *DocCache[T]) remove(uri protocol.DocumentUri) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[uri]; ok {
		e.cancel()
		delete(c.entries, uri)
	}
}

// Dispose releases the event subscriptions and cancels all outstanding
// computations.
func (c *DocCache[T]) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, dispose := range c.subs {
		dispose()
	}
	c.subs = nil
	for uri, e := range c.entries {
		e.cancel()
		delete(c.entries, uri)
	}
}
