package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/workspace"
)

// WorkspaceCache memoizes one derived value per document across the whole
// workspace. The first Entries or Values call populates every document
// eagerly; afterwards single entries are updated in place as documents
// change, appear and disappear.
type WorkspaceCache[T any] struct {
	mu        sync.Mutex
	ws        workspace.Workspace
	compute   Compute[T]
	entries   map[protocol.DocumentUri]*entry[T]
	populated bool
	subs      []workspace.Disposable
	log       commonlog.Logger
}

func NewWorkspaceCache[T any](ws workspace.Workspace, compute Compute[T]) *WorkspaceCache[T] {
	c := &WorkspaceCache[T]{
		ws:      ws,
		compute: compute,
		entries: make(map[protocol.DocumentUri]*entry[T]),
		log:     commonlog.GetLogger("mdls.cache"),
	}
	c.subs = append(c.subs,
		ws.OnDidChangeDocument(c.update),
		ws.OnDidCreateDocument(c.add),
		ws.OnDidDeleteDocument(c.remove),
	)
	return c
}

func (c *WorkspaceCache[T]) populate(ctx context.Context) error {
	c.mu.Lock()
	done := c.populated
	c.mu.Unlock()
	if done {
		return nil
	}

	docs, err := c.ws.AllDocuments(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated {
		return nil
	}
	for _, doc := range docs {
		if _, ok := c.entries[doc.URI()]; !ok {
			c.entries[doc.URI()] = newEntry(doc, c.compute)
		}
	}
	c.populated = true
	return nil
}

// Entries returns the derived value of every workspace document, keyed by
// URI. Documents whose computation fails are skipped.
func (c *WorkspaceCache[T]) Entries(ctx context.Context) (map[protocol.DocumentUri]T, error) {
	if err := c.populate(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	snapshot := make(map[protocol.DocumentUri]*entry[T], len(c.entries))
	for uri, e := range c.entries {
		snapshot[uri] = e
	}
	c.mu.Unlock()

	out := make(map[protocol.DocumentUri]T, len(snapshot))
	for uri, e := range snapshot {
		value, err := e.get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debugf("skipping %s: %s", uri, err.Error())
			continue
		}
		out[uri] = value
	}
	return out, nil
}

// URIs returns the resident document URIs in stable (sorted) order.
func (c *WorkspaceCache[T]) URIs(ctx context.Context) ([]protocol.DocumentUri, error) {
	if err := c.populate(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	uris := make([]protocol.DocumentUri, 0, len(c.entries))
	for uri := range c.entries {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris, nil
}

// Values returns the derived value of every workspace document.
func (c *WorkspaceCache[T]) Values(ctx context.Context) ([]T, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}
	uris := make([]protocol.DocumentUri, 0, len(entries))
	for uri := range entries {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	values := make([]T, 0, len(uris))
	for _, uri := range uris {
		values = append(values, entries[uri])
	}
	return values, nil
}

// GetForDocs returns values for just the given documents, computing only
// the ones not already resident. A containing document's child set goes
// through here without forcing a full workspace scan.
func (c *WorkspaceCache[T]) GetForDocs(ctx context.Context, docs []workspace.Document) ([]T, error) {
	es := make([]*entry[T], 0, len(docs))
	c.mu.Lock()
	for _, doc := range docs {
		e, ok := c.entries[doc.URI()]
		if !ok {
			e = newEntry(doc, c.compute)
			c.entries[doc.URI()] = e
		}
		es = append(es, e)
	}
	c.mu.Unlock()

	values := make([]T, 0, len(es))
	for _, e := range es {
		value, err := e.get(ctx)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (c *WorkspaceCache[T]) update(doc workspace.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[doc.URI()]; ok || c.populated {
		c.entries[doc.URI()] = newEntry(doc, c.compute)
	}
}

func (c *WorkspaceCache[T]) add(doc workspace.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated {
		if _, ok := c.entries[doc.URI()]; !ok {
			c.entries[doc.URI()] = newEntry(doc, c.compute)
		}
	}
}

func (c *WorkspaceCache[T]) remove(uri protocol.DocumentUri) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[uri]; ok {
		e.cancel()
		delete(c.entries, uri)
	}
}

// Dispose releases the event subscriptions and cancels all outstanding
// computations.
func (c *WorkspaceCache[T]) Dispose() {
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
