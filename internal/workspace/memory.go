package workspace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// MemoryDocument is an immutable in-memory document snapshot.
type MemoryDocument struct {
	uri     protocol.DocumentUri
	version int32
	content string
	lines   []string
}

func NewMemoryDocument(uri protocol.DocumentUri, version int32, content string) *MemoryDocument {
	return &MemoryDocument{
		uri:     uri,
		version: version,
		content: content,
		lines:   strings.Split(content, "\n"),
	}
}

func (d *MemoryDocument) URI() protocol.DocumentUri { return d.uri }
func (d *MemoryDocument) Version() int32            { return d.version }
func (d *MemoryDocument) Content() string           { return d.content }
func (d *MemoryDocument) LineCount() uint32         { return uint32(len(d.lines)) }

func (d *MemoryDocument) Line(line uint32) string {
	if line >= uint32(len(d.lines)) {
		return ""
	}
	return d.lines[line]
}

// MemoryWorkspace is a fully in-memory document store. It backs the tests
// and doubles as the overlay model for notebook-style containers.
type MemoryWorkspace struct {
	root       protocol.DocumentUri
	mu         sync.RWMutex
	docs       map[protocol.DocumentUri]*MemoryDocument
	containers map[protocol.DocumentUri]*Container

	changed emitter[Document]
	created emitter[Document]
	deleted emitter[protocol.DocumentUri]
}

func NewMemoryWorkspace(root protocol.DocumentUri) *MemoryWorkspace {
	return &MemoryWorkspace{
		root:       root,
		docs:       make(map[protocol.DocumentUri]*MemoryDocument),
		containers: make(map[protocol.DocumentUri]*Container),
	}
}

func (w *MemoryWorkspace) Root() protocol.DocumentUri { return w.root }

// CreateDocument adds a document and fires the created event.
func (w *MemoryWorkspace) CreateDocument(uri protocol.DocumentUri, content string) Document {
	doc := NewMemoryDocument(uri, 0, content)
	w.mu.Lock()
	w.docs[uri] = doc
	w.mu.Unlock()
	w.created.fire(doc)
	return doc
}

// ChangeDocument replaces a document's content, bumping its version, and
// fires the changed event.
func (w *MemoryWorkspace) ChangeDocument(uri protocol.DocumentUri, content string) Document {
	w.mu.Lock()
	version := int32(0)
	if old, ok := w.docs[uri]; ok {
		version = old.version + 1
	}
	doc := NewMemoryDocument(uri, version, content)
	w.docs[uri] = doc
	w.mu.Unlock()
	w.changed.fire(doc)
	return doc
}

// DeleteDocument removes a document and fires the deleted event.
func (w *MemoryWorkspace) DeleteDocument(uri protocol.DocumentUri) {
	w.mu.Lock()
	delete(w.docs, uri)
	w.mu.Unlock()
	w.deleted.fire(uri)
}

// SetContainer declares uri to be a containing document made of children.
func (w *MemoryWorkspace) SetContainer(uri protocol.DocumentUri, children []protocol.DocumentUri) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.containers[uri] = &Container{Children: children}
}

func (w *MemoryWorkspace) OpenDocument(ctx context.Context, uri protocol.DocumentUri) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[uri]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", uri)
	}
	return doc, nil
}

func (w *MemoryWorkspace) AllDocuments(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	uris := make([]string, 0, len(w.docs))
	for uri := range w.docs {
		uris = append(uris, string(uri))
	}
	sort.Strings(uris)
	docs := make([]Document, 0, len(uris))
	for _, uri := range uris {
		docs = append(docs, w.docs[protocol.DocumentUri(uri)])
	}
	return docs, nil
}

func (w *MemoryWorkspace) ReadDirectory(ctx context.Context, uri protocol.DocumentUri) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := strings.TrimSuffix(URIPath(uri), "/") + "/"
	w.mu.RLock()
	defer w.mu.RUnlock()
	seen := make(map[string]bool)
	var entries []DirEntry
	for docURI := range w.docs {
		p := URIPath(docURI)
		rest, ok := strings.CutPrefix(p, dir)
		if !ok || rest == "" {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, DirEntry{Name: name, IsDirectory: nested})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (w *MemoryWorkspace) Stat(ctx context.Context, uri protocol.DocumentUri) (*FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.docs[uri]; ok {
		return &FileStat{}, nil
	}
	dir := strings.TrimSuffix(URIPath(uri), "/") + "/"
	for docURI := range w.docs {
		if strings.HasPrefix(URIPath(docURI), dir) {
			return &FileStat{IsDirectory: true}, nil
		}
	}
	return nil, fmt.Errorf("no such file: %s", uri)
}

func (w *MemoryWorkspace) ContainingDocument(uri protocol.DocumentUri) (*Container, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	container, ok := w.containers[uri]
	return container, ok
}

func (w *MemoryWorkspace) OnDidChangeDocument(fn func(Document)) Disposable {
	return w.changed.subscribe(fn)
}

func (w *MemoryWorkspace) OnDidCreateDocument(fn func(Document)) Disposable {
	return w.created.subscribe(fn)
}

func (w *MemoryWorkspace) OnDidDeleteDocument(fn func(protocol.DocumentUri)) Disposable {
	return w.deleted.subscribe(fn)
}
