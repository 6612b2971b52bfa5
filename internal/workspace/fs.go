package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FSWorkspace serves documents from a directory tree, with an overlay for
// documents the editor has open. Overlay content always wins over disk.
type FSWorkspace struct {
	root       protocol.DocumentUri
	rootPath   string
	extensions map[string]bool

	mu      sync.RWMutex
	overlay map[protocol.DocumentUri]*MemoryDocument

	changed emitter[Document]
	created emitter[Document]
	deleted emitter[protocol.DocumentUri]
}

// NewFSWorkspace roots a workspace at the given URI. extensions lists the
// markdown file extensions without the leading dot.
func NewFSWorkspace(root protocol.DocumentUri, extensions []string) *FSWorkspace {
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.TrimPrefix(ext, ".")] = true
	}
	return &FSWorkspace{
		root:       root,
		rootPath:   URIPath(root),
		extensions: extSet,
		overlay:    make(map[protocol.DocumentUri]*MemoryDocument),
	}
}

func (w *FSWorkspace) Root() protocol.DocumentUri { return w.root }

func (w *FSWorkspace) matches(path string) bool {
	return w.extensions[strings.TrimPrefix(filepath.Ext(path), ".")]
}

func (w *FSWorkspace) OpenDocument(ctx context.Context, uri protocol.DocumentUri) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	doc, ok := w.overlay[uri]
	w.mu.RUnlock()
	if ok {
		return doc, nil
	}

	data, err := os.ReadFile(URIPath(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", uri, err)
	}
	return NewMemoryDocument(uri, 0, string(data)), nil
}

func (w *FSWorkspace) AllDocuments(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byURI := make(map[protocol.DocumentUri]Document)
	err := filepath.WalkDir(w.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != w.rootPath {
				return fs.SkipDir
			}
			return nil
		}
		if !w.matches(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		uri := SiblingURI(w.root, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		byURI[uri] = NewMemoryDocument(uri, 0, string(data))
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.mu.RLock()
	for uri, doc := range w.overlay {
		byURI[uri] = doc
	}
	w.mu.RUnlock()

	uris := make([]string, 0, len(byURI))
	for uri := range byURI {
		uris = append(uris, string(uri))
	}
	sort.Strings(uris)
	docs := make([]Document, 0, len(uris))
	for _, uri := range uris {
		docs = append(docs, byURI[protocol.DocumentUri(uri)])
	}
	return docs, nil
}

func (w *FSWorkspace) ReadDirectory(ctx context.Context, uri protocol.DocumentUri) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(URIPath(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", uri, err)
	}
	entries := make([]DirEntry, 0, len(dirEntries))
	for _, entry := range dirEntries {
		entries = append(entries, DirEntry{Name: entry.Name(), IsDirectory: entry.IsDir()})
	}
	return entries, nil
}

func (w *FSWorkspace) Stat(ctx context.Context, uri protocol.DocumentUri) (*FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	_, ok := w.overlay[uri]
	w.mu.RUnlock()
	if ok {
		return &FileStat{}, nil
	}
	info, err := os.Stat(URIPath(uri))
	if err != nil {
		return nil, err
	}
	return &FileStat{IsDirectory: info.IsDir()}, nil
}

// ContainingDocument is not supported on plain file trees.
func (w *FSWorkspace) ContainingDocument(uri protocol.DocumentUri) (*Container, bool) {
	return nil, false
}

// DidOpen installs editor content for a document. Newly created untitled
// documents fire the created event; known files fire changed, since the
// editor buffer may differ from disk.
func (w *FSWorkspace) DidOpen(uri protocol.DocumentUri, content string, version int32) {
	doc := NewMemoryDocument(uri, version, content)
	w.mu.Lock()
	_, known := w.overlay[uri]
	w.overlay[uri] = doc
	w.mu.Unlock()

	if known {
		w.changed.fire(doc)
		return
	}
	if _, err := os.Stat(URIPath(uri)); err != nil {
		w.created.fire(doc)
	} else {
		w.changed.fire(doc)
	}
}

// DidChange replaces the overlay content of an open document.
func (w *FSWorkspace) DidChange(uri protocol.DocumentUri, content string, version int32) {
	doc := NewMemoryDocument(uri, version, content)
	w.mu.Lock()
	w.overlay[uri] = doc
	w.mu.Unlock()
	w.changed.fire(doc)
}

// DidClose drops the overlay. If the file still exists on disk the document
// reverts to disk content; otherwise it is gone.
func (w *FSWorkspace) DidClose(uri protocol.DocumentUri) {
	w.mu.Lock()
	delete(w.overlay, uri)
	w.mu.Unlock()

	data, err := os.ReadFile(URIPath(uri))
	if err != nil {
		w.deleted.fire(uri)
		return
	}
	w.changed.fire(NewMemoryDocument(uri, 0, string(data)))
}

func (w *FSWorkspace) OnDidChangeDocument(fn func(Document)) Disposable {
	return w.changed.subscribe(fn)
}

func (w *FSWorkspace) OnDidCreateDocument(fn func(Document)) Disposable {
	return w.created.subscribe(fn)
}

func (w *FSWorkspace) OnDidDeleteDocument(fn func(protocol.DocumentUri)) Disposable {
	return w.deleted.subscribe(fn)
}
