package workspace

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Document is a read-only snapshot of one markdown document. Snapshots are
// immutable; an edited document is represented by a new snapshot with a
// higher version.
type Document interface {
	URI() protocol.DocumentUri
	Version() int32
	Content() string
	LineCount() uint32
	Line(line uint32) string
}

// FileStat describes a file probed through the workspace.
type FileStat struct {
	IsDirectory bool
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name        string
	IsDirectory bool
}

// Container describes a logical document composed of child documents, such
// as a notebook whose cells are individual markdown documents.
type Container struct {
	Children []protocol.DocumentUri
}

// Disposable releases a subscription or other owned resource. Calling it
// more than once is harmless.
type Disposable func()

// Workspace is the document store the language engine runs against. The
// engine never touches the file system directly; everything goes through
// this interface so tests and editors can supply their own stores.
type Workspace interface {
	Root() protocol.DocumentUri
	OpenDocument(ctx context.Context, uri protocol.DocumentUri) (Document, error)
	AllDocuments(ctx context.Context) ([]Document, error)
	ReadDirectory(ctx context.Context, uri protocol.DocumentUri) ([]DirEntry, error)
	Stat(ctx context.Context, uri protocol.DocumentUri) (*FileStat, error)
	ContainingDocument(uri protocol.DocumentUri) (*Container, bool)

	OnDidChangeDocument(fn func(Document)) Disposable
	OnDidCreateDocument(fn func(Document)) Disposable
	OnDidDeleteDocument(fn func(protocol.DocumentUri)) Disposable
}
