package toc

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/cache"
	"mdls/internal/parser"
	"mdls/internal/workspace"
)

// Provider memoizes tables of contents per document and aggregates them for
// containing documents.
type Provider struct {
	ws    workspace.Workspace
	cache *cache.DocCache[*TableOfContents]
}

func NewProvider(ws workspace.Workspace, tokenizer parser.Tokenizer) *Provider {
	return &Provider{
		ws: ws,
		cache: cache.NewDocCache(ws, func(ctx context.Context, doc workspace.Document) (*TableOfContents, error) {
			return Build(ctx, tokenizer, doc)
		}),
	}
}

// Get returns the table of contents of one document.
func (p *Provider) Get(ctx context.Context, uri protocol.DocumentUri) (*TableOfContents, error) {
	t, err := p.cache.Get(ctx, uri)
	if err != nil {
		return Empty, err
	}
	return t, nil
}

// GetForDocument returns the table of contents of an already-open document.
func (p *Provider) GetForDocument(ctx context.Context, doc workspace.Document) (*TableOfContents, error) {
	t, err := p.cache.GetForDocument(ctx, doc)
	if err != nil {
		return Empty, err
	}
	return t, nil
}

// GetForContainingDoc aggregates, in order, the tables of contents of all
// children when uri is part of a containing document (a notebook-like
// aggregate); otherwise it behaves like Get. Slug disambiguation applies
// within each child, not across the aggregate.
func (p *Provider) GetForContainingDoc(ctx context.Context, uri protocol.DocumentUri) (*TableOfContents, error) {
	container, ok := p.ws.ContainingDocument(uri)
	if !ok {
		return p.Get(ctx, uri)
	}

	var entries []Entry
	for _, child := range container.Children {
		t, err := p.cache.Get(ctx, child)
		if err != nil {
			if ctx.Err() != nil {
				return Empty, ctx.Err()
			}
			continue // unreadable child, skip
		}
		entries = append(entries, t.Entries...)
	}
	if len(entries) == 0 {
		return Empty, nil
	}
	return &TableOfContents{Entries: entries}, nil
}

// Dispose releases the underlying cache.
func (p *Provider) Dispose() {
	p.cache.Dispose()
}
