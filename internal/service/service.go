// Package service wires the analysis components into one facade the LSP
// layer and the background indexer call into. Cancellation is cooperative:
// a cancelled request yields an empty result, never a crash.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/cache"
	"mdls/internal/links"
	"mdls/internal/parser"
	"mdls/internal/references"
	"mdls/internal/rename"
	"mdls/internal/store"
	"mdls/internal/toc"
	"mdls/internal/workspace"
)

// ErrRenameNotSupported mirrors the rename engine's sentinel for callers
// that only import this package.
var ErrRenameNotSupported = rename.ErrNotSupported

// Service owns the caches and exposes the language operations.
type Service struct {
	ws        workspace.Workspace
	tokenizer parser.Tokenizer
	tocs      *toc.Provider
	links     *cache.WorkspaceCache[[]links.Link]
	resolver  *references.Resolver
	renamer   *rename.Engine
	log       commonlog.Logger
}

func New(ws workspace.Workspace, tokenizer parser.Tokenizer, cfg Config) *Service {
	tocs := toc.NewProvider(ws, tokenizer)
	linkCache := cache.NewWorkspaceCache(ws, func(ctx context.Context, doc workspace.Document) ([]links.Link, error) {
		return links.Find(ctx, doc, ws.Root())
	})
	resolver := references.NewResolver(ws, tocs, linkCache, references.Config{
		DefaultExtension: cfg.DefaultExtension,
	})
	return &Service{
		ws:        ws,
		tokenizer: tokenizer,
		tocs:      tocs,
		links:     linkCache,
		resolver:  resolver,
		renamer:   rename.NewEngine(ws, resolver, cfg.DefaultExtension),
		log:       commonlog.GetLogger("mdls.service"),
	}
}

// TableOfContents returns the document's headings, aggregated over children
// for containing documents.
func (s *Service) TableOfContents(ctx context.Context, uri protocol.DocumentUri) (*toc.TableOfContents, error) {
	t, err := s.tocs.GetForContainingDoc(ctx, uri)
	if cancelled(err) {
		return toc.Empty, nil
	}
	return t, err
}

// References resolves the reference under pos and returns all matching
// locations across the workspace.
func (s *Service) References(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position) ([]references.Reference, error) {
	doc, err := s.ws.OpenDocument(ctx, uri)
	if err != nil {
		if cancelled(err) {
			return nil, nil
		}
		return nil, err
	}
	refs, err := s.resolver.ReferencesAt(ctx, doc, pos)
	if cancelled(err) {
		return nil, nil
	}
	return refs, err
}

// Locations maps a reference query to plain LSP locations.
func (s *Service) Locations(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position, includeDeclaration bool) ([]protocol.Location, error) {
	refs, err := s.References(ctx, uri, pos)
	if err != nil || refs == nil {
		return nil, err
	}
	out := make([]protocol.Location, 0, len(refs))
	for _, ref := range refs {
		if ref.IsDefinition && !includeDeclaration {
			continue
		}
		out = append(out, ref.Location)
	}
	return out, nil
}

// PrepareRename returns the editable range and placeholder for an inline
// rename, or rename.ErrNotSupported.
func (s *Service) PrepareRename(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position) (*rename.Prepared, error) {
	doc, err := s.ws.OpenDocument(ctx, uri)
	if err != nil {
		if cancelled(err) {
			return nil, nil
		}
		return nil, err
	}
	prep, err := s.renamer.PrepareRename(ctx, doc, pos)
	if cancelled(err) {
		return nil, nil
	}
	return prep, err
}

// RenameEdits computes the multi-file edit applying newName at pos.
func (s *Service) RenameEdits(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	doc, err := s.ws.OpenDocument(ctx, uri)
	if err != nil {
		if cancelled(err) {
			return nil, nil
		}
		return nil, err
	}
	edit, err := s.renamer.ProvideRenameEdits(ctx, doc, pos, newName)
	if cancelled(err) {
		return nil, nil
	}
	return edit, err
}

// DocumentSymbols presents the table of contents as a nested symbol tree.
func (s *Service) DocumentSymbols(ctx context.Context, uri protocol.DocumentUri) ([]protocol.DocumentSymbol, error) {
	t, err := s.TableOfContents(ctx, uri)
	if err != nil {
		return nil, err
	}
	pos := 0
	return symbolTree(t.Entries, &pos, 0), nil
}

func symbolTree(entries []toc.Entry, pos *int, level int) []protocol.DocumentSymbol {
	var out []protocol.DocumentSymbol
	for *pos < len(entries) {
		e := entries[*pos]
		if e.Level <= level {
			return out
		}
		*pos++
		name := e.Text
		if name == "" {
			name = "#"
		}
		sym := protocol.DocumentSymbol{
			Name:           name,
			Kind:           protocol.SymbolKindString,
			Range:          e.SectionRange,
			SelectionRange: e.HeadingLineRange,
		}
		sym.Children = symbolTree(entries, pos, e.Level)
		out = append(out, sym)
	}
	return out
}

// FoldingRanges folds each heading's section.
func (s *Service) FoldingRanges(ctx context.Context, uri protocol.DocumentUri) ([]protocol.FoldingRange, error) {
	t, err := s.TableOfContents(ctx, uri)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.FoldingRange, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.SectionRange.End.Line <= e.Line {
			continue
		}
		out = append(out, protocol.FoldingRange{
			StartLine: e.Line,
			EndLine:   e.SectionRange.End.Line,
		})
	}
	return out, nil
}

// IndexRows extracts the persistent index rows of one document. The file
// scanner feeds these into the store.
func (s *Service) IndexRows(ctx context.Context, doc workspace.Document) (store.Document, []store.Link, []store.Heading, error) {
	t, err := toc.Build(ctx, s.tokenizer, doc)
	if err != nil {
		return store.Document{}, nil, nil, err
	}
	found, err := links.Find(ctx, doc, s.ws.Root())
	if err != nil {
		return store.Document{}, nil, nil, err
	}

	sourcePath := workspace.URIPath(doc.URI())
	row := store.Document{
		Path:        sourcePath,
		Checksum:    store.Checksum(doc.Content()),
		LastUpdated: time.Now().Unix(),
	}
	var linkRows []store.Link
	for i := range found {
		if found[i].Href.Kind != links.HrefInternal {
			continue
		}
		linkRows = append(linkRows, store.Link{
			SourcePath: sourcePath,
			TargetPath: workspace.URIPath(found[i].Href.Path),
			Fragment:   found[i].Href.Fragment,
		})
	}
	var headingRows []store.Heading
	for _, e := range t.Entries {
		headingRows = append(headingRows, store.Heading{
			Path:  sourcePath,
			Slug:  e.Slug.Value,
			Line:  e.Line,
			Level: e.Level,
		})
	}
	return row, linkRows, headingRows, nil
}

// Dispose releases the caches and their event subscriptions.
func (s *Service) Dispose() {
	s.tocs.Dispose()
	s.links.Dispose()
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
