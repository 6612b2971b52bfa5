package service

import (
	"context"
	"errors"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/parser"
	"mdls/internal/workspace"
)

func newService(t *testing.T, ws *workspace.MemoryWorkspace) *Service {
	t.Helper()
	s := New(ws, parser.NewScanner(), DefaultConfig())
	t.Cleanup(s.Dispose)
	return s
}

func TestTableOfContents(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# one\n## two")
	s := newService(t, ws)

	toc, err := s.TableOfContents(context.Background(), "/ws/a.md")
	if err != nil {
		t.Fatalf("TableOfContents failed: %v", err)
	}
	if len(toc.Entries) != 2 {
		t.Fatalf("entries = %+v", toc.Entries)
	}
}

func TestDocumentSymbolsNested(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# top\n## sub\n### leaf\n# top2")
	s := newService(t, ws)

	symbols, err := s.DocumentSymbols(context.Background(), "/ws/a.md")
	if err != nil {
		t.Fatalf("DocumentSymbols failed: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("expected 2 roots, got %d: %+v", len(symbols), symbols)
	}
	if symbols[0].Name != "top" || len(symbols[0].Children) != 1 {
		t.Fatalf("root = %+v", symbols[0])
	}
	sub := symbols[0].Children[0]
	if sub.Name != "sub" || len(sub.Children) != 1 || sub.Children[0].Name != "leaf" {
		t.Errorf("nested = %+v", sub)
	}
	if symbols[1].Name != "top2" || len(symbols[1].Children) != 0 {
		t.Errorf("second root = %+v", symbols[1])
	}
}

func TestFoldingRanges(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# one\ntext\n# two")
	s := newService(t, ws)

	folds, err := s.FoldingRanges(context.Background(), "/ws/a.md")
	if err != nil {
		t.Fatalf("FoldingRanges failed: %v", err)
	}
	// "# two" has a single-line section and is not foldable.
	if len(folds) != 1 {
		t.Fatalf("folds = %+v", folds)
	}
	if folds[0].StartLine != 0 || folds[0].EndLine != 1 {
		t.Errorf("fold = %+v", folds[0])
	}
}

func TestLocationsFiltersDeclaration(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# target\n[x](#target)")
	s := newService(t, ws)

	pos := protocol.Position{Line: 0, Character: 2}
	all, err := s.Locations(context.Background(), "/ws/a.md", pos, true)
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("with declaration = %+v", all)
	}
	without, err := s.Locations(context.Background(), "/ws/a.md", pos, false)
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if len(without) != 1 || without[0].Range.Start.Line != 1 {
		t.Errorf("without declaration = %+v", without)
	}
}

func TestRenameRoundTrip(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# a\n[x](#a)")
	s := newService(t, ws)

	pos := protocol.Position{Line: 0, Character: 2}
	prep, err := s.PrepareRename(context.Background(), "/ws/a.md", pos)
	if err != nil {
		t.Fatalf("PrepareRename failed: %v", err)
	}
	if prep.Placeholder != "a" {
		t.Errorf("placeholder = %q", prep.Placeholder)
	}

	edit, err := s.RenameEdits(context.Background(), "/ws/a.md", pos, "b")
	if err != nil {
		t.Fatalf("RenameEdits failed: %v", err)
	}
	if len(edit.DocumentChanges) != 1 {
		t.Fatalf("changes = %+v", edit.DocumentChanges)
	}
}

func TestPrepareRenameNotSupported(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "plain")
	s := newService(t, ws)

	_, err := s.PrepareRename(context.Background(), "/ws/a.md", protocol.Position{})
	if !errors.Is(err, ErrRenameNotSupported) {
		t.Fatalf("err = %v, want ErrRenameNotSupported", err)
	}
}

func TestCancelledRequestYieldsEmptyResult(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# a")
	s := newService(t, ws)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refs, err := s.References(ctx, "/ws/a.md", protocol.Position{})
	if err != nil {
		t.Fatalf("cancellation surfaced as error: %v", err)
	}
	if refs != nil {
		t.Errorf("refs = %+v", refs)
	}
}

func TestIndexRows(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	doc := ws.CreateDocument("/ws/a.md", "# Top\n[x](b.md#sec)\n[e](https://example.com)")
	s := newService(t, ws)

	row, linkRows, headingRows, err := s.IndexRows(context.Background(), doc)
	if err != nil {
		t.Fatalf("IndexRows failed: %v", err)
	}
	if row.Path != "/ws/a.md" || row.Checksum == "" {
		t.Errorf("document row = %+v", row)
	}
	// External links are not indexed.
	if len(linkRows) != 1 || linkRows[0].TargetPath != "/ws/b.md" || linkRows[0].Fragment != "sec" {
		t.Errorf("link rows = %+v", linkRows)
	}
	if len(headingRows) != 1 || headingRows[0].Slug != "top" {
		t.Errorf("heading rows = %+v", headingRows)
	}
}

func TestConfigOverlay(t *testing.T) {
	cfg, err := Load(map[string]any{"default_extension": "markdown"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultExtension != "markdown" {
		t.Errorf("default extension = %q", cfg.DefaultExtension)
	}
	// Unmentioned fields keep their defaults.
	if len(cfg.FileExtensions) != 2 || cfg.ScanIntervalSecs != 60 {
		t.Errorf("cfg = %+v", cfg)
	}
}
