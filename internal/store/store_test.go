package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIndexAndGetDocument(t *testing.T) {
	db := setupTestDB(t)

	doc := Document{Path: "/ws/a.md", Checksum: Checksum("# a"), LastUpdated: 100}
	if err := db.IndexDocument(doc, nil, nil); err != nil {
		t.Fatalf("IndexDocument failed: %v", err)
	}

	got, err := db.GetDocument("/ws/a.md")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Checksum != doc.Checksum || got.LastUpdated != 100 {
		t.Errorf("document = %+v", got)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetDocument("/ws/missing.md")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestReindexReplacesLinksAndHeadings(t *testing.T) {
	db := setupTestDB(t)

	doc := Document{Path: "/ws/a.md", Checksum: "c1", LastUpdated: 1}
	if err := db.IndexDocument(doc,
		[]Link{{TargetPath: "/ws/b.md"}, {TargetPath: "/ws/c.md", Fragment: "sec"}},
		[]Heading{{Slug: "old", Line: 0, Level: 1}},
	); err != nil {
		t.Fatalf("first index failed: %v", err)
	}

	doc.Checksum = "c2"
	doc.LastUpdated = 2
	if err := db.IndexDocument(doc,
		[]Link{{TargetPath: "/ws/d.md"}},
		[]Heading{{Slug: "new", Line: 0, Level: 1}, {Slug: "sub", Line: 3, Level: 2}},
	); err != nil {
		t.Fatalf("reindex failed: %v", err)
	}

	if links, _ := db.Backlinks("/ws/b.md"); len(links) != 0 {
		t.Errorf("stale backlinks remain: %+v", links)
	}
	links, err := db.Backlinks("/ws/d.md")
	if err != nil {
		t.Fatalf("Backlinks failed: %v", err)
	}
	if len(links) != 1 || links[0].SourcePath != "/ws/a.md" {
		t.Errorf("backlinks = %+v", links)
	}

	headings, err := db.Headings("/ws/a.md")
	if err != nil {
		t.Fatalf("Headings failed: %v", err)
	}
	if len(headings) != 2 || headings[0].Slug != "new" || headings[1].Slug != "sub" {
		t.Errorf("headings = %+v", headings)
	}
}

func TestBacklinksAcrossDocuments(t *testing.T) {
	db := setupTestDB(t)

	for _, source := range []string{"/ws/x.md", "/ws/y.md"} {
		doc := Document{Path: source, Checksum: "c", LastUpdated: 1}
		if err := db.IndexDocument(doc, []Link{{TargetPath: "/ws/a.md", Fragment: "top"}}, nil); err != nil {
			t.Fatalf("index %s failed: %v", source, err)
		}
	}

	links, err := db.Backlinks("/ws/a.md")
	if err != nil {
		t.Fatalf("Backlinks failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 backlinks, got %d", len(links))
	}
	if links[0].SourcePath != "/ws/x.md" || links[1].SourcePath != "/ws/y.md" {
		t.Errorf("backlinks = %+v", links)
	}
	if links[0].Fragment != "top" {
		t.Errorf("fragment = %q", links[0].Fragment)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	db := setupTestDB(t)

	doc := Document{Path: "/ws/a.md", Checksum: "c", LastUpdated: 1}
	if err := db.IndexDocument(doc,
		[]Link{{TargetPath: "/ws/b.md"}},
		[]Heading{{Slug: "a", Line: 0, Level: 1}},
	); err != nil {
		t.Fatalf("IndexDocument failed: %v", err)
	}

	if err := db.DeleteDocument("/ws/a.md"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := db.GetDocument("/ws/a.md"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("document survived deletion: %v", err)
	}
	if links, _ := db.Backlinks("/ws/b.md"); len(links) != 0 {
		t.Errorf("links survived cascade: %+v", links)
	}
	if headings, _ := db.Headings("/ws/a.md"); len(headings) != 0 {
		t.Errorf("headings survived cascade: %+v", headings)
	}
}

func TestDeleteUnindexedDocument(t *testing.T) {
	db := setupTestDB(t)
	if err := db.DeleteDocument("/ws/never-indexed.md"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
}

func TestAllDocumentsSorted(t *testing.T) {
	db := setupTestDB(t)

	for _, p := range []string{"/ws/c.md", "/ws/a.md", "/ws/b.md"} {
		if err := db.IndexDocument(Document{Path: p, Checksum: "c", LastUpdated: 1}, nil, nil); err != nil {
			t.Fatalf("index %s failed: %v", p, err)
		}
	}
	docs, err := db.AllDocuments()
	if err != nil {
		t.Fatalf("AllDocuments failed: %v", err)
	}
	want := []string{"/ws/a.md", "/ws/b.md", "/ws/c.md"}
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %d", len(want), len(docs))
	}
	for i, w := range want {
		if docs[i].Path != w {
			t.Errorf("document %d = %q, want %q", i, docs[i].Path, w)
		}
	}
}

func TestChecksumIsStable(t *testing.T) {
	if Checksum("# a") != Checksum("# a") {
		t.Error("checksum not deterministic")
	}
	if Checksum("# a") == Checksum("# b") {
		t.Error("distinct contents share a checksum")
	}
}
