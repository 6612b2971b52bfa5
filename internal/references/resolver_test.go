package references

import (
	"context"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/cache"
	"mdls/internal/links"
	"mdls/internal/parser"
	"mdls/internal/toc"
	"mdls/internal/workspace"
)

func newResolver(t *testing.T, ws *workspace.MemoryWorkspace) *Resolver {
	t.Helper()
	tocs := toc.NewProvider(ws, parser.NewScanner())
	t.Cleanup(tocs.Dispose)
	linkCache := cache.NewWorkspaceCache(ws, func(ctx context.Context, doc workspace.Document) ([]links.Link, error) {
		return links.Find(ctx, doc, ws.Root())
	})
	t.Cleanup(linkCache.Dispose)
	return NewResolver(ws, tocs, linkCache, Config{DefaultExtension: "md"})
}

func at(t *testing.T, r *Resolver, ws *workspace.MemoryWorkspace, uri protocol.DocumentUri, line, char uint32) []Reference {
	t.Helper()
	doc, err := ws.OpenDocument(context.Background(), uri)
	if err != nil {
		t.Fatalf("open %s: %v", uri, err)
	}
	refs, err := r.ReferencesAt(context.Background(), doc, protocol.Position{Line: line, Character: char})
	if err != nil {
		t.Fatalf("ReferencesAt failed: %v", err)
	}
	return refs
}

func countTriggers(refs []Reference) int {
	n := 0
	for _, ref := range refs {
		if ref.IsTriggerLocation {
			n++
		}
	}
	return n
}

func TestHeaderTriggerCollectsWorkspaceLinks(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# Target\n[self](#target)")
	ws.CreateDocument("/ws/b.md", "[x](a.md#target)\n[other](a.md#missing)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/a.md", 0, 2)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}

	header := refs[0]
	if header.Kind != KindHeader || !header.IsDefinition || !header.IsTriggerLocation {
		t.Errorf("header = %+v", header)
	}
	if header.HeaderText != "Target" {
		t.Errorf("header text = %q", header.HeaderText)
	}
	if header.HeaderTextLocation == nil || header.HeaderTextLocation.Range.Start.Character != 2 {
		t.Errorf("header text location = %+v", header.HeaderTextLocation)
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
	for _, ref := range refs[1:] {
		if ref.Kind != KindLink || ref.IsDefinition {
			t.Errorf("link ref = %+v", ref)
		}
	}
}

func TestFragmentLinkTriggerIncludesHeaderDefinition(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# Target")
	ws.CreateDocument("/ws/b.md", "[x](a.md#target)")
	ws.CreateDocument("/ws/c.md", "[y](a.md#target)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/b.md", 0, 10)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}
	if refs[0].Kind != KindHeader || !refs[0].IsDefinition || refs[0].IsTriggerLocation {
		t.Errorf("header = %+v", refs[0])
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
	// The trigger is the occurrence in b.md, not the one in c.md.
	for _, ref := range refs {
		if ref.IsTriggerLocation && ref.Location.URI != "/ws/b.md" {
			t.Errorf("trigger in %s", ref.Location.URI)
		}
	}
}

func TestFragmentMatchIsCaseInsensitive(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# Target")
	ws.CreateDocument("/ws/b.md", "[x](a.md#Target)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/a.md", 0, 0)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
}

func TestExternalLinkScopedToDocument(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "[a](https://example.com)\n[b](https://example.com)\n[c](https://other.com)")
	ws.CreateDocument("/ws/b.md", "[elsewhere](https://example.com)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/a.md", 0, 6)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.Location.URI != "/ws/a.md" {
			t.Errorf("external match crossed documents: %s", ref.Location.URI)
		}
	}
	if !refs[0].IsTriggerLocation || refs[1].IsTriggerLocation {
		t.Errorf("trigger marking = %v, %v", refs[0].IsTriggerLocation, refs[1].IsTriggerLocation)
	}
}

func TestReferenceNameMatching(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "see [text][Name] and [name]\n\n[NAME]: other.md")
	ws.CreateDocument("/ws/b.md", "[unrelated][name]")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/a.md", 0, 12)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}
	defs := 0
	for _, ref := range refs {
		if ref.Location.URI != "/ws/a.md" {
			t.Errorf("reference match crossed documents: %s", ref.Location.URI)
		}
		if ref.IsDefinition {
			defs++
		}
	}
	if defs != 1 {
		t.Errorf("expected 1 definition, got %d", defs)
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
}

func TestDefinitionNameTrigger(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "[text][name]\n\n[name]: other.md")
	r := newResolver(t, ws)

	// Position inside the definition's name.
	refs := at(t, r, ws, "/ws/a.md", 2, 3)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.IsTriggerLocation && !ref.IsDefinition {
			t.Errorf("trigger should be the definition: %+v", ref)
		}
	}
}

func TestDefinitionNameTriggerWithExternalTarget(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "[text][name]\n\n[name]: https://example.com")
	r := newResolver(t, ws)

	// Position inside the definition's name, not its URL.
	refs := at(t, r, ws, "/ws/a.md", 2, 3)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.IsTriggerLocation && !ref.IsDefinition {
			t.Errorf("trigger should be the definition: %+v", ref)
		}
		if !ref.IsTriggerLocation && ref.IsDefinition {
			t.Errorf("reference-style link marked as definition: %+v", ref)
		}
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
}

func TestPathTriggerIgnoresSiblingFragments(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# S1\n# S2")
	ws.CreateDocument("/ws/b.md", "[x](a.md#s1)\n[y](a.md#s2)\n[z](a.md)")
	r := newResolver(t, ws)

	// Position on the path portion, before the '#'.
	refs := at(t, r, ws, "/ws/b.md", 0, 5)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.Kind != KindLink {
			t.Errorf("path trigger pulled in a non-link reference: %+v", ref)
		}
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
}

func TestDuplicateDefinitionFirstWins(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "[text][dup]\n\n[dup]: b.md\n[dup]: c.md")
	r := newResolver(t, ws)

	// Position on the reference name.
	refs := at(t, r, ws, "/ws/a.md", 0, 8)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.IsDefinition && ref.Location.Range.Start.Line != 2 {
			t.Errorf("expected the first definition to win, got %+v", ref)
		}
	}
}

func TestShadowedDefinitionTriggerStaysInSet(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "[text][dup]\n\n[dup]: b.md\n[dup]: c.md")
	r := newResolver(t, ws)

	// Position on the shadowed duplicate's name.
	refs := at(t, r, ws, "/ws/a.md", 3, 2)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d: %+v", len(refs), refs)
	}
	if countTriggers(refs) != 1 {
		t.Errorf("expected exactly one trigger, got %d", countTriggers(refs))
	}
	for _, ref := range refs {
		if ref.IsTriggerLocation && ref.Location.Range.Start.Line != 3 {
			t.Errorf("trigger should be the shadowed definition: %+v", ref)
		}
	}
}

func TestPathLinksGroupAcrossExtensionStyles(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "# a")
	ws.CreateDocument("/ws/b.md", "[full](a.md)")
	ws.CreateDocument("/ws/c.md", "[short](a)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/b.md", 0, 9)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(refs), refs)
	}
	uris := map[protocol.DocumentUri]bool{}
	for _, ref := range refs {
		uris[ref.Location.URI] = true
	}
	if !uris["/ws/b.md"] || !uris["/ws/c.md"] {
		t.Errorf("grouped uris = %v", uris)
	}
}

func TestNothingUnderPosition(t *testing.T) {
	ws := workspace.NewMemoryWorkspace("/ws")
	ws.CreateDocument("/ws/a.md", "plain text\n[link](b.md)")
	r := newResolver(t, ws)

	refs := at(t, r, ws, "/ws/a.md", 0, 3)
	if refs != nil {
		t.Fatalf("expected nil, got %+v", refs)
	}
}

func linkWithRange(uri protocol.DocumentUri, start, end uint32) links.Link {
	rng := protocol.Range{
		Start: protocol.Position{Line: 0, Character: start},
		End:   protocol.Position{Line: 0, Character: end},
	}
	return links.Link{
		Kind:   links.KindLink,
		Href:   links.Href{Kind: links.HrefExternal, External: "https://example.com"},
		Source: links.Source{URI: uri, Range: rng, HrefRange: rng},
	}
}

func TestTriggerSelectionSmallestRange(t *testing.T) {
	candidates := []links.Link{
		linkWithRange("/ws/a.md", 0, 30),
		linkWithRange("/ws/a.md", 5, 15),
	}
	got := triggerLink(candidates, protocol.Position{Line: 0, Character: 10})
	if got != &candidates[1] {
		t.Errorf("expected the smaller range to win, got %+v", got)
	}
}

func TestTriggerSelectionEqualRangesEarlierWins(t *testing.T) {
	candidates := []links.Link{
		linkWithRange("/ws/a.md", 5, 15),
		linkWithRange("/ws/a.md", 5, 15),
	}
	got := triggerLink(candidates, protocol.Position{Line: 0, Character: 10})
	if got != &candidates[0] {
		t.Errorf("expected the earlier occurrence to win the tie, got %+v", got)
	}
}
