// Package rename turns a resolved reference set into a multi-file workspace
// edit. Four strategies exist, keyed by the trigger reference's kind and the
// sub-range of it containing the position: heading/fragment rename,
// reference-name rename, external-literal rename, and file-path rename.
package rename

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/links"
	"mdls/internal/references"
	"mdls/internal/slug"
	"mdls/internal/workspace"
)

// ErrNotSupported reports that no renameable reference resolves at the
// trigger position. Callers surface it as a user-facing message.
var ErrNotSupported = errors.New("rename not supported at this position")

// Prepared is the editable range and placeholder text for an inline rename.
type Prepared struct {
	Range       protocol.Range
	Placeholder string
}

// Engine computes rename edits against the reference resolver.
type Engine struct {
	ws         workspace.Workspace
	resolver   *references.Resolver
	defaultExt string
	log        commonlog.Logger

	// last holds the reference set of the most recent resolution, so a
	// prepare immediately followed by the actual rename resolves once.
	mu   sync.Mutex
	last *resolution
}

type resolution struct {
	uri     protocol.DocumentUri
	version int32
	pos     protocol.Position
	refs    []references.Reference
}

func NewEngine(ws workspace.Workspace, resolver *references.Resolver, defaultExtension string) *Engine {
	return &Engine{
		ws:         ws,
		resolver:   resolver,
		defaultExt: defaultExtension,
		log:        commonlog.GetLogger("mdls.rename"),
	}
}

// PrepareRename resolves the trigger non-destructively and returns the
// editable range with its placeholder, or ErrNotSupported.
func (e *Engine) PrepareRename(ctx context.Context, doc workspace.Document, pos protocol.Position) (*Prepared, error) {
	refs, err := e.resolve(ctx, doc, pos)
	if err != nil {
		return nil, err
	}
	trigger := triggerOf(refs)
	if trigger == nil {
		return nil, ErrNotSupported
	}

	if trigger.Kind == references.KindHeader {
		return &Prepared{Range: trigger.HeaderTextLocation.Range, Placeholder: trigger.HeaderText}, nil
	}

	link := trigger.Link
	src := &link.Source
	switch {
	case link.Href.Kind == links.HrefReference:
		return &Prepared{Range: *src.RefRange, Placeholder: link.Href.Ref}, nil
	case link.Kind == links.KindDefinition && containsPos(src.RefRange, pos):
		return &Prepared{Range: *src.RefRange, Placeholder: src.RefText}, nil
	case link.Href.Kind == links.HrefExternal:
		return &Prepared{Range: src.HrefRange, Placeholder: src.HrefText}, nil
	case containsPos(src.FragmentRange, pos):
		return &Prepared{Range: *src.FragmentRange, Placeholder: link.Href.Fragment}, nil
	default:
		return &Prepared{Range: pathRange(src), Placeholder: pathText(src)}, nil
	}
}

// ProvideRenameEdits computes the atomic multi-file edit applying newName at
// the trigger position.
func (e *Engine) ProvideRenameEdits(ctx context.Context, doc workspace.Document, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	refs, err := e.resolve(ctx, doc, pos)
	if err != nil {
		return nil, err
	}
	trigger := triggerOf(refs)
	if trigger == nil {
		return nil, ErrNotSupported
	}

	if trigger.Kind == references.KindHeader {
		return e.renameFragment(refs, newName), nil
	}
	link := trigger.Link
	switch {
	case link.Href.Kind == links.HrefReference,
		link.Kind == links.KindDefinition && containsPos(link.Source.RefRange, pos):
		return e.renameReference(refs, newName), nil
	case link.Href.Kind == links.HrefExternal:
		return e.renameExternal(refs, newName), nil
	case containsPos(link.Source.FragmentRange, pos):
		return e.renameFragment(refs, newName), nil
	default:
		return e.renameFile(ctx, link, refs, newName)
	}
}

func (e *Engine) resolve(ctx context.Context, doc workspace.Document, pos protocol.Position) ([]references.Reference, error) {
	e.mu.Lock()
	if last := e.last; last != nil &&
		last.uri == doc.URI() && last.version == doc.Version() && last.pos == pos {
		e.mu.Unlock()
		return last.refs, nil
	}
	e.mu.Unlock()

	refs, err := e.resolver.ReferencesAt(ctx, doc, pos)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.last = &resolution{uri: doc.URI(), version: doc.Version(), pos: pos, refs: refs}
	e.mu.Unlock()
	return refs, nil
}

func triggerOf(refs []references.Reference) *references.Reference {
	for i := range refs {
		if refs[i].IsTriggerLocation {
			return &refs[i]
		}
	}
	return nil
}

// renameFragment rewrites the heading text and every fragment resolving to
// it. Fragments take the slug of the new name; external hrefs stay literal.
func (e *Engine) renameFragment(refs []references.Reference, newName string) *protocol.WorkspaceEdit {
	newSlug := slug.FromHeading(newName)
	set := newEditSet()
	for i := range refs {
		ref := &refs[i]
		if ref.Kind == references.KindHeader {
			set.add(ref.HeaderTextLocation.URI, protocol.TextEdit{
				Range:   ref.HeaderTextLocation.Range,
				NewText: newName,
			})
			continue
		}
		link := ref.Link
		if link.Href.Kind == links.HrefExternal || link.Source.FragmentRange == nil {
			continue
		}
		set.add(link.Source.URI, protocol.TextEdit{
			Range:   *link.Source.FragmentRange,
			NewText: newSlug.Value,
		})
	}
	return set.workspaceEdit()
}

// renameReference rewrites the definition name and every reference-style
// link sharing it. Reference scope never leaves the document, so the
// resolved set already is document-local.
func (e *Engine) renameReference(refs []references.Reference, newName string) *protocol.WorkspaceEdit {
	set := newEditSet()
	for i := range refs {
		link := refs[i].Link
		if link == nil || link.Source.RefRange == nil {
			continue
		}
		set.add(link.Source.URI, protocol.TextEdit{
			Range:   *link.Source.RefRange,
			NewText: newName,
		})
	}
	return set.workspaceEdit()
}

// renameExternal replaces the literal href text at every occurrence in the
// current document.
func (e *Engine) renameExternal(refs []references.Reference, newName string) *protocol.WorkspaceEdit {
	set := newEditSet()
	for i := range refs {
		link := refs[i].Link
		if link == nil {
			continue
		}
		set.add(link.Source.URI, protocol.TextEdit{
			Range:   link.Source.HrefRange,
			NewText: newName,
		})
	}
	return set.workspaceEdit()
}

// renameFile renames the link's target file and rewrites the path portion of
// every referencing link, preserving each occurrence's root-relative vs.
// relative style. The file-rename operation is issued only when the target
// currently exists.
func (e *Engine) renameFile(ctx context.Context, trigger *links.Link, refs []references.Reference, newName string) (*protocol.WorkspaceEdit, error) {
	oldTarget := e.resolver.ResolveDocPath(ctx, trigger.Href.Path)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	newPath := newName
	if !strings.HasPrefix(newPath, "/") {
		newPath = path.Join(workspace.URIDir(trigger.Source.URI), newPath)
	} else {
		newPath = path.Join(workspace.URIPath(e.ws.Root()), newPath)
	}
	if path.Ext(newName) == "" && path.Ext(workspace.URIPath(oldTarget)) != "" && e.defaultExt != "" {
		newPath += "." + e.defaultExt
	}
	newTarget := workspace.SiblingURI(oldTarget, newPath)

	set := newEditSet()
	rootPath := workspace.URIPath(e.ws.Root())
	for i := range refs {
		link := refs[i].Link
		if link == nil || link.Href.Kind != links.HrefInternal {
			continue
		}
		original := pathText(&link.Source)
		var rewritten string
		if strings.HasPrefix(original, "/") {
			rewritten = strings.TrimPrefix(newPath, rootPath)
			if !strings.HasPrefix(rewritten, "/") {
				rewritten = "/" + rewritten
			}
		} else {
			rewritten = relPath(workspace.URIDir(link.Source.URI), newPath)
			if strings.HasPrefix(original, "./") && !strings.HasPrefix(rewritten, ".") {
				rewritten = "./" + rewritten
			}
		}
		set.add(link.Source.URI, protocol.TextEdit{
			Range:   pathRange(&link.Source),
			NewText: rewritten,
		})
	}

	edit := set.workspaceEdit()
	if _, err := e.ws.Stat(ctx, oldTarget); err == nil {
		edit.DocumentChanges = append(edit.DocumentChanges, protocol.RenameFile{
			Kind:   "rename",
			OldURI: oldTarget,
			NewURI: newTarget,
		})
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return edit, nil
}

// editSet groups text edits per document in first-touched order.
type editSet struct {
	order []protocol.DocumentUri
	byURI map[protocol.DocumentUri][]protocol.TextEdit
}

func newEditSet() *editSet {
	return &editSet{byURI: make(map[protocol.DocumentUri][]protocol.TextEdit)}
}

func (s *editSet) add(uri protocol.DocumentUri, edit protocol.TextEdit) {
	if _, ok := s.byURI[uri]; !ok {
		s.order = append(s.order, uri)
	}
	s.byURI[uri] = append(s.byURI[uri], edit)
}

func (s *editSet) workspaceEdit() *protocol.WorkspaceEdit {
	var changes []any
	for _, uri := range s.order {
		edits := make([]any, 0, len(s.byURI[uri]))
		for _, edit := range s.byURI[uri] {
			edits = append(edits, edit)
		}
		changes = append(changes, protocol.TextDocumentEdit{
			TextDocument: protocol.OptionalVersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			},
			Edits: edits,
		})
	}
	return &protocol.WorkspaceEdit{DocumentChanges: changes}
}

// pathRange is the href sub-range covering just the path, excluding any
// '#fragment' suffix.
func pathRange(src *links.Source) protocol.Range {
	r := src.HrefRange
	if src.FragmentRange != nil {
		r.End = protocol.Position{
			Line:      src.FragmentRange.Start.Line,
			Character: src.FragmentRange.Start.Character - 1,
		}
	}
	return r
}

func pathText(src *links.Source) string {
	if src.FragmentRange == nil {
		return src.HrefText
	}
	n := int(src.FragmentRange.Start.Character) - 1 - int(src.HrefRange.Start.Character)
	if n < 0 || n > len(src.HrefText) {
		return src.HrefText
	}
	return src.HrefText[:n]
}

func containsPos(rng *protocol.Range, pos protocol.Position) bool {
	if rng == nil {
		return false
	}
	if pos.Line < rng.Start.Line || pos.Line > rng.End.Line {
		return false
	}
	if pos.Line == rng.Start.Line && pos.Character < rng.Start.Character {
		return false
	}
	if pos.Line == rng.End.Line && pos.Character > rng.End.Character {
		return false
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// relPath computes target relative to the base directory, both given as
// absolute slash paths.
func relPath(base, target string) string {
	b := splitPath(base)
	t := splitPath(target)
	i := 0
	for i < len(b) && i < len(t) && b[i] == t[i] {
		i++
	}
	parts := make([]string, 0, len(b)-i+len(t)-i)
	for j := i; j < len(b); j++ {
		parts = append(parts, "..")
	}
	parts = append(parts, t[i:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}
