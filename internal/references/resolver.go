// Package references unifies headings and links into a single addressable
// reference space and finds, for a position in one document, every location
// across the workspace denoting the same logical entity.
package references

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/cache"
	"mdls/internal/links"
	"mdls/internal/slug"
	"mdls/internal/toc"
	"mdls/internal/workspace"
)

// Kind tags a resolved reference.
type Kind int

const (
	KindHeader Kind = iota
	KindLink
)

// Reference is one element of an "all references" result.
type Reference struct {
	Kind         Kind
	Location     protocol.Location
	IsDefinition bool
	// IsTriggerLocation is true on exactly one element of a result: the
	// occurrence the query position selected.
	IsTriggerLocation bool

	// Header fields, set when Kind is KindHeader.
	HeaderText         string
	HeaderTextLocation *protocol.Location

	// Link is the occurrence behind a KindLink reference.
	Link *links.Link
}

// Config carries the resolver's path-probing settings.
type Config struct {
	// DefaultExtension is tried when an extension-less link target does not
	// exist as written (typically "md").
	DefaultExtension string
}

// Resolver computes reference sets against the workspace-wide link cache
// and the per-document table-of-contents cache.
type Resolver struct {
	ws    workspace.Workspace
	tocs  *toc.Provider
	links *cache.WorkspaceCache[[]links.Link]
	cfg   Config
	log   commonlog.Logger
}

func NewResolver(ws workspace.Workspace, tocs *toc.Provider, linkCache *cache.WorkspaceCache[[]links.Link], cfg Config) *Resolver {
	return &Resolver{
		ws:    ws,
		tocs:  tocs,
		links: linkCache,
		cfg:   cfg,
		log:   commonlog.GetLogger("mdls.references"),
	}
}

// ReferencesAt resolves the reference under pos and returns every location
// referring to the same entity. A nil result means nothing resolves there.
func (r *Resolver) ReferencesAt(ctx context.Context, doc workspace.Document, pos protocol.Position) ([]Reference, error) {
	t, err := r.tocs.GetForDocument(ctx, doc)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if t != nil {
		if entry := t.EntryAtLine(pos.Line); entry != nil {
			return r.headerReferences(ctx, doc.URI(), entry, true)
		}
	}

	docLinks, err := r.documentLinks(ctx, doc)
	if err != nil {
		return nil, err
	}
	trigger := triggerLink(docLinks, pos)
	if trigger == nil {
		return nil, nil
	}

	// A position on a definition's name resolves by name no matter what
	// the definition points at.
	if trigger.Kind == links.KindDefinition && positionIn(trigger.Source.RefRange, pos) {
		return r.nameReferences(docLinks, trigger, trigger.Source.RefText), nil
	}

	switch trigger.Href.Kind {
	case links.HrefExternal:
		return r.externalReferences(docLinks, trigger), nil
	case links.HrefReference:
		return r.nameReferences(docLinks, trigger, trigger.Href.Ref), nil
	default:
		return r.internalReferences(ctx, trigger, positionIn(trigger.Source.FragmentRange, pos))
	}
}

func (r *Resolver) documentLinks(ctx context.Context, doc workspace.Document) ([]links.Link, error) {
	values, err := r.links.GetForDocs(ctx, []workspace.Document{doc})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// triggerLink selects the occurrence under pos. Candidates must contain pos
// in their href, fragment or name range; the smallest containing range
// wins, with the earlier occurrence breaking exact ties.
func triggerLink(docLinks []links.Link, pos protocol.Position) *links.Link {
	var best *links.Link
	bestSize := uint32(0)
	for i := range docLinks {
		l := &docLinks[i]
		if !positionIn(&l.Source.HrefRange, pos) &&
			!positionIn(l.Source.FragmentRange, pos) &&
			!positionIn(l.Source.RefRange, pos) {
			continue
		}
		size := rangeSize(l.Source.Range)
		if best == nil || size < bestSize {
			best = l
			bestSize = size
		}
	}
	return best
}

// headerReferences collects the heading declaration plus every link in the
// workspace whose fragment resolves to it.
func (r *Resolver) headerReferences(ctx context.Context, uri protocol.DocumentUri, entry *toc.Entry, headerIsTrigger bool) ([]Reference, error) {
	headerTextLoc := protocol.Location{URI: uri, Range: entry.HeadingTextRange}
	refs := []Reference{{
		Kind:               KindHeader,
		Location:           protocol.Location{URI: uri, Range: entry.HeadingLineRange},
		IsDefinition:       true,
		IsTriggerLocation:  headerIsTrigger,
		HeaderText:         entry.Text,
		HeaderTextLocation: &headerTextLoc,
	}}

	targetPath := r.resolveDocPath(ctx, uri)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, uris, err := r.workspaceLinks(ctx)
	if err != nil {
		return nil, err
	}
	for _, docURI := range uris {
		for i := range all[docURI] {
			l := &all[docURI][i]
			if l.Href.Kind != links.HrefInternal || l.Href.Fragment == "" {
				continue
			}
			if r.resolveDocPath(ctx, l.Href.Path) != targetPath {
				continue
			}
			if !slug.FromFragment(l.Href.Fragment).Equal(entry.Slug) {
				continue
			}
			refs = append(refs, Reference{
				Kind:         KindLink,
				Location:     protocol.Location{URI: l.Source.URI, Range: l.Source.Range},
				IsDefinition: l.Kind == links.KindDefinition,
				Link:         l,
			})
		}
	}
	return refs, nil
}

// externalReferences matches the exact URI string within the current
// document only.
func (r *Resolver) externalReferences(docLinks []links.Link, trigger *links.Link) []Reference {
	var refs []Reference
	for i := range docLinks {
		l := &docLinks[i]
		if l.Href.Kind != links.HrefExternal || l.Href.External != trigger.Href.External {
			continue
		}
		refs = append(refs, Reference{
			Kind:              KindLink,
			Location:          protocol.Location{URI: l.Source.URI, Range: l.Source.Range},
			IsDefinition:      l.Kind == links.KindDefinition,
			IsTriggerLocation: l == trigger,
			Link:              l,
		})
	}
	return refs
}

// nameReferences matches reference-style links and the definition owning a
// name. Reference scope never crosses documents. When several definitions
// share the name only the first one joins the set; references resolve to
// it and shadowed duplicates stay untouched (unless one is the trigger).
func (r *Resolver) nameReferences(docLinks []links.Link, trigger *links.Link, name string) []Reference {
	defs := links.NewDefinitionSet(docLinks)
	var refs []Reference
	for i := range docLinks {
		l := &docLinks[i]
		matches := l.Href.Kind == links.HrefReference && strings.EqualFold(l.Href.Ref, name)
		if l.Kind == links.KindDefinition && strings.EqualFold(l.Source.RefText, name) {
			def, ok := defs.Get(name)
			matches = ok && sameOccurrence(l, def)
		}
		if !matches && !sameOccurrence(l, trigger) {
			continue
		}
		refs = append(refs, Reference{
			Kind:              KindLink,
			Location:          protocol.Location{URI: l.Source.URI, Range: l.Source.Range},
			IsDefinition:      l.Kind == links.KindDefinition,
			IsTriggerLocation: l == trigger,
			Link:              l,
		})
	}
	return refs
}

// internalReferences matches every link resolving to the same file. When
// the position sits on the trigger's fragment, matches narrow to links
// sharing that heading and the heading declaration joins the set as the
// definition; a position on the path groups all links to the file with
// fragments ignored.
func (r *Resolver) internalReferences(ctx context.Context, trigger *links.Link, onFragment bool) ([]Reference, error) {
	targetPath := r.resolveDocPath(ctx, trigger.Href.Path)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var refs []Reference
	fragment := ""
	if onFragment {
		fragment = trigger.Href.Fragment
	}
	var fragmentSlug slug.Slug
	if fragment != "" {
		fragmentSlug = slug.FromFragment(fragment)
		if t, err := r.tocs.Get(ctx, targetPath); err == nil {
			if entry := t.LookupFragment(fragment); entry != nil {
				headerRefs, err := r.headerReferences(ctx, targetPath, entry, false)
				if err != nil {
					return nil, err
				}
				// Keep only the declaration; the links are re-collected
				// below with trigger marking.
				refs = append(refs, headerRefs[0])
			}
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	all, uris, err := r.workspaceLinks(ctx)
	if err != nil {
		return nil, err
	}
	for _, docURI := range uris {
		for i := range all[docURI] {
			l := &all[docURI][i]
			if l.Href.Kind != links.HrefInternal {
				continue
			}
			if r.resolveDocPath(ctx, l.Href.Path) != targetPath {
				continue
			}
			if fragment != "" &&
				(l.Href.Fragment == "" || !slug.FromFragment(l.Href.Fragment).Equal(fragmentSlug)) {
				continue
			}
			refs = append(refs, Reference{
				Kind:              KindLink,
				Location:          protocol.Location{URI: l.Source.URI, Range: l.Source.Range},
				IsDefinition:      l.Kind == links.KindDefinition,
				IsTriggerLocation: sameOccurrence(l, trigger),
				Link:              l,
			})
		}
	}
	return refs, nil
}

// workspaceLinks snapshots the link cache with a stable document order.
func (r *Resolver) workspaceLinks(ctx context.Context) (map[protocol.DocumentUri][]links.Link, []protocol.DocumentUri, error) {
	all, err := r.links.Entries(ctx)
	if err != nil {
		return nil, nil, err
	}
	uris := make([]protocol.DocumentUri, 0, len(all))
	for uri := range all {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return all, uris, nil
}

// resolveDocPath probes whether a link target exists, preferring the
// configured default extension for extension-less targets. Unresolvable
// paths are returned as written so same-path links still group together.
func (r *Resolver) resolveDocPath(ctx context.Context, uri protocol.DocumentUri) protocol.DocumentUri {
	if _, err := r.ws.Stat(ctx, uri); err == nil {
		return uri
	}
	if path.Ext(workspace.URIPath(uri)) == "" && r.cfg.DefaultExtension != "" {
		candidate := protocol.DocumentUri(string(uri) + "." + r.cfg.DefaultExtension)
		if _, err := r.ws.Stat(ctx, candidate); err == nil {
			return candidate
		}
	}
	return uri
}

// ResolveDocPath is the probe used by the rename engine when computing
// file-rename targets.
func (r *Resolver) ResolveDocPath(ctx context.Context, uri protocol.DocumentUri) protocol.DocumentUri {
	return r.resolveDocPath(ctx, uri)
}

// sameOccurrence identifies a link across cache snapshots by location
// rather than pointer identity.
func sameOccurrence(a, b *links.Link) bool {
	return a.Source.URI == b.Source.URI && a.Source.Range == b.Source.Range
}

func positionIn(rng *protocol.Range, pos protocol.Position) bool {
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

func rangeSize(rng protocol.Range) uint32 {
	if rng.Start.Line == rng.End.Line {
		return rng.End.Character - rng.Start.Character
	}
	return (rng.End.Line - rng.Start.Line) * 1000
}
