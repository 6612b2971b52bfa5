// Package links extracts link and link-definition occurrences from markdown
// documents and classifies their destinations.
package links

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/workspace"
)

// HrefKind tags a link's classified destination.
type HrefKind int

const (
	// HrefExternal is a destination with a non-file scheme or absolute URL.
	HrefExternal HrefKind = iota
	// HrefInternal is a file-system-relative target, optionally with an
	// in-document fragment.
	HrefInternal
	// HrefReference names a link definition to be resolved later.
	HrefReference
)

// Href is a link's classified destination. Exactly one variant's fields are
// populated, selected by Kind.
type Href struct {
	Kind     HrefKind
	External string               // HrefExternal: the literal URI
	Path     protocol.DocumentUri // HrefInternal: resolved target
	Fragment string               // HrefInternal: optional fragment
	Ref      string               // HrefReference: definition name
}

// Kind distinguishes link occurrences from definition declarations.
type Kind int

const (
	KindLink Kind = iota
	KindDefinition
)

// Source locates one occurrence in its document.
type Source struct {
	URI       protocol.DocumentUri
	Range     protocol.Range // the full occurrence
	HrefRange protocol.Range // the destination text
	HrefText  string         // literal destination text as written

	// FragmentRange is the sub-range of HrefRange after the '#', when the
	// destination carries a fragment.
	FragmentRange *protocol.Range

	// RefRange covers the definition name (for definitions) or the
	// reference name (for reference-style links).
	RefRange *protocol.Range
	RefText  string
}

// Link is one link or definition occurrence.
type Link struct {
	Kind   Kind
	Href   Href
	Source Source
}

var (
	definitionPattern = regexp.MustCompile(`^( {0,3}\[)([^\]]+)(\]:[ \t]*)(\S+)`)
	autoLinkPattern   = regexp.MustCompile(`^<([a-zA-Z][a-zA-Z0-9+.-]*:[^<>\s]+)>`)
)

// Find scans a document for link occurrences and definitions, in document
// order. root anchors root-relative (`/...`) destinations.
func Find(ctx context.Context, doc workspace.Document, root protocol.DocumentUri) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Link
	inFence := false
	var fenceChar byte
	fenceLen := 0

	lineCount := doc.LineCount()
	for lineNo := uint32(0); lineNo < lineCount; lineNo++ {
		line := doc.Line(lineNo)
		stripped := strings.TrimLeft(line, " ")

		if inFence {
			if len(line)-len(stripped) <= 3 && runLen(stripped, fenceChar) >= fenceLen {
				inFence = false
			}
			continue
		}
		if len(line)-len(stripped) <= 3 && len(stripped) > 0 && (stripped[0] == '`' || stripped[0] == '~') {
			if n := runLen(stripped, stripped[0]); n >= 3 {
				inFence = true
				fenceChar = stripped[0]
				fenceLen = n
				continue
			}
		}

		if m := definitionPattern.FindStringSubmatchIndex(line); m != nil {
			out = append(out, newDefinition(doc, root, lineNo, line, m))
			continue
		}
		out = append(out, scanLine(doc, root, lineNo, line)...)
	}

	return out, nil
}

func newDefinition(doc workspace.Document, root protocol.DocumentUri, lineNo uint32, line string, m []int) Link {
	nameStart, nameEnd := m[4], m[5]
	destStart, destEnd := m[8], m[9]
	name := line[nameStart:nameEnd]
	dest := line[destStart:destEnd]
	if strings.HasPrefix(dest, "<") && strings.HasSuffix(dest, ">") {
		destStart++
		destEnd--
		dest = dest[1 : len(dest)-1]
	}

	refRange := lineRange(lineNo, nameStart, nameEnd)
	source := Source{
		URI:       doc.URI(),
		Range:     lineRange(lineNo, m[0], m[1]),
		HrefRange: lineRange(lineNo, destStart, destEnd),
		HrefText:  dest,
		RefRange:  &refRange,
		RefText:   name,
	}
	href := classify(dest, doc.URI(), root, lineNo, destStart, &source)
	return Link{Kind: KindDefinition, Href: href, Source: source}
}

// scanLine extracts inline, reference-style, shortcut and auto links.
func scanLine(doc workspace.Document, root protocol.DocumentUri, lineNo uint32, line string) []Link {
	var out []Link
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == '\\':
			i += 2

		case c == '`':
			n := runLen(line[i:], '`')
			if end := closingRun(line, i+n, n); end >= 0 {
				i = end + n
			} else {
				i += n
			}

		case c == '<':
			if m := autoLinkPattern.FindStringSubmatchIndex(line[i:]); m != nil {
				dest := line[i+m[2] : i+m[3]]
				source := Source{
					URI:       doc.URI(),
					Range:     lineRange(lineNo, i, i+m[1]),
					HrefRange: lineRange(lineNo, i+m[2], i+m[3]),
					HrefText:  dest,
				}
				href := classify(dest, doc.URI(), root, lineNo, i+m[2], &source)
				out = append(out, Link{Kind: KindLink, Href: href, Source: source})
				i += m[1]
			} else {
				i++
			}

		case c == '[' || (c == '!' && i+1 < len(line) && line[i+1] == '['):
			start := i
			open := i
			if c == '!' {
				open++
			}
			labelEnd := matchPair(line, open, '[', ']')
			if labelEnd < 0 {
				i = open + 1
				continue
			}
			if link, next, ok := linkAt(doc, root, lineNo, line, start, open, labelEnd); ok {
				out = append(out, link)
				i = next
			} else {
				i = open + 1
			}

		default:
			i++
		}
	}
	return out
}

// linkAt builds the link occurrence whose label ends at labelEnd, deciding
// between inline, reference-style and shortcut forms.
func linkAt(doc workspace.Document, root protocol.DocumentUri, lineNo uint32, line string, start, open, labelEnd int) (Link, int, bool) {
	label := line[open+1 : labelEnd]
	after := labelEnd + 1

	if after < len(line) && line[after] == '(' {
		destEnd := matchPair(line, after, '(', ')')
		if destEnd < 0 {
			return Link{}, 0, false
		}
		destStart, destStop := trimDestination(line, after+1, destEnd)
		dest := line[destStart:destStop]
		source := Source{
			URI:       doc.URI(),
			Range:     lineRange(lineNo, start, destEnd+1),
			HrefRange: lineRange(lineNo, destStart, destStop),
			HrefText:  dest,
		}
		href := classify(dest, doc.URI(), root, lineNo, destStart, &source)
		return Link{Kind: KindLink, Href: href, Source: source}, destEnd + 1, true
	}

	if after < len(line) && line[after] == '[' {
		nameEnd := matchPair(line, after, '[', ']')
		if nameEnd < 0 {
			return Link{}, 0, false
		}
		name := line[after+1 : nameEnd]
		refStart, refStop := after+1, nameEnd
		if name == "" { // collapsed form: [label][]
			name = label
			refStart, refStop = open+1, labelEnd
		}
		refRange := lineRange(lineNo, refStart, refStop)
		source := Source{
			URI:       doc.URI(),
			Range:     lineRange(lineNo, start, nameEnd+1),
			HrefRange: refRange,
			HrefText:  name,
			RefRange:  &refRange,
			RefText:   name,
		}
		return Link{Kind: KindLink, Href: Href{Kind: HrefReference, Ref: name}, Source: source}, nameEnd + 1, true
	}

	// Shortcut form: a bare [label], unless it opens a definition.
	if after < len(line) && line[after] == ':' {
		return Link{}, 0, false
	}
	if label == "" {
		return Link{}, 0, false
	}
	refRange := lineRange(lineNo, open+1, labelEnd)
	source := Source{
		URI:       doc.URI(),
		Range:     lineRange(lineNo, start, labelEnd+1),
		HrefRange: refRange,
		HrefText:  label,
		RefRange:  &refRange,
		RefText:   label,
	}
	return Link{Kind: KindLink, Href: Href{Kind: HrefReference, Ref: label}, Source: source}, labelEnd + 1, true
}

// trimDestination narrows `(...)` contents to the destination itself,
// dropping surrounding whitespace, an optional title and angle brackets.
func trimDestination(line string, from, to int) (int, int) {
	for from < to && (line[from] == ' ' || line[from] == '\t') {
		from++
	}
	for to > from && (line[to-1] == ' ' || line[to-1] == '\t') {
		to--
	}
	if from < to && line[from] == '<' {
		if end := strings.IndexByte(line[from:to], '>'); end > 0 {
			return from + 1, from + end
		}
	}
	// title starts at the first whitespace outside the destination
	for i := from; i < to; i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return from, i
		}
		if line[i] == '\\' {
			i++
		}
	}
	return from, to
}

// classify determines the href kind of a destination and fills the
// fragment sub-range on the source when one is present. destStart is the
// destination's character offset within its line.
func classify(dest string, docURI, root protocol.DocumentUri, lineNo uint32, destStart int, source *Source) Href {
	if u, err := url.Parse(dest); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return Href{Kind: HrefExternal, External: dest}
	}

	pathPart := dest
	fragment := ""
	if i := indexUnescaped(dest, '#'); i >= 0 {
		pathPart = dest[:i]
		fragment = dest[i+1:]
		r := lineRange(lineNo, destStart+i+1, destStart+len(dest))
		source.FragmentRange = &r
	}

	var resolved string
	switch {
	case pathPart == "":
		resolved = workspace.URIPath(docURI)
	case strings.HasPrefix(pathPart, "/"):
		resolved = path.Join(workspace.URIPath(root), decodePath(pathPart))
	default:
		resolved = path.Join(workspace.URIDir(docURI), decodePath(pathPart))
	}

	return Href{
		Kind:     HrefInternal,
		Path:     workspace.SiblingURI(docURI, resolved),
		Fragment: fragment,
	}
}

func decodePath(p string) string {
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			i++
			continue
		}
		if s[i] == c {
			return i
		}
	}
	return -1
}

func lineRange(line uint32, start, end int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: uint32(start)},
		End:   protocol.Position{Line: line, Character: uint32(end)},
	}
}

func runLen(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func closingRun(s string, from, n int) int {
	for i := from; i < len(s); i++ {
		if s[i] != '`' {
			continue
		}
		run := runLen(s[i:], '`')
		if run == n {
			return i
		}
		i += run - 1
	}
	return -1
}

// matchPair returns the index of the closer matching the opener at open,
// honoring escapes and nesting, or -1.
func matchPair(s string, open int, opener, closer byte) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
