// Package toc builds the table of contents of a markdown document from its
// token stream: one entry per heading, with computed section, heading-line
// and heading-text ranges and a collision-free slug per document.
package toc

import (
	"context"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"mdls/internal/parser"
	"mdls/internal/slug"
	"mdls/internal/workspace"
)

// Entry is one heading of a document. Entries are immutable and owned by
// the TableOfContents that produced them.
type Entry struct {
	Slug  slug.Slug
	Text  string
	Level int
	Line  uint32

	// SectionRange spans from the heading line to the line before the next
	// heading of equal or lower level, or the document end.
	SectionRange protocol.Range
	// HeadingLineRange covers the full heading line.
	HeadingLineRange protocol.Range
	// HeadingTextRange covers just the heading's text, without markers.
	HeadingTextRange protocol.Range
}

// TableOfContents is an immutable, document-ordered list of headings.
type TableOfContents struct {
	Entries []Entry
}

// Empty is the shared table of contents of documents without headings and
// of documents that failed to load.
var Empty = &TableOfContents{}

// LookupFragment finds the entry a link fragment addresses. Lookup is
// case-insensitive.
func (t *TableOfContents) LookupFragment(fragment string) *Entry {
	s := slug.FromFragment(fragment)
	for i := range t.Entries {
		if t.Entries[i].Slug.Equal(s) {
			return &t.Entries[i]
		}
	}
	return nil
}

// EntryAtLine returns the entry whose heading line contains pos, if any.
func (t *TableOfContents) EntryAtLine(line uint32) *Entry {
	for i := range t.Entries {
		if t.Entries[i].Line == line {
			return &t.Entries[i]
		}
	}
	return nil
}

// Build scans the token stream of one document into a table of contents.
func Build(ctx context.Context, tokenizer parser.Tokenizer, doc workspace.Document) (*TableOfContents, error) {
	tokens, err := tokenizer.Tokenize(ctx, doc)
	if err != nil {
		return Empty, err
	}
	if err := ctx.Err(); err != nil {
		return Empty, err
	}

	builder := slug.NewBuilder()
	var entries []Entry
	for i := 0; i < len(tokens); i++ {
		open := tokens[i]
		if open.Type != parser.TypeHeadingOpen {
			continue
		}
		// A heading token without a line map cannot be placed; skip it.
		if len(open.Map) < 2 {
			continue
		}
		line := open.Map[0]
		if line >= doc.LineCount() {
			continue
		}

		var inline *parser.Token
		if i+1 < len(tokens) && tokens[i+1].Type == parser.TypeInline {
			inline = &tokens[i+1]
		}
		text := titleText(inline)
		lineText := doc.Line(line)

		entries = append(entries, Entry{
			Slug:  builder.Add(text),
			Text:  text,
			Level: headingLevel(open.Markup),
			Line:  line,
			HeadingLineRange: protocol.Range{
				Start: protocol.Position{Line: line},
				End:   protocol.Position{Line: line, Character: uint32(len(lineText))},
			},
			HeadingTextRange: headingTextRange(lineText, line, open.Markup, text),
		})
	}
	if len(entries) == 0 {
		return Empty, nil
	}

	lastLine := doc.LineCount() - 1
	for i := range entries {
		end := lastLine
		for j := i + 1; j < len(entries); j++ {
			if entries[j].Level <= entries[i].Level {
				end = entries[j].Line - 1
				break
			}
		}
		entries[i].SectionRange = protocol.Range{
			Start: protocol.Position{Line: entries[i].Line},
			End:   protocol.Position{Line: end, Character: uint32(len(doc.Line(end)))},
		}
	}

	return &TableOfContents{Entries: entries}, nil
}

// headingLevel derives the 1-based depth from the heading marker.
func headingLevel(markup string) int {
	switch markup {
	case "=":
		return 1
	case "-":
		return 2
	default:
		return len(markup)
	}
}

// titleText concatenates the text-bearing inline tokens of a heading,
// dropping formatting markers.
func titleText(inline *parser.Token) string {
	if inline == nil {
		return ""
	}
	var b strings.Builder
	for _, child := range inline.Children {
		switch child.Type {
		case parser.TypeText, parser.TypeCodeInline, parser.TypeEmoji:
			b.WriteString(child.Content)
		}
	}
	if b.Len() == 0 {
		return inline.Content
	}
	return b.String()
}

// headingTextRange locates the heading text within its source line.
func headingTextRange(lineText string, line uint32, markup, text string) protocol.Range {
	start := 0
	end := len(lineText)
	switch markup {
	case "=", "-":
		trimmed := strings.TrimLeft(lineText, " \t")
		start = len(lineText) - len(trimmed)
		end = len(strings.TrimRight(lineText, " \t"))
	default:
		rest := strings.TrimLeft(lineText, " \t")
		start = len(lineText) - len(rest)
		start += strings.IndexByte(rest, '#') + len(markup)
		for start < len(lineText) && (lineText[start] == ' ' || lineText[start] == '\t') {
			start++
		}
		end = len(strings.TrimRight(lineText, " \t"))
		// trailing closing sequence
		trimmed := strings.TrimRight(lineText[:end], "#")
		if len(trimmed) < end {
			if inner := strings.TrimRight(trimmed, " \t"); len(inner) < len(trimmed) {
				end = len(inner)
			}
		}
		if start > end {
			start = end
		}
	}
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: uint32(start)},
		End:   protocol.Position{Line: line, Character: uint32(end)},
	}
}
