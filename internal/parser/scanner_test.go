package parser

import (
	"context"
	"testing"

	"mdls/internal/workspace"
)

func tokenize(t *testing.T, content string) []Token {
	t.Helper()
	doc := workspace.NewMemoryDocument("/ws/test.md", 0, content)
	tokens, err := NewScanner().Tokenize(context.Background(), doc)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	return tokens
}

func headings(tokens []Token) []Token {
	var out []Token
	for _, tok := range tokens {
		if tok.Type == TypeHeadingOpen {
			out = append(out, tok)
		}
	}
	return out
}

func TestATXHeadings(t *testing.T) {
	tokens := tokenize(t, "# One\ntext\n### Three\n#NotAHeading\n")
	hs := headings(tokens)
	if len(hs) != 2 {
		t.Fatalf("expected 2 headings, got %d", len(hs))
	}
	if hs[0].Markup != "#" || hs[0].Map[0] != 0 {
		t.Errorf("first heading: markup %q map %v", hs[0].Markup, hs[0].Map)
	}
	if hs[1].Markup != "###" || hs[1].Map[0] != 2 {
		t.Errorf("second heading: markup %q map %v", hs[1].Markup, hs[1].Map)
	}
}

func TestATXClosingSequence(t *testing.T) {
	tokens := tokenize(t, "# Head #\n")
	if len(tokens) < 2 {
		t.Fatalf("expected heading tokens, got %d", len(tokens))
	}
	if tokens[1].Type != TypeInline || tokens[1].Content != "Head" {
		t.Errorf("inline content = %q", tokens[1].Content)
	}
}

func TestSetextHeadings(t *testing.T) {
	tokens := tokenize(t, "Title\n=====\nSub\n---\n")
	hs := headings(tokens)
	if len(hs) != 2 {
		t.Fatalf("expected 2 headings, got %d", len(hs))
	}
	if hs[0].Markup != "=" || hs[0].Map[0] != 0 {
		t.Errorf("setext h1: markup %q map %v", hs[0].Markup, hs[0].Map)
	}
	if hs[1].Markup != "-" || hs[1].Map[0] != 2 {
		t.Errorf("setext h2: markup %q map %v", hs[1].Markup, hs[1].Map)
	}
}

func TestThematicBreakIsNotHeading(t *testing.T) {
	tokens := tokenize(t, "text\n\n---\n")
	if len(headings(tokens)) != 0 {
		t.Errorf("expected no headings after blank line")
	}
}

func TestFencedCodeExcluded(t *testing.T) {
	tokens := tokenize(t, "```\n# not a heading\n```\n# real\n")
	hs := headings(tokens)
	if len(hs) != 1 || hs[0].Map[0] != 3 {
		t.Fatalf("expected one heading on line 3, got %+v", hs)
	}
}

func TestInlineCodeSpan(t *testing.T) {
	tokens := tokenize(t, "# Use `go build` now\n")
	inline := tokens[1]
	var types []string
	for _, child := range inline.Children {
		types = append(types, child.Type)
	}
	want := []string{TypeText, TypeCodeInline, TypeText}
	if len(types) != len(want) {
		t.Fatalf("children types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("children types = %v, want %v", types, want)
		}
	}
	if inline.Children[1].Content != "go build" {
		t.Errorf("code span content = %q", inline.Children[1].Content)
	}
}

func TestInlineEmphasisDropped(t *testing.T) {
	tokens := tokenize(t, "# a **b** c\n")
	title := ""
	for _, child := range tokens[1].Children {
		if child.Type == TypeText || child.Type == TypeCodeInline {
			title += child.Content
		}
	}
	if title != "a b c" {
		t.Errorf("title = %q", title)
	}
}

func TestInlineLinkKeepsLabel(t *testing.T) {
	tokens := tokenize(t, "# see [docs](http://example.com)\n")
	title := ""
	for _, child := range tokens[1].Children {
		if child.Type == TypeText {
			title += child.Content
		}
	}
	if title != "see docs" {
		t.Errorf("title = %q", title)
	}
}
