// Package parser defines the token stream the language engine consumes and
// a default markdown scanner producing it. The engine only depends on the
// Tokenizer interface, so a different markdown front end can be dropped in.
package parser

import (
	"context"

	"mdls/internal/workspace"
)

// Token mirrors the markdown-it token shape: a type tag, the literal markup
// that introduced the token, its text content, an optional [start,end) line
// map and inline child tokens.
type Token struct {
	Type     string
	Markup   string
	Content  string
	Map      []uint32 // [startLine, endLine), nil when the source line is unknown
	Children []Token
}

// Token types emitted by the default scanner.
const (
	TypeHeadingOpen  = "heading_open"
	TypeHeadingClose = "heading_close"
	TypeInline       = "inline"
	TypeText         = "text"
	TypeCodeInline   = "code_inline"
	TypeEmoji        = "emoji"
	TypeEmphasis     = "em"
	TypeLinkOpen     = "link_open"
	TypeLinkClose    = "link_close"
	TypeImage        = "image"
)

// Tokenizer turns a document into a token stream.
type Tokenizer interface {
	Tokenize(ctx context.Context, doc workspace.Document) ([]Token, error)
}
