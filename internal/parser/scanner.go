package parser

import (
	"context"
	"strings"

	"mdls/internal/workspace"
)

// Scanner is the default Tokenizer. It recognizes the block structure the
// engine needs (ATX and setext headings, fenced code exclusion) and splits
// heading content into inline tokens.
type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

func (s *Scanner) Tokenize(ctx context.Context, doc workspace.Document) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tokens []Token
	inFence := false
	var fenceChar byte
	fenceLen := 0
	consumed := int64(-1) // last line already claimed by a heading

	lineCount := doc.LineCount()
	for i := uint32(0); i < lineCount; i++ {
		line := doc.Line(i)
		stripped := strings.TrimLeft(line, " ")
		indent := len(line) - len(stripped)

		if inFence {
			if indent <= 3 && fenceRunLen(stripped, fenceChar) >= fenceLen {
				inFence = false
			}
			continue
		}
		if indent <= 3 && len(stripped) > 0 && (stripped[0] == '`' || stripped[0] == '~') {
			if n := fenceRunLen(stripped, stripped[0]); n >= 3 {
				inFence = true
				fenceChar = stripped[0]
				fenceLen = n
				continue
			}
		}
		if indent > 3 {
			continue // indented code
		}

		if markup, content, ok := atxHeading(stripped); ok {
			tokens = appendHeading(tokens, markup, content, i)
			consumed = int64(i)
			continue
		}

		if marker, ok := setextUnderline(stripped); ok && i > 0 && consumed != int64(i-1) {
			prev := doc.Line(i - 1)
			prevStripped := strings.TrimSpace(prev)
			prevIndent := len(prev) - len(strings.TrimLeft(prev, " "))
			if prevStripped != "" && prevIndent <= 3 {
				tokens = appendHeading(tokens, marker, prevStripped, i-1)
				consumed = int64(i)
			}
		}
	}

	return tokens, nil
}

func appendHeading(tokens []Token, markup, content string, line uint32) []Token {
	lineMap := []uint32{line, line + 1}
	return append(tokens,
		Token{Type: TypeHeadingOpen, Markup: markup, Map: lineMap},
		Token{Type: TypeInline, Content: content, Map: lineMap, Children: scanInline(content)},
		Token{Type: TypeHeadingClose, Markup: markup},
	)
}

func fenceRunLen(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

// atxHeading matches `#{1,6}` followed by a space (or line end) and returns
// the marker run plus the content with any closing `#` sequence stripped.
func atxHeading(s string) (markup, content string, ok bool) {
	n := fenceRunLen(s, '#')
	if n < 1 || n > 6 {
		return "", "", false
	}
	rest := s[n:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", "", false
	}
	rest = strings.TrimRight(strings.TrimLeft(rest, " \t"), " \t")
	// closing sequence: trailing run of '#' preceded by whitespace, or alone
	if trailing := len(rest) - len(strings.TrimRight(rest, "#")); trailing > 0 {
		head := rest[:len(rest)-trailing]
		if head == "" {
			rest = ""
		} else if trimmed := strings.TrimRight(head, " \t"); len(trimmed) < len(head) {
			rest = trimmed
		}
	}
	return s[:n], rest, true
}

// setextUnderline matches a line of all '=' or all '-' characters.
func setextUnderline(s string) (marker string, ok bool) {
	s = strings.TrimRight(s, " \t")
	if s == "" {
		return "", false
	}
	c := s[0]
	if c != '=' && c != '-' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != c {
			return "", false
		}
	}
	return string(c), true
}

// scanInline splits heading content into inline tokens. Code spans keep
// their content; emphasis markers become non-text tokens; link and image
// constructs keep only their label text.
func scanInline(content string) []Token {
	var out []Token
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			out = append(out, Token{Type: TypeText, Content: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '\\' && i+1 < len(content):
			text.WriteByte(content[i+1])
			i += 2

		case c == '`':
			runLen := fenceRunLen(content[i:], '`')
			if end := findBacktickClose(content, i+runLen, runLen); end >= 0 {
				inner := content[i+runLen : end]
				if len(inner) >= 2 && inner[0] == ' ' && inner[len(inner)-1] == ' ' {
					inner = inner[1 : len(inner)-1]
				}
				flush()
				out = append(out, Token{Type: TypeCodeInline, Markup: strings.Repeat("`", runLen), Content: inner})
				i = end + runLen
			} else {
				text.WriteString(content[i : i+runLen])
				i += runLen
			}

		case c == '*' || c == '_':
			runLen := fenceRunLen(content[i:], c)
			if strings.IndexByte(content[i+runLen:], c) >= 0 || hasEarlierRun(out, c) {
				flush()
				out = append(out, Token{Type: TypeEmphasis, Markup: content[i : i+runLen]})
			} else {
				text.WriteString(content[i : i+runLen])
			}
			i += runLen

		case c == '[' || (c == '!' && i+1 < len(content) && content[i+1] == '['):
			isImage := c == '!'
			open := i
			if isImage {
				open++
			}
			close := matchBracket(content, open)
			if close < 0 {
				text.WriteByte(c)
				i++
				continue
			}
			label := content[open+1 : close]
			flush()
			rest := close + 1
			if isImage {
				out = append(out, Token{Type: TypeImage, Content: label, Children: scanInline(label)})
			} else {
				out = append(out, Token{Type: TypeLinkOpen, Markup: "["})
				out = append(out, scanInline(label)...)
				out = append(out, Token{Type: TypeLinkClose, Markup: "]"})
			}
			// swallow an immediate destination or reference part
			if rest < len(content) && (content[rest] == '(' || content[rest] == '[') {
				if end := matchDelimiter(content, rest); end >= 0 {
					rest = end + 1
				}
			}
			i = rest

		default:
			text.WriteByte(c)
			i++
		}
	}
	flush()
	return out
}

func hasEarlierRun(tokens []Token, c byte) bool {
	for _, t := range tokens {
		if t.Type == TypeEmphasis && len(t.Markup) > 0 && t.Markup[0] == c {
			return true
		}
	}
	return false
}

func findBacktickClose(s string, from, runLen int) int {
	for i := from; i < len(s); i++ {
		if s[i] != '`' {
			continue
		}
		n := fenceRunLen(s[i:], '`')
		if n == runLen {
			return i
		}
		i += n - 1
	}
	return -1
}

// matchBracket returns the index of the ']' matching the '[' at open,
// honoring escapes and nesting, or -1.
func matchBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchDelimiter matches '(' with ')' or '[' with ']' starting at open.
func matchDelimiter(s string, open int) int {
	var closer byte = ')'
	opener := s[open]
	if opener == '[' {
		closer = ']'
	}
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
