// Package slug derives GitHub-style anchor identifiers from heading text.
package slug

import (
	"regexp"
	"strconv"
	"strings"
)

// Slug is a normalized identifier derived from heading or fragment text.
// Two slugs denote the same anchor iff their Values are equal; Values are
// always lowercase so comparison is case-insensitive by construction.
type Slug struct {
	Value string
}

func (s Slug) Equal(other Slug) bool {
	return s.Value == other.Value
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Punctuation stripped from headings. ASCII set plus the CJK/full-width
// punctuation GitHub's anchor algorithm removes.
const punctuation = "][!'\"#$%&()*+,./:;<=>?@\\^{|}~`" +
	"。，、；：？！…—·ˉ¨‘’“”々～‖∶＂＇｀｜〃〔〕〈〉《》「」『』．〖〗【】（）［］｛｝"

var punctuationSet = func() map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range punctuation {
		set[r] = true
	}
	return set
}()

// FromHeading computes the anchor slug of a heading's text.
func FromHeading(text string) Slug {
	s := strings.ToLower(strings.TrimSpace(text))
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = strings.Map(func(r rune) rune {
		if punctuationSet[r] {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, "-")
	return Slug{Value: encodeURI(s)}
}

// FromFragment normalizes a link fragment. Fragments are assumed to already
// be slug-shaped, so only case is folded.
func FromFragment(text string) Slug {
	return Slug{Value: strings.ToLower(text)}
}

// encodeURI percent-encodes the bytes JavaScript's encodeURI would escape,
// keeping the unreserved and reserved URI character sets intact.
func encodeURI(s string) string {
	const keep = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" +
		"-_.!~*'();/?:@&=+$,#"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(keep, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		const hex = "0123456789ABCDEF"
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

// Builder disambiguates repeated slugs within one document. The first
// occurrence keeps its natural slug; each later duplicate appends the
// smallest unused counter and is re-slugified. A Builder is owned by a
// single table-of-contents build and must not be shared.
type Builder struct {
	counts map[string]int
}

func NewBuilder() *Builder {
	return &Builder{counts: make(map[string]int)}
}

// Add mints the slug for the next heading text in document order.
func (b *Builder) Add(text string) Slug {
	s := FromHeading(text)
	if _, taken := b.counts[s.Value]; !taken {
		b.counts[s.Value] = 0
		return s
	}
	base := s.Value
	for n := b.counts[base] + 1; ; n++ {
		candidate := FromHeading(base + "-" + strconv.Itoa(n))
		if _, taken := b.counts[candidate.Value]; !taken {
			b.counts[base] = n
			b.counts[candidate.Value] = 0
			return candidate
		}
	}
}
