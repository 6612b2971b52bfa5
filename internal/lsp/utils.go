package lsp

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// applyChange splices newText over the given range of content.
func applyChange(content string, rng protocol.Range, newText string) string {
	start := offsetOf(content, rng.Start)
	end := offsetOf(content, rng.End)
	if start > len(content) {
		start = len(content)
	}
	if end > len(content) {
		end = len(content)
	}
	if end < start {
		end = start
	}
	return content[:start] + newText + content[end:]
}

// offsetOf converts a line/character position to a byte offset.
func offsetOf(content string, pos protocol.Position) int {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		next := strings.IndexByte(content[offset:], '\n')
		if next < 0 {
			return len(content)
		}
		offset += next + 1
	}
	lineEnd := len(content)
	if next := strings.IndexByte(content[offset:], '\n'); next >= 0 {
		lineEnd = offset + next
	}
	offset += int(pos.Character)
	if offset > lineEnd {
		offset = lineEnd
	}
	return offset
}
