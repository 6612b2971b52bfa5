package workspace

import (
	"path"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const fileScheme = "file://"

// URIPath returns the path component of a document URI. Plain paths are
// passed through so tests can use them directly.
func URIPath(uri protocol.DocumentUri) string {
	if p, ok := strings.CutPrefix(string(uri), fileScheme); ok {
		return p
	}
	return string(uri)
}

// URIDir returns the directory of the document's path component.
func URIDir(uri protocol.DocumentUri) string {
	return path.Dir(URIPath(uri))
}

// SiblingURI builds a URI for p using the same scheme convention as ref.
func SiblingURI(ref protocol.DocumentUri, p string) protocol.DocumentUri {
	if strings.HasPrefix(string(ref), fileScheme) {
		return protocol.DocumentUri(fileScheme + p)
	}
	return protocol.DocumentUri(p)
}
