// Package store persists the workspace link index in SQLite so backlink
// queries survive restarts and unchanged files can skip re-extraction.
package store

// Document is one indexed markdown file.
type Document struct {
	ID          int
	Path        string
	Checksum    string
	LastUpdated int64
}

// Link is one outgoing link occurrence of a document. TargetPath is the
// resolved workspace path; Fragment is empty for whole-file links.
type Link struct {
	SourcePath string
	TargetPath string
	Fragment   string
}

// Heading is one heading declaration of a document.
type Heading struct {
	Path  string
	Slug  string
	Line  uint32
	Level int
}
