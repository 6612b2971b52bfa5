package store

import (
	"context"
	"errors"

	"github.com/tliron/commonlog"

	"mdls/internal/workspace"
)

// ExtractFunc derives the index rows of one document.
type ExtractFunc func(ctx context.Context, doc workspace.Document) (Document, []Link, []Heading, error)

// Scanner keeps the persistent index in sync with the workspace. Documents
// whose checksum is unchanged are skipped; indexed documents that no longer
// exist are pruned.
type Scanner struct {
	db      *DB
	ws      workspace.Workspace
	extract ExtractFunc
	log     commonlog.Logger
}

func NewScanner(db *DB, ws workspace.Workspace, extract ExtractFunc) *Scanner {
	return &Scanner{
		db:      db,
		ws:      ws,
		extract: extract,
		log:     commonlog.GetLogger("mdls.store"),
	}
}

// Scan reindexes every changed document and prunes deleted ones. A failure
// on one document skips it rather than aborting the batch.
func (s *Scanner) Scan(ctx context.Context) error {
	docs, err := s.ws.AllDocuments(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(docs))
	indexed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := workspace.URIPath(doc.URI())
		seen[path] = true

		sum := Checksum(doc.Content())
		existing, err := s.db.GetDocument(path)
		if err == nil && existing.Checksum == sum {
			continue
		}
		if err != nil && !errors.Is(err, ErrDocumentNotFound) {
			return err
		}

		row, links, headings, err := s.extract(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warningf("failed to extract %s: %s", path, err.Error())
			continue
		}
		if err := s.db.IndexDocument(row, links, headings); err != nil {
			return err
		}
		indexed++
	}

	stored, err := s.db.AllDocuments()
	if err != nil {
		return err
	}
	pruned := 0
	for _, doc := range stored {
		if seen[doc.Path] {
			continue
		}
		backlinks, err := s.db.Backlinks(doc.Path)
		if err != nil {
			return err
		}
		if len(backlinks) > 0 {
			s.log.Warningf("pruning %s leaves %d dangling links", doc.Path, len(backlinks))
		}
		if err := s.db.DeleteDocument(doc.Path); err != nil {
			return err
		}
		pruned++
	}

	if indexed > 0 || pruned > 0 {
		s.log.Infof("scan indexed %d and pruned %d documents", indexed, pruned)
	}
	return nil
}
