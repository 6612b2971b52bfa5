package store

import (
	"database/sql"
	"fmt"
)

var ErrDocumentNotFound = fmt.Errorf("document does not exist in index")

// GetDocument retrieves a document by path, or ErrDocumentNotFound.
func (db *DB) GetDocument(path string) (*Document, error) {
	var doc Document
	query := `SELECT id, path, checksum, last_updated FROM documents WHERE path = ?`
	err := db.Conn.QueryRow(query, path).
		Scan(&doc.ID, &doc.Path, &doc.Checksum, &doc.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to retrieve document: %w", err)
	}
	return &doc, nil
}

// IndexDocument replaces a document's index entry atomically: the document
// row is upserted and its links and headings rewritten in one transaction.
func (db *DB) IndexDocument(doc Document, links []Link, headings []Heading) error {
	tx, err := db.Conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertSQL := `
		INSERT INTO documents (path, checksum, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET checksum = excluded.checksum, last_updated = excluded.last_updated;
	`
	if _, err := tx.Exec(upsertSQL, doc.Path, doc.Checksum, doc.LastUpdated); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	var id int
	if err := tx.QueryRow(`SELECT id FROM documents WHERE path = ?`, doc.Path).Scan(&id); err != nil {
		return fmt.Errorf("failed to read document id: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear links: %w", err)
	}
	for _, link := range links {
		if _, err := tx.Exec(
			`INSERT INTO links (source_id, target_path, fragment) VALUES (?, ?, ?)`,
			id, link.TargetPath, link.Fragment,
		); err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM headings WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear headings: %w", err)
	}
	for _, heading := range headings {
		if _, err := tx.Exec(
			`INSERT INTO headings (document_id, slug, line, level) VALUES (?, ?, ?, ?)`,
			id, heading.Slug, heading.Line, heading.Level,
		); err != nil {
			return fmt.Errorf("failed to insert heading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and, via cascade, its links and
// headings. Deleting an unindexed path is not an error.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.Conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AllDocuments lists every indexed document, ordered by path.
func (db *DB) AllDocuments() ([]Document, error) {
	rows, err := db.Conn.Query(`SELECT id, path, checksum, last_updated FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Checksum, &doc.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Backlinks lists every link occurrence targeting the given path.
func (db *DB) Backlinks(targetPath string) ([]Link, error) {
	query := `
		SELECT d.path, l.target_path, l.fragment
		FROM links l JOIN documents d ON d.id = l.source_id
		WHERE l.target_path = ?
		ORDER BY d.path;
	`
	rows, err := db.Conn.Query(query, targetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query backlinks: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var link Link
		if err := rows.Scan(&link.SourcePath, &link.TargetPath, &link.Fragment); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Headings lists the heading declarations of one document, in line order.
func (db *DB) Headings(path string) ([]Heading, error) {
	query := `
		SELECT d.path, h.slug, h.line, h.level
		FROM headings h JOIN documents d ON d.id = h.document_id
		WHERE d.path = ?
		ORDER BY h.line;
	`
	rows, err := db.Conn.Query(query, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query headings: %w", err)
	}
	defer rows.Close()

	var headings []Heading
	for rows.Next() {
		var heading Heading
		if err := rows.Scan(&heading.Path, &heading.Slug, &heading.Line, &heading.Level); err != nil {
			return nil, fmt.Errorf("failed to scan heading: %w", err)
		}
		headings = append(headings, heading)
	}
	return headings, rows.Err()
}
