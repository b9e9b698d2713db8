package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// File kinds stored in the files table.
const (
	KindNote  = "note"
	KindImage = "image"
)

// FileRow represents a row in the files table.
type FileRow struct {
	Path        string
	Kind        string
	Checksum    string
	Frontmatter map[string]any
	UpdatedAt   time.Time
}

// ImageQuery filters ListImages.
type ImageQuery struct {
	// Dir restricts results to a folder ("" means the whole vault).
	Dir string
	// Direct restricts results to direct children of Dir.
	Direct bool
	// Contains is a case-insensitive substring match on the path.
	Contains string
	Limit    int
}

func dirOf(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

// UpsertFile inserts or replaces a file row.
func (db *DB) UpsertFile(f FileRow) error {
	fm := f.Frontmatter
	if fm == nil {
		fm = map[string]any{}
	}
	fmJSON, err := json.Marshal(fm)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter for %s: %w", f.Path, err)
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}
	_, err = db.conn.Exec(`
		INSERT INTO files (path, name, dir, kind, checksum, frontmatter, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name        = excluded.name,
			dir         = excluded.dir,
			kind        = excluded.kind,
			checksum    = excluded.checksum,
			frontmatter = excluded.frontmatter,
			updated_at  = excluded.updated_at
	`, f.Path, path.Base(f.Path), dirOf(f.Path), f.Kind, f.Checksum, string(fmJSON), f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}
	return nil
}

// DeleteFile removes a file row.
func (db *DB) DeleteFile(p string) error {
	if _, err := db.conn.Exec(`DELETE FROM files WHERE path = ?`, p); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a file, or empty string if not found.
func (db *DB) GetChecksum(p string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, p).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed file.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Frontmatter returns the cached frontmatter of a note. A note without
// frontmatter, or a path that is not indexed, yields a nil map.
func (db *DB) Frontmatter(p string) (map[string]any, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT frontmatter FROM files WHERE path = ? AND kind = ?`, p, KindNote).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: frontmatter: %w", err)
	}
	var fm map[string]any
	if err := json.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, fmt.Errorf("index: decode frontmatter for %s: %w", p, err)
	}
	if len(fm) == 0 {
		return nil, nil
	}
	return fm, nil
}

// ResolveLink resolves an internal link target to a vault path, relative to
// sourcePath. Lookup order: exact vault path, path relative to the source
// note's folder, then the shortest path whose suffix matches the link.
// Links without an extension also try ".md".
func (db *DB) ResolveLink(link, sourcePath string) (string, bool, error) {
	link = strings.TrimPrefix(strings.TrimSpace(link), "/")
	if link == "" {
		return "", false, nil
	}

	candidates := []string{link}
	if path.Ext(link) == "" {
		candidates = append(candidates, link+".md")
	}

	for _, c := range candidates {
		for _, p := range []string{c, path.Join(dirOf(sourcePath), c)} {
			ok, err := db.has(p)
			if err != nil {
				return "", false, err
			}
			if ok {
				return p, true, nil
			}
		}
	}

	for _, c := range candidates {
		rows, err := db.conn.Query(`SELECT path FROM files WHERE name = ? ORDER BY length(path), path`, path.Base(c))
		if err != nil {
			return "", false, fmt.Errorf("index: resolve link: %w", err)
		}
		var found string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return "", false, err
			}
			if p == c || strings.HasSuffix(p, "/"+c) {
				found = p
				break
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return "", false, err
		}
		if found != "" {
			return found, true, nil
		}
	}
	return "", false, nil
}

func (db *DB) has(p string) (bool, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files WHERE path = ?`, p).Scan(&n); err != nil {
		return false, fmt.Errorf("index: lookup %s: %w", p, err)
	}
	return n > 0, nil
}

// ListImages returns image paths matching q, sorted by path.
func (db *DB) ListImages(q ImageQuery) ([]string, error) {
	query := `SELECT path FROM files WHERE kind = ?`
	args := []any{KindImage}

	dir := strings.Trim(q.Dir, "/")
	switch {
	case q.Direct:
		query += ` AND dir = ?`
		args = append(args, dir)
	case dir != "":
		query += ` AND (dir = ? OR dir LIKE ? ESCAPE '\')`
		args = append(args, dir, escapeLike(dir)+"/%")
	}
	if q.Contains != "" {
		query += ` AND lower(path) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(q.Contains))+"%")
	}
	query += ` ORDER BY path`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list images: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
