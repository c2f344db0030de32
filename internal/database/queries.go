package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-manager/internal/logging"
	"media-manager/internal/metrics"
)

const recordColumns = `id, storage_path, relative_file, relative_dir, title, metadata,
	captured_at, created_at, updated_at, private, owner_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*Record, error) {
	var r Record
	var captured, created, updated int64
	if err := s.Scan(&r.ID, &r.StoragePath, &r.RelativeFile, &r.RelativeDir, &r.Title,
		&r.RawMetadata, &captured, &created, &updated, &r.Private, &r.OwnerID); err != nil {
		return nil, err
	}
	r.CapturedAt = unixTime(captured)
	r.CreatedAt = unixTime(created)
	r.UpdatedAt = unixTime(updated)
	return &r, nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// collect scans every row, skipping rows that fail to scan.
func collect(op string, rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			logging.Warn("%s: skipping malformed media row: %v", op, err)
			continue
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// visibilityClause returns the SQL condition and args restricting rows to
// those vis may see.
func visibilityClause(vis Visibility) (string, []any) {
	if vis.All {
		return "1 = 1", nil
	}
	return "(private = 0 OR owner_id = ?)", []any{vis.OwnerID}
}

// ListDir returns the rows of dir visible to vis, oldest id first.
func (d *Database) ListDir(ctx context.Context, storage, dir string, vis Visibility) ([]Record, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_dir", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cond, args := visibilityClause(vis)
	query := `SELECT ` + recordColumns + ` FROM media
		WHERE storage_path = ? AND relative_dir = ? AND ` + cond + `
		ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, append([]any{storage, dir}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	recs, err := collect("ListDir", rows)
	return recs, err
}

// ListPrivateFiles returns the relative file paths of every private row in
// dir, regardless of owner.
func (d *Database) ListPrivateFiles(ctx context.Context, storage, dir string) (map[string]bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_private", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT relative_file FROM media WHERE storage_path = ? AND relative_dir = ? AND private = 1`,
		storage, dir)
	if err != nil {
		return nil, fmt.Errorf("private query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var f string
		if scanErr := rows.Scan(&f); scanErr != nil {
			continue
		}
		out[f] = true
	}
	err = rows.Err()
	return out, err
}

// ListUnderDir returns every row in dir and its subdirectories. "." lists
// the whole storage path.
func (d *Database) ListUnderDir(ctx context.Context, storage, dir string) ([]Record, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_under_dir", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var rows *sql.Rows
	if dir == "." || dir == "" {
		rows, err = d.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM media WHERE storage_path = ? ORDER BY id`, storage)
	} else {
		prefix := dir + "/"
		rows, err = d.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM media
			WHERE storage_path = ? AND (relative_dir = ? OR substr(relative_dir, 1, ?) = ?)
			ORDER BY id`, storage, dir, len(prefix), prefix)
	}
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	recs, err := collect("ListUnderDir", rows)
	return recs, err
}

// GetByID returns the row with id if vis may see it.
func (d *Database) GetByID(ctx context.Context, storage string, id int64, vis Visibility) (*Record, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_by_id", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cond, args := visibilityClause(vis)
	row := d.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM media WHERE storage_path = ? AND id = ? AND `+cond,
		append([]any{storage, id}, args...)...)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	return rec, err
}

// FindByFile returns the oldest row for relFile.
func (d *Database) FindByFile(ctx context.Context, storage, relFile string) (*Record, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_by_file", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rec, err := findByFile(ctx, d.db, storage, relFile)
	return rec, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByFile(ctx context.Context, q queryer, storage, relFile string) (*Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM media WHERE storage_path = ? AND relative_file = ? ORDER BY id LIMIT 1`,
		storage, relFile)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	return rec, err
}

// Touch sets updated_at of row id to now.
func (d *Database) Touch(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `UPDATE media SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

// UpdateRecord writes the mutable fields of rec and sets updated_at.
func (d *Database) UpdateRecord(ctx context.Context, rec *Record) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if rec.RawMetadata == "" {
		rec.RawMetadata = "{}"
	}
	rec.UpdatedAt = time.Now()

	res, err := d.db.ExecContext(ctx, `
		UPDATE media SET relative_file = ?, relative_dir = ?, title = ?, metadata = ?,
			captured_at = ?, private = ?, updated_at = ?
		WHERE id = ?`,
		rec.RelativeFile, rec.RelativeDir, rec.Title, rec.RawMetadata,
		unixSeconds(rec.CapturedAt), rec.Private, rec.UpdatedAt.Unix(), rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNoRecord
	}
	return err
}

// UpdateMediaMeta replaces the metadata blob of row id and sets captured_at
// if it is still unset.
func (d *Database) UpdateMediaMeta(ctx context.Context, id int64, meta Metadata, capturedAt time.Time) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var r Record
	if err = r.SetMetadata(meta); err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		UPDATE media SET metadata = ?,
			captured_at = CASE WHEN captured_at = 0 THEN ? ELSE captured_at END
		WHERE id = ?`, r.RawMetadata, unixSeconds(capturedAt), id)
	return err
}

// MoveDir rewrites the paths of every row in oldDir and below to newDir.
func (d *Database) MoveDir(ctx context.Context, storage, oldDir, newDir string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("update", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	recs, err := d.ListUnderDir(ctx, storage, oldDir)
	if err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, r := range recs {
		_, err = tx.ExecContext(ctx,
			`UPDATE media SET relative_file = ?, relative_dir = ?, updated_at = ? WHERE id = ?`,
			rebase(r.RelativeFile, oldDir, newDir), rebase(r.RelativeDir, oldDir, newDir),
			time.Now().Unix(), r.ID)
		if err != nil {
			return 0, err
		}
	}
	err = tx.Commit()
	return int64(len(recs)), err
}

func rebase(p, oldDir, newDir string) string {
	if p == oldDir {
		return newDir
	}
	return newDir + strings.TrimPrefix(p, oldDir)
}

// DeleteByFile deletes every row for relFile that vis may delete and
// returns the number of rows removed.
func (d *Database) DeleteByFile(ctx context.Context, storage, relFile string, vis Visibility) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `DELETE FROM media WHERE storage_path = ? AND relative_file = ?`
	args := []any{storage, relFile}
	if !vis.All {
		query += ` AND owner_id = ?`
		args = append(args, vis.OwnerID)
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByID deletes one row.
func (d *Database) DeleteByID(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	return err
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Search matches query against titles, file paths and the metadata blob.
// An empty query matches nothing.
func (d *Database) Search(ctx context.Context, storage, query string, vis Visibility, limit int) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("search", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 500
	}

	pattern := "%" + escapeLike(query) + "%"
	cond, args := visibilityClause(vis)
	sqlQuery := `SELECT ` + recordColumns + ` FROM media
		WHERE storage_path = ? AND ` + cond + `
		AND (title LIKE ? ESCAPE '\' OR relative_file LIKE ? ESCAPE '\' OR metadata LIKE ? ESCAPE '\')
		ORDER BY title COLLATE NOCASE, id
		LIMIT ?`

	all := append([]any{storage}, args...)
	all = append(all, pattern, pattern, pattern, limit)

	rows, err := d.db.QueryContext(ctx, sqlQuery, all...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	recs, err := collect("Search", rows)
	return recs, err
}

// GetStats returns index-wide counts.
func (d *Database) GetStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s metrics.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM media),
			(SELECT COUNT(*) FROM media WHERE private = 1),
			(SELECT COUNT(*) FROM post_media)
	`).Scan(&s.TotalMedia, &s.PrivateMedia, &s.PostLinks)
	return s, err
}
