package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dl-alexandre/gdmirror/internal/types"
)

var (
	// ErrNotFound is returned when no cached row matches.
	ErrNotFound = errors.New("not in cache")
	// ErrAmbiguousTitle is returned when a title lookup matches several files.
	ErrAmbiguousTitle = errors.New("title matches more than one cached file")
)

// Entry is one row of the title/id listing.
type Entry struct {
	Title string `json:"title"`
	ID    string `json:"id"`
}

// UpsertFile stores n and replaces its labels, parents and permission rows.
func (d *DB) UpsertFile(ctx context.Context, n *types.RemoteNode) (err error) {
	if n == nil || n.ID == "" {
		return errors.New("cache: node without id")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (id, title, mime_type, description, file_extension, file_size, md5_checksum,
		                   created_date, modified_date, download_url, etag, kind, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			mime_type = excluded.mime_type,
			description = excluded.description,
			file_extension = excluded.file_extension,
			file_size = excluded.file_size,
			md5_checksum = excluded.md5_checksum,
			created_date = excluded.created_date,
			modified_date = excluded.modified_date,
			download_url = excluded.download_url,
			etag = excluded.etag,
			kind = excluded.kind,
			cached_at = excluded.cached_at
	`, n.ID, n.Title, n.MimeType, n.Description, n.FileExtension, n.FileSize, n.MD5Checksum,
		n.CreatedDate, n.ModifiedDate, n.DownloadURL, n.Etag, n.Kind, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", n.ID, err)
	}

	if err = deleteRelated(ctx, tx, n.ID); err != nil {
		return err
	}

	if n.Labels != nil {
		if _, err = tx.ExecContext(ctx, `INSERT INTO labels (file_id, hidden, starred, trashed) VALUES (?, ?, ?, ?)`,
			n.ID, boolToInt(n.Labels.Hidden), boolToInt(n.Labels.Starred), boolToInt(n.Labels.Trashed)); err != nil {
			return err
		}
	}
	for _, parentID := range n.ParentIDs {
		if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO parents (file_id, parent_id) VALUES (?, ?)`, n.ID, parentID); err != nil {
			return err
		}
	}
	if p := n.UserPermission; p != nil {
		if _, err = tx.ExecContext(ctx, `INSERT INTO user_permissions (file_id, etag, kind, role, type) VALUES (?, ?, ?, ?, ?)`,
			n.ID, p.Etag, p.Kind, p.Role, p.Type); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RenameFile updates the cached title and infers the extension from it.
func (d *DB) RenameFile(ctx context.Context, id, title string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE files SET title = ?, file_extension = ? WHERE id = ?`,
		title, InferExtension(title), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListFiles returns every cached title/id pair ordered by title.
func (d *DB) ListFiles(ctx context.Context) (entries []Entry, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT title, id FROM files ORDER BY title, id`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Title, &e.ID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// FindIDByTitle resolves a title to exactly one cached file ID.
func (d *DB) FindIDByTitle(ctx context.Context, title string) (id string, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM files WHERE title = ? LIMIT 2`, title)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", err
		}
		ids = append(ids, v)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: title %q", ErrNotFound, title)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrAmbiguousTitle, title)
	}
}

// GetFile loads a cached node with its labels, parents and permission.
func (d *DB) GetFile(ctx context.Context, id string) (*types.RemoteNode, error) {
	n := &types.RemoteNode{}
	var mime, desc, ext, md5, created, modified, dl, etag, kind sql.NullString
	var size sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, title, mime_type, description, file_extension, file_size, md5_checksum,
		       created_date, modified_date, download_url, etag, kind
		FROM files WHERE id = ?
	`, id).Scan(&n.ID, &n.Title, &mime, &desc, &ext, &size, &md5, &created, &modified, &dl, &etag, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	n.MimeType, n.Description, n.FileExtension = mime.String, desc.String, ext.String
	n.FileSize, n.MD5Checksum = size.Int64, md5.String
	n.CreatedDate, n.ModifiedDate, n.DownloadURL = created.String, modified.String, dl.String
	n.Etag, n.Kind = etag.String, kind.String

	var hidden, starred, trashed int
	err = d.db.QueryRowContext(ctx, `SELECT hidden, starred, trashed FROM labels WHERE file_id = ?`, id).
		Scan(&hidden, &starred, &trashed)
	switch {
	case err == nil:
		n.Labels = &types.NodeLabels{Hidden: hidden != 0, Starred: starred != 0, Trashed: trashed != 0}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	p := &types.UserPermission{}
	var pEtag, pKind, pRole, pType sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT etag, kind, role, type FROM user_permissions WHERE file_id = ?`, id).
		Scan(&pEtag, &pKind, &pRole, &pType)
	switch {
	case err == nil:
		p.Etag, p.Kind, p.Role, p.Type = pEtag.String, pKind.String, pRole.String, pType.String
		n.UserPermission = p
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	parents, err := d.parentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	n.ParentIDs = parents
	return n, nil
}

func (d *DB) parentIDs(ctx context.Context, id string) (ids []string, err error) {
	rows, err := d.db.QueryContext(ctx, `SELECT parent_id FROM parents WHERE file_id = ? ORDER BY parent_id`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		ids = append(ids, p)
	}
	return ids, rows.Err()
}

// DeleteFile removes id and its related rows. Deleting an unknown id is not an error.
func (d *DB) DeleteFile(ctx context.Context, id string) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = deleteRelated(ctx, tx, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteRelated(ctx context.Context, tx *sql.Tx, id string) error {
	for _, table := range []string{"labels", "parents", "user_permissions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE file_id = ?`, id); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, id, err)
		}
	}
	return nil
}

// InferExtension returns the text after the last '.' of title, or "".
func InferExtension(title string) string {
	i := strings.LastIndexByte(title, '.')
	if i < 0 {
		return ""
	}
	return title[i+1:]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
