// Package sqlite provides a SQLite-backed implementation of the store.Index
// port for persisting secret records.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var _ store.Index = (*Index)(nil)

// Index implements store.Index using SQLite (via database/sql). It is safe for
// concurrent use; database/sql manages connection pooling and SQLite
// serializes writers, which is what makes IncrementView and Delete atomic.
type Index struct{ db *sql.DB }

// New constructs an Index, initializing the required schema if absent.
func New(db *sql.DB) (*Index, error) {
	ix := &Index{db: db}
	if err := ix.init(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (i *Index) init() error {
	schema := `CREATE TABLE IF NOT EXISTS secrets (
id TEXT PRIMARY KEY,
kind TEXT NOT NULL,
content TEXT NOT NULL DEFAULT '',
blob_handle TEXT NOT NULL DEFAULT '',
file_name TEXT NOT NULL DEFAULT '',
mime_type TEXT NOT NULL DEFAULT '',
size INTEGER NOT NULL DEFAULT 0,
password_hash TEXT NOT NULL DEFAULT '',
expires_at INTEGER,
view_count INTEGER NOT NULL DEFAULT 0,
max_views INTEGER NOT NULL,
premium INTEGER NOT NULL DEFAULT 0,
created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS secrets_expires_at ON secrets(expires_at);`
	_, err := i.db.Exec(schema)
	return err
}

const columns = `id, kind, content, blob_handle, file_name, mime_type, size, password_hash, expires_at, view_count, max_views, premium, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSecret(row scanner) (domain.Secret, error) {
	var (
		s         domain.Secret
		id, kind  string
		expires   sql.NullInt64
		premium   int
		createdAt int64
	)
	if err := row.Scan(&id, &kind, &s.Content, &s.BlobHandle, &s.FileName, &s.MimeType, &s.Size,
		&s.PasswordHash, &expires, &s.ViewCount, &s.MaxViews, &premium, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Secret{}, domain.ErrNotFound
		}
		return domain.Secret{}, err
	}
	s.ID = domain.SecretID(id)
	s.Kind = domain.ContentKind(kind)
	if expires.Valid {
		t := time.UnixMilli(expires.Int64).UTC()
		s.ExpiresAt = &t
	}
	s.Premium = premium == 1
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	return s, nil
}

// Insert stores a new secret row.
func (i *Index) Insert(ctx context.Context, s domain.Secret) error {
	const q = `INSERT INTO secrets (` + columns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	var expires sql.NullInt64
	if s.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: s.ExpiresAt.UnixMilli(), Valid: true}
	}
	premium := 0
	if s.Premium {
		premium = 1
	}
	_, err := i.db.ExecContext(ctx, q, s.ID.String(), s.Kind.String(), s.Content, s.BlobHandle, s.FileName, s.MimeType,
		s.Size, s.PasswordHash, expires, s.ViewCount, s.MaxViews, premium, s.CreatedAt.UnixMilli())
	return err
}

// Get returns a single row.
func (i *Index) Get(ctx context.Context, id string) (domain.Secret, error) {
	const q = `SELECT ` + columns + ` FROM secrets WHERE id=?`
	return scanSecret(i.db.QueryRowContext(ctx, q, id))
}

// IncrementView bumps view_count in a single conditional UPDATE. When the
// guard fails no row is returned and the caller sees ErrNotFound.
func (i *Index) IncrementView(ctx context.Context, id string, now time.Time) (domain.Secret, error) {
	const q = `UPDATE secrets SET view_count = view_count + 1
WHERE id=? AND view_count < max_views AND (expires_at IS NULL OR expires_at >= ?)
RETURNING ` + columns
	return scanSecret(i.db.QueryRowContext(ctx, q, id, now.UnixMilli()))
}

// SetExpiry overwrites expires_at.
func (i *Index) SetExpiry(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE secrets SET expires_at=? WHERE id=?`
	res, err := i.db.ExecContext(ctx, q, at.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete hard-deletes the row and returns it if it existed.
func (i *Index) Delete(ctx context.Context, id string) (domain.Secret, bool, error) {
	const q = `DELETE FROM secrets WHERE id=? RETURNING ` + columns
	s, err := scanSecret(i.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Secret{}, false, nil
	}
	if err != nil {
		return domain.Secret{}, false, err
	}
	return s, true, nil
}

// Expired selects rows that are exhausted or past their expiry.
func (i *Index) Expired(ctx context.Context, now time.Time) ([]domain.Secret, error) {
	const q = `SELECT ` + columns + ` FROM secrets
WHERE view_count >= max_views OR (expires_at IS NOT NULL AND expires_at < ?)`
	rows, err := i.db.QueryContext(ctx, q, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BlobHandles returns handles of rows that own a blob.
func (i *Index) BlobHandles(ctx context.Context) ([]string, error) {
	const q = `SELECT blob_handle FROM secrets WHERE blob_handle <> ''`
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var handles []string
	for rows.Next() {
		var h string
		if err = rows.Scan(&h); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return handles, nil
}
