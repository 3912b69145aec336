package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// createdLayout is fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements Repository on a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs the schema migration.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create bookmark dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open bookmark db: %w", err)
	}
	// The aggregator writes roles from many goroutines; one connection
	// serializes them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate bookmark db: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bookmarks (
			id         TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			address    TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

func (s *SQLiteRepository) List(ctx context.Context) ([]Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, product_id, device_id, name, address, role, created_at FROM bookmarks ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteRepository) Get(ctx context.Context, id string) (Bookmark, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, product_id, device_id, name, address, role, created_at FROM bookmarks WHERE id = ?", id)
	b, err := scanBookmark(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Bookmark{}, ErrNotFound
	}
	return b, err
}

func (s *SQLiteRepository) Save(ctx context.Context, b Bookmark) (Bookmark, error) {
	if err := b.Validate(); err != nil {
		return Bookmark{}, err
	}
	if b.ID == "" {
		b.ID = b.Key()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, product_id, device_id, name, address, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			product_id = excluded.product_id,
			device_id  = excluded.device_id,
			name       = excluded.name,
			address    = excluded.address,
			role       = excluded.role`,
		b.ID, b.ProductID, b.DeviceID, b.Name, b.Address, b.Role, b.CreatedAt.UTC().Format(createdLayout),
	)
	if err != nil {
		return Bookmark{}, fmt.Errorf("save bookmark %s: %w", b.ID, err)
	}
	return b, nil
}

func (s *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete bookmark %s: %w", id, err)
	}
	return requireAffected(res)
}

func (s *SQLiteRepository) SetRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE bookmarks SET role = ? WHERE id = ?", role, id)
	if err != nil {
		return fmt.Errorf("set role on %s: %w", id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row scanner) (Bookmark, error) {
	var b Bookmark
	var created string
	if err := row.Scan(&b.ID, &b.ProductID, &b.DeviceID, &b.Name, &b.Address, &b.Role, &created); err != nil {
		return Bookmark{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Bookmark{}, fmt.Errorf("parse created_at for %s: %w", b.ID, err)
	}
	b.CreatedAt = t
	return b, nil
}
