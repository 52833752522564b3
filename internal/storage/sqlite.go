package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

const sqliteDriverName = "sqlite3_books"

// The driver exposes the shared fold rules to SQL so matching and ordering agree
// with the in-memory predicate.
func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("contains_fold", models.ContainsFold, true); err != nil {
				return fmt.Errorf("failed to register contains_fold: %w", err)
			}
			if err := conn.RegisterCollation("FOLD", models.CompareFold); err != nil {
				return fmt.Errorf("failed to register FOLD collation: %w", err)
			}
			return nil
		},
	})
}

const bookColumns = `id, title, author, publisher, category, publish_date, description, extras`

// SQLiteStorage implements RecordStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private
// in-memory database on a single connection: an open Replace holds that connection until
// it commits or rolls back, so concurrent reads wait for it (or for their context).
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	memory := dbPath == ":memory:"
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	dsn := dbPath
	if !memory {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		publisher TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		publish_date TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		extras TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_books_category ON books(category);
	CREATE INDEX IF NOT EXISTS idx_books_publish_date ON books(publish_date);
	`
	_, err := db.Exec(schema)
	return err
}

// whereClause renders pred as SQL with positional arguments.
func whereClause(pred models.Predicate) (string, []any) {
	var conds []string
	var args []any
	if pred.Text != "" {
		conds = append(conds, `(contains_fold(title, ?) OR contains_fold(author, ?) OR contains_fold(publisher, ?) OR contains_fold(description, ?))`)
		args = append(args, pred.Text, pred.Text, pred.Text, pred.Text)
	}
	if pred.Category != "" {
		conds = append(conds, `category = ?`)
		args = append(args, pred.Category)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause renders the ordering for key from the shared sort table.
func orderClause(key models.SortKey) string {
	spec := key.Spec()
	if spec.Field == "id" {
		return " ORDER BY id ASC"
	}
	var b strings.Builder
	b.WriteString(" ORDER BY ")
	b.WriteString(spec.Field)
	if spec.Fold {
		b.WriteString(" COLLATE FOLD")
	}
	if spec.Desc {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
	b.WriteString(", id ASC")
	return b.String()
}

// Filter returns the matching count and one ordered window of matching records.
// Count and rows are read in one transaction so they describe the same snapshot.
func (s *SQLiteStorage) Filter(ctx context.Context, pred models.Predicate, sort models.SortKey, limit, offset int) (int, []*models.Book, error) {
	where, args := whereClause(pred)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("failed to count books: %w", err)
	}
	if limit <= 0 || offset >= total {
		return total, []*models.Book{}, nil
	}

	query := `SELECT ` + bookColumns + ` FROM books` + where + orderClause(sort) + ` LIMIT ? OFFSET ?`
	rows, err := tx.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	books, err := scanBooks(rows)
	if err != nil {
		return 0, nil, err
	}
	return total, books, nil
}

// GetBooks returns the records for ids that exist.
func (s *SQLiteStorage) GetBooks(ctx context.Context, ids []int64) (map[int64]*models.Book, error) {
	out := make(map[int64]*models.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}
	defer rows.Close()

	books, err := scanBooks(rows)
	if err != nil {
		return nil, err
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

// GetBook returns a record by ID.
func (s *SQLiteStorage) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	defer rows.Close()
	books, err := scanBooks(rows)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return books[0], nil
}

// Count returns the total number of records.
func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&count)
	return count, err
}

// Categories returns distinct non-empty categories with counts.
func (s *SQLiteStorage) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM books WHERE category != '' GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	out := []models.CategoryCount{}
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BeginReplace deletes all records and inserts books inside one transaction.
// Under WAL, other connections read the last committed contents until Commit.
func (s *SQLiteStorage) BeginReplace(ctx context.Context, books []*models.Book) (Replacement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin replace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM books`); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to clear books: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	for _, b := range books {
		extras, err := encodeExtras(b.Extras)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx,
			b.ID, b.Title, b.Author, b.Publisher, b.Category, b.PublishDate, b.Description, extras,
		); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert book %d: %w", b.ID, err)
		}
	}
	return tx, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanBooks(rows *sql.Rows) ([]*models.Book, error) {
	books := []*models.Book{}
	for rows.Next() {
		var b models.Book
		var extras string
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Publisher, &b.Category, &b.PublishDate, &b.Description, &extras); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		if extras != "" {
			if err := json.Unmarshal([]byte(extras), &b.Extras); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extras: %w", err)
			}
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

func encodeExtras(extras map[string]string) (string, error) {
	if len(extras) == 0 {
		return "", nil
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extras: %w", err)
	}
	return string(data), nil
}
