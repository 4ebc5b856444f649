package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Post is one ingested newsletter entry. URL is the identity of the record:
// re-ingesting a feed never creates a second row for the same URL.
type Post struct {
	ID         int64      `db:"id" json:"id"`
	Newsletter string     `db:"newsletter" json:"newsletter"`
	Title      string     `db:"title" json:"title"`
	URL        string     `db:"url" json:"url"`
	Author     string     `db:"author" json:"author"`
	Published  *time.Time `db:"published" json:"published"`
	Summary    string     `db:"summary" json:"summary"`
	Content    string     `db:"content" json:"content,omitempty"`
	Tags       string     `db:"tags" json:"tags"`
	WordCount  int        `db:"word_count" json:"word_count"`
	ImageURL   string     `db:"image_url" json:"image_url"`
	FetchedAt  time.Time  `db:"fetched_at" json:"fetched_at"`
}

// QueryOpts is a conjunction of optional post filters.
type QueryOpts struct {
	Newsletter string
	Author     string
	Search     string // substring match against title, summary and content
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Store is the persistence interface.
type Store interface {
	InsertIfAbsent(ctx context.Context, p *Post) (bool, error)
	QueryPosts(ctx context.Context, opts QueryOpts) ([]Post, error)
	CountPosts(ctx context.Context) (int, error)
	CountByNewsletter(ctx context.Context) (map[string]int, error)
	ExportCSV(ctx context.Context, w io.Writer, opts QueryOpts) (int, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertIfAbsent inserts p unless a post with the same URL already exists.
// The UNIQUE(url) constraint decides duplicate vs new in a single statement,
// so the same link appearing twice in one run cannot race into two rows.
// Returns true when a new row was created; existing rows are never mutated.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, p *Post) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posts (newsletter, title, url, author, published, summary, content, tags, word_count, image_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Newsletter, p.Title, p.URL, p.Author, p.Published,
		p.Summary, p.Content, p.Tags, p.WordCount, p.ImageURL, p.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("insert post %s: %w", p.URL, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert post %s: %w", p.URL, err)
	}
	if n > 0 {
		p.ID, _ = res.LastInsertId()
	}
	return n > 0, nil
}

// QueryPosts returns posts matching all set filters, most recently published
// first. Posts with an unknown published date sort last.
func (s *SQLiteStore) QueryPosts(ctx context.Context, opts QueryOpts) ([]Post, error) {
	query := "SELECT * FROM posts WHERE 1=1"
	var args []any

	if opts.Newsletter != "" {
		query += " AND newsletter = ?"
		args = append(args, opts.Newsletter)
	}
	if opts.Author != "" {
		query += " AND author = ?"
		args = append(args, opts.Author)
	}
	if opts.Search != "" {
		query += " AND (title LIKE ? OR summary LIKE ? OR content LIKE ?)"
		pat := "%" + opts.Search + "%"
		args = append(args, pat, pat, pat)
	}
	if !opts.Since.IsZero() {
		query += " AND published >= ?"
		args = append(args, opts.Since)
	}
	if !opts.Until.IsZero() {
		query += " AND published <= ?"
		args = append(args, opts.Until)
	}

	query += " ORDER BY published IS NULL, published DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var posts []Post
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return posts, nil
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM posts"); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountByNewsletter(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT newsletter, COUNT(*) as cnt FROM posts GROUP BY newsletter")
	if err != nil {
		return nil, fmt.Errorf("count by newsletter: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var newsletter string
		var cnt int
		if err := rows.Scan(&newsletter, &cnt); err != nil {
			return nil, err
		}
		counts[newsletter] = cnt
	}
	return counts, rows.Err()
}

// CSVColumns is the fixed export column order that CSV-consuming
// collaborators rely on.
var CSVColumns = []string{
	"newsletter", "title", "url", "author", "published",
	"summary", "tags", "word_count", "image_url", "fetched_at",
}

// ExportCSV writes matching posts as CSV in the CSVColumns order and returns
// the number of rows written.
func (s *SQLiteStore) ExportCSV(ctx context.Context, w io.Writer, opts QueryOpts) (int, error) {
	posts, err := s.QueryPosts(ctx, opts)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	for _, p := range posts {
		published := ""
		if p.Published != nil {
			published = p.Published.UTC().Format("2006-01-02 15:04:05")
		}
		record := []string{
			p.Newsletter, p.Title, p.URL, p.Author, published,
			p.Summary, p.Tags, strconv.Itoa(p.WordCount), p.ImageURL,
			p.FetchedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row %s: %w", p.URL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(posts), nil
}
