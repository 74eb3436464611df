package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/IshaanNene/hotboard/internal/types"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongodb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	site       TEXT NOT NULL,
	category   TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	views      INTEGER NOT NULL DEFAULT 0,
	likes      INTEGER NOT NULL DEFAULT 0,
	comments   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	crawled_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_crawled_at ON posts(crawled_at);
CREATE INDEX IF NOT EXISTS idx_posts_site ON posts(site);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL UNIQUE,
	site       TEXT NOT NULL,
	category   TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	views      INTEGER NOT NULL DEFAULT 0,
	likes      INTEGER NOT NULL DEFAULT 0,
	comments   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_crawled_at ON posts(crawled_at);
CREATE INDEX IF NOT EXISTS idx_posts_site ON posts(site);
`

const postColumns = `id, title, url, site, category, author, views, likes, comments, created_at, crawled_at`

// SQLStore keeps posts in SQLite or PostgreSQL through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore opens the database and creates the schema if needed.
func NewSQLStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &types.StorageError{Backend: driver, Op: "open", Err: err}
	}
	if driver == DriverSQLite {
		// One writer at a time; concurrent connections only produce SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: driver, Op: "ping", Err: err}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: driver, Op: "init schema", Err: err}
	}

	return &SQLStore{
		db:     db,
		driver: driver,
		logger: logger.With("component", "sql_store", "driver", driver),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *SQLStore) Name() string { return s.driver }

// UpsertMany writes all candidates in one transaction. Each candidate runs
// inside its own savepoint so a bad row is skipped without losing the rest.
func (s *SQLStore) UpsertMany(ctx context.Context, cands []types.ScoredCandidate) (UpsertResult, error) {
	var res UpsertResult
	if len(cands) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, &types.StorageError{Backend: s.driver, Op: "begin", Err: err}
	}
	now := s.now()

	for i, c := range cands {
		if err := c.Validate(); err != nil {
			s.logger.Warn("skipping invalid candidate", "url", c.URL, "error", err)
			res.Skipped++
			continue
		}

		sp := "cand_" + strconv.Itoa(i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			_ = tx.Rollback()
			return UpsertResult{}, &types.StorageError{Backend: s.driver, Op: "savepoint", Err: err}
		}

		inserted, err := s.upsertOne(ctx, tx, c, now)
		if err != nil {
			s.logger.Warn("skipping candidate", "url", c.URL, "error", err)
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				_ = tx.Rollback()
				return UpsertResult{}, &types.StorageError{Backend: s.driver, Op: "rollback savepoint", Err: rbErr}
			}
			res.Skipped++
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			_ = tx.Rollback()
			return UpsertResult{}, &types.StorageError{Backend: s.driver, Op: "release savepoint", Err: err}
		}

		if inserted {
			res.New++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return UpsertResult{}, &types.StorageError{Backend: s.driver, Op: "commit", Err: err}
	}

	s.logger.Debug("upsert complete", "new", res.New, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// upsertOne reports whether c was inserted as a new post.
func (s *SQLStore) upsertOne(ctx context.Context, tx *sql.Tx, c types.ScoredCandidate, now time.Time) (bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM posts WHERE url = ?`), c.URL).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p := newPost(c, now)
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO posts (title, url, site, category, author, views, likes, comments, created_at, crawled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.Title, p.URL, string(p.Site), p.Category, p.Author,
			p.Views, p.Likes, p.Comments, p.CreatedAt, p.CrawledAt,
		)
		if err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("lookup: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE posts SET views = ?, likes = ?, comments = ?, crawled_at = ? WHERE id = ?`),
		c.Views, c.Likes, c.Comments, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	return false, nil
}

// ListPosts returns posts ordered by crawl time, newest first.
func (s *SQLStore) ListPosts(ctx context.Context, q Query) ([]types.Post, error) {
	var (
		where []string
		args  []any
	)
	if q.Site != "" {
		where = append(where, "site = ?")
		args = append(args, string(q.Site))
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}

	query := "SELECT " + postColumns + " FROM posts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY crawled_at DESC, id DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, &types.StorageError{Backend: s.driver, Op: "list", Err: err}
	}
	defer rows.Close()

	var posts []types.Post
	for rows.Next() {
		var (
			p    types.Post
			site string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.URL, &site, &p.Category, &p.Author,
			&p.Views, &p.Likes, &p.Comments, &p.CreatedAt, &p.CrawledAt); err != nil {
			return nil, &types.StorageError{Backend: s.driver, Op: "scan", Err: err}
		}
		p.Site = types.Site(site)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: s.driver, Op: "list", Err: err}
	}
	return posts, nil
}

// Stats counts posts in total, per site and per category.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySite: map[string]int{}, ByCategory: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&st.Total); err != nil {
		return Stats{}, &types.StorageError{Backend: s.driver, Op: "stats", Err: err}
	}
	if err := s.groupCount(ctx, "site", st.BySite); err != nil {
		return Stats{}, err
	}
	if err := s.groupCount(ctx, "category", st.ByCategory); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// groupCount fills into with COUNT(*) grouped by a trusted column name.
func (s *SQLStore) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM posts GROUP BY "+column)
	if err != nil {
		return &types.StorageError{Backend: s.driver, Op: "stats", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return &types.StorageError{Backend: s.driver, Op: "stats", Err: err}
		}
		into[key] = n
	}
	return rows.Err()
}

func (s *SQLStore) Close() error {
	s.logger.Info("sql store closing")
	return s.db.Close()
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
