package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "hotboard.db")
	s, err := NewSQLStore(context.Background(), DriverSQLite, dsn, testLogger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cand(site types.Site, url string, views, likes, comments int) types.ScoredCandidate {
	return types.ScoredCandidate{
		PostCandidate: types.PostCandidate{
			Title:    "인기 게시물 " + url,
			URL:      url,
			Site:     site,
			Author:   "tester",
			Views:    views,
			Likes:    likes,
			Comments: comments,
		},
	}
}

func TestUpsertMany_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	res, err := s.UpsertMany(ctx, []types.ScoredCandidate{
		cand(types.SitePpomppu, "https://www.ppomppu.co.kr/zboard/view.php?no=1", 10, 1, 0),
		cand(types.SitePpomppu, "https://www.ppomppu.co.kr/zboard/view.php?no=2", 5, 0, 0),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.New != 2 || res.Updated != 0 {
		t.Errorf("expected 2 new, got %+v", res)
	}

	t1 := t0.Add(time.Hour)
	s.now = func() time.Time { return t1 }

	res, err = s.UpsertMany(ctx, []types.ScoredCandidate{
		cand(types.SitePpomppu, "https://www.ppomppu.co.kr/zboard/view.php?no=1", 25, 3, 4),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if res.New != 0 || res.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", res)
	}

	posts, err := s.ListPosts(ctx, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	p := posts[0]
	if !strings.HasSuffix(p.URL, "no=1") {
		t.Fatalf("expected refreshed post first, got %s", p.URL)
	}
	if p.Views != 25 || p.Likes != 3 || p.Comments != 4 {
		t.Errorf("counters not refreshed: %+v", p)
	}
	if !p.CreatedAt.Equal(t0) {
		t.Errorf("created_at changed: %s", p.CreatedAt)
	}
	if !p.CrawledAt.Equal(t1) {
		t.Errorf("expected crawled_at %s, got %s", t1, p.CrawledAt)
	}
	if p.Category != types.CategoryPopular {
		t.Errorf("expected category %q, got %q", types.CategoryPopular, p.Category)
	}
}

func TestUpsertMany_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := []types.ScoredCandidate{
		cand(types.SiteBobae, "https://www.bobaedream.co.kr/view?code=best&No=1", 1, 1, 1),
	}

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var first types.Post
	for i := range 3 {
		now := t0.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return now }

		res, err := s.UpsertMany(ctx, batch)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if i > 0 && (res.New != 0 || res.Updated != 1) {
			t.Errorf("run %d: expected 1 updated, got %+v", i, res)
		}

		posts, err := s.ListPosts(ctx, Query{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(posts) != 1 {
			t.Fatalf("run %d: expected a single row, got %d", i, len(posts))
		}
		p := posts[0]
		if i == 0 {
			first = p
			continue
		}
		if p.ID != first.ID {
			t.Errorf("run %d: id changed from %d to %d", i, first.ID, p.ID)
		}
		if !p.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("run %d: created_at changed to %s", i, p.CreatedAt)
		}
		if !p.CrawledAt.Equal(now) {
			t.Errorf("run %d: expected crawled_at %s, got %s", i, now, p.CrawledAt)
		}
	}
}

func TestUpsertMany_DuplicateWithinBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	url := "https://gall.dcinside.com/board/view/?id=dcbest&no=7"

	res, err := s.UpsertMany(ctx, []types.ScoredCandidate{
		cand(types.SiteDcinside, url, 1, 0, 0),
		cand(types.SiteDcinside, url, 2, 0, 0),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.New != 1 || res.Updated != 1 {
		t.Errorf("expected 1 new and 1 updated, got %+v", res)
	}

	posts, err := s.ListPosts(ctx, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected a single row, got %d", len(posts))
	}
	if posts[0].Views != 2 {
		t.Errorf("expected the later candidate to win with 2 views, got %d", posts[0].Views)
	}
}

func TestUpsertMany_RollsBackFailedRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rejected := "https://bbs.ruliweb.com/best/board/300143/read/2"
	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_post BEFORE INSERT ON posts
		WHEN NEW.url = '`+rejected+`'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END;`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	res, err := s.UpsertMany(ctx, []types.ScoredCandidate{
		cand(types.SiteRuliweb, "https://bbs.ruliweb.com/best/board/300143/read/1", 1, 1, 1),
		cand(types.SiteRuliweb, rejected, 1, 1, 1),
		cand(types.SiteRuliweb, "https://bbs.ruliweb.com/best/board/300143/read/3", 1, 1, 1),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.New != 2 || res.Skipped != 1 {
		t.Errorf("expected 2 new and 1 skipped, got %+v", res)
	}

	posts, err := s.ListPosts(ctx, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 stored posts, got %d", len(posts))
	}
	for _, p := range posts {
		if p.URL == rejected {
			t.Errorf("rejected row was stored")
		}
	}
}

func TestUpsertMany_BeginFailure(t *testing.T) {
	s := newTestStore(t)
	if err := s.db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	res, err := s.UpsertMany(context.Background(), []types.ScoredCandidate{
		cand(types.SiteFmkorea, "https://www.fmkorea.com/best/1", 1, 1, 1),
	})
	var se *types.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "begin" || se.Backend != DriverSQLite {
		t.Errorf("unexpected error fields: %+v", se)
	}
	if res != (UpsertResult{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestUpsertMany_SkipsInvalid(t *testing.T) {
	s := newTestStore(t)

	bad := cand(types.SiteRuliweb, "/relative/1", 1, 1, 1)
	good := cand(types.SiteRuliweb, "https://bbs.ruliweb.com/best/board/300143/read/1", 1, 1, 1)

	res, err := s.UpsertMany(context.Background(), []types.ScoredCandidate{bad, good})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.New != 1 || res.Skipped != 1 {
		t.Errorf("expected 1 new and 1 skipped, got %+v", res)
	}
}

func TestUpsertMany_Empty(t *testing.T) {
	s := newTestStore(t)
	res, err := s.UpsertMany(context.Background(), nil)
	if err != nil || res != (UpsertResult{}) {
		t.Errorf("expected empty result, got %+v, %v", res, err)
	}
}

func TestListPosts_FiltersAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var batch []types.ScoredCandidate
	for i := range 4 {
		batch = append(batch, cand(types.SiteFmkorea, "https://www.fmkorea.com/best/"+strings.Repeat("1", 7+i), i, 0, 0))
	}
	batch = append(batch, cand(types.SiteBobae, "https://www.bobaedream.co.kr/view?No=9", 0, 0, 0))
	if _, err := s.UpsertMany(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	posts, err := s.ListPosts(ctx, Query{Site: types.SiteFmkorea, Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 3 {
		t.Errorf("expected 3 posts, got %d", len(posts))
	}
	for _, p := range posts {
		if p.Site != types.SiteFmkorea {
			t.Errorf("unexpected site %s", p.Site)
		}
	}

	posts, err = s.ListPosts(ctx, Query{Category: "없는분류"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected no posts, got %d", len(posts))
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 5 || st.BySite["fmkorea"] != 4 || st.BySite["bobae"] != 1 || st.ByCategory[types.CategoryPopular] != 5 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.StorageConfig{Driver: "redis", DSN: "x"}, testLogger)
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	s := &SQLStore{driver: DriverPostgres}
	got := s.rebind("SELECT id FROM posts WHERE site = ? AND category = ? LIMIT ?")
	want := "SELECT id FROM posts WHERE site = $1 AND category = $2 LIMIT $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s.driver = DriverSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query changed: %q", got)
	}
}

func samplePosts() []types.Post {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []types.Post{
		{ID: 1, Title: "첫 번째 글", URL: "https://a/1", Site: types.SitePpomppu, Category: types.CategoryPopular, Views: 10, CreatedAt: ts, CrawledAt: ts},
		{ID: 2, Title: "두 번째, 글", URL: "https://a/2", Site: types.SiteBobae, Category: types.CategoryPopular, Likes: 3, CreatedAt: ts, CrawledAt: ts},
	}
}

func TestWritePosts(t *testing.T) {
	posts := samplePosts()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WritePosts(&buf, FormatJSON, posts); err != nil {
			t.Fatal(err)
		}
		var got []types.Post
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[1].Title != "두 번째, 글" {
			t.Errorf("unexpected decode %+v", got)
		}
	})

	t.Run("jsonl", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WritePosts(&buf, FormatJSONL, posts); err != nil {
			t.Fatal(err)
		}
		if lines := strings.Count(buf.String(), "\n"); lines != 2 {
			t.Errorf("expected 2 lines, got %d", lines)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WritePosts(&buf, FormatCSV, posts); err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("read csv: %v", err)
		}
		if len(records) != 3 || records[0][0] != "id" || records[2][3] != "두 번째, 글" {
			t.Errorf("unexpected csv %v", records)
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WritePosts(&buf, FormatXLSX, posts); err != nil {
			t.Fatal(err)
		}
		f, err := excelize.OpenReader(&buf)
		if err != nil {
			t.Fatalf("open xlsx: %v", err)
		}
		defer f.Close()
		title, err := f.GetCellValue("posts", "D2")
		if err != nil {
			t.Fatal(err)
		}
		if title != "첫 번째 글" {
			t.Errorf("expected title in D2, got %q", title)
		}
	})
}

func TestExportFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	path, err := ExportFile(dir, FormatCSV, samplePosts(), now, testLogger)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "hotboard_posts_20260301_093000.csv" {
		t.Errorf("unexpected file name %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("XLSX"); err != nil || f != FormatXLSX {
		t.Errorf("ParseFormat(XLSX) = %q, %v", f, err)
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error for pdf")
	}
}
