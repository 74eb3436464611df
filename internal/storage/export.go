package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/hotboard/internal/types"
)

// Format is an export file format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat validates an export format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatJSONL, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (valid: json, jsonl, csv, xlsx)", name)
	}
}

var exportHeader = []string{"id", "site", "category", "title", "url", "author", "views", "likes", "comments", "created_at", "crawled_at"}

func exportRow(p types.Post) []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		string(p.Site),
		p.Category,
		p.Title,
		p.URL,
		p.Author,
		strconv.Itoa(p.Views),
		strconv.Itoa(p.Likes),
		strconv.Itoa(p.Comments),
		p.CreatedAt.Format(time.RFC3339),
		p.CrawledAt.Format(time.RFC3339),
	}
}

// WritePosts encodes posts to w in the given format.
func WritePosts(w io.Writer, format Format, posts []types.Post) error {
	switch format {
	case FormatJSON:
		if posts == nil {
			posts = []types.Post{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(posts); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil

	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, p := range posts {
			if err := enc.Encode(p); err != nil {
				return fmt.Errorf("encode JSONL: %w", err)
			}
		}
		return nil

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(exportHeader); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		for _, p := range posts {
			if err := cw.Write(exportRow(p)); err != nil {
				return fmt.Errorf("write CSV row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()

	case FormatXLSX:
		return writeXLSX(w, posts)

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeXLSX(w io.Writer, posts []types.Post) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "posts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}

	for i, p := range posts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			p.ID, string(p.Site), p.Category, p.Title, p.URL, p.Author,
			p.Views, p.Likes, p.Comments,
			p.CreatedAt.Format(time.RFC3339), p.CrawledAt.Format(time.RFC3339),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// ExportFile writes posts to a timestamped file under dir and returns its path.
func ExportFile(dir string, format Format, posts []types.Post, now time.Time, logger *slog.Logger) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("hotboard_posts_%s.%s", now.Format("20060102_150405"), format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}

	if err := WritePosts(f, format, posts); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close output file: %w", err)
	}

	logger.Info("posts exported", "component", "export", "path", path, "format", format, "posts", len(posts))
	return path, nil
}
