package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
)

// Notion suffixes exported page and folder names with the page id.
var notionID = regexp.MustCompile(`\s+[0-9a-fA-F]{32}$`)

// NotionExport reads an unzipped Notion "Markdown & CSV" or "HTML" export.
// Each page becomes a document titled by its page name without the id.
func NotionExport(ctx context.Context, root string) ([]commonModels.Document, []Skipped, error) {
	log := logger_i.NewLogger("Ingest").WithTrace(ctx).With("notion", root)
	var docs []commonModels.Document
	var skipped []Skipped

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".html" && ext != ".htm" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
			return nil
		}
		body := string(data)
		if ext != ".md" {
			body = htmlToText(body)
		}
		body = strings.TrimSpace(body)
		if body == "" {
			skipped = append(skipped, Skipped{Path: path, Reason: "empty page"})
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		title := notionTitle(filepath.Base(path))
		if !strings.HasPrefix(strings.TrimLeft(body, "# "), title) {
			body = title + "\n\n" + body
		}
		docs = append(docs, commonModels.Document{
			SourceID: "notion:" + notionPath(rel),
			Text:     body,
			DocType:  docTypeOf(path),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("notion export read", "pages", len(docs), "skipped", len(skipped))
	return docs, skipped, nil
}

func notionTitle(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(notionID.ReplaceAllString(name, ""))
}

// notionPath strips the id from every segment of a relative export path.
func notionPath(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = notionTitle(p)
	}
	return strings.Join(parts, "/")
}
