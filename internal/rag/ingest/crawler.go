package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
)

// Skipped records a file or page that produced no document.
type Skipped struct {
	Path   string
	Reason string
}

// bytes inspected when deciding whether a file is text
const sniffLen = 8000

var errBinary = errors.New("binary file")

// CrawlDirectory extracts a document from every readable file under root.
// Hidden files and directories are skipped, as is anything that is not
// text and has no dedicated extractor. root may also be a single file.
func CrawlDirectory(ctx context.Context, root string) ([]commonModels.Document, []Skipped, error) {
	log := logger_i.NewLogger("Ingest").WithTrace(ctx).With("root", root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		doc, err := extractFile(ctx, root, log)
		if err != nil {
			return nil, []Skipped{{Path: root, Reason: err.Error()}}, nil
		}
		return []commonModels.Document{doc}, nil, nil
	}

	var docs []commonModels.Document
	var skipped []Skipped
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			skipped = append(skipped, Skipped{Path: path, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		doc, err := extractFile(ctx, path, log)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("skipping file", "path", path, "error", err)
			skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("directory crawled", "documents", len(docs), "skipped", len(skipped))
	return docs, skipped, nil
}

func extractFile(ctx context.Context, path string, log *logger_i.Logger) (commonModels.Document, error) {
	docType := docTypeOf(path)
	var text string
	var err error
	switch docType {
	case commonModels.PDF:
		text, err = extractPDF(ctx, path, log)
	case commonModels.DOCX:
		text, err = extractOffice(path)
	case commonModels.EMAIL:
		var f *os.File
		if f, err = os.Open(path); err == nil {
			var doc commonModels.Document
			doc, err = parseMessage(f)
			f.Close()
			text = doc.Text
		}
	default:
		text, err = readText(path)
		if err == nil && docType == commonModels.HTML {
			text = htmlToText(text)
		}
	}
	if err != nil {
		return commonModels.Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return commonModels.Document{}, errors.New("no text content")
	}
	return commonModels.Document{SourceID: path, Text: text, DocType: docType}, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if isBinary(data) {
		return "", errBinary
	}
	return string(data), nil
}

func isBinary(data []byte) bool {
	head := data[:min(len(data), sniffLen)]
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	if utf8.Valid(head) {
		return false
	}
	if len(data) <= sniffLen {
		return true
	}
	// the cut at sniffLen may have split the last rune
	for i := 1; i < utf8.UTFMax && i < len(head); i++ {
		if utf8.Valid(head[:len(head)-i]) {
			return false
		}
	}
	return true
}

func describeSkipped(skipped []Skipped) string {
	parts := make([]string, len(skipped))
	for i, s := range skipped {
		parts[i] = fmt.Sprintf("%s (%s)", s.Path, s.Reason)
	}
	return strings.Join(parts, ", ")
}
