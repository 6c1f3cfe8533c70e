package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

var errPageTimeout = errors.New("page extraction timed out")

// pageTimeout is a var so tests can shorten it.
var pageTimeout = config.PageExtractTimeout

func docTypeOf(path string) commonModels.DocType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return commonModels.PDF
	case ".docx", ".odt", ".rtf":
		return commonModels.DOCX
	case ".html", ".htm":
		return commonModels.HTML
	case ".eml":
		return commonModels.EMAIL
	default:
		return commonModels.TXT
	}
}

// extractPDF returns the text of every readable page. Pages that fail or
// hang are skipped; the file only fails when nothing at all is readable.
func extractPDF(ctx context.Context, path string, log *logger_i.Logger) (string, error) {
	f, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	numPages := f.NumPage()
	log.Debug("extracting pdf", "path", path, "pages", numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := protectExtract(ctx, page)
		if err != nil {
			log.Warn("skipping pdf page", "path", path, "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, content)
		}
	}
	if numPages > 0 && len(pages) == 0 {
		return "", errors.New("no readable pages")
	}
	return strings.Join(pages, "\n\n"), nil
}

// protectExtract bounds one page. The pdf reader has no cancellation, so a
// hung page leaves its goroutine behind until the read returns.
func protectExtract(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{err: fmt.Errorf("malformed page: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	timer := time.NewTimer(pageTimeout)
	defer timer.Stop()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-timer.C:
		return "", errPageTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// extractOffice reads .docx, .odt and .rtf files. Page boundaries are not
// available so the document comes back as one text.
func extractOffice(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Ext(path), err)
	}
	return text, nil
}
