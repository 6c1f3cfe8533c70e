// Package ingest turns files, sites and exports into documents ready for
// chunking.
package ingest

import (
	"context"
	"fmt"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/customHttpClient"
	"github.com/akolanti/mirage/internal/domain/commonModels"
)

type Kind string

const (
	KindPath   Kind = "path"
	KindURL    Kind = "url"
	KindNotion Kind = "notion"
	KindGmail  Kind = "gmail"
)

// DetectKind picks path or url from the target's form. Notion and Gmail
// exports are only used when asked for explicitly.
func DetectKind(target string) Kind {
	if IsURL(target) {
		return KindURL
	}
	return KindPath
}

// Load extracts every document the target yields.
func Load(ctx context.Context, kind Kind, target string, maxPages int) ([]commonModels.Document, []Skipped, error) {
	switch kind {
	case KindURL:
		return CrawlURL(ctx, target, maxPages)
	case KindNotion:
		return NotionExport(ctx, target)
	case KindGmail:
		return GmailExport(ctx, target)
	case KindPath, "":
		return CrawlDirectory(ctx, target)
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// LoadPublic is Load for targets submitted over the API: only web sites,
// and only on publicly routable addresses.
func LoadPublic(ctx context.Context, kind Kind, target string, maxPages int) ([]commonModels.Document, []Skipped, error) {
	if kind != KindURL {
		return nil, nil, fmt.Errorf("source kind %q cannot be loaded remotely", kind)
	}
	return crawl(ctx, customHttpClient.NewPublicOnly(config.RemoteRequestTimeout), target, maxPages)
}

// ExtractTransient loads a file, directory or single web page for use in
// one chat session. Nothing is indexed.
func ExtractTransient(ctx context.Context, pathOrURL string) ([]commonModels.Document, error) {
	if IsURL(pathOrURL) {
		doc, err := FetchURL(ctx, pathOrURL)
		if err != nil {
			return nil, err
		}
		return []commonModels.Document{doc}, nil
	}
	docs, skipped, err := CrawlDirectory(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing readable in %s: %s", pathOrURL, describeSkipped(skipped))
	}
	return docs, nil
}
