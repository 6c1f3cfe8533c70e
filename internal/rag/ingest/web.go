package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/customHttpClient"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

type webCrawler struct {
	client *http.Client
	host   string
	prefix string
	log    *logger_i.Logger
}

type fetchResult struct {
	url  string
	page htmlPage
	err  error
}

// CrawlURL fetches raw and follows links breadth first, staying on the
// same host and under the starting path, until maxPages pages have been
// fetched. Pages that fail are reported as skipped.
func CrawlURL(ctx context.Context, raw string, maxPages int) ([]commonModels.Document, []Skipped, error) {
	return crawl(ctx, customHttpClient.New(config.RemoteRequestTimeout), raw, maxPages)
}

func crawl(ctx context.Context, client *http.Client, raw string, maxPages int) ([]commonModels.Document, []Skipped, error) {
	start, err := parseWebURL(raw)
	if err != nil {
		return nil, nil, err
	}
	if maxPages <= 0 {
		maxPages = config.MaxCrawlPages
	}
	c := newWebCrawler(ctx, client, start)

	var docs []commonModels.Document
	var skipped []Skipped
	visited := map[string]bool{start.String(): true}
	frontier := []string{start.String()}
	fetched := 0

	for len(frontier) > 0 && fetched < maxPages {
		batch := frontier[:min(len(frontier), maxPages-fetched)]
		fetched += len(batch)
		results := c.fetchAll(ctx, batch)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var next []string
		for _, r := range results {
			if r.err != nil {
				c.log.Warn("skipping page", "url", r.url, "error", r.err)
				skipped = append(skipped, Skipped{Path: r.url, Reason: r.err.Error()})
				continue
			}
			if doc, ok := pageDocument(r.url, r.page); ok {
				docs = append(docs, doc)
			}
			for _, link := range r.page.Links {
				if !visited[link] && c.inScope(link) {
					visited[link] = true
					next = append(next, link)
				}
			}
		}
		frontier = next
	}

	c.log.Info("site crawled", "pages", fetched, "documents", len(docs), "skipped", len(skipped))
	if len(docs) == 0 {
		return nil, skipped, fmt.Errorf("no readable pages at %s: %s", raw, describeSkipped(skipped))
	}
	return docs, skipped, nil
}

// FetchURL loads a single page without following links.
func FetchURL(ctx context.Context, raw string) (commonModels.Document, error) {
	u, err := parseWebURL(raw)
	if err != nil {
		return commonModels.Document{}, err
	}
	c := newWebCrawler(ctx, customHttpClient.New(config.RemoteRequestTimeout), u)
	page, err := c.fetch(ctx, u.String())
	if err != nil {
		return commonModels.Document{}, fmt.Errorf("fetching %s: %w", raw, err)
	}
	doc, ok := pageDocument(u.String(), page)
	if !ok {
		return commonModels.Document{}, fmt.Errorf("%s has no text content", raw)
	}
	return doc, nil
}

func newWebCrawler(ctx context.Context, client *http.Client, start *url.URL) *webCrawler {
	prefix := start.Path
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix[:strings.LastIndex(prefix, "/")+1]
	}
	return &webCrawler{
		client: client,
		host:   start.Host,
		prefix: prefix,
		log:    logger_i.NewLogger("WebCrawler").WithTrace(ctx).With("host", start.Host),
	}
}

func (c *webCrawler) fetchAll(ctx context.Context, urls []string) []fetchResult {
	results := make([]fetchResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.CrawlConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.fetch(gctx, u)
			results[i] = fetchResult{url: u, page: page, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *webCrawler) fetch(ctx context.Context, u string) (htmlPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return htmlPage{}, err
	}
	req.Header.Set("User-Agent", "mirage-crawler/1.0")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return htmlPage{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return htmlPage{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, config.MaxFetchBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "":
		return parseHTML(body, resp.Request.URL)
	case "text/plain", "text/markdown":
		data, err := io.ReadAll(body)
		if err != nil {
			return htmlPage{}, err
		}
		return htmlPage{Text: cleanText(string(data))}, nil
	default:
		return htmlPage{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (c *webCrawler) inScope(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host != c.host {
		return false
	}
	return strings.HasPrefix(u.Path, c.prefix) || u.Path+"/" == c.prefix
}

func pageDocument(u string, page htmlPage) (commonModels.Document, bool) {
	if strings.TrimSpace(page.Text) == "" {
		return commonModels.Document{}, false
	}
	text := page.Text
	if page.Title != "" && !strings.HasPrefix(text, page.Title) {
		text = page.Title + "\n\n" + text
	}
	return commonModels.Document{SourceID: u, Text: text, DocType: commonModels.HTML}, true
}

func parseWebURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: only http and https are supported", raw)
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// IsURL reports whether s should be treated as a web address.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
