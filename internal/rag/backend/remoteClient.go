package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akolanti/mirage/internal/api"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/customHttpClient"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

// RemoteClient talks to the hosted service. It serves as the remote vector
// store, the remote embedder and the remote completion provider.
type RemoteClient struct {
	baseURL    string
	userID     string
	token      string
	http       *http.Client
	streamHTTP *http.Client
	batchSize  int
	fanOut     int
	logger     *logger_i.Logger
}

func NewRemoteClient(baseURL, userID, token string) *RemoteClient {
	return &RemoteClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userID:     userID,
		token:      token,
		http:       customHttpClient.New(config.RemoteRequestTimeout),
		streamHTTP: customHttpClient.New(0),
		batchSize:  config.EmbeddingBatchSize,
		fanOut:     config.RemoteFanOut,
		logger:     logger_i.NewLogger("RemoteClient"),
	}
}

// Configured reports whether enough credentials are present to call out.
func (c *RemoteClient) Configured() bool {
	return c.baseURL != "" && c.userID != "" && c.token != ""
}

func (c *RemoteClient) ListCollections(ctx context.Context) ([]string, error) {
	var res api.ListCollectionsResponse
	if err := c.post(ctx, "/v1/collections/list", api.UserRequest{UserID: c.userID}, &res); err != nil {
		return nil, err
	}
	return res.Collections, nil
}

func (c *RemoteClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	var res api.ExistsResponse
	err := c.post(ctx, "/v1/collections/exists", api.CollectionRequest{UserID: c.userID, CollectionName: name}, &res)
	return res.Exists, err
}

func (c *RemoteClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	return c.post(ctx, "/v1/collections/create", api.CreateCollectionRequest{
		UserID: c.userID, CollectionName: name, VectorSize: vectorSize,
	}, nil)
}

func (c *RemoteClient) DeleteCollection(ctx context.Context, name string) error {
	return c.post(ctx, "/v1/collections/delete", api.CollectionRequest{UserID: c.userID, CollectionName: name}, nil)
}

func (c *RemoteClient) Upsert(ctx context.Context, name string, points []commonModels.Point) error {
	if len(points) == 0 {
		return nil
	}
	return c.post(ctx, "/v1/collections/upsert", api.UpsertRequest{UserID: c.userID, CollectionName: name, Points: points}, nil)
}

// ReplaceCollection uploads in batches. The first batch recreates the
// collection, the rest are upserted concurrently once it exists.
func (c *RemoteClient) ReplaceCollection(ctx context.Context, name string, vectorSize uint64, points []commonModels.Point) error {
	first := points[:min(c.batchSize, len(points))]
	err := c.post(ctx, "/v1/collections/create", api.CreateCollectionRequest{
		UserID: c.userID, CollectionName: name, VectorSize: vectorSize, Points: first,
	}, nil)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanOut)
	for i := len(first); i < len(points); i += c.batchSize {
		batch := points[i:min(i+c.batchSize, len(points))]
		g.Go(func() error {
			return c.Upsert(gctx, name, batch)
		})
	}
	return g.Wait()
}

func (c *RemoteClient) Search(ctx context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error) {
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("remote_search", time.Since(start)) }()

	var res api.SearchResponse
	err := c.post(ctx, "/v1/collections/search", api.SearchRequest{
		UserID: c.userID, CollectionName: name, Vector: vector, Limit: limit,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return res.Hits, nil
}

func (c *RemoteClient) GetEmbedding(ctx context.Context, query string) ([]float32, error) {
	vecs, err := c.BatchEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *RemoteClient) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	var res api.EmbedResponse
	if err := c.post(ctx, "/v1/embed", api.EmbedRequest{Texts: texts}, &res); err != nil {
		return nil, err
	}
	if len(res.Vectors) != len(texts) {
		return nil, fmt.Errorf("remote returned %d embeddings for %d inputs", len(res.Vectors), len(texts))
	}
	return res.Vectors, nil
}

// Stream relays the service's chunked text reply to sink.
func (c *RemoteClient) Stream(ctx context.Context, req llm.Request, sink llm.Sink) (string, error) {
	log := c.logger.WithTrace(ctx)
	body := api.ChatStreamRequest{Model: req.Model, Messages: req.Messages, Temperature: req.Temperature}
	resp, err := c.do(ctx, c.streamHTTP, http.MethodPost, "/v1/chat/stream", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	var pending []byte
	buf := make([]byte, 1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			// hold back a rune split across reads
			cut := len(pending)
			for cut > 0 && !utf8.Valid(pending[:cut]) && len(pending)-cut < utf8.UTFMax {
				cut--
			}
			if cut > 0 {
				fragment := string(pending[:cut])
				pending = append(pending[:0], pending[cut:]...)
				reply.WriteString(fragment)
				if sink != nil {
					sink(fragment)
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			log.Error("chat stream interrupted", "error", rerr)
			return reply.String(), rerr
		}
	}
	if len(pending) > 0 {
		reply.Write(pending)
		if sink != nil {
			sink(string(pending))
		}
	}
	return reply.String(), nil
}

// IndexURL asks the service to crawl and index rawURL into name in the
// background. The returned job can be polled with JobStatus.
func (c *RemoteClient) IndexURL(ctx context.Context, name, rawURL string, maxPages int) (api.InitJobResponse, error) {
	var res api.InitJobResponse
	err := c.post(ctx, "/v1/index", api.IndexURLRequest{
		UserID:         c.userID,
		CollectionName: name,
		URL:            rawURL,
		MaxPages:       maxPages,
	}, &res)
	return res, err
}

func (c *RemoteClient) JobStatus(ctx context.Context, id string) (api.JobResponse, error) {
	var res api.JobResponse
	err := c.call(ctx, http.MethodGet, "/v1/status/"+url.PathEscape(id), nil, &res)
	return res, err
}

func (c *RemoteClient) post(ctx context.Context, path string, body any, out any) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

func (c *RemoteClient) call(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, c.http, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// do sends body, if any, as JSON and returns the response when the status
// is 2xx.
func (c *RemoteClient) do(ctx context.Context, client *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if trace, ok := ctx.Value(config.TRACE_ID_KEY).(string); ok {
		req.Header.Set("X-Trace-Id", trace)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %v", path, commonModels.ErrRemoteUnavailable, err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(path, resp)
}

func statusError(path string, resp *http.Response) error {
	var apiErr api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		sentinel = commonModels.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		sentinel = commonModels.ErrSourceNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		sentinel = commonModels.ErrDimensionMismatch
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		sentinel = commonModels.ErrRemoteUnavailable
	default:
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, msg)
	}
	return fmt.Errorf("%s: %w (%s)", path, sentinel, msg)
}
