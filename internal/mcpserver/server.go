// Package mcpserver exposes source search to MCP clients over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/assembler"
	"github.com/akolanti/mirage/internal/rag/registry"
	"github.com/akolanti/mirage/internal/rag/retriever"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const Version = "0.1.0"

var errEmptyQuery = errors.New("query must not be empty")

type Retrieval interface {
	Retrieve(ctx context.Context, q retriever.Query) (*retriever.Result, error)
}

type Catalog interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

type Server struct {
	retrieval Retrieval
	catalog   Catalog
	topN      int
	server    *mcp.Server
	logger    *logger_i.Logger
}

type SearchInput struct {
	Query   string   `json:"query" jsonschema:"the question or keywords to search for"`
	Sources []string `json:"sources,omitempty" jsonschema:"source names to search, all known sources when empty"`
	Limit   int      `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 10)"`
}

type Passage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
}

type SearchOutput struct {
	Passages []Passage `json:"passages"`
	// Context is the passages rendered the way the chat feeds them to a model.
	Context  string   `json:"context"`
	Cited    []string `json:"cited"`
	Failures []string `json:"failures,omitempty"`
}

type ListInput struct{}

type ListOutput struct {
	Local       []string `json:"local"`
	Remote      []string `json:"remote"`
	RemoteError string   `json:"remote_error,omitempty"`
}

func New(retrieval Retrieval, catalog Catalog, topN int) *Server {
	if topN <= 0 {
		topN = config.DefaultTopN
	}
	s := &Server{
		retrieval: retrieval,
		catalog:   catalog,
		topN:      topN,
		server:    mcp.NewServer(&mcp.Implementation{Name: "mirage", Version: Version}, nil),
		logger:    logger_i.NewLogger("MCP"),
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_sources",
		Description: "Search indexed sources and return the most relevant passages with their source names",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the local and remote sources that can be searched",
	}, s.handleList)
	return s
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t, mostly for tests.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if in.Query == "" {
		return nil, SearchOutput{}, errEmptyQuery
	}
	ctx = context.WithValue(ctx, config.TRACE_ID_KEY, uuid.NewString())
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("mcp_search", time.Since(start)) }()

	sources := in.Sources
	if len(sources) == 0 {
		snap, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		sources = snap.All()
	}
	out := SearchOutput{Passages: []Passage{}, Cited: []string{}}
	if len(sources) == 0 {
		return nil, out, nil
	}

	res, err := s.retrieval.Retrieve(ctx, retriever.Query{Text: in.Query, Sources: sources})
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = s.topN
	}
	ranked := assembler.Rank(res.Hits, limit)
	for _, h := range ranked {
		out.Passages = append(out.Passages, Passage{Source: h.Payload.Source, Text: h.Payload.Data, Score: h.Score})
	}
	out.Context, out.Cited = assembler.BuildContext(ranked)
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}
	s.logger.WithTrace(ctx).Debug("search served", "sources", len(sources), "passages", len(out.Passages))
	return nil, out, nil
}

func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, ListOutput, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}
	out := ListOutput{Local: sortedKeys(snap.Local), Remote: sortedKeys(snap.Remote)}
	if snap.RemoteErr != nil {
		out.RemoteError = snap.RemoteErr.Error()
	}
	return nil, out, nil
}

func sortedKeys(m map[string]bool) []string {
	snap := registry.Snapshot{Local: m}
	return snap.All()
}
