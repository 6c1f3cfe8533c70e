package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/registry"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/internal/rag/vectorDB/memoryDB"
	"github.com/akolanti/mirage/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

// TransientSource names transient content in results and failures.
const TransientSource = "transient"

var errStoreUnavailable = errors.New("vector store for this source is not available")

// Target is one side of the search: a store and the embedder whose vectors
// its collections were built with.
type Target struct {
	Store    vectorDB.Store
	Embedder embedding.Embedder
}

type Catalog interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

type Query struct {
	Text    string
	Sources []string
	// Transient documents are used for this query only and never persisted.
	Transient []commonModels.Document
}

// SourceResult is the outcome of searching one source. Exactly one of Hits
// or Err is meaningful.
type SourceResult struct {
	Source   string
	Location commonModels.Location
	Hits     []commonModels.SearchHit
	Err      error
}

type Result struct {
	// Hits merges every successful source, unranked.
	Hits     []commonModels.SearchHit
	Verbatim []commonModels.Document
	Sources  []SourceResult
	Failures []SourceResult
}

type Config struct {
	TopK                 int
	TransientTokenBudget int
	FanOut               int
}

type Retriever struct {
	catalog   Catalog
	local     *Target
	remote    *Target
	transient embedding.Embedder
	scratch   *memoryDB.Store
	chunker   *chunker.Chunker
	cfg       Config
	logger    *logger_i.Logger
}

// New wires a retriever. local or remote may be nil when that side is not
// available; transient embeds one-off content and may be nil when none is
// ever passed.
func New(catalog Catalog, local, remote *Target, transient embedding.Embedder, ch *chunker.Chunker, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = config.DefaultTopK
	}
	if cfg.TransientTokenBudget <= 0 {
		cfg.TransientTokenBudget = config.DefaultTransientTokenBudget
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = config.RemoteFanOut
	}
	if ch == nil {
		ch = chunker.New(config.DefaultMaxChunkTokens, nil)
	}
	return &Retriever{
		catalog:   catalog,
		local:     local,
		remote:    remote,
		transient: transient,
		scratch:   memoryDB.New(),
		chunker:   ch,
		cfg:       cfg,
		logger:    logger_i.NewLogger("Retriever"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Result, error) {
	log := r.logger.WithTrace(ctx)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("retrieval", time.Since(start)) }()

	sources := dedupe(q.Sources)
	res := &Result{}

	if len(sources) > 0 {
		snap, err := r.catalog.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		if err := snap.Validate(sources); err != nil {
			return nil, err
		}
		res.Sources = r.searchSources(ctx, q.Text, sources, snap)
	}

	if len(q.Transient) > 0 {
		if r.fitsVerbatim(q.Transient) {
			res.Verbatim = q.Transient
		} else {
			hits, err := r.searchTransient(ctx, q.Text, q.Transient)
			res.Sources = append(res.Sources, SourceResult{
				Source:   TransientSource,
				Location: commonModels.LocationLocal,
				Hits:     hits,
				Err:      err,
			})
		}
	}

	for _, sr := range res.Sources {
		if sr.Err != nil {
			log.Warn("source search failed", "source", sr.Source, "error", sr.Err)
			metrics.IncrementSourceFailures(string(sr.Location))
			res.Failures = append(res.Failures, sr)
			continue
		}
		res.Hits = append(res.Hits, sr.Hits...)
	}

	if len(res.Sources) > 0 && len(res.Failures) == len(res.Sources) && len(res.Verbatim) == 0 {
		errs := []error{commonModels.ErrNoSources}
		for _, f := range res.Failures {
			errs = append(errs, fmt.Errorf("%s: %w", f.Source, f.Err))
		}
		return res, errors.Join(errs...)
	}
	log.Debug("retrieved", "hits", len(res.Hits), "failures", len(res.Failures), "verbatim", len(res.Verbatim))
	return res, nil
}

func (r *Retriever) searchSources(ctx context.Context, text string, sources []string, snap *registry.Snapshot) []SourceResult {
	results := make([]SourceResult, len(sources))
	var localNames, remoteNames []int
	for i, name := range sources {
		loc := snap.Classify(name)
		results[i] = SourceResult{Source: name, Location: loc}
		if loc == commonModels.LocationLocal {
			localNames = append(localNames, i)
		} else {
			remoteNames = append(remoteNames, i)
		}
	}

	localVec, localErr := r.embedFor(ctx, r.local, text, len(localNames) > 0)
	remoteVec, remoteErr := r.embedFor(ctx, r.remote, text, len(remoteNames) > 0)

	// per source errors are recorded, never returned, so the group only bounds
	// concurrency
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.FanOut)
	launch := func(idx []int, t *Target, vec []float32, embedErr error) {
		for _, i := range idx {
			if embedErr != nil {
				results[i].Err = embedErr
				continue
			}
			g.Go(func() error {
				hits, err := t.Store.Search(gctx, results[i].Source, vec, r.cfg.TopK)
				results[i].Hits, results[i].Err = hits, err
				return nil
			})
		}
	}
	launch(localNames, r.local, localVec, localErr)
	launch(remoteNames, r.remote, remoteVec, remoteErr)
	_ = g.Wait()
	return results
}

func (r *Retriever) embedFor(ctx context.Context, t *Target, text string, needed bool) ([]float32, error) {
	if !needed {
		return nil, nil
	}
	if t == nil || t.Store == nil || t.Embedder == nil {
		return nil, errStoreUnavailable
	}
	vec, err := t.Embedder.GetEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

func (r *Retriever) fitsVerbatim(docs []commonModels.Document) bool {
	counter := r.chunker.Counter()
	total := 0
	for _, d := range docs {
		total += counter.Count(d.Text)
		if total >= r.cfg.TransientTokenBudget {
			return false
		}
	}
	return true
}

// searchTransient indexes docs into a collection that lives only for this
// call and is dropped before returning.
func (r *Retriever) searchTransient(ctx context.Context, text string, docs []commonModels.Document) ([]commonModels.SearchHit, error) {
	if r.transient == nil {
		return nil, errors.New("no embedder for transient content")
	}
	scope, err := newScopedCollection(ctx, r.scratch, r.transient, r.chunker.SplitAll(docs))
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	vec, err := r.transient.GetEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return scope.Search(ctx, vec, r.cfg.TopK)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
