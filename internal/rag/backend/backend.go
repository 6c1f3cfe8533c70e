package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/customHttpClient"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/embedding/googleEmbedding"
	"github.com/akolanti/mirage/internal/rag/embedding/openaiEmbedding"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/llm/gemini"
	"github.com/akolanti/mirage/internal/rag/llm/openaiLLM"
	"github.com/akolanti/mirage/internal/rag/registry"
	"github.com/akolanti/mirage/internal/rag/retriever"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/internal/rag/vectorDB/localDB"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// Backend is the embedding, completion and storage stack chosen once at
// startup from local_mode.
type Backend interface {
	Name() commonModels.Location
	Embedder() embedding.Embedder
	Provider() llm.Provider
	Store() vectorDB.Store
}

type localBackend struct {
	store    vectorDB.Store
	embedder embedding.Embedder
	provider llm.Provider
}

func (b *localBackend) Name() commonModels.Location  { return commonModels.LocationLocal }
func (b *localBackend) Embedder() embedding.Embedder { return b.embedder }
func (b *localBackend) Provider() llm.Provider       { return b.provider }
func (b *localBackend) Store() vectorDB.Store        { return b.store }

type remoteBackend struct {
	client *RemoteClient
}

func (b *remoteBackend) Name() commonModels.Location  { return commonModels.LocationRemote }
func (b *remoteBackend) Embedder() embedding.Embedder { return b.client }
func (b *remoteBackend) Provider() llm.Provider       { return b.client }
func (b *remoteBackend) Store() vectorDB.Store        { return b.client }

// Set holds the active backend along with whatever view of the other side
// is available. Local store collections are always embedded with the
// provider embedder and remote ones with the service's embedder, so each
// side keeps its own.
type Set struct {
	Active Backend

	LocalStore    *localDB.Store
	LocalEmbedder embedding.Embedder
	Remote        *RemoteClient

	Registry *registry.Registry
	logger   *logger_i.Logger
}

// New opens the stores and clients settings call for. In local mode a
// locked or unreadable local store is fatal; in remote mode it only drops
// local sources from view.
func New(ctx context.Context, s *config.Settings) (*Set, error) {
	set := &Set{logger: logger_i.NewLogger("Backend")}

	remote := NewRemoteClient(s.RemoteURL, s.UserID, s.APIToken)
	if remote.Configured() {
		set.Remote = remote
	}

	emb, embErr := ProviderEmbedder(ctx, s)
	if embErr == nil {
		set.LocalEmbedder = emb
	}

	store, storeErr := localDB.Open(ctx, filepath.Join(s.DataPath(), "vectors"))
	if storeErr == nil {
		set.LocalStore = store
	}

	if s.LocalMode {
		if storeErr != nil {
			return nil, storeErr
		}
		if embErr != nil {
			set.Close()
			return nil, embErr
		}
		provider, err := ProviderCompleter(ctx, s)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.Active = &localBackend{store: store, embedder: emb, provider: provider}
	} else {
		if set.Remote == nil {
			set.Close()
			return nil, fmt.Errorf("remote mode needs remote_url, user_id and api_token: %w", commonModels.ErrUnauthorized)
		}
		if storeErr != nil {
			set.logger.Warn("local sources unavailable", "error", storeErr)
		}
		set.Active = &remoteBackend{client: set.Remote}
	}

	set.Registry = registry.New(set.localStore(), set.remoteStore(), s)
	set.logger.Info("backend ready", "active", string(set.Active.Name()),
		"local_store", set.LocalStore != nil, "remote", set.Remote != nil)
	return set, nil
}

// Targets returns the per-side search targets, nil for a side that is not
// available.
func (s *Set) Targets() (local, remote *retriever.Target) {
	if s.LocalStore != nil {
		local = &retriever.Target{Store: s.LocalStore, Embedder: s.LocalEmbedder}
	}
	if s.Remote != nil {
		remote = &retriever.Target{Store: s.Remote, Embedder: s.Remote}
	}
	return local, remote
}

// Destination returns the store and embedder new sources are written to.
func (s *Set) Destination(toRemote bool) (vectorDB.Store, embedding.Embedder, commonModels.Location, error) {
	if toRemote || (s.Active != nil && s.Active.Name() == commonModels.LocationRemote) {
		if s.Remote == nil {
			return nil, nil, "", fmt.Errorf("remote service is not configured: %w", commonModels.ErrUnauthorized)
		}
		return s.Remote, s.Remote, commonModels.LocationRemote, nil
	}
	if s.LocalStore == nil {
		return nil, nil, "", errors.New("local vector store is not available")
	}
	if s.LocalEmbedder == nil {
		return nil, nil, "", errors.New("no embedding provider configured, set openai_key or gemini_key")
	}
	return s.LocalStore, s.LocalEmbedder, commonModels.LocationLocal, nil
}

func (s *Set) Close() error {
	if s.LocalStore != nil {
		return s.LocalStore.Close()
	}
	return nil
}

// the registry treats a nil interface as "side not configured", so typed
// nils must not leak into it
func (s *Set) localStore() vectorDB.Store {
	if s.LocalStore == nil {
		return nil
	}
	return s.LocalStore
}

func (s *Set) remoteStore() vectorDB.Store {
	if s.Remote == nil {
		return nil
	}
	return s.Remote
}

// ProviderEmbedder builds the direct embedding client for settings.Provider.
func ProviderEmbedder(ctx context.Context, s *config.Settings) (embedding.Embedder, error) {
	switch s.Provider {
	case "gemini":
		return googleEmbedding.New(ctx, s.GeminiKey, s.EmbeddingModel, &genai.ClientConfig{HTTPClient: customHttpClient.New(config.RemoteRequestTimeout)})
	case "openai", "":
		return openaiEmbedding.New(s.OpenAIKey, s.EmbeddingModel, option.WithHTTPClient(customHttpClient.New(config.RemoteRequestTimeout)))
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
}

// ProviderCompleter builds the direct chat client for settings.Provider.
func ProviderCompleter(ctx context.Context, s *config.Settings) (llm.Provider, error) {
	switch s.Provider {
	case "gemini":
		return gemini.New(ctx, s.GeminiKey, &genai.ClientConfig{HTTPClient: customHttpClient.New(0)})
	case "openai", "":
		return openaiLLM.New(s.OpenAIKey, option.WithHTTPClient(customHttpClient.New(0)))
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
}
