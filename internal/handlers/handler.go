package handlers

import (
	"reflect"
	"strings"

	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/go-playground/validator/v10"
)

// Handler serves the hosted API the CLI talks to in remote mode.
type Handler struct {
	store    vectorDB.Store
	embedder embedding.Embedder
	provider llm.Provider
	jobs     *JobHandler
	validate *validator.Validate
	logger   *logger_i.Logger
}

type Config struct {
	// Store is shared by every user; collections are namespaced per user.
	Store    vectorDB.Store
	Embedder embedding.Embedder
	Provider llm.Provider
	Jobs     *JobHandler
}

func New(cfg Config) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		provider: cfg.Provider,
		jobs:     cfg.Jobs,
		validate: v,
		logger:   logger_i.NewLogger("RequestHandler"),
	}
}

func (h *Handler) userStore(userID string) *vectorDB.UserStore {
	return vectorDB.ForUser(h.store, userID)
}
