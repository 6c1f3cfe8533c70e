package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"github.com/akolanti/mirage/internal/adapter/utils"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/handlers"
	"github.com/akolanti/mirage/internal/middleware"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

var (
	server  *http.Server
	_logger = logger_i.NewLogger("Server")
)

type ShutdownParams struct {
	GracefulShutdown chan os.Signal
	StopExecution    chan bool
	WorkerStop       chan bool
	Group            *sync.WaitGroup
	CloseServices    context.CancelFunc
}

// NewRouter mounts the API routes behind the middleware chain.
func NewRouter(h *handlers.Handler) *chi.Mux {
	r := utils.NewRouter()
	r.Get("/healthz", handlers.GetHandler)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/collections/list", middleware.Wrap(h.ListCollections))
		v1.Post("/collections/create", middleware.Wrap(h.CreateCollection))
		v1.Post("/collections/upsert", middleware.Wrap(h.Upsert))
		v1.Post("/collections/search", middleware.Wrap(h.Search))
		v1.Post("/collections/exists", middleware.Wrap(h.Exists))
		v1.Post("/collections/delete", middleware.Wrap(h.DeleteCollection))
		v1.Post("/embed", middleware.Wrap(h.Embed))
		v1.Post("/chat/stream", middleware.Wrap(h.ChatStream))
		v1.Post("/index", middleware.Wrap(h.IndexURL))
		v1.Get("/status/{id}", middleware.Wrap(h.GetStatusHandler))
	})
	return r
}

func CreateServer(listenAddr string, handler http.Handler) {
	server = &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	_logger.Info("server is listening", "address", listenAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_logger.Error("server crashed", "error", err, "addr", listenAddr)
	}
}

// ShutDownHandler waits for a signal, drains HTTP, stops the workers and
// then closes redis and qdrant through CloseServices.
func ShutDownHandler(shutdownParams ShutdownParams) {
	state := <-shutdownParams.GracefulShutdown
	_logger.Info("server is shutting down", "signal", state.String())

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownContextTimeout)
	defer cancel()

	done := make(chan struct{})

	go func() {
		if server != nil {
			server.SetKeepAlivesEnabled(false)
			if err := server.Shutdown(ctx); err != nil {
				_logger.Error("could not shut down gracefully", "error", err)
			}
		}

		close(shutdownParams.WorkerStop)
		shutdownParams.Group.Wait()
		shutdownParams.CloseServices()
		close(shutdownParams.StopExecution)
		close(done)
	}()

	select {
	case <-done:
		_logger.Info("shut down gracefully")
	case <-ctx.Done():
		_logger.Error("forced shut down")
		os.Exit(1)
	}
}
