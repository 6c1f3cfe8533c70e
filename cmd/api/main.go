// @title           mirage API
// @version         1.0
// @description     Hosted vector collections, embeddings, chat streaming and background site indexing for the mirage CLI.
// @termsOfService  http://swagger.io/terms/

// @license.name    Apache 2.0
// @license.url     http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/data/store"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/handlers"
	"github.com/akolanti/mirage/internal/job"
	"github.com/akolanti/mirage/internal/rag"
	"github.com/akolanti/mirage/internal/rag/backend"
	"github.com/akolanti/mirage/internal/rag/chunker"
	"github.com/akolanti/mirage/internal/rag/llm"
	"github.com/akolanti/mirage/internal/rag/vectorDB/qdrantDB"
	"github.com/akolanti/mirage/internal/server"
	"github.com/akolanti/mirage/internal/worker"
	"github.com/akolanti/mirage/pkg/logger_i"
)

var (
	listenAddr        string
	stopWorkerChannel chan bool
	workerWaitGroup   sync.WaitGroup
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		println("could not read .env:", err.Error())
	}
	logger_i.Init()
	var logger = logger_i.NewLogger("main")

	flag.StringVar(&listenAddr, "listen-addr", config.ServerListenAddr, "server listen address")
	flag.Parse()

	if config.AuthToken() == "" && !config.NoAuthBypass() {
		logger.Warn("MIRAGE_API_TOKEN is not set, every request will be refused")
	}

	settings, err := config.ServerSettings()
	if err != nil {
		logger.Error("bad server configuration", "error", err)
		os.Exit(1)
	}

	jobChannel := make(chan jobModel.Job, config.BufferLimit)
	dispatcherChannel := make(chan bool, 1)
	stopWorkerChannel = make(chan bool, 1)

	serviceContext, closeExternalServices := context.WithCancel(context.Background())
	defer closeExternalServices()

	serviceConfig := job.ServiceConfig{
		JobChannel:        jobChannel,
		DispatcherChannel: dispatcherChannel,
	}
	if redisJobs := store.GetRedisJobStore(serviceContext); redisJobs != nil {
		serviceConfig.JobStore = redisJobs
	} else if config.FALLBACK_REDIS_TO_INTERNALSTORE {
		logger.Warn("redis is offline, job state will only live in memory")
		serviceConfig.JobStore = store.InitInMemoryJobStore()
	} else {
		logger.Error("redis is offline")
		os.Exit(1)
	}
	service := job.InitJobService(serviceConfig)

	vectorStore := qdrantDB.GetQdrantClient(serviceContext)
	embedder, embErr := backend.ProviderEmbedder(serviceContext, settings)
	provider, llmErr := backend.ProviderCompleter(serviceContext, settings)
	if vectorStore == nil || embErr != nil || llmErr != nil {
		logger.Error("one or more external services failed to initialize, shutting down",
			"vectorDB", vectorStore != nil, "embedding", embErr, "llm", llmErr)
		closeExternalServices()
		os.Exit(1)
	}
	logger.Info("model backends ready", "provider", settings.Provider, "model", settings.Model, "embeddingModel", settings.EmbeddingModel)

	indexService := rag.NewService(vectorStore, embedder, chunker.New(config.DefaultMaxChunkTokens, nil))

	worker.NewPool(service, indexService).Start(stopWorkerChannel, &workerWaitGroup)

	h := handlers.New(handlers.Config{
		Store:    vectorStore,
		Embedder: embedder,
		Provider: llm.WithDefaultModel(provider, settings.Model),
		Jobs:     handlers.NewJobHandler(service),
	})

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	stopExecution := make(chan bool, 1)

	go server.ShutDownHandler(server.ShutdownParams{
		GracefulShutdown: gracefulShutdown,
		StopExecution:    stopExecution,
		WorkerStop:       stopWorkerChannel,
		Group:            &workerWaitGroup,
		CloseServices:    closeExternalServices,
	})
	go server.CreateServer(listenAddr, server.NewRouter(h))

	<-stopExecution
	logger.Info("server stopped")
}
