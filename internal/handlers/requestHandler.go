package handlers

import (
	"net/http"
	"time"

	"github.com/akolanti/mirage/internal/adapter"
	"github.com/akolanti/mirage/internal/adapter/utils"
	"github.com/akolanti/mirage/internal/api"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/jobModel"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/internal/rag/embedding"
	"github.com/akolanti/mirage/internal/rag/ingest"
	"github.com/akolanti/mirage/internal/rag/llm"
)

func GetHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Embed godoc
// @Summary      Embed texts with the server's embedding model
// @Tags         Models
// @Accept       json
// @Produce      json
// @Param        request  body      api.EmbedRequest  true  "Texts"
// @Success      200      {object}  api.EmbedResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      503      {object}  api.ErrorResponse
// @Router       /v1/embed [post]
func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	var req api.EmbedRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	start := time.Now()
	vectors, err := embedding.EmbedInBatches(r.Context(), h.embedder, req.Texts, config.EmbeddingBatchSize)
	metrics.CaptureExecutionMetrics("embedding", time.Since(start))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	h.writeJsonResponse(w, http.StatusOK, api.EmbedResponse{Vectors: vectors})
}

// ChatStream godoc
// @Summary      Stream a chat completion
// @Description  Relays the model's reply as a chunked text/plain body while it is generated.
// @Tags         Models
// @Accept       json
// @Produce      plain
// @Param        request  body      api.ChatStreamRequest  true  "Conversation"
// @Success      200      {string}  string  "Reply text"
// @Failure      400      {object}  api.ErrorResponse
// @Router       /v1/chat/stream [post]
func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req api.ChatStreamRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	log := h.logger.WithTrace(r.Context())
	flusher, _ := w.(http.Flusher)
	wrote := false

	start := time.Now()
	_, err := h.provider.Stream(r.Context(), llm.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}, func(fragment string) {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, werr := w.Write([]byte(fragment)); werr != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
	metrics.CaptureExecutionMetrics("llm_generation", time.Since(start))

	switch {
	case err != nil && !wrote:
		h.writeDomainError(r.Context(), w, err)
	case err != nil:
		// headers are gone, the client sees a short body
		log.Error("chat stream broken", "error", err)
	case !wrote:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

// IndexURL godoc
// @Summary      Crawl and index a site in the background
// @Description  Queues a job that crawls url (same host, under its path), chunks and embeds the pages and replaces the collection.
// @Tags         Jobs
// @Accept       json
// @Produce      json
// @Param        request  body      api.IndexURLRequest  true  "Site to index"
// @Success      202      {object}  api.InitJobResponse  "Job queued"
// @Failure      400      {object}  api.ErrorResponse
// @Router       /v1/index [post]
func (h *Handler) IndexURL(w http.ResponseWriter, r *http.Request) {
	var req api.IndexURLRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if h.jobs == nil {
		h.WriteErrorResponse(w, http.StatusServiceUnavailable, "background jobs are not enabled")
		return
	}
	if !ingest.IsURL(req.URL) {
		h.WriteErrorResponse(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = config.MaxCrawlPages
	}
	newJob, err := h.jobs.SubmitIndexJob(r.Context(), jobModel.JobPayload{
		UserID:         req.UserID,
		CollectionName: req.CollectionName,
		URL:            req.URL,
		MaxPages:       maxPages,
	})
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	h.writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(newJob.Id))
}

// GetStatusHandler godoc
// @Summary      Get job status
// @Description  Retrieves the current state of an index job.
// @Tags         Jobs
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  api.JobResponse
// @Failure      404  {object}  api.ErrorResponse  "Job not found"
// @Router       /v1/status/{id} [get]
func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	id := utils.GetChiURLParam(r, "id")
	var result jobModel.Job
	isFound := false
	if h.jobs != nil {
		result, isFound = h.jobs.GetJobStatus(r.Context(), id)
	}
	if !isFound {
		h.WriteErrorResponse(w, http.StatusNotFound, "job not found")
		return
	}
	h.writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result))
}
