package handlers

import (
	"net/http"
	"time"

	"github.com/akolanti/mirage/internal/api"
	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/metrics"
)

// ListCollections godoc
// @Summary      List a user's collections
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.UserRequest  true  "User"
// @Success      200      {object}  api.ListCollectionsResponse
// @Failure      400      {object}  api.ErrorResponse
// @Router       /v1/collections/list [post]
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	var req api.UserRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	names, err := h.userStore(req.UserID).ListCollections(r.Context())
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	h.writeJsonResponse(w, http.StatusOK, api.ListCollectionsResponse{Collections: names})
}

// CreateCollection godoc
// @Summary      Create or replace a collection
// @Description  Drops any collection of the same name, creates it with vector_size and stores the points.
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.CreateCollectionRequest  true  "Collection and points"
// @Success      200      {object}  api.OKResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      422      {object}  api.ErrorResponse  "Point vectors do not match vector_size"
// @Router       /v1/collections/create [post]
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCollectionRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	for _, p := range req.Points {
		if uint64(len(p.Vector)) != req.VectorSize {
			h.writeDomainError(r.Context(), w, commonModels.ErrDimensionMismatch)
			return
		}
	}
	start := time.Now()
	err := h.userStore(req.UserID).ReplaceCollection(r.Context(), req.CollectionName, req.VectorSize, req.Points)
	metrics.CaptureExecutionMetrics("collection_create", time.Since(start))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	metrics.AddChunksIndexed(string(commonModels.LocationRemote), len(req.Points))
	h.logger.WithTrace(r.Context()).Info("collection created", "user", req.UserID, "collection", req.CollectionName, "points", len(req.Points))
	h.writeJsonResponse(w, http.StatusOK, api.OKResponse{Status: "ok"})
}

// Upsert godoc
// @Summary      Add points to a collection
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.UpsertRequest  true  "Points"
// @Success      200      {object}  api.OKResponse
// @Failure      404      {object}  api.ErrorResponse
// @Failure      422      {object}  api.ErrorResponse
// @Router       /v1/collections/upsert [post]
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req api.UpsertRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := h.userStore(req.UserID).Upsert(r.Context(), req.CollectionName, req.Points); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	metrics.AddChunksIndexed(string(commonModels.LocationRemote), len(req.Points))
	h.writeJsonResponse(w, http.StatusOK, api.OKResponse{Status: "ok"})
}

// Search godoc
// @Summary      Nearest neighbour search in one collection
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.SearchRequest  true  "Query vector"
// @Success      200      {object}  api.SearchResponse
// @Failure      404      {object}  api.ErrorResponse  "Unknown collection"
// @Failure      422      {object}  api.ErrorResponse  "Vector size mismatch"
// @Router       /v1/collections/search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = config.DefaultTopK
	}
	start := time.Now()
	hits, err := h.userStore(req.UserID).Search(r.Context(), req.CollectionName, req.Vector, limit)
	metrics.CaptureExecutionMetrics("vector_search", time.Since(start))
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	if hits == nil {
		hits = []commonModels.SearchHit{}
	}
	h.writeJsonResponse(w, http.StatusOK, api.SearchResponse{Hits: hits})
}

// Exists godoc
// @Summary      Check whether a collection exists
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.CollectionRequest  true  "Collection"
// @Success      200      {object}  api.ExistsResponse
// @Router       /v1/collections/exists [post]
func (h *Handler) Exists(w http.ResponseWriter, r *http.Request) {
	var req api.CollectionRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	ok, err := h.userStore(req.UserID).CollectionExists(r.Context(), req.CollectionName)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	h.writeJsonResponse(w, http.StatusOK, api.ExistsResponse{Exists: ok})
}

// DeleteCollection godoc
// @Summary      Delete a collection
// @Description  Deleting a collection that does not exist succeeds.
// @Tags         Collections
// @Accept       json
// @Produce      json
// @Param        request  body      api.CollectionRequest  true  "Collection"
// @Success      200      {object}  api.OKResponse
// @Router       /v1/collections/delete [post]
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	var req api.CollectionRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if err := h.userStore(req.UserID).DeleteCollection(r.Context(), req.CollectionName); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}
	h.logger.WithTrace(r.Context()).Info("collection deleted", "user", req.UserID, "collection", req.CollectionName)
	h.writeJsonResponse(w, http.StatusOK, api.OKResponse{Status: "ok"})
}
