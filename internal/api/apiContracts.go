package api

import (
	"time"

	"github.com/akolanti/mirage/internal/domain/commonModels"
)

// responses--------------------

type ErrorResponse struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"source not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type ListCollectionsResponse struct {
	Collections []string `json:"collections"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type SearchResponse struct {
	Hits []commonModels.SearchHit `json:"hits"`
}

type EmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

type OKResponse struct {
	Status string `json:"status" example:"ok"`
}

type JobResponse struct {
	Id             string         `json:"id" example:"job_cz109"`
	CollectionName string         `json:"collection_name" example:"docs.example.com"`
	Result         Result         `json:"result"`
	Error          *ErrorResponse `json:"error,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time,omitempty"`
}

type Result struct {
	Status  string `json:"status"`
	Step    string `json:"step,omitempty"`
	Pages   int    `json:"pages,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	StatusURL string `json:"status_url"`
}

// requests---------------------

type UserRequest struct {
	UserID string `json:"user_id" validate:"required,max=64,printascii"`
}

type CollectionRequest struct {
	UserID         string `json:"user_id" validate:"required,max=64,printascii"`
	CollectionName string `json:"collection_name" validate:"required,max=120"`
}

type CreateCollectionRequest struct {
	UserID         string               `json:"user_id" validate:"required,max=64,printascii"`
	CollectionName string               `json:"collection_name" validate:"required,max=120"`
	VectorSize     uint64               `json:"vector_size" validate:"required,gt=0"`
	Points         []commonModels.Point `json:"points" validate:"dive"`
}

type UpsertRequest struct {
	UserID         string               `json:"user_id" validate:"required,max=64,printascii"`
	CollectionName string               `json:"collection_name" validate:"required,max=120"`
	Points         []commonModels.Point `json:"points" validate:"required,min=1"`
}

type SearchRequest struct {
	UserID         string    `json:"user_id" validate:"required,max=64,printascii"`
	CollectionName string    `json:"collection_name" validate:"required,max=120"`
	Vector         []float32 `json:"vector" validate:"required,min=1"`
	Limit          int       `json:"limit" validate:"gte=0,lte=100"`
}

type EmbedRequest struct {
	Texts []string `json:"texts" validate:"required,min=1,max=2048"`
}

type ChatStreamRequest struct {
	Model       string                  `json:"model"`
	Messages    []commonModels.ChatTurn `json:"messages" validate:"required,min=1"`
	Temperature float64                 `json:"temperature" validate:"gte=0,lte=2"`
}

type IndexURLRequest struct {
	UserID         string `json:"user_id" validate:"required,max=64,printascii"`
	CollectionName string `json:"collection_name" validate:"required,max=120"`
	URL            string `json:"url" validate:"required,url"`
	MaxPages       int    `json:"max_pages" validate:"gte=0,lte=500"`
}
