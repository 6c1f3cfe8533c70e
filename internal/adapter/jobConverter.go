package adapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/akolanti/mirage/internal/api"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/domain/jobModel"
)

func ToInitJobResponse(id string) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        id,
		StatusURL: fmt.Sprintf("/v1/status/%s", id),
	}
}

func ToAPIResponse(job jobModel.Job) api.JobResponse {
	var errorPtr *api.ErrorResponse
	if job.Error.Message != "" || job.Error.Code != 0 {
		errorPtr = &api.ErrorResponse{
			Code:    job.Error.Code,
			Message: job.Error.Message,
			Retry:   job.Error.Retry,
		}
	}

	return api.JobResponse{
		Id:             job.Id,
		CollectionName: job.JobPayload.CollectionName,
		StartTime:      job.CreatedTime,
		EndTime:        job.EndTime,
		Error:          errorPtr,
		Result: api.Result{
			Status:  string(job.Status),
			Step:    string(job.CurrentStep),
			Pages:   job.JobPayload.Pages,
			Chunks:  job.JobPayload.Chunks,
			Skipped: job.JobPayload.Skipped,
		},
	}
}

func BadRequest(message string, code int) api.ErrorResponse {
	return api.ErrorResponse{Code: code, Message: message, Retry: false}
}

// ToErrorResponse maps a domain error onto the status the CLI client
// understands.
func ToErrorResponse(err error) api.ErrorResponse {
	code, retry := StatusFor(err)
	return api.ErrorResponse{Code: code, Message: err.Error(), Retry: retry}
}

func StatusFor(err error) (code int, retry bool) {
	switch {
	case errors.Is(err, commonModels.ErrSourceNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, commonModels.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity, false
	case errors.Is(err, commonModels.ErrEmptyCollectionName):
		return http.StatusBadRequest, false
	case errors.Is(err, commonModels.ErrUnauthorized):
		return http.StatusUnauthorized, false
	case errors.Is(err, commonModels.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, true
	}
}
