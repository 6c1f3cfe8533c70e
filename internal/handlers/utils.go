package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/akolanti/mirage/internal/adapter"
	"github.com/akolanti/mirage/internal/config"
	"github.com/go-playground/validator/v10"
)

func (h *Handler) writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// status is already out
		h.logger.Error("error encoding response", "error", err)
	}
}

func (h *Handler) WriteErrorResponse(w http.ResponseWriter, httpCode int, message string) {
	h.writeJsonResponse(w, httpCode, adapter.BadRequest(message, httpCode))
}

// writeDomainError picks the status from the error kind.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	res := adapter.ToErrorResponse(err)
	if res.Code >= http.StatusInternalServerError {
		h.logger.WithTrace(ctx).Error("request failed", "error", err)
	} else {
		h.logger.WithTrace(ctx).Debug("request rejected", "error", err)
	}
	h.writeJsonResponse(w, res.Code, res)
}

// decodeRequest reads a JSON body into dst and runs the validate tags. On
// failure the 400 has been written and false is returned.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !validateContext(r.Context()) {
		h.logger.WithTrace(r.Context()).Warn("request context closed", "remote", r.RemoteAddr)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WithTrace(r.Context()).Warn("bad request body", "path", r.URL.Path, "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.WriteErrorResponse(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		if f.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", f.Field(), f.Tag(), f.Param())
		}
		return fmt.Sprintf("%s failed %s", f.Field(), f.Tag())
	}
	return err.Error()
}

func validateContext(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}
