package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/akolanti/mirage/internal/adapter"
	"github.com/akolanti/mirage/internal/metrics"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/go-chi/chi/v5"
)

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

var logger = logger_i.NewLogger("middleware")

// Wrap runs trace injection, bearer auth and the per IP rate limit before
// next, and counts the response by route and status.
func Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		re := processRequest(requestResponseStruct{req: r, writer: rec, logger: logger})

		if !handleBadRequest(re) {
			countRequest(r, rec.Status)
			return
		}
		next(rec, re.req)
		countRequest(re.req, rec.Status)
	}
}

func processRequest(re requestResponseStruct) requestResponseStruct {
	re = injectTrace(re)
	re.logger.Debug("request received", "method", re.req.Method, "path", re.req.URL.Path)
	re = authenticate(re)
	if re.badRequest.isBadRequest {
		return re
	}
	return rateLimiter(re)
}

func countRequest(r *http.Request, status int) {
	path := r.URL.Path
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		path = rc.RoutePattern()
	}
	metrics.HttpRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(adapter.BadRequest(message, code)); err != nil {
		logger.Error("error encoding response", "error", err)
	}
}
