package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/pario-ai/gherkit/pkg/budget"
	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/pipeline"
	"github.com/pario-ai/gherkit/pkg/scenario"
)

type errorBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	State     string `json:"state,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// classify maps an error to a status code and error type.
func classify(err error) (int, string) {
	var (
		extractErr   *models.ExtractionError
		transportErr *models.LLMTransportError
		responseErr  *models.LLMResponseError
	)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, budget.ErrBudgetExceeded):
		return http.StatusTooManyRequests, "budget_exceeded"
	case errors.As(err, &extractErr):
		return http.StatusBadGateway, "extraction_error"
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, "llm_transport_error"
	case errors.As(err, &responseErr):
		return http.StatusBadGateway, "llm_response_error"
	case errors.Is(err, scenario.ErrInvalidName), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, typ := classify(err)
	body := errorBody{
		Message:   err.Error(),
		ErrorType: typ,
		RequestID: RequestIDFromContext(r.Context()),
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body.State = string(se.State)
	}
	if code == http.StatusNotFound {
		body.Message = "File not found"
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("request_id", body.RequestID), zap.String("error_type", typ), zap.Error(err))
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
