package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/pipeline"
)

type generateRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions"`
	TestSteps    string `json:"test_steps"`
	Headless     *bool  `json:"headless"`
	Model        string `json:"model"`
}

func (g generateRequest) steps() string {
	if strings.TrimSpace(g.Instructions) != "" {
		return g.Instructions
	}
	return g.TestSteps
}

type generationResponse struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	GherkinContent string         `json:"gherkin_content"`
	OutputFile     string         `json:"output_file"`
	Timestamp      string         `json:"timestamp"`
	RunID          string         `json:"run_id"`
	Metadata       map[string]any `json:"metadata"`
}

const (
	msgAuto       = "Gherkin scenarios generated successfully"
	msgCustom     = "Custom test steps converted to Gherkin successfully"
	msgCustomFile = "Custom test file converted to Gherkin successfully"
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    Name,
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"health":           "/health",
			"generate":         "/api/generate",
			"auto_generate":    "/api/generate/auto",
			"custom_test":      "/api/generate/custom",
			"custom_test_file": "/api/generate/custom/file",
			"cache_stats":      "/api/cache/stats",
			"cache_clear":      "/api/cache/clear",
			"files":            "/api/files",
			"download_feature": "/api/download/{filename}",
			"usage":            "/api/usage",
			"metrics":          "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"api_key_configured": s.opts.APIKeyConfigured,
		"cache_enabled":      s.cache.Enabled(),
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

// decodeGenerate reads a JSON generation body. Headless defaults to true.
func decodeGenerate(r *http.Request) (models.GenerationRequest, error) {
	var body generateRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return models.GenerationRequest{}, fmt.Errorf("%w: decode body: %v", pipeline.ErrInvalidRequest, err)
	}
	headless := true
	if body.Headless != nil {
		headless = *body.Headless
	}
	return models.GenerationRequest{
		URL:          body.URL,
		Instructions: body.steps(),
		Model:        body.Model,
		Headless:     headless,
	}, nil
}

// handleGenerate picks custom mode when instructions are present and auto otherwise.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Mode = models.ModeAuto
	msg := msgAuto
	if strings.TrimSpace(req.Instructions) != "" {
		req.Mode = models.ModeCustom
		msg = msgCustom
	}
	s.generate(w, r, req, msg, "")
}

func (s *Server) handleGenerateAuto(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Mode = models.ModeAuto
	req.Instructions = ""
	s.generate(w, r, req, msgAuto, "")
}

func (s *Server) handleGenerateCustom(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Mode = models.ModeCustom
	s.generate(w, r, req, msgCustom, "")
}

func (s *Server) handleGenerateCustomFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: parse upload: %v", pipeline.ErrInvalidRequest, err))
		return
	}
	f, hdr, err := r.FormFile("test_file")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: test_file is required", pipeline.ErrInvalidRequest))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read test_file: %v", pipeline.ErrInvalidRequest, err))
		return
	}

	req := models.GenerationRequest{
		URL:          r.FormValue("url"),
		Instructions: string(data),
		Model:        r.FormValue("model"),
		Mode:         models.ModeCustom,
		Headless:     true,
		SourceName:   hdr.Filename,
	}
	s.generate(w, r, req, msgCustomFile, "custom_file")
}

// generate runs req and writes the success envelope. A non-empty
// reportMode replaces the mode recorded in the metadata.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, req models.GenerationRequest, msg, reportMode string) {
	res, err := s.gen.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reportMode != "" {
		res.Metadata["mode"] = reportMode
	}
	writeJSON(w, http.StatusOK, generationResponse{
		Success:        true,
		Message:        msg,
		GherkinContent: res.GherkinText,
		OutputFile:     res.Filename,
		Timestamp:      res.Timestamp.Format(time.RFC3339),
		RunID:          res.RunID,
		Metadata:       res.Metadata,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.cache.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":       s.cache.Enabled(),
		"backend":       st.Backend,
		"entries":       st.Entries,
		"expired":       st.Expired,
		"payload_bytes": st.PayloadBytes,
		"by_kind":       st.ByKind,
		"hits":          st.Hits,
		"misses":        st.Misses,
		"ttl_seconds":   int64(st.TTL / time.Second),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	expiredOnly := false
	if v := r.URL.Query().Get("expired_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: expired_only must be a boolean", pipeline.ErrInvalidRequest))
			return
		}
		expiredOnly = b
	}
	n, err := s.cache.Clear(r.Context(), expiredOnly)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n, "expired_only": expiredOnly})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.writer.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, info, err := s.writer.Open(r.PathValue("filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Filename))
	http.ServeContent(w, r, info.Filename, info.Modified, f)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", pipeline.ErrInvalidRequest))
			return
		}
		limit = n
	}
	out := map[string]any{
		"summary": []models.UsageSummary{},
		"recent":  []models.UsageRecord{},
		"budgets": []models.BudgetStatus{},
	}
	if s.tracker != nil {
		summary, err := s.tracker.Summary(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		recent, err := s.tracker.Recent(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if summary != nil {
			out["summary"] = summary
		}
		if recent != nil {
			out["recent"] = recent
		}
	}
	if id := r.URL.Query().Get("run_id"); id != "" && s.tracker != nil {
		reqs, err := s.tracker.RunRequests(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out["run"] = reqs
	}
	status, err := s.budget.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if status != nil {
		out["budgets"] = status
	}
	writeJSON(w, http.StatusOK, out)
}
