package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/request"
	"github.com/sirrobot01/zipscout/pkg/fetch"
	"github.com/sirrobot01/zipscout/pkg/report"
	"github.com/sirrobot01/zipscout/pkg/version"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

type inspectRequest struct {
	URL string `json:"url"`
}

type inspectResponse struct {
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
	ContentLength int64  `json:"content_length"`
	EntryCount    int    `json:"entry_count"`
	TotalSize     int64  `json:"total_size"`
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		request.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		request.JSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	cfg := config.Get()
	ins := zipmeta.New(req.URL, zipmeta.Options{
		Step:        cfg.GetStep(),
		MaxAttempts: cfg.Locator.MaxAttempts,
		Transport:   fetch.New(fetch.OptionsFromConfig(cfg.Fetch)),
	})
	if err := ins.Inspect(r.Context()); err != nil {
		s.logger.Error().Err(err).Str("url", req.URL).Msg("Inspection failed")
		status := http.StatusBadGateway
		if errors.Is(err, zipmeta.ErrInvalidFormat) {
			status = http.StatusUnprocessableEntity
		}
		request.JSONError(w, err.Error(), status)
		return
	}
	s.addSession(ins)

	request.JSONResponse(w, inspectResponse{
		SessionID:     ins.ID(),
		URL:           ins.URL(),
		ContentLength: ins.ContentLength(),
		EntryCount:    ins.Structure().Len(),
		TotalSize:     ins.Structure().TotalSize(),
	}, http.StatusOK)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	ins := s.session(chi.URLParam(r, "id"))
	if ins == nil || ins.Structure() == nil {
		request.JSONError(w, "session not found", http.StatusNotFound)
		return
	}
	request.JSONResponse(w, ins.Structure().Entries(), http.StatusOK)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	ins := s.session(chi.URLParam(r, "id"))
	if ins == nil || ins.Structure() == nil {
		request.JSONError(w, "session not found", http.StatusNotFound)
		return
	}
	request.JSONResponse(w, zipmeta.BuildTree(ins.Structure().Entries()), http.StatusOK)
}

type reportRequest struct {
	Format string `json:"format"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ins := s.session(chi.URLParam(r, "id"))
	if ins == nil || ins.Structure() == nil {
		request.JSONError(w, "session not found", http.StatusNotFound)
		return
	}

	cfg := config.Get()
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Format == "" {
		req.Format = cfg.Report.Format
	}
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		request.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// each session gets its own subdirectory so parallel reports never
	// trample each other's combined file
	combined, err := report.Generate(r.Context(), ins.Structure().Entries(), report.Options{
		OutputDir: filepath.Join(cfg.Report.OutputDir, ins.ID()),
		Format:    format,
		ShardSize: cfg.Report.ShardSize,
		Workers:   cfg.Report.Workers,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Report generation failed")
		request.JSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	request.JSONResponse(w, map[string]string{"path": combined}, http.StatusOK)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	request.JSONResponse(w, version.GetInfo(), http.StatusOK)
}
