package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"allskyd/internal/catalog"
)

type imageResponse struct {
	Filename     string  `json:"filename"`
	URL          string  `json:"url"`
	Timestamp    *string `json:"timestamp,omitempty"`
	ExposureMs   *int    `json:"exposure_ms,omitempty"`
	SizeBytes    int64   `json:"size_bytes"`
	SessionLabel string  `json:"session"`
}

type deleteSessionsRequest struct {
	Sessions []string `json:"sessions"`
}

func toImageResponse(record catalog.Record) imageResponse {
	out := imageResponse{
		Filename:     record.Filename,
		URL:          "/files/" + record.Filename,
		ExposureMs:   record.ExposureMs,
		SizeBytes:    record.SizeBytes,
		SessionLabel: record.SessionLabel,
	}
	if record.Timestamp != nil {
		ts := record.Timestamp.Format(time.RFC3339)
		out.Timestamp = &ts
	}
	return out
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	records, err := s.catalog.ScanAll()
	if err != nil {
		s.logger.Error("scan image dir", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to scan images")
		return
	}

	out := make([]imageResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toImageResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": out})
}

func (s *Server) handleLatestImage(w http.ResponseWriter, r *http.Request) {
	records, err := s.catalog.ScanAll()
	if err != nil {
		s.logger.Error("scan image dir", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to scan images")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no images captured yet")
		return
	}
	writeJSON(w, http.StatusOK, toImageResponse(records[0]))
}

func (s *Server) handleDeleteSessions(w http.ResponseWriter, r *http.Request) {
	var req deleteSessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(req.Sessions) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "sessions is required")
		return
	}

	result, err := s.catalog.DeleteBySessionLabels(req.Sessions)
	if errors.Is(err, catalog.ErrNoImages) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("delete sessions", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to delete sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    result.Status,
		"deleted":   result.DeletedCount,
		"sessions":  result.DeletedLabels,
		"preserved": result.PreservedFilename,
		"failed":    result.Failed,
	})
}
