package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/hyperjump/medsage/internal/models"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	// multipartOverhead is allowed on top of the upload size limit for form framing.
	multipartOverhead = 1 << 20
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.Upload.MaxBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	filename := filepath.Base(header.Filename)
	s.logger.Debug("upload request", zap.String("file", filename), zap.Int("bytes", len(content)))
	result, err := s.ingestor.Upload(r.Context(), &models.Document{Filename: filename, Content: content})
	if err != nil {
		s.fail(w, "upload failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question), zap.Int("n_results", req.NResults))
	answer, err := s.engine.Ask(r.Context(), &req)
	if err != nil {
		s.fail(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	var req models.ConsultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	diagnosis, err := s.engine.Consult(r.Context(), &req)
	if err != nil {
		s.fail(w, "consult failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, diagnosis)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.fail(w, "clear failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	ctx := r.Context()
	docs, err := s.ledger.ListUploads(ctx, offset, limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	total, err := s.ledger.CountUploads(ctx)
	if err != nil {
		s.fail(w, "count documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.UploadRecord{}
	}
	s.respondJSON(w, http.StatusOK, models.UploadList{Documents: docs, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context())
	if err != nil {
		s.fail(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// fail maps rejections to 400 and everything else to 500.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, models.ErrRejected) {
		s.logger.Info(msg, zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(msg, zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
