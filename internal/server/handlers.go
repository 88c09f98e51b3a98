package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.LoggerFromContext(r.Context()).Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	answer, err := s.engine.Answer(r.Context(), s.Index(), req)
	if err != nil {
		s.respondFailure(w, r, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

type buildRequest struct {
	Documents []models.DocumentInput `json:"documents"`
}

// handleBuild rebuilds the index from multipart uploads (field "files"), from JSON
// documents, or, with an empty body, from the configured sources.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	docs, err := s.buildInputs(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var report *models.BuildReport
	if docs == nil {
		report, err = s.RebuildFromSources(r.Context())
	} else {
		report, err = s.Rebuild(r.Context(), docs)
	}
	if err != nil {
		s.respondFailure(w, r, "build failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, report)
}

// buildInputs returns nil when the request names no documents.
func (s *Server) buildInputs(w http.ResponseWriter, r *http.Request) ([]models.DocumentInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			return nil, errors.New(`no files in form field "files"`)
		}
		docs := make([]models.DocumentInput, 0, len(files))
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
			}
			content, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
			}
			docs = append(docs, models.DocumentInput{
				ID:       fileid.UploadID(),
				Filename: fh.Filename,
				Content:  content,
			})
		}
		return docs, nil
	case "application/json":
		var req buildRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, s.config.Server.MaxUploadBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.New("invalid request body")
		}
		if len(req.Documents) == 0 {
			return nil, nil
		}
		for i := range req.Documents {
			if req.Documents[i].Filename == "" {
				return nil, fmt.Errorf("document %d has no filename", i)
			}
			if req.Documents[i].ID == "" {
				req.Documents[i].ID = fileid.UploadID()
			}
		}
		return req.Documents, nil
	}
	return nil, nil
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	if s.keyword == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword index not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}
	passages, err := s.keyword.Search(r.Context(), q, limit, &keyword.SearchOptions{
		FilenameBoost: 2,
		FuzzyEnabled:  true,
	})
	if err != nil {
		s.respondFailure(w, r, "passage lookup failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"passages": passages})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit := 0, 50
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondFailure(w, r, "list documents failed", err)
		return
	}
	total, err := s.storage.CountDocuments(r.Context())
	if err != nil {
		s.respondFailure(w, r, "count documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": total})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// handleGetChunk returns the metadata record stored for a vector index position.
func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.respondError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	record, err := s.storage.GetChunk(r.Context(), index)
	if err != nil {
		s.respondFailure(w, r, "get chunk failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "index_loaded": s.Index() != nil}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := cli.CollectStatus(r.Context(), s.config, s.storage, s.Index())
	if err != nil {
		s.respondFailure(w, r, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var se *models.SourceError
	switch {
	case errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoIndexLoaded):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyIndex), errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embedding.ErrProvider), errors.Is(err, generation.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	logger := utils.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.Int("status", status))
	} else {
		logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
