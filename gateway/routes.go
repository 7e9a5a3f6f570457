package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parsegate/parsegate/fault"
)

// maxUploadBytes caps multipart uploads (64 MiB, matching the largest
// back-end response buffer).
const maxUploadBytes = 64 << 20

// Routes returns the HTTP router for the service.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/convert", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("OK"))
		})
		r.Post("/odt", s.handleConvertODT)
		r.Post("/pdf", s.handleConvertPDF)
		r.Post("/images", s.handleConvertImages)
	})

	r.Post("/api/parse/parse", s.handleParse)

	return r
}

// readUpload extracts the "file" part of a multipart upload. Empty uploads
// and missing parts fail with fault.ErrBadRequest.
func readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("%w: invalid multipart body: %v", fault.ErrBadRequest, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing file part", fault.ErrBadRequest)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading upload: %v", fault.ErrBadRequest, err)
	}
	if len(content) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", fault.ErrBadRequest)
	}
	if len(content) > maxUploadBytes {
		return nil, "", fmt.Errorf("%w: upload exceeds %d bytes", fault.ErrBadRequest, maxUploadBytes)
	}
	return content, header.Filename, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the wire taxonomy: status from the fault
// sentinel chain, body {"error": KIND, "message": detail}.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := fault.Status(err)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error":   fault.Kind(err),
		"message": err.Error(),
	})
}
