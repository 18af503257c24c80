package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/markdave123-py/parley/internal/services"
)

type UploadHandler struct {
	uploads *services.UploadService
}

func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

func (h *UploadHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, ok := readUpload(w, r, services.MaxLogoBytes)
	if !ok {
		return
	}
	s, err := h.uploads.UploadLogo(r.Context(), filename, contentType, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logo_path": s.Branding.LogoPath})
}

func (h *UploadHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	data, filename, contentType, ok := readUpload(w, r, services.MaxThumbnailBytes)
	if !ok {
		return
	}
	agentID := r.FormValue("agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agentId is required")
		return
	}
	a, err := h.uploads.UploadThumbnail(r.Context(), agentID, filename, contentType, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// readUpload pulls the multipart "file" field, reading at most limit+1 bytes so
// oversize files are rejected by the service with a clear message.
func readUpload(w http.ResponseWriter, r *http.Request, limit int) ([]byte, string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)+1<<20)
	if err := r.ParseMultipartForm(int64(limit)); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, "", "", false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return nil, "", "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(limit)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return nil, "", "", false
	}
	return data, header.Filename, header.Header.Get("Content-Type"), true
}
