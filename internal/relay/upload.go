package relay

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/blob"
)

// handleBlobUpload receives a multipart form (uploadUrl, contentType, file)
// and PUTs the file to the signed URL.
func (s *Server) handleBlobUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.log.Warn("parsing upload form", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid upload form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	uploadURL := r.FormValue("uploadUrl")
	if uploadURL == "" {
		writeError(w, http.StatusBadRequest, "Missing uploadUrl")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	contentType := r.FormValue("contentType")
	if contentType == "" {
		contentType = header.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	blobURL := blob.StripQuery(uploadURL)
	log := s.log.With(zap.String("blob", blobURL), zap.Int64("size", header.Size))

	err = blob.Put(r.Context(), s.storage, uploadURL, contentType, file, header.Size)
	var perr *blob.PutError
	switch {
	case errors.As(err, &perr):
		log.Warn("blob upload rejected", zap.Int("status", perr.Status), zap.String("body", perr.Body))
		writeError(w, perr.Status, "Blob upload failed")
		return
	case err != nil:
		log.Warn("blob upload proxy error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Blob upload proxy failed")
		return
	}
	log.Info("blob uploaded")
	writeJSON(w, http.StatusOK, map[string]string{"blobUrl": blobURL})
}
