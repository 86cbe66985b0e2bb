package handlers

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/bloghub/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
)

// ServeUpload streams a stored object back to the client so the
// /uploads/<key> references handed out by the upload endpoint resolve
// regardless of which storage backend holds the file.
func ServeUpload(st *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		object, err := st.Get(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		defer object.Close()

		if contentType := mime.TypeByExtension(filepath.Ext(key)); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = io.Copy(w, object)
	}
}
