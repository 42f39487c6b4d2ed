package api

import (
	"io"
	"net/http"
	"strings"
)

const maxImageSize = 10 << 20

// POST /api/scan - read a medicine label photo, as multipart field "image"
// or the raw request body
func (s *Server) scanLabel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		jsonError(w, "label scanning is not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	var image []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, ferr := r.FormFile("image")
		if ferr != nil {
			jsonError(w, "image field is required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		image, err = io.ReadAll(file)
	} else {
		image, err = io.ReadAll(r.Body)
	}
	if err != nil {
		jsonError(w, "could not read image", http.StatusBadRequest)
		return
	}

	info, err := s.deps.Scanner.Scan(r.Context(), actor(r), image)
	if err != nil {
		s.fail(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, info)
}
