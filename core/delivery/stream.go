package delivery

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// ServeRange writes the file at path as video/mp4. Without a Range header the
// whole file is sent with 200. A single "bytes=start-end" range yields 206
// with Content-Range; a range past the end yields 416.
func ServeRange(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
	return nil
}

// ServeAttachment is ServeRange with a download disposition.
func ServeAttachment(w http.ResponseWriter, r *http.Request, path string) error {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	return ServeRange(w, r, path)
}
