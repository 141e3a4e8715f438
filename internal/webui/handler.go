package webui

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mikalv/Pure64/internal/diskmanager"
	"github.com/mikalv/Pure64/internal/errdefs"
)

// DefaultMaxUploadSize applies when New is given zero.
const DefaultMaxUploadSize = 100 * 1024 * 1024

// Handler manages HTTP requests against one image
type Handler struct {
	diskManager   *diskmanager.Manager
	templates     *template.Template
	maxUploadSize int64
}

// New creates a new web UI handler. Uploads larger than maxUploadSize bytes
// are refused.
func New(dm *diskmanager.Manager, maxUploadSize int64) (*Handler, error) {
	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}

	return &Handler{
		diskManager:   dm,
		templates:     tmpl,
		maxUploadSize: maxUploadSize,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Error writing response: %v", err)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrExist):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("Request failed: %v", err)
	} else {
		log.Debugf("Request rejected: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// queryPath returns the named query parameter, defaulting to the root
func queryPath(r *http.Request, name string) string {
	p := r.URL.Query().Get(name)
	if p == "" {
		return "/"
	}
	return p
}

type indexData struct {
	Entries []diskmanager.DirEntry
}

// IndexHandler serves the upload page with a listing of the root directory
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.diskManager.ListDir("/")
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "index", indexData{Entries: entries}); err != nil {
		log.Errorf("Error rendering template: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HealthHandler provides a health check endpoint
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type listResponse struct {
	Path    string                 `json:"path"`
	Entries []diskmanager.DirEntry `json:"entries"`
}

// ListHandler lists a directory of the image
func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	dir := queryPath(r, "path")
	entries, err := h.diskManager.ListDir(dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Path: dir, Entries: entries})
}

// CatHandler streams the contents of a file
func (h *Handler) CatHandler(w http.ResponseWriter, r *http.Request) {
	rc, err := h.diskManager.ReadFile(queryPath(r, "path"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warnf("Error streaming file: %v", err)
	}
}

type successResponse struct {
	Success        bool   `json:"success"`
	Path           string `json:"path,omitempty"`
	Size           int64  `json:"size,omitempty"`
	FilesExtracted int    `json:"filesExtracted,omitempty"`
}

// MkdirHandler creates a directory and its parents
func (h *Handler) MkdirHandler(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		writeError(w, fmt.Errorf("%w: missing path", errdefs.ErrInvalidArgument))
		return
	}
	err := h.diskManager.BeginTransaction(func(tx *diskmanager.Transaction) error {
		return tx.MakeDir(dir)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	log.Infof("Created directory %s", dir)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Path: dir})
}

// RemoveHandler deletes a file or an empty directory
func (h *Handler) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, fmt.Errorf("%w: missing path", errdefs.ErrInvalidArgument))
		return
	}
	err := h.diskManager.BeginTransaction(func(tx *diskmanager.Transaction) error {
		return tx.Remove(p)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	log.Infof("Removed %s", p)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Path: p})
}

// UploadHandler stores the first "file" part of a multipart upload in the
// directory named by the dir query parameter. Zip archives are extracted.
func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	dir := queryPath(r, "dir")

	reader, err := r.MultipartReader()
	if err != nil {
		log.Debugf("Error creating multipart reader: %v", err)
		http.Error(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Debugf("Error reading multipart part: %v", err)
			http.Error(w, "Error reading upload", http.StatusBadRequest)
			return
		}

		// Only process file parts
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		// Base drops any directories the client put in the name
		filename := path.Base(strings.ReplaceAll(part.FileName(), "\\", "/"))
		if filename == "" || filename == "." || filename == "/" {
			part.Close()
			http.Error(w, "Empty filename", http.StatusBadRequest)
			return
		}

		data, err := io.ReadAll(bufio.NewReaderSize(part, 1024*1024))
		part.Close()
		if err != nil {
			log.Debugf("Error reading upload %s: %v", filename, err)
			http.Error(w, "Error reading upload", http.StatusRequestEntityTooLarge)
			return
		}

		if isZipFile(filename) {
			log.Debugf("Detected zip file %s, extracting contents", filename)
			n, size, err := h.extractZip(data, dir)
			if err != nil {
				writeError(w, err)
				return
			}
			log.Infof("Extracted %d files from %s (%d bytes total)", n, filename, size)
			writeJSON(w, http.StatusOK, successResponse{Success: true, Path: path.Join(dir, filename), Size: size, FilesExtracted: n})
			return
		}

		filePath := path.Join(dir, filename)
		err = h.diskManager.BeginTransaction(func(tx *diskmanager.Transaction) error {
			return tx.WriteFile(filePath, bytes.NewReader(data), int64(len(data)))
		})
		if err != nil {
			writeError(w, err)
			return
		}
		log.Infof("Uploaded %s (%d bytes)", filePath, len(data))
		writeJSON(w, http.StatusOK, successResponse{Success: true, Path: filePath, Size: int64(len(data))})
		return
	}

	http.Error(w, "No file provided", http.StatusBadRequest)
}

// isZipFile checks if a filename has a .zip extension
func isZipFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".zip")
}

// hasParentElement reports whether any element of a zip entry name is "..".
func hasParentElement(name string) bool {
	for _, elem := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
		if elem == ".." {
			return true
		}
	}
	return false
}

// extractZip writes every entry of a zip archive below dir in a single
// transaction. Returns the number of files extracted and their total size.
func (h *Handler) extractZip(data []byte, dir string) (int, int64, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: failed to open zip file: %v", errdefs.ErrInvalidArgument, err)
	}

	filesExtracted := 0
	totalSize := int64(0)

	err = h.diskManager.BeginTransaction(func(tx *diskmanager.Transaction) error {
		filesExtracted, totalSize = 0, 0
		if err := tx.MakeDir(dir); err != nil {
			return err
		}
		for _, zipFile := range zipReader.File {
			if hasParentElement(zipFile.Name) {
				log.Warnf("Skipping potentially malicious path in zip: %s", zipFile.Name)
				continue
			}
			target := path.Join(dir, path.Clean("/"+zipFile.Name))

			if zipFile.FileInfo().IsDir() {
				if err := tx.MakeDir(target); err != nil {
					return err
				}
				continue
			}

			// the zip reader refuses entries that inflate past their
			// declared size, so the declared sizes bound the total
			if zipFile.UncompressedSize64 > uint64(h.maxUploadSize-totalSize) {
				return fmt.Errorf("%w: zip contents exceed the upload limit of %d bytes",
					errdefs.ErrInvalidArgument, h.maxUploadSize)
			}

			rc, err := zipFile.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s in zip: %w", zipFile.Name, err)
			}
			err = tx.WriteFile(target, rc, int64(zipFile.UncompressedSize64))
			rc.Close()
			if err != nil {
				return fmt.Errorf("failed to write file %s: %w", zipFile.Name, err)
			}

			filesExtracted++
			totalSize += int64(zipFile.UncompressedSize64)
			log.Debugf("Extracted: %s (%d bytes)", target, zipFile.UncompressedSize64)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return filesExtracted, totalSize, nil
}

// ClearFilesHandler empties the image by formatting it again
func (h *Handler) ClearFilesHandler(w http.ResponseWriter, r *http.Request) {
	log.Infof("Clearing all files from disk")

	if _, err := h.diskManager.Format(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
