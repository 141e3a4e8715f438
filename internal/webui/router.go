package webui

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Router registers every route of the web UI.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.IndexHandler).Methods("GET")
	r.HandleFunc("/api/health", h.HealthHandler).Methods("GET")
	r.HandleFunc("/api/ls", h.ListHandler).Methods("GET")
	r.HandleFunc("/api/cat", h.CatHandler).Methods("GET")
	r.HandleFunc("/api/mkdir", h.MkdirHandler).Methods("POST")
	r.HandleFunc("/api/upload", h.UploadHandler).Methods("POST")
	r.HandleFunc("/api/rm", h.RemoveHandler).Methods("DELETE")
	r.HandleFunc("/api/clear", h.ClearFilesHandler).Methods("POST")
	return r
}

// NewServerHandler wraps the routes in CORS handling.
func NewServerHandler(h *Handler, opts cors.Options) http.Handler {
	return cors.New(opts).Handler(h.Router())
}
