package handlers

import (
	"strings"

	"github.com/gorilla/mux"
)

// Router registers every endpoint. mediaURL is the prefix under which files
// and thumbnails are served.
func (h *Handlers) Router(mediaURL string) *mux.Router {
	r := mux.NewRouter()

	// Health and info endpoints
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/whoami", h.WhoAmI).Methods("GET")

	// Media
	api.HandleFunc("/media", h.ListMedia).Methods("GET")
	api.HandleFunc("/media", h.DeleteMedia).Methods("DELETE")
	api.HandleFunc("/media/upload", h.UploadMedia).Methods("POST")
	api.HandleFunc("/media/dir", h.MakeDir).Methods("POST")
	api.HandleFunc("/media/move", h.MoveMedia).Methods("POST")
	api.HandleFunc("/media/search", h.SearchMedia).Methods("GET")
	api.HandleFunc("/media/rebuild", h.RebuildIndex).Methods("POST")
	api.HandleFunc("/media/thumbnails", h.RecreateThumbnails).Methods("POST")
	api.HandleFunc("/media/{id:[0-9]+}", h.GetMedia).Methods("GET")
	api.HandleFunc("/media/{id:[0-9]+}", h.UpdateMedia).Methods("PUT")
	api.HandleFunc("/media/{id:[0-9]+}/zip", h.PeekZip).Methods("GET")
	api.HandleFunc("/media/{id:[0-9]+}/zip", h.InflateZip).Methods("POST")
	api.HandleFunc("/media/{id:[0-9]+}/posts", h.MediaPosts).Methods("GET")

	// Posts
	api.HandleFunc("/posts/{post:[0-9]+}/media", h.PostMedia).Methods("GET")
	api.HandleFunc("/posts/{post:[0-9]+}/media/{id:[0-9]+}", h.LinkMedia).Methods("POST")
	api.HandleFunc("/posts/{post:[0-9]+}/media/{id:[0-9]+}", h.UnlinkMedia).Methods("DELETE")

	// Files and derived images
	prefix := "/" + strings.Trim(mediaURL, "/")
	if prefix == "/" {
		prefix = "/media"
	}
	r.HandleFunc(prefix+"/{path:.+}", h.ServeMedia).Methods("GET", "HEAD")

	return r
}
