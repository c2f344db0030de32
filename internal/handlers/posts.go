package handlers

import (
	"net/http"

	"media-manager/internal/manager"
)

// PostMedia lists the media linked to a post: ?type= filters by link type.
func (h *Handlers) PostMedia(w http.ResponseWriter, r *http.Request) {
	postID, ok := idVar(w, r, "post")
	if !ok {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := m.PostMedia(r.Context(), postID, r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []manager.Item{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, items)
}

// LinkMedia attaches an indexed file to a post.
func (h *Handlers) LinkMedia(w http.ResponseWriter, r *http.Request) {
	postID, ok := idVar(w, r, "post")
	if !ok {
		return
	}
	mediaID, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := m.LinkToPost(r.Context(), postID, mediaID, r.URL.Query().Get("type")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatusCode(w, http.StatusCreated, map[string]string{"status": "linked"})
}

// UnlinkMedia detaches an indexed file from a post. Without ?type= links
// of every type are removed.
func (h *Handlers) UnlinkMedia(w http.ResponseWriter, r *http.Request) {
	postID, ok := idVar(w, r, "post")
	if !ok {
		return
	}
	mediaID, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := m.UnlinkFromPost(r.Context(), postID, mediaID, r.URL.Query().Get("type")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "unlinked")
}
