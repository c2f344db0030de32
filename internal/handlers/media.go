package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-manager/internal/auth"
	"media-manager/internal/database"
	"media-manager/internal/logging"
	"media-manager/internal/manager"
	"media-manager/internal/mediaerr"
	"media-manager/internal/mediatypes"
	"media-manager/internal/metrics"
)

// ListMedia lists a directory: ?dir=&type=&sort=&order=
func (h *Handlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	if dir := q.Get("dir"); dir != "" {
		if err := m.ChangeDirectory(dir); err != nil {
			writeError(w, r, err)
			return
		}
	}
	m.SetSort(manager.SortSpec{
		Field: mediatypes.ParseSortField(q.Get("sort")),
		Order: mediatypes.ParseSortOrder(q.Get("order")),
	})

	listing, err := m.List(r.Context(), q.Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, listing)
}

// GetMedia returns one indexed file.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := m.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, item)
}

// UploadMedia stores the multipart field "file" in the form directory
// "dir" and indexes it. Optional fields: title, private, overwrite.
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		writeJSONError(w, "missing file name", http.StatusBadRequest)
		return
	}
	dest := path.Join(r.FormValue("dir"), name)
	overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))
	private, _ := strconv.ParseBool(r.FormValue("private"))

	tmp, err := os.CreateTemp("", "media-upload-*")
	if err != nil {
		writeError(w, r, mediaerr.E("upload", dest, mediaerr.ErrWriteFailed, err))
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, copyErr := io.Copy(tmp, file)
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		writeError(w, r, mediaerr.E("upload", dest, mediaerr.ErrWriteFailed, copyErr))
		return
	}

	ctx := r.Context()
	if _, err := m.UploadFile(ctx, tmpPath, dest, overwrite); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := m.CreateFile(ctx, dest, manager.CreateOptions{
		Title:   r.FormValue("title"),
		Private: private,
		Force:   overwrite,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := m.GetFile(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.Info("Uploaded %s (#%d, %d bytes)", dest, id, header.Size)
	writeJSONStatusCode(w, http.StatusCreated, item)
}

// UpdateRequest holds the editable fields of PUT /api/media/{id}. Absent
// fields keep their current value.
type UpdateRequest struct {
	Path       *string           `json:"path"`
	Title      *string           `json:"title"`
	Private    *bool             `json:"private"`
	CapturedAt *time.Time        `json:"capturedAt"`
	Metadata   database.Metadata `json:"metadata"`
}

// UpdateMedia edits or renames an indexed file.
func (h *Handlers) UpdateMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	old, err := m.GetFile(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upd := *old
	if req.Path != nil {
		upd.RelPath = *req.Path
	}
	if req.Title != nil {
		upd.Title = *req.Title
	}
	if req.Private != nil {
		upd.Private = *req.Private
	}
	if req.CapturedAt != nil {
		upd.CapturedAt = *req.CapturedAt
	}
	upd.Metadata = req.Metadata

	if err := m.UpdateFile(ctx, old, &upd); err != nil {
		writeError(w, r, err)
		return
	}
	item, err := m.GetFile(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, item)
}

// DeleteMedia removes the file or empty directory ?path=
func (h *Handlers) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeJSONError(w, "missing path", http.StatusBadRequest)
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := m.RemoveItem(r.Context(), rel); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// PathRequest names one root-relative path.
type PathRequest struct {
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

// MakeDir creates a directory.
func (h *Handlers) MakeDir(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := m.MakeDir(r.Context(), req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatusCode(w, http.StatusCreated, map[string]string{"path": req.Path})
}

// MoveRequest describes POST /api/media/move.
type MoveRequest struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Directory bool   `json:"directory"`
}

// MoveMedia moves a file, or with "directory" set a whole directory.
func (h *Handlers) MoveMedia(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Src == "" || req.Dst == "" {
		writeJSONError(w, "src and dst are required", http.StatusBadRequest)
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Directory {
		err = m.MoveDirectory(r.Context(), req.Src, req.Dst)
	} else {
		err = moveFile(r.Context(), m, req.Src, req.Dst)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "moved")
}

// moveFile renames an indexed file through UpdateFile so its row follows.
// Unindexed files are moved on disk only.
func moveFile(ctx context.Context, m *manager.Manager, src, dst string) error {
	it, err := m.Lookup(ctx, src)
	if errors.Is(err, mediaerr.ErrNotFoundInIndex) {
		return m.MoveFile(ctx, src, dst)
	}
	if err != nil {
		return err
	}
	return m.UpdateFile(ctx, it, &manager.Item{RelPath: dst, Private: it.Private})
}

// SearchMedia matches ?q= against titles and file names.
func (h *Handlers) SearchMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := m.Search(r.Context(), r.URL.Query().Get("q"))
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

// RebuildRequest describes POST /api/media/rebuild.
type RebuildRequest struct {
	Dir  string `json:"dir"`
	Wait bool   `json:"wait"`
}

// RebuildIndex reconciles a directory tree with the index. Without "wait"
// the rebuild runs in the background and 202 is returned.
func (h *Handlers) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Dir == "" {
		req.Dir = "."
	}

	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, errUnauthenticated)
		return
	}
	if !p.IsSuperAdmin() {
		writeError(w, r, mediaerr.E("rebuild", req.Dir, mediaerr.ErrPermissionDenied, nil))
		return
	}
	m := manager.New(h.svc, p, p)
	if err := m.ChangeDirectory(req.Dir); err != nil {
		writeError(w, r, err)
		return
	}

	if !req.Wait {
		h.indexer.TriggerRebuild(req.Dir)
		writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "started", "dir": req.Dir})
		return
	}

	metrics.RebuildTriggersTotal.WithLabelValues("manual").Inc()
	if err := m.Rebuild(r.Context(), "."); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "complete")
}

// PeekZip lists the entries of an indexed archive.
func (h *Handlers) PeekZip(w http.ResponseWriter, r *http.Request) {
	m, item, ok := h.itemFor(w, r)
	if !ok {
		return
	}
	entries, err := m.PeekZip(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{"entries": entries})
}

// InflateRequest describes POST /api/media/{id}/zip.
type InflateRequest struct {
	CreateSubdir *bool `json:"createSubdir"`
}

// InflateResponse reports where an archive was extracted. Warning is set
// when some entries were skipped or kept their original names.
type InflateResponse struct {
	Dir     string `json:"dir"`
	Warning string `json:"warning,omitempty"`
}

// InflateZip extracts an indexed archive next to itself.
func (h *Handlers) InflateZip(w http.ResponseWriter, r *http.Request) {
	var req InflateRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	createSubdir := req.CreateSubdir == nil || *req.CreateSubdir

	m, item, ok := h.itemFor(w, r)
	if !ok {
		return
	}
	dir, err := m.InflateZip(r.Context(), item, createSubdir)
	if dir == "" {
		writeError(w, r, err)
		return
	}
	resp := InflateResponse{Dir: dir}
	if err != nil {
		logging.Warn("Inflating %s: %v", item.RelPath, err)
		resp.Warning = mediaerr.Message(err)
	}
	writeJSONStatusCode(w, http.StatusCreated, resp)
}

// RecreateThumbnails regenerates derived images of a file or directory.
func (h *Handlers) RecreateThumbnails(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		req.Path = "."
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := m.RecreateThumbnails(r.Context(), req.Path, req.Force); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// MediaPosts lists the posts an indexed file is linked to.
func (h *Handlers) MediaPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	links, err := m.MediaPosts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if links == nil {
		links = []database.PostLink{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, links)
}

// ServeMedia streams a file or derived thumbnail below the media URL.
func (h *Handlers) ServeMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rel := mux.Vars(r)["path"]
	f, err := m.Open(r.Context(), rel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, mediaerr.E("open", rel, mediaerr.ErrReadFailed, err))
		return
	}
	if ct := mediatypes.GetMimeType(strings.ToLower(path.Ext(rel))); ct != mediatypes.DefaultMimeType {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// itemFor loads the indexed file named by the id route variable.
func (h *Handlers) itemFor(w http.ResponseWriter, r *http.Request) (*manager.Manager, *manager.Item, bool) {
	id, ok := idVar(w, r, "id")
	if !ok {
		return nil, nil, false
	}
	m, err := h.manager(r)
	if err != nil {
		writeError(w, r, err)
		return nil, nil, false
	}
	item, err := m.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, nil, false
	}
	return m, item, true
}
