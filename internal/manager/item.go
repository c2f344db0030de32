package manager

import (
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"media-manager/internal/database"
	"media-manager/internal/filesystem"
	"media-manager/internal/mediatypes"
)

// Item is one filesystem entry joined with its index row, if any.
type Item struct {
	ID         int64             `json:"id,omitempty"`
	Path       string            `json:"-"`
	RelPath    string            `json:"path"`
	Name       string            `json:"name"`
	IsDir      bool              `json:"isDir"`
	Parent     bool              `json:"parent,omitempty"`
	Size       int64             `json:"size"`
	ModTime    time.Time         `json:"modTime"`
	MimeType   string            `json:"mimeType,omitempty"`
	Kind       mediatypes.Kind   `json:"kind"`
	Thumbnails map[string]string `json:"thumbnails,omitempty"`

	Title      string            `json:"title,omitempty"`
	Private    bool              `json:"private"`
	OwnerID    string            `json:"ownerId,omitempty"`
	CapturedAt time.Time         `json:"capturedAt,omitempty"`
	Metadata   database.Metadata `json:"metadata,omitempty"`

	Editable  bool `json:"editable"`
	Deletable bool `json:"deletable"`
}

// Listing is the result of List.
type Listing struct {
	Dir   string `json:"dir"`
	Dirs  []Item `json:"dirs"`
	Files []Item `json:"files"`
}

func (m *Manager) isDir(p string) bool {
	info, err := filesystem.StatWithRetry(p, m.svc.Retry)
	return err == nil && info.IsDir()
}

// fileItem describes an on-disk file without index data.
func fileItem(abs, rel string, info os.FileInfo) Item {
	mime := mediatypes.DetectMimeType(abs)
	return Item{
		Path:     abs,
		RelPath:  rel,
		Name:     path.Base(rel),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		MimeType: mime,
		Kind:     mediatypes.Classify(mime),
	}
}

func dirItem(abs, rel string, info os.FileInfo) Item {
	it := Item{
		Path:    abs,
		RelPath: rel,
		Name:    path.Base(rel),
		IsDir:   true,
		Kind:    mediatypes.KindBlank,
	}
	if info != nil {
		it.ModTime = info.ModTime()
	}
	return it
}

// hydrate copies index data from rec into it and derives the edit flags.
func (m *Manager) hydrate(it *Item, rec *database.Record) {
	it.ID = rec.ID
	it.Title = rec.Title
	it.Private = rec.Private
	it.OwnerID = rec.OwnerID
	it.CapturedAt = rec.CapturedAt
	if meta, err := rec.Metadata(); err == nil {
		it.Metadata = meta
	}
	it.Editable = m.mayEdit(rec)
	it.Deletable = it.Editable
	if mediatypes.IsImage(it.MimeType) && it.Path != "" {
		it.Thumbnails = m.svc.Thumbs.LocateAll(it.Path)
	}
}

// recordItem builds an item from the index alone.
func (m *Manager) recordItem(rec *database.Record) Item {
	mime := mediatypes.GetMimeType(path.Ext(rec.RelativeFile))
	it := Item{
		RelPath:  rec.RelativeFile,
		Name:     path.Base(rec.RelativeFile),
		MimeType: mime,
		Kind:     mediatypes.Classify(mime),
	}
	m.hydrate(&it, rec)
	return it
}

func lessName(a, b Item) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.Name < b.Name
}

// sortDirs orders directories by name with the parent entry first.
func sortDirs(dirs []Item) {
	sort.SliceStable(dirs, func(i, j int) bool {
		if dirs[i].Parent != dirs[j].Parent {
			return dirs[i].Parent
		}
		return lessName(dirs[i], dirs[j])
	})
}

// sortFiles orders files by s; ties fall back to the name.
func sortFiles(files []Item, s SortSpec) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if s.Order == mediatypes.SortDesc {
			a, b = b, a
		}
		switch s.Field {
		case mediatypes.SortBySize:
			if a.Size != b.Size {
				return a.Size < b.Size
			}
		case mediatypes.SortByDate:
			if !a.ModTime.Equal(b.ModTime) {
				return a.ModTime.Before(b.ModTime)
			}
		}
		return lessName(a, b)
	})
}
