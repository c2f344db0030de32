package database

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoRecord is returned when no media row matches.
var ErrNoRecord = errors.New("no matching media record")

// DefaultLinkType is used when a post link is created without a type.
const DefaultLinkType = "attachment"

// Metadata is the free-form attribute blob of a media record.
type Metadata map[string]any

// Record is one row of the media table.
type Record struct {
	ID           int64     `json:"id"`
	StoragePath  string    `json:"storagePath"`
	RelativeFile string    `json:"relativeFile"`
	RelativeDir  string    `json:"relativeDir"`
	Title        string    `json:"title"`
	RawMetadata  string    `json:"-"`
	CapturedAt   time.Time `json:"capturedAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Private      bool      `json:"private"`
	OwnerID      string    `json:"ownerId"`
}

// Metadata parses the stored attribute blob.
func (r *Record) Metadata() (Metadata, error) {
	meta := Metadata{}
	if r.RawMetadata == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(r.RawMetadata), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SetMetadata replaces the stored attribute blob.
func (r *Record) SetMetadata(meta Metadata) error {
	if len(meta) == 0 {
		r.RawMetadata = "{}"
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	r.RawMetadata = string(data)
	return nil
}

// Visibility restricts which rows a caller may read or delete. With All set
// every row is visible; otherwise public rows and rows owned by OwnerID.
type Visibility struct {
	OwnerID string
	All     bool
}

// PostLink associates a media record with a blog post.
type PostLink struct {
	PostID    int64     `json:"postId"`
	MediaID   int64     `json:"mediaId"`
	LinkType  string    `json:"linkType"`
	CreatedAt time.Time `json:"createdAt"`
}
