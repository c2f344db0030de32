// Package hooks is the media file lifecycle extension point.
//
// Handlers are registered per MIME category ("image", "video", ...) or for
// every category with Any, and per Event. The media manager registers its
// own thumbnail and metadata handlers here; other packages may add more.
package hooks
