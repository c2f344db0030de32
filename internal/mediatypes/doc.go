// Package mediatypes provides shared type definitions for media file
// handling: extension to MIME lookup, content sniffing for unknown
// extensions, display classification and sort parameters.
//
// # MIME Types
//
//	mime := mediatypes.DetectMimeType("/srv/media/2024/photo.jpg") // "image/jpeg"
//	mediatypes.Category(mime)                                      // "image"
//	mediatypes.Classify(mime)                                      // mediatypes.KindImage
//
// Files whose extension is not in MimeTypes are sniffed with
// github.com/gabriel-vasile/mimetype.
//
// # Sorting
//
//	field := mediatypes.ParseSortField(r.URL.Query().Get("sort"))
//	order := mediatypes.ParseSortOrder(r.URL.Query().Get("order"))
package mediatypes
