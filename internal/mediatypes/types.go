package mediatypes

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind classifies a media item for display purposes.
type Kind string

const (
	KindImage        Kind = "image"
	KindAudio        Kind = "audio"
	KindText         Kind = "text"
	KindVideo        Kind = "video"
	KindDocument     Kind = "document"
	KindSpreadsheet  Kind = "spreadsheet"
	KindPresentation Kind = "presentation"
	KindPackage      Kind = "package"
	KindExecutable   Kind = "executable"
	KindHTML         Kind = "html"
	// KindBlank is used for anything not covered above, including directories.
	KindBlank Kind = "blank"
)

// DefaultMimeType is returned when neither the extension nor the content
// identifies the file.
const DefaultMimeType = "application/octet-stream"

// SortField specifies which field to sort by.
type SortField string

// SortOrder specifies the direction of sorting.
type SortOrder string

const (
	// SortByName sorts results by filename.
	SortByName SortField = "name"
	// SortByDate sorts results by modification time.
	SortByDate SortField = "date"
	// SortBySize sorts results by file size.
	SortBySize SortField = "size"

	// SortAsc sorts in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts in descending order.
	SortDesc SortOrder = "desc"
)

// ParseSortField returns the field named by s, or SortByName.
func ParseSortField(s string) SortField {
	switch SortField(strings.ToLower(s)) {
	case SortByDate:
		return SortByDate
	case SortBySize:
		return SortBySize
	default:
		return SortByName
	}
}

// ParseSortOrder returns the order named by s, or SortAsc.
func ParseSortOrder(s string) SortOrder {
	if SortOrder(strings.ToLower(s)) == SortDesc {
		return SortDesc
	}
	return SortAsc
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",

	// Audio
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",

	// Text
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".css":  "text/css",
	".htm":  "text/html",
	".html": "text/html",

	// Documents
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",

	// Spreadsheets
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",

	// Presentations
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odp":  "application/vnd.oasis.opendocument.presentation",

	// Packages
	".zip": "application/zip",
	".gz":  "application/gzip",
	".tgz": "application/gzip",
	".tar": "application/x-tar",
	".7z":  "application/x-7z-compressed",
	".rar": "application/vnd.rar",

	// Executables
	".exe": "application/x-msdownload",
	".sh":  "application/x-sh",
	".bin": "application/octet-stream",
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns DefaultMimeType if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return DefaultMimeType
}

// DetectMimeType returns the MIME type of the file at path, using the
// extension table first and content sniffing for unknown extensions.
func DetectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return DefaultMimeType
	}

	// Drop parameters such as "; charset=utf-8".
	mime, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(mime)
}

// Category returns the top-level part of a MIME type ("image" for
// "image/png"). Hooks and list filters are keyed by category.
func Category(mime string) string {
	category, _, _ := strings.Cut(mime, "/")
	return category
}

// Classify maps a MIME type to a display Kind.
func Classify(mime string) Kind {
	switch Category(mime) {
	case "image":
		return KindImage
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	case "text":
		if mime == "text/html" {
			return KindHTML
		}
		return KindText
	}

	switch {
	case mime == "application/pdf" || mime == "application/msword" || mime == "application/rtf" ||
		strings.Contains(mime, "wordprocessingml") || strings.Contains(mime, "opendocument.text"):
		return KindDocument
	case mime == "application/vnd.ms-excel" || strings.Contains(mime, "spreadsheet"):
		return KindSpreadsheet
	case mime == "application/vnd.ms-powerpoint" || strings.Contains(mime, "presentation"):
		return KindPresentation
	case mime == "application/zip" || mime == "application/gzip" || mime == "application/x-tar" ||
		mime == "application/x-7z-compressed" || mime == "application/vnd.rar":
		return KindPackage
	case mime == "application/x-msdownload" || mime == "application/x-sh" ||
		mime == "application/x-executable" || mime == "application/x-elf":
		return KindExecutable
	case mime == "application/xhtml+xml":
		return KindHTML
	}
	return KindBlank
}

// IsImage reports whether mime is an image type.
func IsImage(mime string) bool {
	return Category(mime) == "image"
}
