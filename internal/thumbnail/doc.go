// Package thumbnail generates and locates derived images (thumbnails) for
// media files.
//
// Sizes are named by short codes held in a Registry. For a source
// "{dir}/{base}.{ext}" the derived file for code c is
// "{dir}/.{base}_{c}.{fmt}", where fmt is png or webp for PNG and WEBP
// sources and jpeg otherwise. PNG and WEBP sources may also have a
// JPEG-named derived file, written when the codec cannot encode the native
// format and always checked as a fallback by LocateAll.
//
// Derived files are keyed by source path, so callers must Relocate on
// rename and Remove on delete. Writing to a source directly does not
// invalidate its derived files.
//
// Two codecs are available: ImagingCodec (pure Go, default) and VipsCodec
// (libvips, requires InitVips).
package thumbnail
