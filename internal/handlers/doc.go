// Package handlers provides the HTTP API of the media manager.
//
// Every request under /api is authenticated with a bearer token and served
// by a manager acting for the token's principal. It includes handlers for:
//   - Directory listing, upload, update, move and removal of media
//   - Index search and rebuilds
//   - Archive inspection and extraction
//   - Thumbnail regeneration and serving of media files
//   - Links between posts and media
//   - Health checks and build information
package handlers
