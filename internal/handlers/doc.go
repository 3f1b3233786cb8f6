// Package handlers provides the JSON HTTP API over a dataset library.
//
// It includes handlers for:
//   - Listing, searching and inspecting images
//   - Editing tags on one image or in bulk
//   - Tag frequencies, suggestions and alias resolution
//   - Duplicate groups and their resolution
//   - Thumbnails (JPEG once decoded, 202 while pending, 422 on failure)
//   - Scans, saving, backups, health checks and metrics
package handlers
