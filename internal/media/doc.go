// Package media decodes image files into the small bitmaps shown while
// browsing and tagging a dataset.
//
// A Decoder fits every image into a square box (800px by default) keeping
// the aspect ratio. When libvips has been started with InitVips it shrinks
// on load, which is much cheaper for large JPEGs; otherwise the pure Go
// imaging library is used. Input that is not an image at all is rejected by
// content sniffing before any decoder runs.
package media
