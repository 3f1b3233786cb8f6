// Package imagetypes holds the primitive types shared by the index, the
// thumbnail cache and the scanner: image identifiers, content digests,
// thumbnail states and the table of supported image extensions.
//
// It has no dependencies beyond the standard library so every other package
// can import it without creating cycles.
//
// # Identifiers
//
// An ImageID is derived from the normalized absolute path of a file, so the
// same file always maps to the same id within and across index instances:
//
//	id, path, err := imagetypes.IDFromPath("photos/../photos/cat.png")
//
// # Supported Formats
//
//	if imagetypes.IsSupportedImage(path) {
//	    // hand it to the scanner
//	}
package imagetypes
