// Package hasher computes the digests used to group duplicate images.
//
// The default Content hasher is a BLAKE2b-256 digest of the raw file bytes, so
// two files are duplicates exactly when their bytes are identical. Perceptual
// is an opt-in alternative that groups visually identical images by a
// difference hash of the decoded pixels.
package hasher
