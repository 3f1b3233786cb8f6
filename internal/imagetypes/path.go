package imagetypes

import (
	"crypto/md5" //nolint:gosec // MD5 used for identifier derivation, not security
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath returns the cleaned absolute form of path.
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// IDFromPath normalizes path and derives its ImageID.
func IDFromPath(path string) (ImageID, string, error) {
	normalized, err := NormalizePath(path)
	if err != nil {
		return "", "", err
	}
	return IDFromNormalized(normalized), normalized, nil
}

// IDFromNormalized derives the ImageID of an already normalized path.
func IDFromNormalized(normalized string) ImageID {
	sum := md5.Sum([]byte(normalized)) //nolint:gosec // identifier, not security
	return ImageID(hex.EncodeToString(sum[:]))
}

// SidecarPath returns the tag file that belongs to an image:
// photos/cat.png -> photos/cat.txt
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}
