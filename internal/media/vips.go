package media

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"dataset-tagger/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// VipsConfig bounds the resources libvips may use.
type VipsConfig struct {
	Concurrency int
	MaxCacheMB  int
}

// InitVips starts libvips. It should be called once at startup; later calls
// are no-ops. govips cannot be restarted after ShutdownVips.
func InitVips(cfg VipsConfig) error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// vips messages are mapped one level down so libvips INFO chatter only
	// shows up when the application runs at debug level
	vipsLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLevel = vips.LogLevelCritical
	}
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLevel)

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxCacheMB <= 0 {
		cfg.MaxCacheMB = 50
	}

	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// thumbnailWithVips shrinks data to fit a box using decode-time shrinking.
func thumbnailWithVips(data []byte, box int) (image.Image, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips rotate: %w", err)
	}
	if ref.Width() > box || ref.Height() > box {
		if err := ref.Thumbnail(box, box, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize: %w", err)
		}
	}

	out, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode vips output: %w", err)
	}
	return img, nil
}
