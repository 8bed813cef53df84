package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"backup-timeline/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// InitVips starts libvips once, routing its log output through the process
// logger at the current level.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Logging must be configured before Startup.
	vips.LoggingSettings(vipsLogHandler, vipsLogLevel(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips releases libvips if it was started.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

func vipsLogLevel(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	default:
		return vips.LogLevelWarning
	}
}

func vipsLogHandler(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// vipsEngine renders thumbnails in-process with libvips.
type vipsEngine struct{}

func (vipsEngine) Name() string { return EngineVips }

func (vipsEngine) Thumbnail(ctx context.Context, in, out string, box Box) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Thumbnail loads the first page only and shrinks during decode.
	ref, err := vips.NewThumbnailWithSizeFromFile(in, box.Width, box.Height, vips.InterestingNone, vips.SizeDown)
	if err != nil {
		return fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return fmt.Errorf("vips auto-rotate failed: %w", err)
	}
	if ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return fmt.Errorf("vips flatten failed: %w", err)
		}
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(out)) {
	case ".png":
		data, _, err = ref.ExportPng(&vips.PngExportParams{StripMetadata: true, Compression: 6})
	case ".webp":
		data, _, err = ref.ExportWebp(&vips.WebpExportParams{StripMetadata: true, Quality: 85})
	default:
		data, _, err = ref.ExportJpeg(&vips.JpegExportParams{StripMetadata: true, Quality: 85, OptimizeCoding: true})
	}
	if err != nil {
		return fmt.Errorf("vips export failed: %w", err)
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}
