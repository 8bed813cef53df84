package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"backup-timeline/internal/logging"
	"backup-timeline/internal/preview"
)

// ToolCheck is the result of looking up one external program.
type ToolCheck struct {
	Name    string
	Path    string
	Version string
	Err     error
}

// CheckTools looks up ffmpeg, ffprobe and, with the magick engine, convert.
func CheckTools(tools ToolsConfig, imageEngine string) []ToolCheck {
	names := []string{tools.FFmpeg, tools.FFprobe}
	if imageEngine == preview.EngineMagick || imageEngine == "" {
		names = append([]string{tools.Convert}, names...)
	}

	checks := make([]ToolCheck, 0, len(names))
	for _, name := range names {
		checks = append(checks, checkTool(name))
	}
	return checks
}

func checkTool(name string) ToolCheck {
	check := ToolCheck{Name: filepath.Base(name)}

	path, err := exec.LookPath(name)
	if err != nil {
		check.Err = fmt.Errorf("%s not found in PATH", name)
		return check
	}
	check.Path = path

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		check.Err = fmt.Errorf("failed to get %s version: %w", name, err)
		return check
	}

	first, _, _ := strings.Cut(string(output), "\n")
	check.Version = strings.TrimSpace(first)
	return check
}

// EnsureDirectory creates path if needed and verifies it is a writable
// directory.
func EnsureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", name, err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
	} else if err != nil {
		return fmt.Errorf("failed to stat %s directory: %w", name, err)
	} else if !info.IsDir() {
		return fmt.Errorf("%s path %s exists but is not a directory", name, path)
	}

	if err := testWriteAccess(path); err != nil {
		return fmt.Errorf("%s directory is not writable: %w", name, err)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
