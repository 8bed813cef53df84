package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-timeline/internal/database"
	"backup-timeline/internal/inclusion"
	"backup-timeline/internal/preview"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func linkFile(t *testing.T, from, to string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(to), 0o755))
	require.NoError(t, os.Link(from, to))
}

// fixture lays out one source with two snapshots and returns a config file.
// The first snapshot adds photos/a.jpg, the second hard-links it and adds
// photos/b.jpg.
func fixture(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	src := filepath.Join(dir, "photos")
	first := filepath.Join(src, "2024-01-01T03:00:00Z")
	second := filepath.Join(src, "2024-01-02T03:00:00Z")

	writeFile(t, filepath.Join(first, inclusion.MarkerFileName), "photos/*.jpg\n")
	writeFile(t, filepath.Join(first, "photos", "a.jpg"), "a")
	writeFile(t, filepath.Join(first, "notes.txt"), "not included")

	linkFile(t, filepath.Join(first, inclusion.MarkerFileName), filepath.Join(second, inclusion.MarkerFileName))
	linkFile(t, filepath.Join(first, "photos", "a.jpg"), filepath.Join(second, "photos", "a.jpg"))
	writeFile(t, filepath.Join(second, "photos", "b.jpg"), "b")

	configPath = filepath.Join(dir, "timeline.yaml")
	writeFile(t, configPath, fmt.Sprintf(`database:
  driver: sqlite
  path: %s
cache_dir: %s
preview:
  image_engine: native
sources:
  - key: photos
    path: %s
`, filepath.Join(dir, "timeline.db"), filepath.Join(dir, "cache"), src))
	return configPath, dir
}

func TestSyncListAndJournal(t *testing.T) {
	config, _ := fixture(t)

	out, err := execute(t, "--config", config, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "SOURCE")
	assert.Regexp(t, `photos\s+success\s+2\s+0\s+0\s+0\s+2`, out)

	out, err = execute(t, "--config", config, "entries", "list", "--json")
	require.NoError(t, err)
	var entries []database.Entry
	require.NoError(t, sonic.UnmarshalString(out, &entries))
	require.Len(t, entries, 2)
	paths := []string{entries[0].Attributes.Path, entries[1].Attributes.Path}
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, []string{filepath.Base(paths[0]), filepath.Base(paths[1])})
	for _, e := range entries {
		assert.Equal(t, "photos", e.Attributes.Source)
		assert.Equal(t, "file.image", e.Schema)
	}

	out, err = execute(t, "--config", config, "entries", "list", "--backup-date", "2024-01-02T03:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "b.jpg")
	assert.NotContains(t, out, "a.jpg")

	// A second sync finds nothing newer than the stored watermark.
	out, err = execute(t, "--config", config, "sync")
	require.NoError(t, err)
	assert.Regexp(t, `photos\s+success\s+0\s+2\s+0\s+0\s+0`, out)

	out, err = execute(t, "--config", config, "runs", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4, "header, rule and two runs")
}

func TestSyncAllReplaysEveryBackup(t *testing.T) {
	config, _ := fixture(t)

	_, err := execute(t, "--config", config, "sync")
	require.NoError(t, err)

	out, err := execute(t, "--config", config, "sync", "--all")
	require.NoError(t, err)
	assert.Regexp(t, `photos\s+success\s+2\s+0\s+0\s+0\s+2`, out)

	out, err = execute(t, "--config", config, "entries", "list", "--json")
	require.NoError(t, err)
	var entries []database.Entry
	require.NoError(t, sonic.UnmarshalString(out, &entries))
	assert.Len(t, entries, 2, "replay replaces rather than duplicates")
}

func TestSyncErrors(t *testing.T) {
	config, _ := fixture(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown source", []string{"sync", "nope"}, `unknown source "nope"`},
		{"exclusive modes", []string{"sync", "--all", "--latest"}, "none of the others can be"},
		{"bad log level", []string{"--log-level", "loud", "version"}, `unknown log level "loud"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--config", config}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSyncReportsFailedSource(t *testing.T) {
	config, dir := fixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "photos")))

	out, err := execute(t, "--config", config, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 sources did not sync cleanly")
	assert.Contains(t, out, "failed")
}

func TestClearCache(t *testing.T) {
	config, dir := fixture(t)
	cached := filepath.Join(dir, "cache", preview.CacheSubdir, "abc.jpg")
	writeFile(t, cached, strings.Repeat("x", 2048))

	out, err := execute(t, "--config", config, "preview", "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Freed 2.0 KiB")
	assert.NoFileExists(t, cached)
}

func TestPreviewFileArgs(t *testing.T) {
	config, _ := fixture(t)

	_, err := execute(t, "--config", config, "preview", "image", "only-input.jpg")
	require.Error(t, err)

	_, err = execute(t, "--config", config, "preview", "image", "in.jpg", "out.jpg", "--width", "0")
	require.Error(t, err)
}

// failingDurationTool writes a stand-in for the duration tool that records
// each run in a marker file and fails.
func failingDurationTool(t *testing.T, dir string) (script, marker string) {
	t.Helper()
	script = filepath.Join(dir, "duration-tool")
	marker = filepath.Join(dir, "duration-tool.ran")
	writeFile(t, script, fmt.Sprintf("#!/bin/sh\ntouch %q\necho 'no streams' >&2\nexit 1\n", marker))
	require.NoError(t, os.Chmod(script, 0o755))
	return script, marker
}

func TestPreviewVideoExistingOutputSkipsDurationLookup(t *testing.T) {
	config, dir := fixture(t)
	script, marker := failingDurationTool(t, dir)
	f, err := os.OpenFile(config, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "tools:\n  ffprobe: %s\n", script)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	in := filepath.Join(dir, "clip.avi")
	out := filepath.Join(dir, "clip.mp4")
	writeFile(t, in, "not really a video")
	writeFile(t, out, "previous preview")

	_, err = execute(t, "--config", config, "preview", "video", in, out)
	require.ErrorIs(t, err, preview.ErrAlreadyExists)
	assert.NoFileExists(t, marker, "duration lookup ran for an output that already exists")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous preview", string(got))

	// With --overwrite the duration is looked up, and its failure reported.
	_, err = execute(t, "--config", config, "preview", "video", in, out, "--overwrite")
	require.Error(t, err)
	assert.NotErrorIs(t, err, preview.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "failed to determine duration")
	assert.FileExists(t, marker)
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"sync"},
		{"serve"},
		{"preview", "image"},
		{"preview", "pdf"},
		{"preview", "video"},
		{"preview", "batch"},
		{"preview", "clear-cache"},
		{"entries", "list"},
		{"runs", "list"},
		{"version"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			cmd, _, err := root.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], cmd.Name())
		})
	}

	video, _, err := root.Find([]string{"preview", "video"})
	require.NoError(t, err)
	assert.NotNil(t, video.Flags().Lookup("duration"))

	image, _, err := root.Find([]string{"preview", "image"})
	require.NoError(t, err)
	assert.Nil(t, image.Flags().Lookup("duration"))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "backup-timeline dev"), out)
}
