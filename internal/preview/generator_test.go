package preview

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-timeline/internal/transcoder"
)

// fakeRunner records invocations. Unless err is set it writes the last
// argument (the output path) so callers see an artifact.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	return os.WriteFile(args[len(args)-1], []byte("preview from "+name), 0o644)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestGenerator(t *testing.T, runner transcoder.Runner) *Generator {
	t.Helper()
	g, err := NewGenerator(runner, Options{Tools: Tools{Convert: "/opt/im/convert", FFmpeg: "/opt/ff/ffmpeg"}})
	require.NoError(t, err)
	return g
}

var testBox = Box{Width: 640, Height: 360}

func TestGeneratorOverwriteGuard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		gen  func(g *Generator, out string, overwrite bool) error
	}{
		{"image", func(g *Generator, out string, overwrite bool) error {
			return g.Image(ctx, "/in/a.jpg", out, testBox, overwrite)
		}},
		{"pdf", func(g *Generator, out string, overwrite bool) error {
			return g.PDF(ctx, "/in/a.pdf", out, testBox, overwrite)
		}},
		{"video", func(g *Generator, out string, overwrite bool) error {
			return g.Video(ctx, "/in/a.mp4", out, 45, testBox, overwrite)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			g := newTestGenerator(t, runner)
			out := filepath.Join(dir, tt.name+".out")

			require.NoError(t, tt.gen(g, out, false))
			first, err := os.ReadFile(out)
			require.NoError(t, err)

			err = tt.gen(g, out, false)
			assert.ErrorIs(t, err, ErrAlreadyExists)
			assert.ErrorIs(t, err, fs.ErrExist)
			assert.Equal(t, 1, runner.count(), "no process may run when the output exists")

			after, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, first, after, "existing artifact must be untouched")

			require.NoError(t, tt.gen(g, out, true))
			assert.Equal(t, 2, runner.count(), "overwrite runs the tool again")
		})
	}
}

func TestGeneratorInvocations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := &fakeRunner{}
	g := newTestGenerator(t, runner)

	require.NoError(t, g.Image(ctx, "/in/a.jpg", filepath.Join(dir, "a.jpg"), testBox, false))
	require.NoError(t, g.PDF(ctx, "/in/b.pdf", filepath.Join(dir, "b.jpg"), testBox, false))
	require.NoError(t, g.Video(ctx, "/in/c.mp4", filepath.Join(dir, "c.mp4"), 45, testBox, false))

	require.Len(t, runner.calls, 3)
	assert.Equal(t, append([]string{"/opt/im/convert"}, ImageArgs("/in/a.jpg", filepath.Join(dir, "a.jpg"), testBox)...), runner.calls[0])
	assert.Equal(t, append([]string{"/opt/im/convert"}, PDFArgs("/in/b.pdf", filepath.Join(dir, "b.jpg"), testBox)...), runner.calls[1])
	assert.Equal(t, append([]string{"/opt/ff/ffmpeg"}, VideoArgs("/in/c.mp4", filepath.Join(dir, "c.mp4"), 45, testBox)...), runner.calls[2])
}

func TestGeneratorVideoDurationUnknown(t *testing.T) {
	for _, d := range []float64{0, -1} {
		runner := &fakeRunner{}
		g := newTestGenerator(t, runner)
		out := filepath.Join(t.TempDir(), "v.mp4")

		err := g.Video(context.Background(), "/in/v.mp4", out, d, testBox, false)

		assert.ErrorIs(t, err, ErrDurationUnknown)
		var derr *DurationError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, d, derr.Duration)
		assert.Zero(t, runner.count(), "no transcoding for unknown duration")
		assert.NoFileExists(t, out)
	}
}

func TestGeneratorProcessFailure(t *testing.T) {
	perr := &transcoder.ProcessError{
		Command: []string{"/opt/ff/ffmpeg", "-y"},
		Stderr:  "Invalid data found when processing input",
		Err:     errors.New("exit status 1"),
	}
	g := newTestGenerator(t, &fakeRunner{err: perr})

	err := g.Video(context.Background(), "/in/v.mp4", filepath.Join(t.TempDir(), "v.mp4"), 12, testBox, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not generate video preview")
	assert.Contains(t, err.Error(), "Invalid data found")

	var got *transcoder.ProcessError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, perr.Command, got.Command)
}

func TestGeneratorInvalidBox(t *testing.T) {
	runner := &fakeRunner{}
	g := newTestGenerator(t, runner)

	err := g.Image(context.Background(), "/in/a.jpg", filepath.Join(t.TempDir(), "a.jpg"), Box{Width: 0, Height: 10}, false)
	assert.Error(t, err)
	assert.Zero(t, runner.count())
}

func TestNewGeneratorEngines(t *testing.T) {
	g, err := NewGenerator(&fakeRunner{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, EngineMagick, g.ImageEngineName())

	g, err = NewGenerator(&fakeRunner{}, Options{ImageEngine: EngineNative})
	require.NoError(t, err)
	assert.Equal(t, EngineNative, g.ImageEngineName())

	_, err = NewGenerator(&fakeRunner{}, Options{ImageEngine: "gimp"})
	assert.Error(t, err)
}
