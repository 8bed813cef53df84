package preview

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestPlanSamples(t *testing.T) {
	tests := []struct {
		name       string
		duration   float64
		wantStarts []float64
		wantLength float64
	}{
		{"zero", 0, nil, 0},
		{"negative", -3, nil, 0},
		{"short clip whole", 5, []float64{0}, 5},
		{"ten seconds whole", 10, []float64{0}, 10},
		{"just over ten", 10.5, []float64{0, 2, 4, 6, 8}, 1},
		{"thirty", 30, []float64{0, 6, 12, 18, 24}, 1},
		{"forty five", 45, []float64{0, 9, 18, 27, 36}, 2},
		{"five minutes", 300, []float64{0, 60, 120, 180, 240}, 2},
		{"over five minutes", 301, []float64{0, 30, 60, 90, 120, 150, 180, 210, 240, 270}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := PlanSamples(tt.duration)
			if len(samples) != len(tt.wantStarts) {
				t.Fatalf("PlanSamples(%v) returned %d samples, want %d", tt.duration, len(samples), len(tt.wantStarts))
			}
			for i, s := range samples {
				if s.Start != tt.wantStarts[i] {
					t.Errorf("sample %d start = %v, want %v", i, s.Start, tt.wantStarts[i])
				}
				if s.Length != tt.wantLength {
					t.Errorf("sample %d length = %v, want %v", i, s.Length, tt.wantLength)
				}
			}
		})
	}
}

func TestPlanSamplesDeterministic(t *testing.T) {
	first := PlanSamples(123.4)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, PlanSamples(123.4))
	}
}

func TestVideoArgsGolden(t *testing.T) {
	args := VideoArgs("/backups/laptop/2024-01-01T00:00:00Z/clip.mp4", "/cache/previews/clip.mp4", 45, Box{Width: 640, Height: 360})

	g := goldie.New(t)
	g.Assert(t, t.Name(), []byte(strings.Join(args, "\n")+"\n"))
}

func TestVideoFilterFractionalDuration(t *testing.T) {
	filter := VideoFilter(PlanSamples(7.5), Box{Width: 320, Height: 240})

	assert.True(t, strings.HasPrefix(filter, "[0:v]trim=0:7.5,setpts=PTS-STARTPTS[v0];[v0]concat=n=1:v=1[allclips];"), filter)
	assert.Contains(t, filter, "min(320/iw\\,240/ih)")
	assert.True(t, strings.HasSuffix(filter, "[out]"))
}

func TestVideoFilterFloorsAtTwoPixels(t *testing.T) {
	// Matches FitEven, which never yields a side below 2.
	filter := VideoFilter(PlanSamples(4), Box{Width: 640, Height: 360})

	assert.Contains(t, filter, `scale=w=max(2\,2*round(iw*`)
	assert.Contains(t, filter, `:h=max(2\,2*round(ih*`)
}

func TestImageArgs(t *testing.T) {
	got := ImageArgs("/in/photo.heic", "/out/photo.jpg", Box{Width: 400, Height: 300})
	want := []string{"-auto-orient", "-flatten", "-strip", "-thumbnail", "400x300>", "/in/photo.heic[0]", "/out/photo.jpg"}
	assert.Equal(t, want, got)
}

func TestPDFArgs(t *testing.T) {
	tests := []struct {
		width       int
		wantDensity string
	}{
		{640, "75"},
		{850, "100"},
		{8, "0"},
	}

	for _, tt := range tests {
		got := PDFArgs("/in/doc.pdf", "/out/doc.jpg", Box{Width: tt.width, Height: 480})
		want := []string{
			"-pointsize", "72",
			"-density", tt.wantDensity,
			"-units", "PixelsPerInch",
			"/in/doc.pdf[0]",
			"-resize", Box{Width: tt.width, Height: 480}.String() + ">",
			"-flatten",
			"-strip",
			"/out/doc.jpg",
		}
		assert.Equal(t, want, got, "width %d", tt.width)
	}
}

func TestFitEven(t *testing.T) {
	box := Box{Width: 640, Height: 360}
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"smaller is not enlarged", 320, 240, 320, 240},
		{"exact fit", 640, 360, 640, 360},
		{"landscape shrink", 1920, 1080, 640, 360},
		{"portrait shrink", 1080, 1920, 202, 360},
		{"wide shrink", 1280, 360, 640, 180},
		{"odd sizes round to even", 321, 241, 322, 242},
		{"thin strip keeps two pixels", 6400, 4, 640, 2},
		{"zero input", 0, 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitEven(tt.w, tt.h, box)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitEven(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
			if w%2 != 0 || h%2 != 0 {
				t.Errorf("FitEven(%d, %d) = %dx%d, want even sizes", tt.w, tt.h, w, h)
			}
		})
	}
}
