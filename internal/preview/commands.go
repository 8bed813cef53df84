package preview

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A4 and US letter pages are 8.5 inches wide.
const pageWidthInches = 8.5

// ImageArgs returns the convert arguments for an image thumbnail: first
// frame, orientation fixed, flattened, stripped, shrunk to fit the box.
func ImageArgs(in, out string, box Box) []string {
	return []string{
		"-auto-orient",
		"-flatten",
		"-strip",
		"-thumbnail", box.String() + ">",
		in + "[0]",
		out,
	}
}

// PDFArgs returns the convert arguments for a thumbnail of the first page,
// rasterized at a density that makes a page roughly box.Width pixels wide.
func PDFArgs(in, out string, box Box) []string {
	return []string{
		"-pointsize", "72",
		"-density", strconv.Itoa(int(float64(box.Width) / pageWidthInches)),
		"-units", "PixelsPerInch",
		in + "[0]",
		"-resize", box.String() + ">",
		"-flatten",
		"-strip",
		out,
	}
}

// Sample is one excerpt of a video digest, in seconds.
type Sample struct {
	Start  float64
	Length float64
}

// End returns the sample's end time.
func (s Sample) End() float64 {
	return s.Start + s.Length
}

// PlanSamples picks the digest excerpts for a clip of the given duration:
//
//	D <= 10        one sample covering the whole clip
//	10 < D <= 30   5 samples of 1s
//	30 < D <= 300  5 samples of 2s
//	D > 300        10 samples of 2s
//
// The i-th sample starts at floor(i/n*D). Non-positive durations plan nothing.
func PlanSamples(duration float64) []Sample {
	if duration <= 0 {
		return nil
	}

	count, length := 10, 2.0
	switch {
	case duration <= 10:
		count, length = 1, duration
	case duration <= 30:
		count, length = 5, 1
	case duration <= 5*60:
		count, length = 5, 2
	}

	samples := make([]Sample, count)
	for i := range samples {
		samples[i] = Sample{
			Start:  math.Floor(float64(i) / float64(count) * duration),
			Length: length,
		}
	}
	return samples
}

// VideoFilter builds the ffmpeg filter graph: each sample trimmed with its
// timestamps reset, all samples concatenated in order, then scaled into box
// by a factor capped at 1 with both sides rounded to an even size of at
// least 2.
func VideoFilter(samples []Sample, box Box) string {
	var b strings.Builder

	parts := make([]string, len(samples))
	for i, s := range samples {
		parts[i] = fmt.Sprintf("[0:v]trim=%s:%s,setpts=PTS-STARTPTS[v%d];",
			formatSeconds(s.Start), formatSeconds(s.End()), i)
	}
	b.WriteString(strings.Join(parts, " "))

	for i := range samples {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1[allclips];", len(samples))

	factor := fmt.Sprintf(`min(1\,min(%d/iw\,%d/ih))`, box.Width, box.Height)
	fmt.Fprintf(&b, `[allclips]scale=w=max(2\,2*round(iw*%s/2)):h=max(2\,2*round(ih*%s/2))[out]`, factor, factor)
	return b.String()
}

// VideoArgs returns the ffmpeg arguments for a digest of a clip lasting
// duration seconds. Output is baseline H.264 with the moov atom up front.
func VideoArgs(in, out string, duration float64, box Box) []string {
	return []string{
		"-y",
		"-i", in,
		"-filter_complex", VideoFilter(PlanSamples(duration), box),
		"-map", "[out]",
		"-codec:v", "libx264",
		"-profile:v", "baseline",
		"-level", "3.0",
		"-preset", "slow",
		"-threads", "0",
		"-movflags", "+faststart",
		out,
	}
}

// FitEven returns the size ffmpeg's scale expression in VideoFilter yields
// for a width x height input.
func FitEven(width, height int, box Box) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	factor := math.Min(1, math.Min(float64(box.Width)/float64(width), float64(box.Height)/float64(height)))
	return roundEven(float64(width) * factor), roundEven(float64(height) * factor)
}

func roundEven(v float64) int {
	n := 2 * int(math.Round(v/2))
	if n < 2 {
		n = 2
	}
	return n
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
