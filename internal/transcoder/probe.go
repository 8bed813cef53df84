package transcoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abema/go-mp4"
	"github.com/bytedance/sonic"

	"backup-timeline/internal/logging"
)

// VideoInfo contains information about a video file.
type VideoInfo struct {
	Duration float64 `json:"duration"` // seconds
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec,omitempty"`
}

// ISO base media containers whose headers go-mp4 can read directly.
var mp4Containers = map[string]bool{
	".mp4": true,
	".m4v": true,
	".mov": true,
	".3gp": true,
	".3g2": true,
}

// OutputRunner runs a tool and returns its stdout.
type OutputRunner interface {
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

// Prober reads video duration and dimensions.
type Prober struct {
	ffprobe string
	runner  OutputRunner
}

// NewProber returns a Prober that falls back to the ffprobe binary at path.
func NewProber(ffprobe string, runner OutputRunner) *Prober {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Prober{ffprobe: ffprobe, runner: runner}
}

// Probe returns the video's info. MP4-family files are read in-process;
// everything else, or an MP4 without a usable movie header, goes to ffprobe.
func (p *Prober) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	if mp4Containers[strings.ToLower(filepath.Ext(path))] {
		info, err := ProbeMP4File(path)
		if err == nil && info.Duration > 0 {
			return info, nil
		}
		logging.Debug("MP4 header probe of %s incomplete (%v), using ffprobe", path, err)
	}
	return p.ffprobeInfo(ctx, path)
}

// ProbeMP4File reads duration and dimensions from the file's moov box.
func ProbeMP4File(path string) (*VideoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ProbeMP4(f)
}

// ProbeMP4 reads duration and dimensions from an ISO base media stream.
func ProbeMP4(r io.ReadSeeker) (*VideoInfo, error) {
	info := &VideoInfo{}
	_, err := mp4.ReadBoxStructure(r, func(h *mp4.ReadHandle) (any, error) {
		if !h.BoxInfo.IsSupportedType() || h.BoxInfo.Type == mp4.BoxTypeMdat() {
			return nil, nil
		}
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, fmt.Errorf("reading %s payload: %w", h.BoxInfo.Type, err)
		}

		switch b := box.(type) {
		case *mp4.Mvhd:
			if b.Timescale > 0 {
				info.Duration = float64(b.GetDuration()) / float64(b.Timescale)
			}
		case *mp4.Tkhd:
			// Audio tracks carry zero dimensions; keep the first visual track.
			if info.Width == 0 && b.GetWidthInt() > 0 {
				info.Width = int(b.GetWidthInt())
				info.Height = int(b.GetHeightInt())
			}
		}
		return h.Expand()
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

func (p *Prober) ffprobeInfo(ctx context.Context, path string) (*VideoInfo, error) {
	if p.runner == nil {
		return nil, fmt.Errorf("no ffprobe runner configured for %s", path)
	}
	out, err := p.runner.Output(ctx, p.ffprobe, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	})
	if err != nil {
		return nil, err
	}
	return ParseFFprobe(out)
}

// ParseFFprobe decodes `ffprobe -print_format json -show_format -show_streams`
// output. The container duration wins over the video stream's.
func ParseFFprobe(data []byte) (*VideoInfo, error) {
	var out ffprobeOutput
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	info.Duration = parseSeconds(out.Format.Duration)
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width, info.Height, info.Codec = s.Width, s.Height, s.CodecName
		if info.Duration <= 0 {
			info.Duration = parseSeconds(s.Duration)
		}
		break
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
