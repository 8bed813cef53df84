// Package transcoder runs the external tools that render previews and probes
// video files.
//
// It provides:
//   - [Runner], the seam preview generation uses to invoke convert and ffmpeg
//   - [Exec], the os/exec implementation that captures stderr, tracks running
//     processes for shutdown and records Prometheus metrics
//   - [ProcessError], carrying the command line and output of a failed tool
//   - [Prober], which reads video duration and dimensions from MP4 headers
//     with go-mp4 and falls back to ffprobe for other containers
package transcoder
