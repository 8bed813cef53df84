// Package startup handles configuration loading and start-up/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional YAML file and TIMELINE_* environment
// variables through viper. Environment variables override the file; nested
// keys use underscores (database.driver -> TIMELINE_DATABASE_DRIVER).
//
//	database:
//	  driver: sqlite            # sqlite | postgres
//	  path: /data/timeline.db   # sqlite
//	  url: postgres://...       # postgres
//	cache_dir: /cache
//	preview:
//	  image_engine: magick      # magick | vips | native
//	  width: 640
//	  height: 480
//	  video_width: 640
//	  video_height: 480
//	  workers: 0                # 0 picks a default for the machine
//	tools:
//	  convert: convert
//	  ffmpeg: ffmpeg
//	  ffprobe: ffprobe
//	sync:
//	  interval: 1h              # 0 disables periodic syncs
//	  watch: true
//	  watch_debounce: 30s
//	  continue_on_error: false
//	  parallel: 1
//	  verify_content: false
//	http:
//	  port: "8080"
//	  log_health_checks: false
//	nats:
//	  url: ""                   # empty disables notifications
//	  subject: timeline.backup.synced
//	sources:
//	  - key: laptop
//	    path: /backups/laptop
//	    files_subdir: ""
//
// Without a config file flag the file is looked up as backup-timeline.yaml in
// the working directory, $HOME/.config/backup-timeline and
// /etc/backup-timeline; a missing file is not an error.
//
// # Logging
//
// The Log* helpers print the sectioned start-up report used by the serve
// command: banner, system information, configuration, tool checks, routes
// and shutdown steps.
package startup
