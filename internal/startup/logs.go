package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"backup-timeline/internal/logging"
)

const rule = "------------------------------------------------------------"

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string, args ...any) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(title, args...)
	logging.Info(rule)
}

// LogStartup prints the banner, system information and configuration.
func LogStartup(cfg *Config) {
	printBanner()
	logSystemInfo()
	LogConfig(cfg)
}

// LogConfig prints the effective configuration.
func LogConfig(cfg *Config) {
	section("CONFIGURATION")
	if cfg.ConfigFile != "" {
		logging.Info("  Config file:         %s", cfg.ConfigFile)
	} else {
		logging.Info("  Config file:         (none, defaults and %s_* environment)", EnvPrefix)
	}
	logging.Info("  Database driver:     %s", cfg.Database.Driver)
	if cfg.Database.Driver == DriverSQLite {
		logging.Info("  Database path:       %s", cfg.Database.Path)
	} else {
		logging.Info("  Database URL:        %s", redactURL(cfg.Database.URL))
	}
	logging.Info("  Cache directory:     %s", cfg.CacheDir)
	logging.Info("  Image engine:        %s", cfg.Preview.ImageEngine)
	logging.Info("  Preview box:         %s (video %s)", cfg.Preview.ImageBox(), cfg.Preview.VideoBox())
	logging.Info("  Sync interval:       %v", cfg.Sync.Interval)
	logging.Info("  Sync parallel:       %d", cfg.Sync.Parallel)
	logging.Info("  Continue on error:   %v", cfg.Sync.ContinueOnError)
	logging.Info("  Watch snapshots:     %s", enabledString(cfg.Sync.Watch))
	logging.Info("  HTTP port:           %s", cfg.HTTP.Port)
	if cfg.NATS.URL != "" {
		logging.Info("  NATS:                %s (subject %s)", redactURL(cfg.NATS.URL), cfg.NATS.Subject)
	} else {
		logging.Info("  NATS:                DISABLED")
	}
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("  Sources (%d):", len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.FilesSubdir != "" {
			logging.Info("    %-12s %s (files in %s)", s.Key, s.Path, s.FilesSubdir)
		} else {
			logging.Info("    %-12s %s", s.Key, s.Path)
		}
	}
	if len(cfg.Sources) == 0 {
		logging.Warn("    No sources configured, nothing will be synchronized")
	}
}

// redactURL hides the password of a URL with userinfo.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		return raw[:scheme+3] + user + ":xxxxx" + raw[at:]
	}
	return raw
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(driver string, duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] %s store initialized in %v", driver, duration)
}

// LogToolsInit checks the external tools and logs the result. Missing tools
// are warnings: only the previews that need them fail.
func LogToolsInit(tools ToolsConfig, imageEngine string) {
	section("TOOLS")
	for _, r := range CheckTools(tools, imageEngine) {
		if r.Err != nil {
			logging.Warn("  %s check failed: %v", r.Name, r.Err)
			continue
		}
		logging.Info("  [OK] %s available", r.Name)
		logging.Debug("       %s: %s", r.Path, r.Version)
	}
}

// LogSyncDaemonInit logs sync daemon initialization
func LogSyncDaemonInit(interval time.Duration, sources int) {
	section("SYNC DAEMON INITIALIZATION")
	if interval > 0 {
		logging.Info("  Sync interval: %v", interval)
	} else {
		logging.Info("  Periodic sync: DISABLED")
	}
	logging.Info("  Starting sync of %d sources...", sources)
}

// LogSyncDaemonStarted logs successful sync daemon start
func LogSyncDaemonStarted() {
	logging.Info("  [OK] Sync daemon started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			logging.Debug("  [%s]", group)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set %s_HTTP_LOG_HEALTH_CHECKS=true to enable)", EnvPrefix)
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	first, rest, _ := strings.Cut(path, "/")

	if first == "api" && rest != "" {
		sub, _, _ := strings.Cut(rest, "/")
		return "api/" + sub
	}
	if first == "" {
		return "root"
	}
	return first
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(port string, startup time.Duration) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", startup)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Health:        http://0.0.0.0:%s/healthz", port)
	logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", port)
	logging.Info("    Trigger sync:  POST http://0.0.0.0:%s/api/sync", port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section("SHUTDOWN INITIATED (received %s)", signal)
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __                __                   __  _               ___
   / /_  ____ ______/ /____  ______      / /_(_)___ ___  ___  / (_)___  ___
  / __ \/ __ '/ ___/ //_/ / / / __ \    / __/ / __ '__ \/ _ \/ / / __ \/ _ \
 / /_/ / /_/ / /__/ ,< / /_/ / /_/ /   / /_/ / / / / / /  __/ / / / / /  __/
/_.___/\__,_/\___/_/|_|\__,_/ .___/    \__/_/_/ /_/ /_/\___/_/_/_/ /_/\___/
                           /_/
------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}
