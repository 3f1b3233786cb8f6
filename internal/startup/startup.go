package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/memory"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const rule = "------------------------------------------------------------"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string, args ...interface{}) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(title, args...)
	logging.Info(rule)
}

// PrintBanner prints the banner, build and system information
func PrintBanner() {
	banner := `
` + rule + `
      _       _                 _     _
   __| | __ _| |_ __ _ ___  ___| |_  | |_ __ _  __ _  __ _  ___ _ __
  / _' |/ _' | __/ _' / __|/ _ \ __| | __/ _' |/ _' |/ _' |/ _ \ '__|
 | (_| | (_| | || (_| \__ \  __/ |_  | || (_| | (_| | (_| |  __/ |
  \__,_|\__,_|\__\__,_|___/\___|\__|  \__\__,_|\__, |\__, |\___|_|
                                               |___/ |___/
` + rule
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logSystemInfo()
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

// LogConfig logs the effective configuration
func LogConfig(cfg *Config) {
	section("CONFIGURATION")
	logging.Info("  DATASET_DIR:         %s", cfg.DatasetDir)
	logging.Info("  TAG_DATABASE:        %s", orNone(cfg.TagDatabase))
	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  LOG_LEVEL:           %s", cfg.LogLevel)
	logging.Info("  THUMBNAIL_CACHE_MB:  %d (%s)", cfg.ThumbnailCacheMB, humanize.IBytes(uint64(cfg.CacheBytes())))
	logging.Info("  THUMBNAIL_SIZE:      %dpx", cfg.ThumbnailSize)
	logging.Info("  SCAN_WORKERS:        %s", autoOr(cfg.ScanWorkers))
	logging.Info("  THUMBNAIL_WORKERS:   %s", autoOr(cfg.ThumbnailWorkers))
	logging.Info("  DEDUPE:              %s", cfg.Dedupe)
	logging.Info("  STORE:               %s", cfg.Store)
	if cfg.Store == StoreSQLite {
		logging.Info("  DATABASE_PATH:       %s", cfg.DatabasePath)
	}
	logging.Info("  BACKUP_DIR:          %s", orNone(cfg.BackupDir))
	logging.Info("  BACKUP_KEEP:         %d", cfg.BackupKeep)
	logging.Info("  AUTOSAVE_CRON:       %s", orNone(cfg.AutosaveCron))
	logging.Info("  BACKUP_CRON:         %s", orNone(cfg.BackupCron))
	logging.Info("  WATCH:               %v", cfg.Watch)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func autoOr(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", n)
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv
func LogMemoryConfig(mc memory.ConfigResult) {
	switch {
	case !mc.Configured:
		logging.Info("  Memory limit:    not configured")
	case mc.Source == "MEMORY_LIMIT":
		logging.Info("  Memory limit:    %s (%.0f%% of %s)",
			humanize.IBytes(uint64(mc.GoMemLimit)), mc.Ratio*100, humanize.IBytes(uint64(mc.ContainerLimit)))
	default:
		logging.Info("  Memory limit:    %s (%s)", humanize.IBytes(uint64(mc.GoMemLimit)), mc.Source)
	}
}

// EnsureDirectory creates path if needed and checks that it is a writable directory
func EnsureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", name, err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
	case err != nil:
		return fmt.Errorf("failed to stat %s directory: %w", name, err)
	case !info.IsDir():
		return fmt.Errorf("%s path %s exists but is not a directory", name, path)
	}

	f, err := os.CreateTemp(path, ".write-test-*")
	if err != nil {
		return fmt.Errorf("%s directory is not writable: %w", name, err)
	}
	f.Close()
	if err := os.Remove(f.Name()); err != nil {
		logging.Warn("failed to remove write test file %s: %v", f.Name(), err)
	}
	return nil
}

// LogStep logs a completed initialization step
func LogStep(title, format string, args ...interface{}) {
	section(title)
	logging.Info("  [OK] "+format, args...)
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

// LogHTTPRoutes logs registered routes grouped by their API prefix at debug level
func LogHTTPRoutes(router *mux.Router) {
	section("HTTP SERVER SETUP")
	if !logging.IsDebugEnabled() {
		return
	}

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
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, group := range keys {
		if group == "" {
			group = "root"
		}
		logging.Debug("  [%s]", group)
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return parts[0]
}

// LogServerStarted logs the listening address
func LogServerStarted(port string, metricsEnabled bool, took time.Duration) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", took)
	logging.Info("  API:             http://localhost:%s/api", port)
	if metricsEnabled {
		logging.Info("  Metrics:         http://localhost:%s/metrics", port)
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section("SHUTDOWN INITIATED (received %s)", signal)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}
