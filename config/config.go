// Package config defines every tunable of the logsentry pipeline and
// loads it the way the teacher's own config package does, through viper.
// Each setting is taken from, in descending precedence: pflag
// command-line flags, LOGSENTRY_-prefixed environment variables, an
// optional config file, and viper defaults.
//
// Parsing a configuration file is an external collaborator per spec.md
// §1 ("configuration file parsing" is out of core scope); this package
// only defines the shape every other component is handed and the
// ambient loader that produces it, matching how the teacher repo keeps
// config loading out of the request-handling core.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/crlsmrls/logsentry/internal/errs"
)

// Config holds every tunable named across spec.md.
type Config struct {
	// Operational HTTP surface.
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log-level"`
	MetricsPath string `mapstructure:"metrics-path"`
	TLSCertFile string `mapstructure:"tls-cert-file"`
	TLSKeyFile  string `mapstructure:"tls-key-file"`
	AuthToken   string `mapstructure:"auth-token"`
	JWTSecret   string `mapstructure:"jwt-secret"`

	// Sliding windows (§3, §4.3).
	SlidingWindowSeconds    int      `mapstructure:"sliding-window-seconds"`
	MaxWindowElements       int      `mapstructure:"max-window-elements"`
	FailedLoginStatusCodes  []int    `mapstructure:"failed-login-status-codes"`
	HTMLPathSuffixes        []string `mapstructure:"html-path-suffixes"`
	HTMLExactPaths          []string `mapstructure:"html-exact-paths"`
	AssetPathPrefixes       []string `mapstructure:"asset-path-prefixes"`
	AssetPathSuffixes       []string `mapstructure:"asset-path-suffixes"`

	// Tier 1 heuristic (§4.4).
	MaxRequestsPerIPInWindow     int      `mapstructure:"max-requests-per-ip-in-window"`
	MaxFailedLoginsPerIP         int      `mapstructure:"max-failed-logins-per-ip"`
	MaxUniqueUAsPerIPInWindow    int      `mapstructure:"max-unique-uas-per-ip-in-window"`
	MinHTMLRequestsForRatioCheck int      `mapstructure:"min-html-requests-for-ratio-check"`
	MinAssetsPerHTMLRatio        float64  `mapstructure:"min-assets-per-html-ratio"`
	SuspiciousPathSubstrings     []string `mapstructure:"suspicious-path-substrings"`
	SensitivePathSubstrings      []string `mapstructure:"sensitive-path-substrings"`
	KnownBadUASubstrings         []string `mapstructure:"known-bad-ua-substrings"`
	HeadlessUASubstrings         []string `mapstructure:"headless-ua-substrings"`
	ChromeMinMajorVersion        int      `mapstructure:"chrome-min-major-version"`
	FirefoxMinMajorVersion       int      `mapstructure:"firefox-min-major-version"`
	ScoreMissingUA               float64  `mapstructure:"score-missing-ua"`
	ScoreOutdatedBrowser         float64  `mapstructure:"score-outdated-browser"`
	ScoreKnownBadUA              float64  `mapstructure:"score-known-bad-ua"`
	ScoreHeadlessBrowser         float64  `mapstructure:"score-headless-browser"`
	ScoreUACycling               float64  `mapstructure:"score-ua-cycling"`
	ScoreRateExceeded            float64  `mapstructure:"score-rate-exceeded"`
	ScoreSensitivePathNewIP      float64  `mapstructure:"score-sensitive-path-new-ip"`
	ScoreSensitivePath           float64  `mapstructure:"score-sensitive-path"`
	ScoreSuspiciousPath          float64  `mapstructure:"score-suspicious-path"`
	ScoreScraperRatio            float64  `mapstructure:"score-scraper-ratio"`

	MaxFailedLoginsPerSession int     `mapstructure:"max-failed-logins-per-session"`
	MaxRequestsPerSession     uint64  `mapstructure:"max-requests-per-session"`
	MaxUAChangesPerSession    int     `mapstructure:"max-ua-changes-per-session"`
	ScoreSessionFailedLogins  float64 `mapstructure:"score-session-failed-logins"`
	ScoreSessionRequestVolume float64 `mapstructure:"score-session-request-volume"`
	ScoreSessionUAChanges     float64 `mapstructure:"score-session-ua-changes"`

	// Tier 2 statistical (§4.4).
	MinSamplesForZScore int     `mapstructure:"min-samples-for-z-score"`
	ZScoreThreshold     float64 `mapstructure:"z-score-threshold"`

	// Sessions (§3, §4.2).
	SessionTrackingEnabled      bool     `mapstructure:"session-tracking-enabled"`
	SessionKeyFields            []string `mapstructure:"session-key-fields"`
	SessionInactivityTTLSeconds int      `mapstructure:"session-inactivity-ttl-seconds"`

	// State store (§4.2).
	IPHibernateIdleMs           int64   `mapstructure:"ip-hibernate-idle-ms"`
	PathHibernateIdleMs         int64   `mapstructure:"path-hibernate-idle-ms"`
	CompactHibernatedAfterHours int     `mapstructure:"compact-hibernated-after-hours"`
	BloomExpectedElements       uint64  `mapstructure:"bloom-expected-elements"`
	BloomFalsePositiveRate      float64 `mapstructure:"bloom-false-positive-rate"`
	ExactReservoirCap           int     `mapstructure:"exact-reservoir-cap"`

	// Memory manager (§4.7).
	MemoryLimitBytes          int64 `mapstructure:"memory-limit-bytes"`
	MemoryPollIntervalSeconds int   `mapstructure:"memory-poll-interval-seconds"`

	// State snapshots (§9).
	SnapshotPath             string `mapstructure:"snapshot-path"`
	SnapshotIntervalSeconds  int    `mapstructure:"snapshot-interval-seconds"`

	// Alert manager (§4.5).
	ThrottleDurationSeconds  int `mapstructure:"throttle-duration-seconds"`
	ThrottleMaxIntervening   int `mapstructure:"throttle-max-intervening-alerts"`
	RecentAlertsRingCapacity int `mapstructure:"recent-alerts-ring-capacity"`
	AlertQueueCapacity       int `mapstructure:"alert-queue-capacity"`

	// Dispatchers (§4.6).
	FileDispatcherEnabled bool   `mapstructure:"file-dispatcher-enabled"`
	FileDispatcherPath    string `mapstructure:"file-dispatcher-path"`

	SyslogDispatcherEnabled bool   `mapstructure:"syslog-dispatcher-enabled"`
	SyslogAddress           string `mapstructure:"syslog-address"`

	HTTPDispatcherEnabled            bool   `mapstructure:"http-dispatcher-enabled"`
	WebhookURL                       string `mapstructure:"webhook-url"`
	HTTPDispatcherPoolSize           int    `mapstructure:"http-dispatcher-pool-size"`
	HTTPDispatcherMaxRequestsPerConn int    `mapstructure:"http-dispatcher-max-requests-per-conn"`
	HTTPDispatcherInsecureSkipVerify bool   `mapstructure:"http-dispatcher-insecure-skip-verify"`
	HTTPConnectTimeoutSeconds        int    `mapstructure:"http-connect-timeout-seconds"`
	HTTPReadTimeoutSeconds           int    `mapstructure:"http-read-timeout-seconds"`

	// Tier 3 ML (§4.4).
	FeatureCount           int     `mapstructure:"feature-count"`
	FeatureMetadataFile    string  `mapstructure:"feature-metadata-file"`
	ModelThreshold         float64 `mapstructure:"model-threshold"`
	FeatureCacheTTLSeconds int     `mapstructure:"feature-cache-ttl-seconds"`

	// Tier 4 external correlation (§4.4).
	Tier4Enabled                 bool              `mapstructure:"tier4-enabled"`
	PromQLEndpoint               string            `mapstructure:"promql-endpoint"`
	PromQLTemplates              map[string]string `mapstructure:"promql-templates"`
	PromQLPollIntervalSeconds    int               `mapstructure:"promql-poll-interval-seconds"`
	CircuitBreakerThreshold      int               `mapstructure:"circuit-breaker-threshold"`
	CircuitBreakerTimeoutSeconds int               `mapstructure:"circuit-breaker-timeout-seconds"`

	// Ingest (§4.3, §6).
	BatchSize         int    `mapstructure:"batch-size"`
	LogFilePath       string `mapstructure:"log-file-path"`
	DBConnString      string `mapstructure:"db-conn-string"`
	DBCursorStateFile string `mapstructure:"db-cursor-state-file"`
}

// New builds a Config the way teacher's config.New does: viper defaults,
// pflag-bound overrides, LOGSENTRY_ environment variables, then an
// optional config file.
func New() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindFlags()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix("LOGSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString("config-file"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func bindFlags() {
	if pflag.Lookup("port") != nil {
		return // already bound (e.g. a second New() call in tests)
	}
	pflag.Int("port", 8080, "Listening port for the operational API")
	pflag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	pflag.String("metrics-path", "/metrics", "Metrics endpoint path")
	pflag.String("tls-cert-file", "", "Path to TLS certificate file")
	pflag.String("tls-key-file", "", "Path to TLS key file")
	pflag.String("auth-token", "", "Static token for protected operational endpoints")
	pflag.String("jwt-secret", "", "HMAC secret for bearer-token auth on mutation endpoints")
	pflag.String("config-file", "", "Path to a config file, read by viper (format taken from the file extension). Can also be set with LOGSENTRY_CONFIG_FILE.")
	pflag.String("webhook-url", "", "HTTP webhook URL for the HTTP alert dispatcher")
	pflag.String("file-dispatcher-path", "", "NDJSON output path for the file alert dispatcher")
	pflag.String("db-conn-string", "", "Postgres connection string for the database-cursor log source")
	pflag.String("log-file-path", "", "Path to the access log file for the file-tail log source")
	pflag.Parse()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log-level", "info")
	v.SetDefault("metrics-path", "/metrics")
	v.SetDefault("tls-cert-file", "")
	v.SetDefault("tls-key-file", "")
	v.SetDefault("auth-token", "")
	v.SetDefault("jwt-secret", "")

	v.SetDefault("sliding-window-seconds", 60)
	v.SetDefault("max-window-elements", 10_000)
	v.SetDefault("failed-login-status-codes", []int{401, 403})
	v.SetDefault("html-path-suffixes", []string{".html", ".htm", "/"})
	v.SetDefault("html-exact-paths", []string{"/"})
	v.SetDefault("asset-path-prefixes", []string{"/static/", "/assets/", "/css/", "/js/", "/img/"})
	v.SetDefault("asset-path-suffixes", []string{".css", ".js", ".png", ".jpg", ".gif", ".svg", ".ico", ".woff", ".woff2"})

	v.SetDefault("max-requests-per-ip-in-window", 100)
	v.SetDefault("max-failed-logins-per-ip", 5)
	v.SetDefault("max-unique-uas-per-ip-in-window", 5)
	v.SetDefault("min-html-requests-for-ratio-check", 10)
	v.SetDefault("min-assets-per-html-ratio", 0.5)
	v.SetDefault("suspicious-path-substrings", []string{"../", "union select", "<script", "/etc/passwd", "cmd.exe"})
	v.SetDefault("sensitive-path-substrings", []string{"/admin", "/wp-admin", "/.env", "/.git"})
	v.SetDefault("known-bad-ua-substrings", []string{"sqlmap", "nikto", "masscan", "nmap"})
	v.SetDefault("headless-ua-substrings", []string{"headlesschrome", "phantomjs", "puppeteer"})
	v.SetDefault("chrome-min-major-version", 90)
	v.SetDefault("firefox-min-major-version", 85)
	v.SetDefault("score-missing-ua", 15.0)
	v.SetDefault("score-outdated-browser", 10.0)
	v.SetDefault("score-known-bad-ua", 60.0)
	v.SetDefault("score-headless-browser", 30.0)
	v.SetDefault("score-ua-cycling", 40.0)
	v.SetDefault("score-rate-exceeded", 55.0)
	v.SetDefault("score-sensitive-path-new-ip", 45.0)
	v.SetDefault("score-sensitive-path", 35.0)
	v.SetDefault("score-suspicious-path", 70.0)
	v.SetDefault("score-scraper-ratio", 25.0)

	v.SetDefault("max-failed-logins-per-session", 5)
	v.SetDefault("max-requests-per-session", uint64(500))
	v.SetDefault("max-ua-changes-per-session", 3)
	v.SetDefault("score-session-failed-logins", 50.0)
	v.SetDefault("score-session-request-volume", 40.0)
	v.SetDefault("score-session-ua-changes", 30.0)

	v.SetDefault("min-samples-for-z-score", 30)
	v.SetDefault("z-score-threshold", 3.5)

	v.SetDefault("session-tracking-enabled", true)
	v.SetDefault("session-key-fields", []string{"ip", "ua"})
	v.SetDefault("session-inactivity-ttl-seconds", 1800)

	v.SetDefault("ip-hibernate-idle-ms", 600_000)
	v.SetDefault("path-hibernate-idle-ms", 600_000)
	v.SetDefault("compact-hibernated-after-hours", 24)
	v.SetDefault("bloom-expected-elements", 10_000)
	v.SetDefault("bloom-false-positive-rate", 0.01)
	v.SetDefault("exact-reservoir-cap", 1000)

	v.SetDefault("memory-limit-bytes", int64(512*1024*1024))
	v.SetDefault("memory-poll-interval-seconds", 5)

	v.SetDefault("snapshot-path", "")
	v.SetDefault("snapshot-interval-seconds", 300)

	v.SetDefault("throttle-duration-seconds", 10)
	v.SetDefault("throttle-max-intervening-alerts", 100)
	v.SetDefault("recent-alerts-ring-capacity", 50)
	v.SetDefault("alert-queue-capacity", 10_000)

	v.SetDefault("file-dispatcher-enabled", true)
	v.SetDefault("file-dispatcher-path", "alerts.ndjson")
	v.SetDefault("syslog-dispatcher-enabled", false)
	v.SetDefault("syslog-address", "127.0.0.1:514")
	v.SetDefault("http-dispatcher-enabled", false)
	v.SetDefault("webhook-url", "")
	v.SetDefault("http-dispatcher-pool-size", 10)
	v.SetDefault("http-dispatcher-max-requests-per-conn", 1000)
	v.SetDefault("http-dispatcher-insecure-skip-verify", true)
	v.SetDefault("http-connect-timeout-seconds", 5)
	v.SetDefault("http-read-timeout-seconds", 30)

	v.SetDefault("feature-count", 32)
	v.SetDefault("feature-metadata-file", "")
	v.SetDefault("model-threshold", 0.5)
	v.SetDefault("feature-cache-ttl-seconds", 30)

	v.SetDefault("tier4-enabled", false)
	v.SetDefault("promql-endpoint", "")
	v.SetDefault("promql-templates", map[string]string{})
	v.SetDefault("promql-poll-interval-seconds", 30)
	v.SetDefault("circuit-breaker-threshold", 5)
	v.SetDefault("circuit-breaker-timeout-seconds", 30)

	v.SetDefault("batch-size", 1000)
	v.SetDefault("log-file-path", "")
	v.SetDefault("db-conn-string", "")
	v.SetDefault("db-cursor-state-file", "dbcursor.offset")
}

// Validate refuses to start the process when a mandatory field is
// missing or malformed (spec.md §7 FatalConfig).
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	ok := false
	for _, lvl := range validLogLevels {
		if c.LogLevel == lvl {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: invalid log-level: %s, must be one of %v", errs.ErrFatalConfig, c.LogLevel, validLogLevels)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d, must be between 1 and 65535", errs.ErrFatalConfig, c.Port)
	}

	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("%w: invalid z-score-threshold: %v, must be positive", errs.ErrFatalConfig, c.ZScoreThreshold)
	}

	if c.SessionTrackingEnabled && len(c.SessionKeyFields) == 0 {
		return fmt.Errorf("%w: session-key-fields must be non-empty when session-tracking-enabled", errs.ErrFatalConfig)
	}

	return nil
}

// SlidingWindowDuration returns the configured sliding window as a
// time.Duration.
func (c *Config) SlidingWindowDuration() time.Duration {
	return time.Duration(c.SlidingWindowSeconds) * time.Second
}
