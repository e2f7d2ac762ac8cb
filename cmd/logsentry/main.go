// Command logsentry runs the anomaly-detection pipeline: it reads
// access-log records from a configured source, enriches each one
// through the analysis engine, evaluates the detection cascade, and
// fans out resulting alerts to the configured dispatchers, while
// serving an operational HTTP surface alongside it.
// Grounded on the teacher's main.go (two goroutines racing a data
// server and a metrics server under one process) and
// original_source/src/core/pipeline.{hpp,cpp}'s top-level wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crlsmrls/logsentry/config"
	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/alert/dispatch"
	"github.com/crlsmrls/logsentry/internal/analysis"
	"github.com/crlsmrls/logsentry/internal/api"
	"github.com/crlsmrls/logsentry/internal/errs"
	"github.com/crlsmrls/logsentry/internal/external"
	"github.com/crlsmrls/logsentry/internal/memory"
	"github.com/crlsmrls/logsentry/internal/ml"
	"github.com/crlsmrls/logsentry/internal/rules"
	"github.com/crlsmrls/logsentry/internal/snapshot"
	"github.com/crlsmrls/logsentry/internal/source"
	"github.com/crlsmrls/logsentry/internal/state"
	"github.com/crlsmrls/logsentry/logger"
	"github.com/crlsmrls/logsentry/metrics"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logsentry: config error:", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.InitMetrics()

	ipStateCfg := state.PerIPStateConfig{
		MaxWindowElements:       cfg.MaxWindowElements,
		DefaultWindowDurationMs: int64(cfg.SlidingWindowSeconds) * 1000,
		BloomExpectedElements:   cfg.BloomExpectedElements,
		BloomFalsePositiveRate:  cfg.BloomFalsePositiveRate,
		ExactReservoirCap:       cfg.ExactReservoirCap,
	}

	store := state.NewStore(state.StoreConfig{
		IPState: ipStateCfg,
		PathState: state.PerPathStateConfig{
			MaxWindowElements:       cfg.MaxWindowElements,
			DefaultWindowDurationMs: int64(cfg.SlidingWindowSeconds) * 1000,
			BloomExpectedElements:   cfg.BloomExpectedElements,
			BloomFalsePositiveRate:  cfg.BloomFalsePositiveRate,
		},
		SessionState: state.PerSessionStateConfig{
			BloomExpectedElements:  cfg.BloomExpectedElements,
			BloomFalsePositiveRate: cfg.BloomFalsePositiveRate,
			WindowDurationMs:       int64(cfg.SlidingWindowSeconds) * 1000,
			MaxWindowElements:      cfg.MaxWindowElements,
		},
		InitialIPCapacity:      1024,
		InitialPathCapacity:    256,
		InitialSessionCapacity: 1024,
		SessionInactivityTTLMs: int64(cfg.SessionInactivityTTLSeconds) * 1000,
	})

	if cfg.SnapshotPath != "" {
		restoreSnapshot(cfg.SnapshotPath, store, ipStateCfg)
	}

	memManager := memory.New(memory.Config{
		LimitBytes:   cfg.MemoryLimitBytes,
		PollInterval: time.Duration(cfg.MemoryPollIntervalSeconds) * time.Second,
	})
	memManager.Register(memory.NewIPTableComponent(store, cfg.IPHibernateIdleMs, int64(cfg.CompactHibernatedAfterHours)*3600_000))
	memManager.Register(memory.NewPathTableComponent(store, cfg.PathHibernateIdleMs, int64(cfg.CompactHibernatedAfterHours)*3600_000))
	memManager.Register(memory.NewSessionTableComponent(store, int64(cfg.SessionInactivityTTLSeconds)*1000, int64(cfg.CompactHibernatedAfterHours)*3600_000))

	var featureMeta *ml.Metadata
	if cfg.FeatureMetadataFile != "" {
		featureMeta, err = ml.LoadMetadata(cfg.FeatureMetadataFile)
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.FeatureMetadataFile).Msg("failed to load feature metadata, using identity normalization")
			featureMeta = ml.DefaultMetadata()
		}
	} else {
		featureMeta = ml.DefaultMetadata()
	}
	featureManager := ml.NewFeatureManager(featureMeta, ml.FeatureManagerConfig{
		CacheTTL: time.Duration(cfg.FeatureCacheTTLSeconds) * time.Second,
	})
	memManager.Register(memory.NewFeatureManagerComponent(featureManager))

	modelManager := ml.NewModelManager(
		ml.ModelManagerConfig{ScoreThreshold: cfg.ModelThreshold},
		featureManager,
		ml.StubModel("isolation-forest-stub"),
	)

	ruleEngine := rules.NewEngine(
		rules.Tier1Config{
			MaxRequestsPerIPInWindow:     cfg.MaxRequestsPerIPInWindow,
			MaxFailedLoginsPerIP:         cfg.MaxFailedLoginsPerIP,
			MaxUniqueUAsPerIPInWindow:    cfg.MaxUniqueUAsPerIPInWindow,
			ScoreRateExceeded:            cfg.ScoreRateExceeded,
			ScoreMissingUA:               cfg.ScoreMissingUA,
			ScoreOutdatedBrowser:         cfg.ScoreOutdatedBrowser,
			ScoreKnownBadUA:              cfg.ScoreKnownBadUA,
			ScoreHeadlessBrowser:         cfg.ScoreHeadlessBrowser,
			ScoreUACycling:               cfg.ScoreUACycling,
			ScoreSuspiciousPath:          cfg.ScoreSuspiciousPath,
			ScoreSensitivePath:           cfg.ScoreSensitivePath,
			ScoreSensitivePathNewIP:      cfg.ScoreSensitivePathNewIP,
			MinHTMLRequestsForRatioCheck: cfg.MinHTMLRequestsForRatioCheck,
			MinAssetsPerHTMLRatio:        cfg.MinAssetsPerHTMLRatio,
			ScoreScraperRatio:            cfg.ScoreScraperRatio,
			SessionTrackingEnabled:       cfg.SessionTrackingEnabled,
			MaxFailedLoginsPerSession:    cfg.MaxFailedLoginsPerSession,
			MaxRequestsPerSession:        cfg.MaxRequestsPerSession,
			MaxUAChangesPerSession:       cfg.MaxUAChangesPerSession,
			ScoreSessionFailedLogins:     cfg.ScoreSessionFailedLogins,
			ScoreSessionRequestVolume:    cfg.ScoreSessionRequestVolume,
			ScoreSessionUAChanges:        cfg.ScoreSessionUAChanges,
		},
		rules.Tier2Config{
			MinSamplesForZScore: cfg.MinSamplesForZScore,
			ZScoreThreshold:     cfg.ZScoreThreshold,
		},
		modelManager,
	)

	engine := analysis.NewEngine(analysis.Config{
		FailedLoginStatusCodes:   cfg.FailedLoginStatusCodes,
		MaxUniqueUAsPerIPInWindow: cfg.MaxUniqueUAsPerIPInWindow,
		SuspiciousPathSubstrings: cfg.SuspiciousPathSubstrings,
		SensitivePathSubstrings:  cfg.SensitivePathSubstrings,
		UAClassifier: analysis.UAClassifierConfig{
			KnownBadSubstrings:     cfg.KnownBadUASubstrings,
			HeadlessSubstrings:     cfg.HeadlessUASubstrings,
			ChromeMinMajorVersion:  cfg.ChromeMinMajorVersion,
			FirefoxMinMajorVersion: cfg.FirefoxMinMajorVersion,
		},
		PathClassifier: analysis.PathClassifierConfig{
			HTMLPathSuffixes:  cfg.HTMLPathSuffixes,
			HTMLExactPaths:    cfg.HTMLExactPaths,
			AssetPathPrefixes: cfg.AssetPathPrefixes,
			AssetPathSuffixes: cfg.AssetPathSuffixes,
		},
		SessionTrackingEnabled: cfg.SessionTrackingEnabled,
		SessionKeyFields:       cfg.SessionKeyFields,
		MinSamplesForZScore:    cfg.MinSamplesForZScore,
		ZScoreThreshold:        cfg.ZScoreThreshold,
		FeatureManager:         featureManager,
	}, store)

	dispatchers, closers := buildDispatchers(cfg)
	defer closeAll(closers)

	alertLogger := log.Logger
	alertManager := alert.NewManager(alert.ManagerConfig{
		ThrottleDurationMs:     int64(cfg.ThrottleDurationSeconds) * 1000,
		ThrottleMaxIntervening: cfg.ThrottleMaxIntervening,
		RecentAlertsCapacity:   cfg.RecentAlertsRingCapacity,
		QueueCapacity:          cfg.AlertQueueCapacity,
		OutputToStdout:         true,
	}, dispatchers, alertLogger)
	wireAlertMetrics(alertManager)

	var criticalPressure atomic.Bool
	memManager.OnLevelChange(func(level memory.PressureLevel) {
		engine.SetPressureMode(level >= memory.PressureHigh, time.Now().UnixMilli(), cfg.IPHibernateIdleMs, cfg.PathHibernateIdleMs)
		criticalPressure.Store(level >= memory.PressureCritical)
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		alertManager.Run()
	}()

	memManager.Start(ctx)

	if cfg.Tier4Enabled {
		correlator := buildCorrelator(cfg, alertManager)
		if correlator != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				correlator.Run(ctx)
			}()
		}
	}

	logSource, err := buildSource(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize log source")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runIngestLoop(ctx, logSource, engine, ruleEngine, alertManager, store, cfg, &criticalPressure)
		if err := logSource.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing log source")
		}
	}()

	apiServer := api.New(cfg, api.Deps{
		Registry: registry,
		Alerts:   alertManager,
		Store:    store,
		Memory:   memManager,
		Model:    modelManager,
		TopN:     10,
	}, os.Stdout)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("operational API stopped with error")
		}
	}()

	if cfg.SnapshotPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSnapshotLoop(ctx, cfg.SnapshotPath, time.Duration(cfg.SnapshotIntervalSeconds)*time.Second, store)
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining pipeline")

	memManager.Stop()
	alertManager.Shutdown()
	wg.Wait()

	if cfg.SnapshotPath != "" {
		if err := writeSnapshotFile(cfg.SnapshotPath, store); err != nil {
			log.Error().Err(err).Msg("final snapshot write failed")
		}
	}

	log.Info().Msg("logsentry stopped")
}

// runIngestLoop pulls batches from src, feeds each record through the
// analysis and rule cascade, and records every alert produced, until
// ctx is cancelled. Grounded on
// original_source/src/core/pipeline.cpp's single-threaded batch loop
// (spec.md §4.3, §9).
func runIngestLoop(ctx context.Context, src source.Source, engine *analysis.Engine, ruleEngine *rules.Engine, alertManager *alert.Manager, store *state.Store, cfg *config.Config, criticalPressure *atomic.Bool) {
	ticker := time.NewTicker(time.Duration(cfg.MemoryPollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	parseCounter, countsParseErrors := src.(source.ParseErrorCounter)
	var lastParseErrors int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := src.NextBatch(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("log source batch read failed")
		}

		rejecting := criticalPressure.Load()
		for _, rec := range batch {
			if rejecting {
				metrics.PressureRejectedTotal.WithLabelValues("ips").Inc()
				continue
			}
			metrics.RecordsProcessedTotal.Inc()
			ev := engine.Process(rec)
			for _, a := range ruleEngine.Evaluate(ev) {
				alertManager.RecordAlert(a)
			}
		}
		if rejecting && len(batch) > 0 {
			log.Warn().Err(errs.ErrPressureRejected).Int("dropped", len(batch)).Msg("critical memory pressure, dropping batch")
		}

		if countsParseErrors {
			if total := parseCounter.ParseErrors(); total > lastParseErrors {
				metrics.ParseErrorsTotal.Add(float64(total - lastParseErrors))
				lastParseErrors = total
			}
		}

		select {
		case <-ticker.C:
			now := time.Now().UnixMilli()
			store.Tick(now, cfg.IPHibernateIdleMs, cfg.PathHibernateIdleMs)
		default:
		}

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
			}
		}
	}
}

// restoreSnapshot loads a previously written state snapshot into store
// at startup. A missing file is the expected first-run case and is not
// an error; a present-but-corrupt file is logged and skipped rather
// than treated as fatal, since starting cold is always safe.
func restoreSnapshot(path string, store *state.Store, ipCfg state.PerIPStateConfig) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not open state snapshot")
		}
		return
	}
	defer f.Close()

	n, err := snapshot.Restore(f, store, ipCfg)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not restore state snapshot")
		return
	}
	log.Info().Int("ips", n).Str("path", path).Msg("restored state snapshot")
}

// runSnapshotLoop periodically persists store's per-IP state to path
// until ctx is cancelled.
func runSnapshotLoop(ctx context.Context, path string, interval time.Duration, store *state.Store) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeSnapshotFile(path, store); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("periodic snapshot write failed")
			}
		}
	}
}

// writeSnapshotFile writes store's state to a temp file and renames it
// into place, so a crash mid-write never leaves a truncated snapshot
// for the next restoreSnapshot to trip over.
func writeSnapshotFile(path string, store *state.Store) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if err := snapshot.Write(f, store); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// buildSource picks the configured log source: a resumable Postgres
// cursor when a connection string is set, otherwise a tailed access
// log file.
func buildSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	if cfg.DBConnString != "" {
		return source.NewDBCursorSource(ctx, source.DBCursorConfig{
			ConnString: cfg.DBConnString,
			StateFile:  cfg.DBCursorStateFile,
			BatchSize:  cfg.BatchSize,
		})
	}
	if cfg.LogFilePath == "" {
		return nil, fmt.Errorf("main: neither db-conn-string nor log-file-path is configured")
	}
	return source.NewFileTailSource(cfg.LogFilePath, cfg.BatchSize)
}

// buildDispatchers constructs every enabled alert dispatcher from
// cfg, returning both the alert.Dispatcher slice and the close
// functions to call on shutdown.
func buildDispatchers(cfg *config.Config) ([]alert.Dispatcher, []func() error) {
	var dispatchers []alert.Dispatcher
	var closers []func() error

	if cfg.FileDispatcherEnabled {
		d, err := dispatch.NewFileDispatcher(cfg.FileDispatcherPath)
		if err != nil {
			log.Error().Err(err).Msg("failed to start file alert dispatcher")
		} else {
			dispatchers = append(dispatchers, d)
			closers = append(closers, d.Close)
		}
	}

	if cfg.SyslogDispatcherEnabled {
		d, err := dispatch.NewSyslogDispatcher(cfg.SyslogAddress)
		if err != nil {
			log.Error().Err(err).Msg("failed to start syslog alert dispatcher")
		} else {
			dispatchers = append(dispatchers, d)
			closers = append(closers, d.Close)
		}
	}

	if cfg.HTTPDispatcherEnabled && cfg.WebhookURL != "" {
		if cfg.HTTPDispatcherInsecureSkipVerify {
			log.Warn().Msg("HTTP alert dispatcher has TLS certificate verification disabled (insecure_skip_verify)")
		}
		d := dispatch.NewHTTPDispatcher(dispatch.HTTPDispatcherConfig{
			URL:                cfg.WebhookURL,
			PoolSize:           cfg.HTTPDispatcherPoolSize,
			MaxRequestsPerConn: cfg.HTTPDispatcherMaxRequestsPerConn,
			ConnectTimeout:     time.Duration(cfg.HTTPConnectTimeoutSeconds) * time.Second,
			ReadTimeout:        time.Duration(cfg.HTTPReadTimeoutSeconds) * time.Second,
			InsecureSkipVerify: cfg.HTTPDispatcherInsecureSkipVerify,
		})
		dispatchers = append(dispatchers, d)
	}

	return dispatchers, closers
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("error closing alert dispatcher")
		}
	}
}

// buildCorrelator wires Tier 4 external correlation from
// cfg.PromQLTemplates, or returns nil if no templates are configured.
func buildCorrelator(cfg *config.Config, alertManager *alert.Manager) *external.Correlator {
	if len(cfg.PromQLTemplates) == 0 || cfg.PromQLEndpoint == "" {
		log.Warn().Msg("tier4-enabled is set but no promql-endpoint/templates configured, skipping Tier 4")
		return nil
	}

	client := external.NewClient(external.ClientConfig{
		BaseURL:                 cfg.PromQLEndpoint,
		CircuitBreakerThreshold: cfg.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   time.Duration(cfg.CircuitBreakerTimeoutSeconds) * time.Second,
	})

	var rulesCfg []external.ThresholdRule
	for name, template := range cfg.PromQLTemplates {
		client.AddTemplate(name, template)
		rulesCfg = append(rulesCfg, external.ThresholdRule{
			TemplateName: name,
			Threshold:    0,
			Above:        true,
			Reason:       name,
		})
	}

	return external.NewCorrelator(
		external.CorrelatorConfig{PollInterval: time.Duration(cfg.PromQLPollIntervalSeconds) * time.Second},
		client,
		rulesCfg,
		log.Logger,
		alertManager.RecordAlert,
	)
}

// wireAlertMetrics hooks the alert manager's processed/dispatch
// callbacks into the Prometheus registry, keeping internal/alert free
// of a direct metrics import (mirrors rules.Scorer's separation).
func wireAlertMetrics(m *alert.Manager) {
	m.OnProcessed(func(a *alert.Alert, cause alert.ThrottleCause) {
		if cause != alert.ThrottleNone {
			metrics.AlertsThrottledTotal.WithLabelValues(cause.String(), a.Tier.String()).Inc()
			return
		}
		metrics.AlertsEmittedTotal.WithLabelValues(a.Tier.String(), a.Action.String()).Inc()
		metrics.RecentAlertsCount.Inc()
	})
	m.OnDispatch(func(sink string, a *alert.Alert, latency time.Duration, err error) {
		metrics.DispatchAttemptsTotal.WithLabelValues(sink).Inc()
		metrics.DispatchLatencySeconds.WithLabelValues(sink).Observe(latency.Seconds())
		if err != nil {
			metrics.DispatchFailuresTotal.WithLabelValues(sink).Inc()
			return
		}
		metrics.DispatchSuccessTotal.WithLabelValues(sink).Inc()
	})
}
