// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/playwatch/internal/activity"
	"github.com/tomtom215/playwatch/internal/api"
	"github.com/tomtom215/playwatch/internal/audit"
	"github.com/tomtom215/playwatch/internal/auth"
	"github.com/tomtom215/playwatch/internal/config"
	"github.com/tomtom215/playwatch/internal/database"
	"github.com/tomtom215/playwatch/internal/dispatch"
	"github.com/tomtom215/playwatch/internal/history"
	"github.com/tomtom215/playwatch/internal/logging"
	"github.com/tomtom215/playwatch/internal/models"
	"github.com/tomtom215/playwatch/internal/notify"
	"github.com/tomtom215/playwatch/internal/reconciler"
	"github.com/tomtom215/playwatch/internal/supervisor"
	"github.com/tomtom215/playwatch/internal/supervisor/services"
	plexsync "github.com/tomtom215/playwatch/internal/sync"
	"github.com/tomtom215/playwatch/internal/wal"
	ws "github.com/tomtom215/playwatch/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	issueToken := flag.String("issue-token", "", "print an admin API token for the given name and exit")
	flag.Parse()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		return
	}

	logging.Info().
		Str("plex_url", cfg.Plex.URL).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("realtime", cfg.Plex.RealtimeEnabled).
		Msg("Starting Playwatch with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	var (
		spool      *wal.BadgerWAL
		spoolSink  history.Spool
		historyCfg = historyConfig(cfg)
	)
	if cfg.WAL.Enabled {
		spool, err = wal.Open(spoolConfig(cfg))
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open history spool")
		}
		defer func() {
			if err := spool.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing history spool")
			}
		}()
		spoolSink = spool
		logging.Info().Str("path", cfg.WAL.Path).Msg("History spool enabled")
	} else {
		logging.Warn().Msg("History spool disabled, failed writes are retried in memory only")
	}

	natsComponents, err := InitNATS(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}

	writer := history.NewWriter(db, spoolSink, historyCfg)

	engine, err := notify.NewEngine(cfg.Notify, notify.DefaultAgents(natsComponents.ActionPublisher()), db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid notifier configuration")
	}
	logging.Info().Strs("notifiers", engine.Notifiers()).Msg("Notification engine ready")

	historyPool := dispatch.NewPool(dispatch.Config{
		Name:      "history",
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	})
	eventsPool := dispatch.NewPool(dispatch.Config{
		Name:      "events",
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	})
	fanout := dispatch.NewFanout(historyPool, eventsPool, cfg.Workers.BlockTimeout)
	fanout.Register(writer, true)
	fanout.Register(engine, false)
	liveHub := ws.NewHub(cfg.Workers.QueueSize)
	fanout.Register(liveHub, false)
	if mirror := natsComponents.Mirror(); mirror != nil {
		fanout.Register(mirror, false)
		logging.Info().Msg("Transition mirror enabled")
	}

	machine := activity.NewMachine(activity.Config{
		QueueSize:   cfg.Activity.QueueSize,
		GraceWindow: cfg.Activity.GraceWindow,
		Rules: activity.Rules{
			WatchedThreshold:  cfg.History.WatchedThreshold,
			MaxLookupAttempts: cfg.Activity.MaxLookupAttempts,
			NewID:             uuid.NewString,
		},
	}, fanout)
	liveHub.SetSnapshotSource(func() []models.Session { return machine.Snapshot().Sessions })

	plexClient := plexsync.NewPlexClient(&cfg.Plex)
	media := plexsync.NewCachedMediaLookup(plexClient, cfg.Plex.MediaCacheSize, cfg.Plex.MediaCacheTTL)
	source := plexsync.NewPlexSource(&cfg.Plex, plexClient, media, cfg.Activity.DebounceInterval)
	n, err := plexsync.CheckSource(context.Background(), source, cfg.Plex.RequestTimeout)
	if err != nil {
		logging.Fatal().Err(err).Str("plex_url", cfg.Plex.URL).Msg("Failed to acquire Plex event source")
	}
	logging.Info().Int("active_sessions", n).Msg("Plex event source reachable")

	poller := plexsync.NewSessionPoller(source, machine, cfg.Plex.PollInterval)
	rec := reconciler.New(reconciler.Config{
		StaleTimeout:   cfg.Activity.StaleTimeout,
		Interval:       cfg.Activity.ReconcileInterval,
		Realtime:       cfg.Plex.RealtimeEnabled,
		BackoffInitial: cfg.Activity.FeedBackoffInitial,
		BackoffMax:     cfg.Activity.FeedBackoffMax,
	}, source, machine)

	handler := api.NewHandler(machine, db, engine, api.HandlerConfig{
		WatchedThreshold: cfg.History.WatchedThreshold,
		Grouping:         historyCfg.Grouping,
	})
	handler.SetFeedStatus(rec)
	handler.SetLiveHub(liveHub, cfg.Security.CORSOrigins)
	if spool != nil {
		handler.SetSpoolStats(spool)
	}
	if natsComponents != nil {
		handler.SetBusStatus(natsComponents)
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		auditLog = audit.NewLogger(newAuditStore(db), cfg.Audit)
		handler.SetAudit(auditLog)
	}

	authMW := newAuthMiddleware(cfg)
	warnInsecureSettings(cfg)

	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)), authMW)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	treeCfg := supervisor.DefaultTreeConfig()
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if spool != nil {
		tree.AddDataService(services.NewSpoolGCService(spool, cfg.WAL.GCInterval))
	}

	if auditLog != nil {
		tree.AddDataService(auditLog)
	}

	tree.AddPipelineService(machine)
	tree.AddPipelineService(historyPool)
	tree.AddPipelineService(eventsPool)
	tree.AddPipelineService(liveHub)
	if spool != nil {
		tree.AddPipelineService(wal.NewRetryLoop(spool, writer))
	}

	tree.AddIngestService(poller)
	tree.AddIngestService(rec)

	if natsComponents != nil {
		tree.AddMessagingService(services.NewBusService(natsComponents, 10*time.Second))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		shutdown(tree, machine, []*dispatch.Pool{historyPool, eventsPool}, engine, cfg.Workers.DrainTimeout)
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if spool != nil {
		st := spool.Stats()
		logging.Info().Int64("pending", st.Pending).Msg("History spool state at exit")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// shutdown stops every producer, lets in-flight transitions finish, records
// the sessions still live, then drains again so those history writes and
// notifications land before the tree is canceled.
func shutdown(tree *supervisor.SupervisorTree, machine *activity.Machine, pools []*dispatch.Pool, engine *notify.Engine, drainTimeout time.Duration) {
	if err := tree.StopIngest(drainTimeout); err != nil {
		logging.Warn().Err(err).Msg("Ingest layer did not stop in time")
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := machine.Sync(ctx); err != nil {
		logging.Warn().Err(err).Msg("Activity machine did not settle")
	}
	drainPools(ctx, pools)

	n, err := machine.FlushAll(ctx, time.Now(), activity.ReasonShutdown)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to flush live sessions")
	} else {
		logging.Info().Int("sessions", n).Msg("Live sessions recorded at shutdown")
	}

	drainPools(ctx, pools)
	if err := engine.Wait(ctx); err != nil {
		logging.Warn().Err(err).Msg("Notification deliveries still running at shutdown")
	}
}

func drainPools(ctx context.Context, pools []*dispatch.Pool) {
	for _, p := range pools {
		if err := p.Drain(ctx); err != nil {
			logging.Warn().Err(err).Int("pending", p.Pending()).Str("pool", p.String()).Msg("Dispatch pool did not drain")
		}
	}
}

func historyConfig(cfg *config.Config) history.Config {
	return history.Config{
		Policy: history.NewRetentionPolicy(cfg.History.MinDuration, cfg.History.DisabledUsers, cfg.History.DisabledLibraries),
		Grouping: history.GroupingRule{
			Window:          cfg.History.GroupingWindow,
			OffsetTolerance: cfg.History.OffsetTolerance,
		},
		MaxWriteAttempts: cfg.History.MaxWriteAttempts,
		WriteTimeout:     cfg.History.WriteTimeout,
		RetryBackoff:     cfg.WAL.RetryBackoff,
	}
}

func spoolConfig(cfg *config.Config) wal.Config {
	wc := wal.DefaultConfig()
	if cfg.WAL.Path != "" {
		wc.Path = cfg.WAL.Path
	}
	wc.SyncWrites = cfg.WAL.SyncWrites
	wc.Compression = cfg.WAL.Compression
	wc.RetryInterval = cfg.WAL.RetryInterval
	wc.RetryBackoff = cfg.WAL.RetryBackoff
	wc.MaxBackoff = cfg.WAL.MaxBackoff
	wc.EntryTTL = cfg.WAL.EntryTTL
	wc.GCInterval = cfg.WAL.GCInterval
	wc.MaxAttempts = cfg.History.MaxWriteAttempts
	return wc
}

// newAuditStore falls back to memory when the audit table cannot be created.
func newAuditStore(db *database.DB) audit.Store {
	store := audit.NewDuckDBStore(db.Conn())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.CreateTable(ctx); err != nil {
		logging.Error().Err(err).Msg("Audit table unavailable, keeping audit events in memory")
		return audit.NewMemoryStore(0)
	}
	return store
}

func newAuthMiddleware(cfg *config.Config) *auth.Middleware {
	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == auth.ModeJWT {
		var err error
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		logging.Info().Msg("JWT authentication enabled")
	}
	return auth.NewMiddleware(jwtManager, cfg.Security.AuthMode, api.WriteError)
}

func printToken(cfg *config.Config, name string) error {
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}
	token, err := jwtManager.GenerateToken(name, auth.RoleAdmin)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func warnInsecureSettings(cfg *config.Config) {
	if cfg.Security.AuthMode == auth.ModeNone {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  The admin API can flush sessions and purge history.")
		logging.Warn().Msg("  Only use this mode on an isolated network.")
		logging.Warn().Msg("============================================================")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: CORS is configured with wildcard origin (CORS_ORIGINS=*)")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  RECOMMENDED: Set specific origins in production:")
		logging.Warn().Msg("    CORS_ORIGINS=https://yourdomain.com")
		logging.Warn().Msg("============================================================")
	}
}
