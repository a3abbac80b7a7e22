package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/meshwatch/internal/api"
	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/ingest"
	"github.com/skobkin/meshwatch/internal/logging"
	"github.com/skobkin/meshwatch/internal/meshcrypto"
	"github.com/skobkin/meshwatch/internal/metrics"
	"github.com/skobkin/meshwatch/internal/notifications"
	"github.com/skobkin/meshwatch/internal/persistence"
	"github.com/skobkin/meshwatch/internal/radio"
	"github.com/skobkin/meshwatch/internal/transport"
)

const (
	httpShutdownTimeout = 5 * time.Second
	httpReadTimeout     = 10 * time.Second
)

// Options tune Initialize. Override runs after the file and environment are applied.
type Options struct {
	ConfigPath string
	Override   func(cfg *config.AppConfig)
}

// Runtime owns every long-lived component of the service.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	DBLock      persistence.Lock
	Repos       domain.Repositories
	WriterQueue *persistence.WriterQueue
	Store       *domain.NetworkStore
	Session     *transport.MQTTSession
	Pipeline    *ingest.Pipeline
	Notifier    *notifications.Service
	Registry    *prometheus.Registry
	Hub         *api.Hub
	HTTPServer  *http.Server

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Logging.LogToFile && cfg.Logging.File == "" {
		cfg.Logging.File = paths.LogFile
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	rt.logger = logMgr.Logger("app")
	rt.logger.Info("starting meshwatch", "version", BuildVersion(), "config", paths.ConfigFile)

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	connSub := b.Subscribe(connectors.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)

	rt.Store = domain.NewNetworkStore()
	if cfg.Storage.Enabled {
		if err := rt.openStorage(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	cipher, err := meshcrypto.NewCipher(cfg.MQTT.EncryptionKey)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize channel cipher: %w", err)
	}
	processor := radio.NewProcessor(cipher, radio.Capabilities{Crypto: cipher.Enabled(), Decode: true})

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = Name + "-" + uuid.NewString()[:8]
	}
	mqttCfg := MQTTSessionConfig(cfg.MQTT, clientID)
	mqttCfg.Logger = logMgr.Logger("transport")
	transport.RouteClientLogs(mqttCfg.Logger)
	rt.Session = transport.NewMQTTSession(mqttCfg)
	rt.Pipeline = ingest.New(logMgr.Logger("ingest"), b, rt.Session, processor, rt.Store, cfg)

	if cfg.Alerts.DesktopNotifications {
		sender := notifications.NewDesktopSender(Name, logMgr.Logger("notifications"))
		rt.Notifier = notifications.NewService(b, sender, notifyMinSeverity, logMgr.Logger("notifications"))
		rt.Notifier.Start(ctx)
	}

	rt.Registry = metrics.NewRegistry(rt.Pipeline, rt.Store)
	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		handler := api.NewHandler(rt.Store, rt.Pipeline, b)
		rt.Hub = api.NewHub(rt.Store, rt.Pipeline, b, cfg.HTTP.CORSOrigins, logMgr.Logger("ws"))
		rt.Hub.Start(ctx)
		router := api.NewRouter(handler, rt.Hub, cfg.HTTP, promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}), logMgr.Logger("http"))
		rt.HTTPServer = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           router,
			ReadHeaderTimeout: httpReadTimeout,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
	}

	return rt, nil
}

func (r *Runtime) openStorage(ctx context.Context) error {
	dbPath := r.Paths.Resolve(r.Config.Storage.Path)
	lock, err := persistence.AcquireLock(dbPath)
	switch {
	case errors.Is(err, persistence.ErrLockUnsupported):
		r.logger.Warn("database lock unavailable, continuing without it", "error", err)
	case err != nil:
		return err
	default:
		r.DBLock = lock
	}

	db, err := persistence.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	r.DB = db
	r.Repos = domain.Repositories{
		Nodes:    persistence.NewNodeRepo(db),
		Routes:   persistence.NewRouteRepo(db),
		Alerts:   persistence.NewAlertRepo(db),
		Messages: persistence.NewMessageRepo(db),
	}
	if err := domain.LoadStoreFromRepositories(ctx, r.Store, r.Repos); err != nil {
		return err
	}
	r.logger.Info("network snapshot loaded", "path", dbPath, "nodes", r.Store.NodeCount())

	r.WriterQueue = persistence.NewWriterQueue(r.LogManager.Logger("persistence"), writerQueueCapacity)
	r.WriterQueue.Start(ctx)
	domain.StartPersistenceProjection(ctx, r.Bus, r.WriterQueue, r.Repos)

	return nil
}

// Run connects to the broker, serves the API and blocks until ctx is done or the HTTP server fails.
func (r *Runtime) Run(parent context.Context) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()
	unregister := context.AfterFunc(r.ctx, stop)
	defer unregister()

	r.Bus.Publish(connectors.TopicConnStatus, InitialConnectionStatus(r.Session, time.Now()))

	errCh := make(chan error, 1)
	if r.HTTPServer != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.logger.Info("http api listening", "addr", r.HTTPServer.Addr)
			if err := r.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	if r.DB != nil {
		r.wg.Add(1)
		go r.runPrune(ctx)
	}

	r.wg.Add(1)
	go r.runInitialConnect(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// runInitialConnect retries the first connect with the reconnect backoff. Once connected, the
// pipeline handles reconnects itself.
func (r *Runtime) runInitialConnect(ctx context.Context) {
	defer r.wg.Done()

	cfg := r.Config.MQTT
	for failures := 0; ; failures++ {
		err := r.Pipeline.Connect(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, ingest.ErrInvalidConfig) {
			r.logger.Error("mqtt connect rejected", "error", err)
			return
		}
		delay := ingest.Jitter(ingest.BackoffDelay(failures, cfg.ReconnectDelay.Std(), cfg.MaxReconnectDelay.Std()))
		r.logger.Warn("mqtt connect failed", "error", err, "attempt", failures+1, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runPrune drops stale nodes and trims the logs in the database on the storage prune interval.
func (r *Runtime) runPrune(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.Config.Storage.PruneInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.enqueuePrune()
		}
	}
}

func (r *Runtime) enqueuePrune() {
	cutoff := time.Now().Add(-r.Config.Ingest.StaleThreshold.Std())
	db := r.DB
	logger := r.logger
	r.WriterQueue.Enqueue("prune_stale", func(writeCtx context.Context) error {
		removed, err := persistence.PruneStale(writeCtx, db, cutoff, domain.MaxMessages, domain.MaxAlerts)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("pruned stale nodes from db", "removed", removed)
		}

		return nil
	})
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

// Close cancels the background work, stops the HTTP server and the pipeline, flushes pending writes and releases resources.
func (r *Runtime) Close() error {
	var errs []error
	if r.cancel != nil {
		r.cancel()
	}
	if r.Hub != nil {
		r.Hub.Close()
	}
	if r.HTTPServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		if err := r.HTTPServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		cancel()
	}
	// A connect attempt still in flight must return before the session is closed.
	r.wg.Wait()
	if r.Pipeline != nil {
		if err := r.Pipeline.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.WriterQueue != nil {
		r.WriterQueue.Wait()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if r.DBLock != nil {
		if err := r.DBLock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release db lock: %w", err))
		}
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return errors.Join(errs...)
}
