package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/thriveup/internal/api"
	"github.com/matheus3301/thriveup/internal/backend"
	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/chat"
	"github.com/matheus3301/thriveup/internal/config"
	"github.com/matheus3301/thriveup/internal/lock"
	"github.com/matheus3301/thriveup/internal/logging"
	"github.com/matheus3301/thriveup/internal/metrics"
	"github.com/matheus3301/thriveup/internal/notify"
	"github.com/matheus3301/thriveup/internal/outbox"
	"github.com/matheus3301/thriveup/internal/session"
	"github.com/matheus3301/thriveup/internal/store"
	"github.com/matheus3301/thriveup/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServiceName identifies the daemon in logs and broker envelopes.
const ServiceName = "thrived"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = resolve from ~/.thriveup
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBackend,
			provideChatManager,
			provideSynchronizer,
			providePublisher,
			provideOutbox,
			provideBridge,
			provideNotificationService,
			NewServer,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.Resolve(session.ConfigPath(), session.EnvPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the settings database is only opened
// by the lock holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.SettingsDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBackend(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*backend.Backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return backend.Open(ctx, cfg, b, logger)
}

func provideChatManager(be *backend.Backend, cfg *config.Config, logger *zap.Logger) *chat.Manager {
	return chat.NewManager(be.Store, cfg.BatchSize, logger.Named("chat"))
}

func provideSynchronizer(be *backend.Backend, chats *chat.Manager, db *store.DB, b *bus.Bus, logger *zap.Logger) *notify.Synchronizer {
	return notify.NewSynchronizer(be.Store, chats, db, b, logger.Named("notify"))
}

func providePublisher(cfg *config.Config, logger *zap.Logger) telemetry.Publisher {
	if cfg.AMQP.URL == "" {
		logger.Info("amqp url not set, notification events stay local")
		return telemetry.NewNoopPublisher(logger)
	}
	pub := telemetry.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err := pub.Connect(); err != nil {
		logger.Warn("failed to connect to rabbitmq, notification events stay local", zap.Error(err))
		return telemetry.NewNoopPublisher(logger)
	}
	return pub
}

func provideOutbox(db *store.DB, pub telemetry.Publisher, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, pub, logger.Named("outbox"))
}

// provideBridge queues notification events in the outbox; the outbox
// sender delivers them to the publisher.
func provideBridge(p Params, b *bus.Bus, db *store.DB, sync *notify.Synchronizer, logger *zap.Logger) *telemetry.Bridge {
	return telemetry.NewBridge(b, outbox.NewQueue(db), func() telemetry.Config {
		return telemetry.Config{Service: ServiceName, Session: p.SessionName, UserID: sync.UserID()}
	}, logger.Named("telemetry"))
}

func provideNotificationService(p Params, sync *notify.Synchronizer, b *bus.Bus, logger *zap.Logger) *api.NotificationService {
	return api.NewNotificationService(p.SessionName, sync, b, logger.Named("api"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	httpSrv *HTTPServer,
	lk *lock.Lock,
	db *store.DB,
	be *backend.Backend,
	sync *notify.Synchronizer,
	bridge *telemetry.Bridge,
	sender *outbox.Sender,
	pub telemetry.Publisher,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			metrics.Register()
			bridge.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			httpSrv.Start()

			uid, ok := be.Identity.CurrentUserID(ctx)
			if !ok {
				logger.Info("no signed-in user, notifications disabled")
				return nil
			}
			return sync.Start(context.Background(), uid)
		},
		OnStop: func(ctx context.Context) error {
			sync.Stop()
			bridge.Stop()
			sender.Stop()
			httpSrv.Stop(ctx)
			srv.Stop(ctx)
			if err := pub.Close(); err != nil {
				logger.Warn("error closing publisher", zap.Error(err))
			}
			if err := be.Close(); err != nil {
				logger.Warn("error closing backend", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
