package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FxRollup/internal/domain/models"
	domrepo "FxRollup/internal/domain/repository"
	"FxRollup/internal/handler/api"
	"FxRollup/internal/middleware"
	internalrepo "FxRollup/internal/repository"
	svcmetrics "FxRollup/internal/service/metrics"
	"FxRollup/internal/services/quality"
	"FxRollup/internal/services/rollup"
	"FxRollup/internal/services/sessions"
	"FxRollup/internal/usecase"
	"FxRollup/pkg/cache"
	pkgch "FxRollup/pkg/clickhouse"
	"FxRollup/pkg/config"
	xhttp "FxRollup/pkg/http"
	pkgkafka "FxRollup/pkg/kafka"
	applogger "FxRollup/pkg/logger"
	"FxRollup/pkg/metrics"
	"FxRollup/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	kafkago "github.com/segmentio/kafka-go"
)

// Stores groups the time-series stores of the selected backend.
type Stores struct {
	Bars      domrepo.BarStore
	Rollups   domrepo.RollupStore
	Snapshots domrepo.SnapshotStore
	// Ping checks the backend for readiness; nil for the memory backend.
	Ping func(ctx context.Context) error
}

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvidePrometheus builds the registry served on /metrics and points every
// package-level collector at it.
func ProvidePrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pkgkafka.SetMetricsRegisterer(reg)
	svcmetrics.Register(reg)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideStores opens ClickHouse (creating the schema) or falls back to the
// in-memory stores for the "memory" backend.
func ProvideStores(cfg *config.Config, l *applogger.Logger) (*Stores, func(), error) {
	if cfg.Backend.Type == "memory" {
		l.Warn("using in-memory stores; data is lost on exit")
		return &Stores{
			Bars:      internalrepo.NewMemoryBarStore(),
			Rollups:   internalrepo.NewMemoryRollupStore(),
			Snapshots: internalrepo.NewMemorySnapshotStore(),
		}, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	ran, err := client.Migrate(ctx, internalrepo.ClickHouseMigrations(client.Database()))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse migrate: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", client.Database()), applogger.Int("migrations_applied", ran))

	stores := &Stores{
		Bars:      internalrepo.NewCHBarStore(client),
		Rollups:   internalrepo.NewCHRollupStore(client, l),
		Snapshots: internalrepo.NewCHSnapshotStore(client, l),
		Ping:      client.Health,
	}
	return stores, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close", applogger.Error(err))
		}
	}, nil
}

// ProvideSessionStore opens the SQLite session database, or returns nil to
// keep definitions in memory only.
func ProvideSessionStore(cfg *config.Config, l *applogger.Logger) (domrepo.SessionStore, func(), error) {
	if cfg.SQLite.Path == "" {
		return nil, func() {}, nil
	}
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	store, err := internalrepo.OpenSQLiteSessionStore(context.Background(), cfg.SQLite.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			l.Warn("sqlite close", applogger.Error(err))
		}
	}, nil
}

// SeedDefinitions converts config seeds into session definitions.
func SeedDefinitions(seeds []config.SessionSeed) []models.SessionDefinition {
	out := make([]models.SessionDefinition, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, models.SessionDefinition{
			ID:           s.ID,
			SymbolScope:  s.Symbol,
			Name:         s.Name,
			Timezone:     s.Timezone,
			LocalStart:   s.Start,
			LocalEnd:     s.End,
			Enabled:      s.IsEnabled(),
			MinFillRatio: s.FillRatio(),
			MinBarsAbs:   s.MinBarsAbs,
		})
	}
	return out
}

func ProvideRegistry(cfg *config.Config, store domrepo.SessionStore, l *applogger.Logger) (*sessions.Registry, error) {
	r := sessions.NewRegistry(store, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Load(ctx, SeedDefinitions(cfg.Sessions)); err != nil {
		return nil, err
	}
	return r, nil
}

// ProvideCache layers a local cache over Redis when Redis is enabled;
// otherwise everything, including the refresh lock, stays in process.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mem := cache.NewMemoryCache(0)
		return mem, func() { _ = mem.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis ready", applogger.String("host", cfg.Redis.Host))
	return cache.NewLayeredCache(rc, 10000), func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close", applogger.Error(err))
		}
	}, nil
}

func ProvideEngine(cfg *config.Config, stores *Stores, registry *sessions.Registry, m domrepo.Metrics, l *applogger.Logger) *rollup.Engine {
	policies := rollup.DefaultPolicies()
	for _, o := range cfg.Rollup.Policies {
		policies.Override(domrepo.Resolution(o.Resolution), domrepo.Mode(o.Mode), rollup.Policy{
			Lag: o.Lag, Every: o.Every, Horizon: o.Horizon,
		})
	}
	return rollup.NewEngine(stores.Bars, stores.Rollups, registry,
		rollup.WithPolicies(policies),
		rollup.WithExpectedCache(sessions.NewExpectedCache(cfg.Rollup.ExpectedCacheSize)),
		rollup.WithMetrics(m),
		rollup.WithLogger(l),
	)
}

func ProvideGate(stores *Stores, m domrepo.Metrics) *quality.Gate {
	return quality.NewGate(stores.Rollups, m)
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, _ *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, func() { _ = p.Close() }, nil
}

func ProvideReportPublisher(cfg *config.Config, p *pkgkafka.Producer) domrepo.ReportPublisher {
	if p == nil || cfg.Kafka.ReportTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaReportPublisher(p, cfg.Kafka.ReportTopic)
}

func ProvideRefresher(
	cfg *config.Config,
	registry *sessions.Registry,
	stores *Stores,
	gate *quality.Gate,
	c cache.Service,
	pub domrepo.ReportPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.SnapshotRefresher {
	opts := []usecase.RefresherOption{
		usecase.WithLocker(c, cfg.Snapshot.LockTTL),
		usecase.WithQueryCache(c),
		usecase.WithRefreshMetrics(m),
		usecase.WithRefreshLogger(l),
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	return usecase.NewSnapshotRefresher(registry, stores.Rollups, stores.Snapshots, gate, opts...)
}

func ProvideRollupsUseCase(cfg *config.Config, engine *rollup.Engine, stores *Stores, c cache.Service, l *applogger.Logger) *usecase.RollupsUseCase {
	return usecase.NewRollupsUseCase(engine, stores.Snapshots, c, cfg.Snapshot.QueryCacheTTL, l)
}

func ProvideQualityUseCase(cfg *config.Config, gate *quality.Gate, registry *sessions.Registry, stores *Stores) *usecase.QualityUseCase {
	return usecase.NewQualityUseCase(gate, registry, stores.Bars, cfg.Quality.SkipWeekends)
}

func ProvideScheduler(cfg *config.Config, engine *rollup.Engine, refresher *usecase.SnapshotRefresher, l *applogger.Logger) *usecase.RollupScheduler {
	return usecase.NewRollupScheduler(engine, refresher, cfg.Snapshot.RefreshEvery, cfg.Rollup.RefreshTimeout, l)
}

func ProvideAPIHandler(
	cfg *config.Config,
	rollups *usecase.RollupsUseCase,
	quality *usecase.QualityUseCase,
	sessionsUC *usecase.SessionsUseCase,
	refresher *usecase.SnapshotRefresher,
	stores *Stores,
	l *applogger.Logger,
) *api.Handler {
	h := api.NewHandler(rollups, quality, sessionsUC, refresher, cfg.Snapshot.RefreshRate, l)
	if stores.Ping != nil {
		h.WithReadinessCheck("clickhouse", stores.Ping)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(reg, path),
		xhttp.WithLogger(l),
	)
}

// ProvideBarBatcher groups bar feed writes into larger store inserts.
// It returns nil when no bar topic is consumed.
func ProvideBarBatcher(cfg *config.Config, stores *Stores, m domrepo.Metrics) (*middleware.BarBatcher, func()) {
	if !cfg.Kafka.Enabled || cfg.Kafka.BarsTopic == "" {
		return nil, func() {}
	}
	b := middleware.NewBarBatcher(stores.Bars, m,
		middleware.WithMaxBatch(cfg.Kafka.BarsBatch.MaxBars),
		middleware.WithLinger(cfg.Kafka.BarsBatch.Linger),
	)
	b.Start(context.Background())
	return b, b.Stop
}

// ProvideKafkaConsumer subscribes to refresh commands and, when configured,
// to the one-minute bar feed. It returns nil when Kafka is disabled.
func ProvideKafkaConsumer(
	cfg *config.Config,
	refresher *usecase.SnapshotRefresher,
	batcher *middleware.BarBatcher,
	m domrepo.Metrics,
	l *applogger.Logger,
	_ *prometheus.Registry,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.RegisterHandler(usecase.NewKafkaRefreshHandler(cfg.Kafka.RefreshTopic, refresher, m, l))
	if batcher != nil {
		c.RegisterHandler(usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, batcher, m))
	}
	c.WithConsumerHook(pkgkafka.HookFuncs{
		Before: pkgkafka.TraceHook.Before,
		Err: func(ctx context.Context, topic string, _ kafkago.Message, _ []byte, err error) {
			m.RecordError("kafka_" + topic)
			l.Warn("kafka handler gave up",
				applogger.String("topic", topic),
				applogger.String("trace_id", pkgkafka.TraceID(ctx)),
				applogger.Error(err))
		},
	})
	return c, nil
}

func ProvideExporter(stores *Stores) *internalrepo.ParquetExporter {
	return internalrepo.NewParquetExporter(stores.Snapshots)
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *rollup.Engine,
	refresher *usecase.SnapshotRefresher,
	scheduler *usecase.RollupScheduler,
	consumer *pkgkafka.Consumer,
	exporter *internalrepo.ParquetExporter,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, engine, refresher, scheduler, consumer, exporter, srv)
}
