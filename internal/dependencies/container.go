package dependencies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	client "ScanCleanup/internal/cleanup/clients"
	handler "ScanCleanup/internal/cleanup/handlers"
	runner "ScanCleanup/internal/cleanup/runners"
	"ScanCleanup/internal/config"
	"ScanCleanup/internal/metrics"
	"ScanCleanup/internal/services"
	"ScanCleanup/internal/storage"
)

// Container holds every long-lived dependency of one scancleanup process.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Metrics
	Registry *prometheus.Registry
	Metrics  metrics.Metrics

	// Console
	Console *client.ConsoleClient

	// Storage, all optional
	DB         *pgxpool.Pool
	Redis      *redis.Client
	CycleStore storage.CycleStore
	Publisher  storage.ReportPublisher
	SiteCache  storage.SiteCache

	// Services
	Reports *services.ReportService

	// Handlers
	Sites   *handler.SiteAnnotator
	Loop    *handler.CleanupLoop
	Stopper *handler.StopHandler
	Idle    *handler.IdleWaiter

	// Probes
	Probes    *runner.Factory
	Preflight *runner.Preflight
	Waiter    *runner.ServiceWaiter
}

// NewContainer creates and wires the dependency container. PostgreSQL and
// Redis are only dialled when enabled in the configuration.
func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	if log == nil {
		log = slog.Default()
	}

	container := &Container{
		Config: cfg,
		Logger: log,
	}

	container.initMetrics()

	if err := container.initConsole(); err != nil {
		return nil, err
	}

	if err := container.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := container.initRedis(); err != nil {
		_ = container.Close()
		return nil, err
	}

	container.initStorage()
	container.initServices()
	container.initHandlers()
	container.initProbes()

	log.Debug("dependency container initialized",
		"database", container.DB != nil,
		"redis", container.Redis != nil,
	)
	return container, nil
}

func (c *Container) initMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewPrometheusMetrics("", c.Registry)
}

func (c *Container) initConsole() error {
	console, err := client.NewConsoleClient(client.ClientConfig{
		BaseURL:            c.Config.Console.BaseURL(),
		APIPath:            c.Config.Console.APIPath,
		Username:           c.Config.Console.Username,
		Password:           c.Config.Console.Password,
		CACertPath:         c.Config.Console.CACertPath,
		InsecureSkipVerify: c.Config.Console.InsecureSkipVerify,
		RequestTimeout:     c.Config.Console.RequestTimeout,
	}, c.Logger.With("component", "console_client"))
	if err != nil {
		return fmt.Errorf("failed to create console client: %w", err)
	}

	c.Console = console
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	if !c.Config.Database.Enabled {
		return nil
	}

	db, err := storage.NewPostgres(ctx, &c.Config.Database, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := storage.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	c.DB = db
	return nil
}

func (c *Container) initRedis() error {
	if !c.Config.Redis.Enabled {
		return nil
	}

	rdb, err := storage.NewRedisClient(&c.Config.Redis, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.Redis = rdb
	return nil
}

func (c *Container) initStorage() {
	if c.DB != nil {
		c.CycleStore = storage.NewCycleStore(c.DB)
	}

	if c.Redis != nil {
		prefix := c.Config.Redis.KeyPrefix
		c.Publisher = storage.NewRedisPublisher(c.Redis, prefix, c.Config.Redis.ReportTTL)
		c.SiteCache = storage.NewRedisSiteCache(c.Redis, prefix, c.Config.Redis.SiteCacheTTL)
	}
}

func (c *Container) initServices() {
	c.Reports = services.NewReportService(
		c.CycleStore,
		c.Publisher,
		c.Metrics,
		services.ReportServiceConfig{},
		c.Logger.With("service", "report"),
	)
}

func (c *Container) initHandlers() {
	var cache handler.SiteCache
	if c.SiteCache != nil {
		cache = c.SiteCache
	}
	c.Sites = handler.NewSiteAnnotator(c.Console, cache, c.Logger)

	cleanup := c.Config.Cleanup
	headroom := cleanup.Headroom
	if headroom == 0 {
		headroom = handler.NoHeadroom
	}
	c.Loop = handler.NewCleanupLoop(c.Console, c.Sites, c.Reports, handler.LoopConfig{
		QueueCeiling: cleanup.QueueCeiling,
		Headroom:     headroom,
		Interval:     cleanup.Interval,
		RetryBackoff: cleanup.RetryBackoff,
		CommandRate:  c.Config.Console.CommandRate,
	}, c.Logger)

	c.Stopper = handler.NewStopHandler(c.Console, c.Reports, handler.StopConfig{
		Interval:     cleanup.Interval,
		RetryBackoff: cleanup.RetryBackoff,
		CommandRate:  c.Config.Console.CommandRate,
	}, c.Logger)

	c.Idle = handler.NewIdleWaiter(c.Console, cleanup.IdlePollInterval, cleanup.RetryBackoff, c.Logger)
}

func (c *Container) initProbes() {
	probe := c.Config.Probe
	httpRunner := runner.NewHTTPRunner(probe.Timeout)
	c.Probes = runner.NewFactory(httpRunner, runner.NewTCPRunner(), runner.NewDNSRunner(probe.DNSServer))

	target := runner.ConsoleTarget{
		Host:      c.Config.Console.Host,
		Port:      c.Config.Console.Port,
		Path:      probe.Path,
		VerifySSL: !c.Config.Console.InsecureSkipVerify,
		DNSServer: probe.DNSServer,
	}
	c.Preflight = runner.NewPreflight(c.Probes, target, c.Logger)
	c.Waiter = runner.NewServiceWaiter(httpRunner, runner.WaiterConfig{
		URL:       target.URL(),
		Attempts:  probe.Attempts,
		Interval:  probe.Interval,
		VerifySSL: target.VerifySSL,
	}, c.Logger)
}

// Close releases the storage connections. The Redis client is shared by the
// publisher and the site cache and is closed once.
func (c *Container) Close() error {
	var errs []error

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.Redis = nil
	}

	if c.DB != nil {
		c.DB.Close()
		c.DB = nil
	}

	return errors.Join(errs...)
}
