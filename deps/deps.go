package deps

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/InVisionApp/go-health"
	"github.com/bsm/redislock"
	"github.com/newrelic/go-agent/v3/integrations/logcontext-v2/nrzap"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/streamdal/rabbit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rohitjsoftype/terminology-api/backends/cache"
	"github.com/rohitjsoftype/terminology-api/backends/db"
	"github.com/rohitjsoftype/terminology-api/backends/state"
	"github.com/rohitjsoftype/terminology-api/config"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
	"github.com/rohitjsoftype/terminology-api/services/importer"
	"github.com/rohitjsoftype/terminology-api/services/processor"
	"github.com/rohitjsoftype/terminology-api/services/publisher"
)

const (
	DefaultHealthCheckIntervalSecs = 1

	StatePrefix = "terminology"
)

type Dependencies struct {
	// Backends
	DBBackend     *db.DB
	CacheBackend  *cache.Cache
	StateBackend  state.IState  // nil unless RedisEnabled
	RabbitBackend rabbit.IRabbit // nil unless RabbitEnabled

	// Services
	CodeSystemService codesystem.ICodeSystem
	ImportService     importer.IImporter
	PublisherService  publisher.IPublisher // nil unless RabbitEnabled
	ProcessorService  processor.IProcessor // nil unless RabbitEnabled

	Health health.IHealth

	ShutdownCtx    context.Context
	ShutdownCancel context.CancelFunc

	// Written to by publisher once it has completed graceful shutdown.
	PublisherDoneCh chan struct{}

	NewRelicApp *newrelic.Application
	Config      *config.Config

	Log     *zap.Logger
	ZapCore zapcore.Core
}

// dbCheck satisfies the go-health ICheckable interface with a live ping.
type dbCheck struct {
	backend *db.DB
}

func (c *dbCheck) Status() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.backend.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "database ping failed")
	}

	return map[string]int{}, nil
}

func New(cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dependencies{
		ShutdownCtx:     ctx,
		ShutdownCancel:  cancel,
		PublisherDoneCh: make(chan struct{}, 1),
		Config:          cfg,
	}

	// NewRelic setup must occur before logging setup
	if err := d.setupNewRelic(); err != nil {
		return nil, errors.Wrap(err, "unable to setup newrelic")
	}

	if err := d.setupLogging(); err != nil {
		return nil, errors.Wrap(err, "unable to setup logging")
	}

	// Pretty print config in dev mode
	if d.Config.LogConfig == "dev" {
		d.LogConfig()
	}

	if err := d.setupBackends(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup backends")
	}

	if err := d.setupHealth(); err != nil {
		return nil, errors.Wrap(err, "unable to setup health")
	}

	if err := d.Health.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start health runner")
	}

	if err := d.setupServices(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to setup services")
	}

	return d, nil
}

func (d *Dependencies) setupNewRelic() error {
	if d.Config.NewRelicAppName == "" || d.Config.NewRelicLicenseKey == "" {
		return nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(d.Config.NewRelicAppName),
		newrelic.ConfigLicense(d.Config.NewRelicLicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigZapAttributesEncoder(true),
	)

	if err != nil {
		return errors.Wrap(err, "unable to create newrelic app")
	}

	if err := app.WaitForConnection(10 * time.Second); err != nil {
		return errors.Wrap(err, "unable to connect to newrelic")
	}

	d.NewRelicApp = app

	return nil
}

// If using New Relic, setupLogging() should be called _after_ setupNewRelic()
func (d *Dependencies) setupLogging() error {
	var core zapcore.Core

	if d.Config.LogConfig == "dev" {
		zc := zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		core = zapcore.NewCore(zapcore.NewConsoleEncoder(zc.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			zap.DebugLevel,
		)
	} else {
		core = zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		)
	}

	if d.NewRelicApp != nil {
		var err error

		core, err = nrzap.WrapBackgroundCore(core, d.NewRelicApp)
		if err != nil {
			return errors.Wrap(err, "unable to wrap zap core with newrelic")
		}
	}

	d.ZapCore = core
	d.Log = zap.New(core).With(zap.String("env", d.Config.EnvName))

	d.Log.Debug("Logging initialized")

	return nil
}

func (d *Dependencies) setupHealth() error {
	logger := d.Log.With(zap.String("method", "setupHealth"))
	logger.Debug("Setting up health")

	gohealth := health.New()
	gohealth.DisableLogging()

	intervalSecs := d.Config.HealthFreqSec
	if intervalSecs <= 0 {
		intervalSecs = DefaultHealthCheckIntervalSecs
	}

	err := gohealth.AddChecks([]*health.Config{
		{
			Name:     "database",
			Checker:  &dbCheck{backend: d.DBBackend},
			Interval: time.Duration(intervalSecs) * time.Second,
			Fatal:    true,
		},
	})

	d.Health = gohealth

	if err != nil {
		return err
	}

	return nil
}

func (d *Dependencies) setupBackends(cfg *config.Config) error {
	llog := d.Log.With(zap.String("method", "setupBackends"))

	// Setup database backend
	llog.Debug("Setting up database backend")

	dbBackend, err := db.New(&db.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup database backend")
	}

	d.DBBackend = dbBackend

	llog.Debug("Running database migrations")
	ctx := context.Background()
	if err := dbBackend.Migrate(ctx, d.Log); err != nil {
		return errors.Wrap(err, "failed to run database migrations")
	}
	llog.Debug("Database migrations completed")

	// Setup cache backend
	llog.Debug("Setting up cache backend")

	cacheBackend, err := cache.New()
	if err != nil {
		return errors.Wrap(err, "unable to setup cache backend")
	}

	d.CacheBackend = cacheBackend

	// Setup state backend (optional)
	if cfg.RedisEnabled {
		llog.Debug("Setting up state backend")

		redisClient := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisURL,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDatabase,
			PoolSize:    cfg.RedisPoolSize,
			DialTimeout: cfg.RedisDialTimeout,
		})

		stateBackend, err := state.New(&state.Options{
			Prefix:      StatePrefix,
			Log:         d.Log,
			RedisClient: redisClient,
			RedisLock:   redislock.New(redisClient),
		})
		if err != nil {
			return errors.Wrap(err, "unable to setup state backend")
		}

		d.StateBackend = stateBackend
	}

	// Setup rabbit backend (optional)
	if cfg.RabbitEnabled {
		llog.Debug("Setting up rabbit backend")

		rabbitBackend, err := rabbit.New(&rabbit.Options{
			URLs:         cfg.RabbitURL,
			Mode:         rabbit.Both,
			QueueName:    cfg.RabbitQueueName,
			QueueDeclare: true,
			QueueDurable: true,
			AppID:        cfg.ServiceName,
			Bindings: []rabbit.Binding{
				{
					ExchangeName:    cfg.RabbitExchangeName,
					ExchangeType:    "topic",
					ExchangeDeclare: true,
					ExchangeDurable: true,
					BindingKeys:     []string{cfg.RabbitImportRoutingKey},
				},
			},
		})
		if err != nil {
			return errors.Wrap(err, "unable to setup rabbit backend")
		}

		d.RabbitBackend = rabbitBackend
	}

	return nil
}

func (d *Dependencies) setupServices(cfg *config.Config) error {
	logger := d.Log.With(zap.String("method", "setupServices"))
	logger.Debug("Setting up services")

	logger.Debug("Setting up code system service")

	codeSystemService, err := codesystem.New(&codesystem.Options{
		Backend: d.DBBackend,
		Cache:   d.CacheBackend,
		Log:     d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup code system service")
	}

	d.CodeSystemService = codeSystemService

	logger.Debug("Setting up import service")

	importService, err := importer.New(&importer.Options{
		Database:    importer.NewDatabase(d.DBBackend),
		CodeSystems: codeSystemService,
		State:       d.StateBackend,
		LockEnabled: cfg.ImportLockEnabled,
		LockTTL:     cfg.ImportLockTTL,
		Log:         d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup import service")
	}

	d.ImportService = importService

	if !cfg.RabbitEnabled {
		return nil
	}

	logger.Debug("Setting up publisher service")

	publisherService, err := publisher.New(&publisher.Options{
		RabbitBackend:          d.RabbitBackend,
		ExternalShutdownCtx:    d.ShutdownCtx,
		ExternalShutdownDoneCh: d.PublisherDoneCh,
		NewRelic:               d.NewRelicApp,
		Log:                    d.Log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup publisher service")
	}

	if err := publisherService.Start(); err != nil {
		return errors.Wrap(err, "unable to start publisher service")
	}

	d.PublisherService = publisherService

	logger.Debug("Setting up processor service")

	processorService, err := processor.New(&processor.Options{
		RabbitMap: map[string]*processor.RabbitConfig{
			"import": {
				RabbitInstance: d.RabbitBackend,
				NumConsumers:   cfg.RabbitNumConsumers,
				Func:           "ConsumeFunc",
			},
		},
		ImportService:    importService,
		PublisherService: publisherService,
		Log:              d.Log,
		NewRelic:         d.NewRelicApp,
		ShutdownCtx:      d.ShutdownCtx,
	})
	if err != nil {
		return errors.Wrap(err, "unable to setup processor service")
	}

	d.ProcessorService = processorService

	return nil
}

// LogConfig pretty prints the config to the log
func (d *Dependencies) LogConfig() {
	d.Log.Info("Config")

	longestKey := 0

	for k := range d.Config.GetMap() {
		if len(k) > longestKey {
			longestKey = len(k)
		}
	}

	maxPadding := longestKey + 3
	totalKeys := len(d.Config.GetMap())
	index := 0
	prefix := "├─"

	for k, v := range d.Config.GetMap() {
		index++

		if index == totalKeys {
			prefix = "└─"
		}

		padding := maxPadding - len(k)

		line := fmt.Sprintf("%s %s %s %-"+strconv.Itoa(len(k))+"v",
			prefix, k, strings.Repeat(" ", padding), v)
		d.Log.Debug(line)
	}
}
