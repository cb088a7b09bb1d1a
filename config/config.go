package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	EnvFile         = ".env"
	EnvConfigPrefix = "TERMINOLOGY_API"
)

type Config struct {
	Version          kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`
	EnvName          string           `kong:"help='Environment name.',default='dev'"`
	ServiceName      string           `kong:"help='Service name.',default='terminology-api'"`
	HealthFreqSec    int              `kong:"help='Health check frequency in seconds.',default=10"`
	EnablePprof      bool             `kong:"help='Enable pprof endpoints (http://$apiListenAddress/debug).',default=false"`
	APIListenAddress string           `kong:"help='API listen address (serves health, version, import).',default=:8080"`
	LogConfig        string           `kong:"help='Logging config to use.',enum='dev,prod',default='dev'"`

	// Callers presenting this token are treated as super admins; imports
	// require an elevated caller.
	AdminToken string `kong:"help='Bearer token granting elevated (import) privilege.'"`

	NewRelicAppName    string `kong:"help='New Relic application name.',default='terminology-api (DEV)'"`
	NewRelicLicenseKey string `kong:"help='New Relic license key.'"`

	DBHost     string `kong:"help='Database host.',default=localhost"`
	DBName     string `kong:"help='Database name.',default=terminology"`
	DBUser     string `kong:"help='Database user.',default=terminology"`
	DBPassword string `kong:"help='Database password.',default=terminology"`
	DBPort     int    `kong:"help='Database port.',default=5432"`
	DBSSLMode  string `kong:"help='Database SSL mode.',default=disable"`

	RedisEnabled     bool          `kong:"help='Enable the redis state backend.',default=false"`
	RedisURL         string        `kong:"help='Redis URL.',default=localhost:6379"`
	RedisPassword    string        `kong:"help='Redis Password.'"`
	RedisDatabase    int           `kong:"help='Redis database.',default=0"`
	RedisPoolSize    int           `kong:"help='Redis pool size.',default=10"`
	RedisDialTimeout time.Duration `kong:"help='Redis dial timeout.',default=5s"`

	// ImportLockEnabled serializes imports per code system URL across
	// instances via redislock. Requires RedisEnabled.
	ImportLockEnabled bool          `kong:"help='Serialize imports per code system across instances.',default=false"`
	ImportLockTTL     time.Duration `kong:"help='Import lock TTL.',default=30s"`

	RabbitEnabled          bool     `kong:"help='Enable the rabbitmq processor + publisher.',default=false"`
	RabbitURL              []string `kong:"help='RabbitMQ URL(s).',default='amqp://localhost:5672'"`
	RabbitExchangeName     string   `kong:"help='RabbitMQ exchange name.',default=events"`
	RabbitQueueName        string   `kong:"help='RabbitMQ queue for import jobs.',default='terminology-api.import'"`
	RabbitImportRoutingKey string   `kong:"help='Routing key import jobs arrive on.',default='terminology.import'"`
	RabbitNumConsumers     int      `kong:"help='Number of import job consumers.',default=10"`

	KongContext *kong.Context `kong:"-"`
}

func New(version string) *Config {
	if err := godotenv.Load(EnvFile); err != nil {
		zap.L().Warn("unable to load dotenv file",
			zap.String("err", err.Error()))
	}

	cfg := &Config{}
	cfg.KongContext = kong.Parse(
		cfg,
		kong.Name("terminology-api"),
		kong.Description("Code system terminology service"),
		kong.DefaultEnvars(EnvConfigPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	return cfg
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("Config cannot be nil")
	}

	if c.ImportLockEnabled && !c.RedisEnabled {
		return errors.New("ImportLockEnabled requires RedisEnabled")
	}

	return nil
}

func (c *Config) GetMap() map[string]string {
	fields := make(map[string]string)

	val := reflect.ValueOf(c)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := val.Field(i)
		fields[field.Name] = fmt.Sprintf("%v", value)
	}

	return fields
}
