// Package config loads and validates the engine configuration from a file
// plus environment overrides.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

var ErrConfigPathNotSet = errors.New("config path is not set")

type (
	Config struct {
		App      App      `env-prefix:"APP_"`
		HTTP     HTTP     `env-prefix:"HTTP_"`
		Logger   Logger   `env-prefix:"LOGGER_"`
		Postgres Postgres `env-prefix:"PG_"`
		Redis    Redis    `env-prefix:"REDIS_"`
		Rabbit   Rabbit   `env-prefix:"RABBIT_"`
		Engine   Engine   `env-prefix:"ENGINE_"`
		Channels Channels `env-prefix:"CHANNEL_"`
		SMTP     SMTP     `env-prefix:"SMTP_"`
		Gateways Gateways `env-prefix:"GATEWAY_"`
		Env      string   `env:"ENV" env-default:"local" validate:"oneof=local dev staging prod"`
	}

	App struct {
		Name    string `env:"NAME"    validate:"required" env-default:"hr-notifier"`
		Version string `env:"VERSION" validate:"required" env-default:"dev"`
	}

	HTTP struct {
		Host            string        `env:"HOST"             validate:"required"         env-default:"0.0.0.0"`
		Port            int           `env:"PORT"             validate:"gte=1,lte=65535"  env-default:"8080"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT"     validate:"gte=10ms,lte=30s" env-default:"5s"`
		WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    validate:"gte=10ms,lte=30s" env-default:"10s"`
		IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     validate:"gte=10ms,lte=5m"  env-default:"60s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gte=10ms,lte=30s" env-default:"10s"`
	}

	Logger struct {
		Level string `env:"LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	}

	Postgres struct {
		URL          string        `env:"URL" validate:"required"`
		MaxPoolSize  int           `env:"MAX_POOL_SIZE" validate:"min=1,max=100"  env-default:"10"`
		ConnAttempts int           `env:"CONN_ATTEMPTS" validate:"min=1,max=20"   env-default:"5"`
		ConnDelay    time.Duration `env:"CONN_DELAY"    validate:"gte=100ms,lte=30s" env-default:"2s"`
	}

	Redis struct {
		Addr        string        `env:"ADDR" validate:"required"`
		Password    string        `env:"PASSWORD"`
		PoolSize    int           `env:"POOL_SIZE"     validate:"min=1,max=100"     env-default:"20"`
		MinIdleCons int           `env:"MIN_IDLE_CONS" validate:"min=1,max=100"     env-default:"10"`
		PoolTimeout time.Duration `env:"POOL_TIMEOUT"  validate:"gte=10ms,lte=10s"  env-default:"100ms"`
	}

	Rabbit struct {
		URL         string `env:"URL"          validate:"required"`
		Queue       string `env:"QUEUE"        validate:"required"        env-default:"notifications.dispatch"`
		MaxLength   int    `env:"MAX_LENGTH"   validate:"min=1"           env-default:"10000"`
		MaxPriority int    `env:"MAX_PRIORITY" validate:"min=0,max=255"   env-default:"10"`
		Prefetch    int    `env:"PREFETCH"     validate:"min=1,max=1000"  env-default:"16"`
	}

	// Engine tunes the scheduler and the maintenance jobs.
	Engine struct {
		PollInterval  time.Duration `env:"POLL_INTERVAL"  validate:"gte=100ms,lte=1m" env-default:"2s"`
		SweepInterval time.Duration `env:"SWEEP_INTERVAL" validate:"gte=1s,lte=10m"   env-default:"30s"`
		ClaimBatch    uint64        `env:"CLAIM_BATCH"    validate:"min=1,max=1000"   env-default:"100"`
		LockTimeout   time.Duration `env:"LOCK_TIMEOUT"   validate:"gte=30s,lte=1h"   env-default:"5m"`
		RecoveryBatch uint64        `env:"RECOVERY_BATCH" validate:"min=1,max=10000"  env-default:"500"`
		Retention     time.Duration `env:"RETENTION"      validate:"gte=24h"          env-default:"720h"`
		PruneSchedule string        `env:"PRUNE_SCHEDULE" validate:"required"         env-default:"0 3 * * *"`
	}

	// ChannelSettings is one channel's delivery policy.
	ChannelSettings struct {
		Enabled     bool          `env:"ENABLED"      env-default:"true"`
		Workers     int           `env:"WORKERS"      validate:"min=1,max=64"     env-default:"4"`
		Timeout     time.Duration `env:"TIMEOUT"      validate:"gte=1s,lte=2m"    env-default:"15s"`
		MaxAttempts int           `env:"MAX_ATTEMPTS" validate:"min=1,max=20"     env-default:"5"`
		BaseDelay   time.Duration `env:"BASE_DELAY"   validate:"gte=1s,lte=1h"    env-default:"30s"`
		Multiplier  float64       `env:"MULTIPLIER"   validate:"gte=1,lte=10"     env-default:"2"`
		Jitter      float64       `env:"JITTER"       validate:"gte=0,lte=0.5"    env-default:"0.2"`
		RatePerSec  float64       `env:"RATE_PER_SEC" validate:"gte=0"            env-default:"0"`
		Burst       int           `env:"BURST"        validate:"gte=0"            env-default:"0"`
		SupportsAck bool          `env:"SUPPORTS_ACK" env-default:"false"`
	}

	Channels struct {
		InApp    ChannelSettings `env-prefix:"IN_APP_"`
		Email    ChannelSettings `env-prefix:"EMAIL_"`
		SMS      ChannelSettings `env-prefix:"SMS_"`
		Push     ChannelSettings `env-prefix:"PUSH_"`
		WhatsApp ChannelSettings `env-prefix:"WHATSAPP_"`
	}

	SMTP struct {
		Host     string `env:"HOST"     validate:"required" env-default:"localhost"`
		Port     int    `env:"PORT"     validate:"gte=1,lte=65535" env-default:"587"`
		Username string `env:"USERNAME"`
		Password string `env:"PASSWORD"`
		From     string `env:"FROM"     validate:"required,email" env-default:"no-reply@example.com"`
	}

	// Gateway points at an outbound HTTP transport. BaseURL is only needed
	// when a channel routed through it is enabled; see validateGateways.
	Gateway struct {
		BaseURL string `env:"BASE_URL" validate:"omitempty,url"`
		Token   string `env:"TOKEN"`
	}

	Gateways struct {
		SMS      Gateway `env-prefix:"SMS_"`
		Push     Gateway `env-prefix:"PUSH_"`
		WhatsApp Gateway `env-prefix:"WHATSAPP_"`
	}
)

func Load() (*Config, error) {
	path := fetchConfigPath()
	if path == "" {
		return nil, ErrConfigPathNotSet
	}
	return LoadPath(path)
}

func LoadPath(configPath string) (*Config, error) {
	const op = "config.LoadPath"

	validate := validator.New()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
	} else if err != nil {
		return nil, fmt.Errorf("%s: checking config file: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: read config: %w", op, err)
	}

	var validationErrors []string
	if err := validate.Struct(&cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, ve := range validationErrs {
				validationErrors = append(validationErrors,
					fmt.Sprintf("%s=%v must satisfy '%s'", ve.Field(), ve.Value(), ve.Tag()))
			}
			return nil, fmt.Errorf(
				"%s: config validation: %v", op,
				strings.Join(validationErrors, "; "),
			)
		}
		return nil, fmt.Errorf("%s: config validation: %w", op, err)
	}

	if err := cfg.validateGateways(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// validateGateways requires a base URL only for gateways whose channel is
// enabled, so operators never have to invent a dummy URL for a channel they
// switched off.
func (c *Config) validateGateways() error {
	gateways := []struct {
		name    string
		enabled bool
		baseURL string
	}{
		{"sms", c.Channels.SMS.Enabled, c.Gateways.SMS.BaseURL},
		{"push", c.Channels.Push.Enabled, c.Gateways.Push.BaseURL},
		{"whatsapp", c.Channels.WhatsApp.Enabled, c.Gateways.WhatsApp.BaseURL},
	}

	var missing []string
	for _, g := range gateways {
		if g.enabled && g.baseURL == "" {
			missing = append(missing, g.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("enabled channels are missing a gateway base url: %s", strings.Join(missing, ", "))
	}
	return nil
}

func fetchConfigPath() string {
	var path string
	flag.StringVar(&path, "config", "", "Path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}
