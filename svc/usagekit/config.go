package usagekit

import (
	"time"

	"github.com/Cachi0001/Biz-sub011/pkg/config"
	"github.com/Cachi0001/Biz-sub011/pkg/redis"
	"github.com/Cachi0001/Biz-sub011/pkg/remote"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config wires the kit from the environment.
type Config struct {
	AppEnv           string        `env:"APP_ENV" envDefault:"development"`
	ServiceName      string        `env:"SERVICE_NAME" envDefault:"bizkit"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"bizkit"`
	Store            string        `env:"USAGE_STORE" envDefault:"redis"`
	PlansFile        string        `env:"USAGE_PLANS_FILE"`
	SyncInterval     time.Duration `env:"USAGE_SYNC_INTERVAL" envDefault:"60s"`
	StatusTTL        time.Duration `env:"USAGE_STATUS_TTL" envDefault:"60s"`
	MaxRetries       int           `env:"USAGE_FETCH_MAX_RETRIES" envDefault:"3"`
	BaseDelay        time.Duration `env:"USAGE_FETCH_BASE_DELAY" envDefault:"500ms"`
	FetchCacheSize   int           `env:"USAGE_FETCH_CACHE_SIZE" envDefault:"1024"`
	WarningPercent   int64         `env:"USAGE_WARNING_PERCENT" envDefault:"80"`
	NotifyTimeout    time.Duration `env:"USAGE_NOTIFY_TIMEOUT" envDefault:"10s"`

	Redis  redis.Config
	Remote remote.Config
}

// LoadConfig reads Config from the environment and an optional .env file.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
