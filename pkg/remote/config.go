package remote

import "time"

// Config configures the subscription service client.
type Config struct {
	BaseURL          string        `env:"USAGE_API_URL,required"`
	Token            string        `env:"USAGE_API_TOKEN"`
	Timeout          time.Duration `env:"USAGE_API_TIMEOUT" envDefault:"10s"`
	BreakerFailures  int           `env:"USAGE_API_BREAKER_FAILURES" envDefault:"5"`
	BreakerSuccesses int           `env:"USAGE_API_BREAKER_SUCCESSES" envDefault:"2"`
	BreakerRecovery  time.Duration `env:"USAGE_API_BREAKER_RECOVERY" envDefault:"30s"`
}
