package publish

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// RedisConfig configures the Redis stream publisher.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL"             envDefault:"redis://localhost:6379/0"`
	Stream         string        `env:"REDIS_STREAM"          envDefault:"typestate:changes"`
	PerMachine     bool          `env:"REDIS_STREAM_PER_MACHINE"`
	MaxLen         int64         `env:"REDIS_STREAM_MAX_LEN"  envDefault:"10000"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS"  envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL"  envDefault:"1s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// LoadRedisConfig reads the configuration from the environment.
func LoadRedisConfig() (RedisConfig, error) {
	return env.ParseAs[RedisConfig]()
}

// Options returns the stream options the configuration describes.
func (c RedisConfig) Options() []Option {
	opts := []Option{WithStream(c.Stream), WithMaxLen(c.MaxLen)}
	if c.PerMachine {
		opts = append(opts, WithStreamPerMachine())
	}

	return opts
}
