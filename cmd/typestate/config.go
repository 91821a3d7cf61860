package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var errUnknownPublisher = errors.New("unknown publisher")

// Publisher names accepted by --publish.
const (
	publishNone  = "none"
	publishRedis = "redis"
)

// runConfig is the environment configuration of the run command. Flags
// override it.
type runConfig struct {
	Publish      string        `env:"TYPESTATE_PUBLISH"       envDefault:"none"`
	MetricsAddr  string        `env:"TYPESTATE_METRICS_ADDR"`
	Pool         bool          `env:"TYPESTATE_POOL"          envDefault:"false"`
	Settle       time.Duration `env:"TYPESTATE_SETTLE"        envDefault:"100ms"`
	CloseTimeout time.Duration `env:"TYPESTATE_CLOSE_TIMEOUT" envDefault:"5s"`
}

func loadRunConfig() (runConfig, error) {
	cfg, err := env.ParseAs[runConfig]()
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.check()
}

func (c runConfig) check() error {
	switch strings.ToLower(c.Publish) {
	case publishNone, publishRedis:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownPublisher, c.Publish)
	}
}
