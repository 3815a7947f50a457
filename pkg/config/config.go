// Package config loads the grid's configuration surface (spec.md §6)
// via viper, the way the teacher's cobra commands bind flags and
// environment variables onto a shared viper instance.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/gridcore/pkg/errors"
)

// Keys are the viper configuration keys defined by spec.md §6.
const (
	KeyDistributorHost               = "distributor.host"
	KeyDistributorPort               = "distributor.port"
	KeyDistributorHostname           = "distributor.hostname"
	KeyDistributorHealthcheckInterval = "distributor.healthcheck-interval"
	KeyDistributorPurgeInterval       = "distributor.purge-interval"
	KeySessionQueueRequestTimeout     = "sessionqueue.request-timeout"
	KeySessionQueueRetryInterval      = "sessionqueue.retry-interval"
	KeySecretValue                    = "secret.value"
)

// minHealthcheckInterval is the floor applied to a configured
// healthcheck interval (spec.md §4.5.1): a value of 0 or less is
// treated as "use the minimum", not "disable" (see DESIGN.md Open
// Question resolution).
const minHealthcheckInterval = 10 * time.Second

const (
	defaultDistributorPort    = 8080
	defaultHealthcheckSeconds = 300
	defaultPurgeSeconds       = 30
	defaultRequestTimeout     = 5 * time.Minute
	defaultRetryInterval      = 1 * time.Second
)

// Config is the fully-resolved, typed configuration for any of the
// grid's services.
type Config struct {
	DistributorHost               string
	DistributorPort               int
	DistributorHostname           string
	HealthcheckInterval           time.Duration
	PurgeInterval                 time.Duration
	SessionQueueRequestTimeout    time.Duration
	SessionQueueRetryInterval     time.Duration
	Secret                        string
}

// New builds a viper instance seeded with spec.md §6's defaults, bound
// to GRID_-prefixed environment variables (e.g. secret.value ⇄
// GRID_SECRET_VALUE), mirroring the teacher's viper.BindPFlag/AutomaticEnv use.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDistributorHost, "0.0.0.0")
	v.SetDefault(KeyDistributorPort, defaultDistributorPort)
	v.SetDefault(KeyDistributorHostname, "")
	v.SetDefault(KeyDistributorHealthcheckInterval, defaultHealthcheckSeconds)
	v.SetDefault(KeyDistributorPurgeInterval, defaultPurgeSeconds)
	v.SetDefault(KeySessionQueueRequestTimeout, defaultRequestTimeout.String())
	v.SetDefault(KeySessionQueueRetryInterval, defaultRetryInterval.String())
	v.SetDefault(KeySecretValue, "")

	v.SetEnvPrefix("GRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load resolves a Config from v, applying the healthcheck-interval
// floor and rejecting non-positive timeouts as ConfigError.
func Load(v *viper.Viper) (*Config, error) {
	healthcheck := time.Duration(v.GetInt(KeyDistributorHealthcheckInterval)) * time.Second
	if healthcheck < minHealthcheckInterval {
		healthcheck = minHealthcheckInterval
	}

	purge := time.Duration(v.GetInt(KeyDistributorPurgeInterval)) * time.Second
	if purge <= 0 {
		return nil, errors.NewConfigError(
			fmt.Sprintf("%s must be positive, got %ds", KeyDistributorPurgeInterval, v.GetInt(KeyDistributorPurgeInterval)),
			nil,
		)
	}

	requestTimeout, err := parseDuration(v, KeySessionQueueRequestTimeout)
	if err != nil {
		return nil, err
	}
	if requestTimeout <= 0 {
		return nil, errors.NewConfigError(
			fmt.Sprintf("%s must be positive", KeySessionQueueRequestTimeout), nil,
		)
	}

	retryInterval, err := parseDuration(v, KeySessionQueueRetryInterval)
	if err != nil {
		return nil, err
	}
	if retryInterval <= 0 {
		return nil, errors.NewConfigError(
			fmt.Sprintf("%s must be positive", KeySessionQueueRetryInterval), nil,
		)
	}

	port := v.GetInt(KeyDistributorPort)
	if port <= 0 || port > 65535 {
		return nil, errors.NewConfigError(fmt.Sprintf("%s out of range: %d", KeyDistributorPort, port), nil)
	}

	return &Config{
		DistributorHost:            v.GetString(KeyDistributorHost),
		DistributorPort:            port,
		DistributorHostname:        v.GetString(KeyDistributorHostname),
		HealthcheckInterval:        healthcheck,
		PurgeInterval:              purge,
		SessionQueueRequestTimeout: requestTimeout,
		SessionQueueRetryInterval:  retryInterval,
		Secret:                     v.GetString(KeySecretValue),
	}, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.NewConfigError(fmt.Sprintf("invalid duration for %s: %q", key, raw), err)
	}
	return d, nil
}

// Addr formats the distributor's listen address from Config.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.DistributorHost, c.DistributorPort)
}
