package config

import (
	"time"
)

// Connection property names understood by ParseCloudFetchParams
const (
	ParamMaxRetries        = "cloudFetchMaxRetries"
	ParamRetryDelayMs      = "cloudFetchRetryDelayMs"
	ParamTimeoutMinutes    = "cloudFetchTimeoutMinutes"
	ParamUseLz4Compression = "useLz4Compression"
	ParamMinTimeToExpiryS  = "cloudFetchMinTimeToExpirySeconds"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 500
	DefaultTimeoutMins  = 5
)

// CloudFetchConfig holds the tunables of a cloud fetch reader.
type CloudFetchConfig struct {
	// Total number of download attempts per link
	MaxRetries int
	// Unit of the linear backoff between attempts
	RetryDelay time.Duration
	// Overall timeout of one download attempt
	Timeout time.Duration
	// Result files are lz4 frame compressed
	UseLz4Compression bool
	// Links expiring within this duration are not downloaded. Zero only rejects expired links.
	MinTimeToExpiry time.Duration
}

func (cfg CloudFetchConfig) WithDefaults() CloudFetchConfig {
	cfg.MaxRetries = DefaultMaxRetries
	cfg.RetryDelay = DefaultRetryDelayMs * time.Millisecond
	cfg.Timeout = DefaultTimeoutMins * time.Minute
	cfg.UseLz4Compression = false
	cfg.MinTimeToExpiry = 0
	return cfg
}

// WithDefaults returns a config holding the default values
func WithDefaults() *CloudFetchConfig {
	cfg := CloudFetchConfig{}.WithDefaults()
	return &cfg
}

// Normalize replaces invalid values with their defaults
func (cfg *CloudFetchConfig) Normalize() {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelayMs * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeoutMins * time.Minute
	}
	if cfg.MinTimeToExpiry < 0 {
		cfg.MinTimeToExpiry = 0
	}
}

func (cfg *CloudFetchConfig) DeepCopy() *CloudFetchConfig {
	if cfg == nil {
		return nil
	}

	c := *cfg
	return &c
}

// ParseCloudFetchParams builds a config from connection properties.
// Missing or invalid values silently fall back to the defaults.
func ParseCloudFetchParams(params map[string]string) *CloudFetchConfig {
	cfg := WithDefaults()
	ApplyCloudFetchParams(cfg, params)
	return cfg
}

// ApplyCloudFetchParams overwrites the fields of cfg that are validly set in params.
func ApplyCloudFetchParams(cfg *CloudFetchConfig, params map[string]string) {
	if cfg == nil {
		return
	}

	cfg.MaxRetries = ParsePositiveIntConfigValue(params, ParamMaxRetries).Resolve(cfg.MaxRetries)

	cfg.RetryDelay = ParsePositiveDurationConfigValue(params, ParamRetryDelayMs, time.Millisecond).Resolve(cfg.RetryDelay)
	cfg.Timeout = ParsePositiveDurationConfigValue(params, ParamTimeoutMinutes, time.Minute).Resolve(cfg.Timeout)
	cfg.MinTimeToExpiry = ParsePositiveDurationConfigValue(params, ParamMinTimeToExpiryS, time.Second).Resolve(cfg.MinTimeToExpiry)

	cfg.UseLz4Compression = ParseBoolConfigValue(params, ParamUseLz4Compression).Resolve(cfg.UseLz4Compression)
}
