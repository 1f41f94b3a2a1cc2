package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

const envPrefix = "AUTHKEEPER_"

// parseEnv overlays AUTHKEEPER_* variables onto config. Unset or empty
// variables are ignored.
func parseEnv(config *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	get := func(name string) string { return getenv(envPrefix + name) }

	strs := map[string]*string{
		"GRPC_ADDRESS":    &config.EndpointAddrGRPC,
		"METRICS_ADDRESS": &config.MetricsAddr,
		"STORAGE":         &config.StorageBackend,
		"DATABASE_DSN":    &config.DatabaseDSN,
		"JWT_SECRET":      &config.JWTSecret,
		"JWT_ISSUER":      &config.JWTIssuer,
		"JWT_AUDIENCE":    &config.JWTAudience,
		"AUDIT_SINK":      &config.AuditSink,
		"S3_USER":         &config.S3RootUser,
		"S3_PASSWORD":     &config.S3RootPassword,
		"S3_BUCKET":       &config.S3Bucket,
		"S3_REGION":       &config.S3Region,
		"S3_ENDPOINT":     &config.S3BaseEndpoint,
		"S3_PREFIX":       &config.S3Prefix,
		"LOG_LEVEL":       &config.LogLevel,
	}
	for name, dst := range strs {
		setString(dst, get(name))
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":  &config.AccessTokenValidityDuration,
		"REFRESH_TOKEN_TTL": &config.RefreshTokenValidityDuration,
	}
	for name, dst := range durations {
		v := get(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", common.ErrConfiguration, envPrefix, name, err)
		}
		*dst = d
	}

	if v := get("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sBCRYPT_COST: %w", common.ErrConfiguration, envPrefix, err)
		}
		config.BcryptCost = cost
	}
	return nil
}
