package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvPrivateKey     = "FLASHARB_PRIVATE_KEY"
	EnvRPCEndpoint    = "FLASHARB_RPC_ENDPOINT"
	EnvFlashbotsKey   = "FLASHARB_FLASHBOTS_KEY"
	EnvAuditDSN       = "FLASHARB_AUDIT_DSN"
	EnvRedisAddr      = "FLASHARB_REDIS_ADDR"
	EnvRedisPassword  = "FLASHARB_REDIS_PASSWORD"
	EnvS3AccessKeyID  = "FLASHARB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "FLASHARB_S3_SECRET_ACCESS_KEY"
	EnvPrometheusAddr = "FLASHARB_PROMETHEUS_ENDPOINT"
)

// LoadEnv loads environment variables from a .env file when one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplyEnv overrides endpoints and fills secrets from the environment.
func (c *Config) ApplyEnv() {
	c.PrivateKey = GetEnvWithDefault(EnvPrivateKey, c.PrivateKey)
	c.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.RPCEndpoint)
	c.Flashbots.SigningKey = GetEnvWithDefault(EnvFlashbotsKey, c.Flashbots.SigningKey)
	c.Audit.DSN = GetEnvWithDefault(EnvAuditDSN, c.Audit.DSN)
	c.Redis.Addr = GetEnvWithDefault(EnvRedisAddr, c.Redis.Addr)
	c.Redis.Password = GetEnvWithDefault(EnvRedisPassword, c.Redis.Password)
	c.Audit.S3.AccessKeyID = GetEnvWithDefault(EnvS3AccessKeyID, c.Audit.S3.AccessKeyID)
	c.Audit.S3.SecretAccessKey = GetEnvWithDefault(EnvS3SecretKey, c.Audit.S3.SecretAccessKey)
	c.PrometheusEndpoint = GetEnvWithDefault(EnvPrometheusAddr, c.PrometheusEndpoint)
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv returns the value of key or an error when it is unset.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return value, nil
}
