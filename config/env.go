package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint = "RPC_ENDPOINT"
	EnvPrivateKey  = "PRIVATE_KEY"
	EnvChainID     = "CHAIN_ID"
	EnvDryRun      = "DRY_RUN"
)

// LoadEnv loads environment variables from .env file. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides file settings with the environment
func (c *Config) ApplyEnv() error {
	c.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.RPCEndpoint)
	c.PrivateKey = GetEnvWithDefault(EnvPrivateKey, c.PrivateKey)

	if v := os.Getenv(EnvChainID); v != "" {
		chainID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChainID, err)
		}
		c.ChainID = chainID
	}
	if v := os.Getenv(EnvDryRun); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDryRun, err)
		}
		c.DryRun = dryRun
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
