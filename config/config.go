// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML configuration of the payment service.
package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"perun.network/perun-ton-backend/channel"
	"perun.network/perun-ton-backend/client"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	"perun.network/perun-ton-backend/wallet"
)

// SeedEnv overrides service.seed when set.
const SeedEnv = "PTON_SERVICE_SEED"

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration of the service.
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Node     NodeConfig     `yaml:"node"`
	Service  ServiceConfig  `yaml:"service"`
	Log      LogConfig      `yaml:"log"`
	// Prices overrides single entries of the default price table, in
	// nanotons.
	Prices map[string]string `yaml:"prices"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// NodeConfig points at the toncenter JSON-RPC endpoint.
type NodeConfig struct {
	URL     string   `yaml:"url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

type ServiceConfig struct {
	Address string `yaml:"address"`
	// Seed is the hex encoded ed25519 seed of the service key.
	Seed                 string   `yaml:"seed"`
	PollingInterval      Duration `yaml:"polling_interval"`
	MaxPollingAttempts   int      `yaml:"max_polling_attempts"`
	SubscriptionInterval Duration `yaml:"subscription_interval"`
	Watch                bool     `yaml:"watch"`
}

// LogConfig selects the log level and an optional rotated log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the configuration from path, applies defaults and the
// environment override and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if seed := os.Getenv(SeedEnv); seed != "" {
		cfg.Service.Seed = seed
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = ledger.DriverSQLite
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == ledger.DriverSQLite {
		cfg.Database.DSN = "pton.db"
	}
	if cfg.Node.URL == "" {
		cfg.Node.URL = client.TestnetURL
	}
	if cfg.Node.Timeout.Duration == 0 {
		cfg.Node.Timeout.Duration = client.DefaultRequestTimeout
	}
	if cfg.Service.PollingInterval.Duration == 0 {
		cfg.Service.PollingInterval.Duration = channel.DefaultPollingInterval
	}
	if cfg.Service.SubscriptionInterval.Duration == 0 {
		cfg.Service.SubscriptionInterval.Duration = channel.DefaultSubscriptionPollingInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks the fields that have no usable default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Service.Address) == "" {
		return fmt.Errorf("service address must be configured")
	}
	if _, err := c.Account(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn must be configured")
	}
	if c.Service.MaxPollingAttempts < 0 {
		return fmt.Errorf("max_polling_attempts must not be negative")
	}
	if _, err := c.ServicePrices(); err != nil {
		return err
	}
	return nil
}

// Account derives the service account from the configured seed.
func (c Config) Account() (*wallet.Account, error) {
	if c.Service.Seed == "" {
		return nil, fmt.Errorf("service seed must be configured (or set %s)", SeedEnv)
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(c.Service.Seed, "0x"))
	if err != nil {
		return nil, fmt.Errorf("service seed: %w", err)
	}
	acc, err := wallet.NewAccountFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("service seed: %w", err)
	}
	return acc, nil
}

// ServicePrices is the default price table with the configured overrides
// applied.
func (c Config) ServicePrices() (payment.Prices, error) {
	prices := payment.DefaultPrices()
	for name, raw := range c.Prices {
		action := payment.Action(name)
		if _, ok := prices[action]; !ok {
			return nil, fmt.Errorf("prices: %w: %q", payment.ErrUnknownAction, name)
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("prices: invalid amount %q for %s", raw, name)
		}
		prices[action] = amount
	}
	return prices, nil
}
