package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the automationd YAML configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Scheduler struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		BatchSize           int `yaml:"batch_size"`
	} `yaml:"scheduler"`
	Actions struct {
		SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	} `yaml:"actions"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	var cfg Config
	cfg.Listen = ":8080"
	cfg.Database.Path = "automation.db"
	cfg.Scheduler.PollIntervalSeconds = 1
	cfg.Scheduler.BatchSize = 50
	cfg.Actions.SendTimeoutSeconds = 30
	return cfg
}

// loadConfig reads and validates a YAML config file, filling defaults
// for omitted fields.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Database.Path == "" {
		return cfg, fmt.Errorf("config: database.path is required")
	}
	if cfg.Scheduler.PollIntervalSeconds <= 0 {
		cfg.Scheduler.PollIntervalSeconds = 1
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 50
	}
	if cfg.Actions.SendTimeoutSeconds <= 0 {
		cfg.Actions.SendTimeoutSeconds = 30
	}
	return cfg, nil
}
