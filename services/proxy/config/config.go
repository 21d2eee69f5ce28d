// Package config loads report proxy configuration from a YAML file, with
// environment variable overrides and live reload of the watchable fields
// (StaticRoot, ThrottleSecs) on file change.
//
// This package is deliberately independent of package proxy (which embeds
// a *Live) to avoid an import cycle; cmd/reportproxy maps Config onto
// proxy.Config at startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of the config file, named after the
// configuration table's dotted option names.
type File struct {
	Proxy struct {
		Port                  int    `yaml:"port"`
		Server                string `yaml:"server"`
		UseNode               bool   `yaml:"useNode"`
		DevServerURL          string `yaml:"devServerURL"`
		StaticRoot            string `yaml:"staticRoot"`
		WaitForConnectionSecs int    `yaml:"waitForConnectionSecs"`
		OTelEndpoint          string `yaml:"otelEndpoint"`
		EnableMetrics         bool   `yaml:"enableMetrics"`
		LaunchBrowser         bool   `yaml:"launchBrowser"`
	} `yaml:"proxy"`
	Local struct {
		ThrottleSecs float64 `yaml:"throttleSecs"`
	} `yaml:"local"`
}

// Config is the fully resolved report proxy configuration: YAML defaults
// layered with environment variable overrides.
type Config struct {
	Port                  int
	Server                string
	UseNode               bool
	DevServerURL          string
	StaticRoot            string
	WaitForConnectionSecs int
	ThrottleSecs          float64
	OTelEndpoint          string
	EnableMetrics         bool
	LaunchBrowser         bool
}

// Load reads path (if it exists; a missing file is not an error — Config
// defaults apply) and layers environment variable overrides on top.
// Recognized environment variables mirror the YAML keys:
// REPORTPROXY_PORT, REPORTPROXY_SERVER, REPORTPROXY_USE_NODE,
// REPORTPROXY_STATIC_ROOT, REPORTPROXY_WAIT_FOR_CONNECTION_SECS,
// REPORTPROXY_THROTTLE_SECS, REPORTPROXY_OTEL_ENDPOINT.
func Load(path string) (Config, error) {
	var f File
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Config{
		Port:                  f.Proxy.Port,
		Server:                f.Proxy.Server,
		UseNode:               f.Proxy.UseNode,
		DevServerURL:          f.Proxy.DevServerURL,
		StaticRoot:            f.Proxy.StaticRoot,
		WaitForConnectionSecs: f.Proxy.WaitForConnectionSecs,
		ThrottleSecs:          f.Local.ThrottleSecs,
		OTelEndpoint:          f.Proxy.OTelEndpoint,
		EnableMetrics:         f.Proxy.EnableMetrics,
		LaunchBrowser:         f.Proxy.LaunchBrowser,
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPORTPROXY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("REPORTPROXY_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("REPORTPROXY_USE_NODE"); v != "" {
		cfg.UseNode = v == "true" || v == "1"
	}
	if v := os.Getenv("REPORTPROXY_STATIC_ROOT"); v != "" {
		cfg.StaticRoot = v
	}
	if v := os.Getenv("REPORTPROXY_WAIT_FOR_CONNECTION_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WaitForConnectionSecs = n
		}
	}
	if v := os.Getenv("REPORTPROXY_THROTTLE_SECS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThrottleSecs = f
		}
	}
	if v := os.Getenv("REPORTPROXY_OTEL_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
}
