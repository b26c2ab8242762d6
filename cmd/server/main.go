// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main is the entry point for the switchai-router server.
// It loads configuration, then serves the routing, outcome, reporting,
// event and metrics endpoints until interrupted.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchai-router/internal/buildinfo"
	"github.com/traylinx/switchai-router/internal/cmd"
	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/logging"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(://[^:@/]+):([^@]+)@`), // user:password@ in URLs
	regexp.MustCompile(`\b(password|secret|token|key)=[^\s]+`),
}

// sanitizeError removes credentials, such as a Postgres DSN password, from error messages.
func sanitizeError(err error, context string) error {
	if err == nil {
		return nil
	}
	errStr := sensitivePatterns[0].ReplaceAllString(err.Error(), "$1:***@")
	errStr = sensitivePatterns[1].ReplaceAllString(errStr, "$1=***")
	return fmt.Errorf("%s: %s", context, errStr)
}

// warnCredentialEnv flags connection strings with inline credentials.
func warnCredentialEnv() {
	for _, name := range []string{"ROUTER_STORE_DSN"} {
		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(value))
		if err != nil || u.User == nil {
			continue
		}
		if _, hasPassword := u.User.Password(); hasPassword {
			log.Warnf("Environment variable %s contains credentials - consider using more secure credential management", name)
		}
	}
}

func loadConfig(path string, explicit bool) (*config.Config, string, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		log.Infof("No configuration file at %s, using defaults", path)
		cfg = config.Default()
		if v := strings.TrimSpace(os.Getenv("ROUTER_STORE_DSN")); v != "" {
			cfg.Store.DSN = v
		}
		return cfg, "", cfg.Validate()
	}
	return nil, "", err
}

func main() {
	var configPath string
	var logDir string
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.StringVar(&logDir, "log-dir", "logs", "Directory for rotated log files when logging-to-file is enabled")
	flag.Parse()

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}
	warnCredentialEnv()

	cfg, watchPath, err := loadConfig(configPath, explicit)
	if err != nil {
		log.Errorf("failed to load config: %v", sanitizeError(err, "config"))
		os.Exit(1)
	}

	if err = logging.ConfigureLogOutput(cfg.LoggingToFile, logDir); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.Debug)
	log.Infof("switchai-router Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
	log.Infof("Routing thresholds %s, default provider %s", cfg.Routing.Thresholds.Version, cfg.Routing.DefaultProvider)

	if err = cmd.StartService(cfg, watchPath); err != nil {
		log.Errorf("router service exited with error: %v", sanitizeError(err, "service"))
		logging.CloseLogOutputs()
		os.Exit(1)
	}
	logging.CloseLogOutputs()
}
