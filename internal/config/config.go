// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the program's small HCL configuration file: which
// NFQUEUE number to bind, where the rules file lives, how to log, and
// where the admin HTTP surface listens. Unlike a full application
// configuration store, this has no schema versioning or migration: the
// core only needs a handful of scalars, and a validation failure here is
// always an operator mistake to go fix, not state to reconcile.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	ipserrors "grimm.is/ips/internal/errors"
)

// Config is the program's full runtime configuration.
type Config struct {
	QueueNum           uint16 `hcl:"queue_num,optional"`
	RulesPath          string `hcl:"rules_path"`
	LogLevel           string `hcl:"log_level,optional"`
	LogPath            string `hcl:"log_path,optional"`
	Verbose            bool   `hcl:"verbose,optional"`
	AdminListenAddr    string `hcl:"admin_listen_addr,optional"`
	DefaultBanDuration int    `hcl:"default_ban_duration_seconds,optional"`
}

// Default returns a Config with every optional field set to the value the
// program runs with when the operator doesn't specify one.
func Default() Config {
	return Config{
		QueueNum:           0,
		RulesPath:          "./rules.json",
		LogLevel:           "info",
		AdminListenAddr:    "127.0.0.1:9900",
		DefaultBanDuration: 300,
	}
}

// Load reads and decodes the HCL file at path, applying Default for any
// field the file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, ipserrors.Wrapf(diags, ipserrors.KindValidation, "parse config file %q", path)
	}

	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return Config{}, ipserrors.Wrapf(diags, ipserrors.KindValidation, "decode config file %q", path)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, ipserrors.Wrap(err, ipserrors.KindValidation, "invalid config")
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.RulesPath == "" {
		return fmt.Errorf("rules_path is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.DefaultBanDuration < 0 {
		return fmt.Errorf("default_ban_duration_seconds must not be negative")
	}
	return nil
}
