// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rewritekit/rw/rewrite"
)

const (
	configName = ".rw"
	envPrefix  = "RW"
)

// A config is the merged configuration from defaults, the .rw.yaml
// file, RW_ environment variables and flags, in increasing priority.
type config struct {
	Rules     []string `mapstructure:"rules"`
	Builtin   bool     `mapstructure:"builtin"`
	MaxPasses int      `mapstructure:"max_passes"`
	Parallel  int      `mapstructure:"parallel"`
	Log       struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
	Trace           string `mapstructure:"trace"` // OTLP gRPC endpoint
	TraceInsecure   bool   `mapstructure:"trace_insecure"`
	GoVersion       string `mapstructure:"go_version"`
	Tags            string `mapstructure:"tags"`
}

func (c *config) validate() error {
	if c.Parallel < 1 {
		return errParallel
	}
	if c.MaxPasses < 1 {
		return errMaxPasses
	}
	return nil
}

// flagKeys maps flags to the configuration keys they override.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"max-passes": "max_passes",
	"parallel":   "parallel",
	"builtin":    "builtin",
	"tags":       "tags",
}

// loadConfig reads the configuration for running cmd in dir. An explicit file
// must exist; otherwise .rw.yaml is looked up in dir and is optional.
func loadConfig(dir, file string, cmd *cobra.Command) (*config, error) {
	v := viper.New()
	v.SetDefault("rules", []string{})
	v.SetDefault("builtin", true)
	v.SetDefault("max_passes", rewrite.DefaultMaxPasses)
	v.SetDefault("parallel", runtime.GOMAXPROCS(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("trace", "")
	v.SetDefault("trace_insecure", false)
	v.SetDefault("go_version", "")
	v.SetDefault("tags", "")

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
