// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf-harvester/internal/input"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

// bindFlags binds each flag to its config key so flags, environment and
// config file all feed the same settings.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}
}

// loadHarvestConfig overlays v's settings on the built-in defaults and
// validates the result. A configured list replaces the default list
// rather than merging into it.
func loadHarvestConfig(v *viper.Viper) (types.HarvestConfig, error) {
	cfg := types.DefaultHarvestConfig()
	replaceLists := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
	if err := v.Unmarshal(&cfg, replaceLists); err != nil {
		return cfg, fmt.Errorf("reading harvest config: %w", err)
	}
	profile, err := types.ParseProfile(string(cfg.Profile))
	if err != nil {
		return cfg, err
	}
	cfg.Profile = profile
	if cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = types.DefaultUserAgent
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadColumns returns the input header names, defaulting to Institution/URL.
func loadColumns(v *viper.Viper) input.Columns {
	cols := input.DefaultColumns()
	if s := v.GetString("input.institution"); s != "" {
		cols.Institution = s
	}
	if s := v.GetString("input.url"); s != "" {
		cols.URL = s
	}
	return cols
}
