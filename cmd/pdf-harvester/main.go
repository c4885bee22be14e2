// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pdf-harvester CLI. The harvest
// subcommand crawls institution pages from a CSV file and downloads the
// PDFs it finds; history lists past runs.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf-harvester/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// appLogger is built from the log flags before any subcommand runs.
var appLogger logger.Logger = logger.NewNop()

// rootCmd is the base command for the pdf-harvester CLI.
var rootCmd = &cobra.Command{
	Use:   "pdf-harvester",
	Short: "Find and download published PDFs from institution websites",
	Long: `pdf-harvester visits institution web pages in a real browser, clears cookie
banners, modals and investor gates, and downloads the PDF each page links to.
Pages it cannot handle are reported for manual follow-up with a screenshot.

Settings come from flags, PDF_HARVESTER_* environment variables (a .env file
is loaded first) and pdf-harvester.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var cfg logger.Config
		if err := viper.UnmarshalKey("log", &cfg); err != nil {
			return fmt.Errorf("reading log config: %w", err)
		}
		l, err := logger.New(cfg)
		if err != nil {
			return err
		}
		appLogger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = appLogger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./pdf-harvester.yaml or ~/.config/pdf-harvester/config.yaml)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", logger.FormatAuto, "log format: auto, json, console")

	_ = viper.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	if envFile != "" {
		// Values already in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: loading %s: %v\n", envFile, err)
		}
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pdf-harvester")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pdf-harvester"))
		}
	}

	viper.SetEnvPrefix("PDF_HARVESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
