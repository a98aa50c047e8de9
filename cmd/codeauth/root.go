// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/codeauth/internal/config"
	"github.com/holomush/codeauth/internal/logging"
	"github.com/holomush/codeauth/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the codeauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeauth",
		Short: "codeauth - passwordless email-code authentication",
		Long: `codeauth issues one-time email verification codes, exchanges them for
signed JWT access/refresh token pairs, and manages server-side sessions
for refresh-token rotation and revocation.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/codeauth/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file exported before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAdminCmd())
	cmd.AddCommand(NewKeysCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// configOptions returns the load options for the global flags and the
// command's own bound flags.
func configOptions(cmd *cobra.Command) config.Options {
	opts := config.Options{
		ConfigFile: configFile,
		Required:   configFile != "",
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = xdg.ConfigFile()
	}
	return opts
}

// loadConfig loads and validates the full configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configOptions(cmd))
}

// readConfig loads the configuration without validating it.
func readConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Read(configOptions(cmd))
}

// newLogger builds the process logger from cfg and installs it as default.
func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault(logging.Options{
		Service: "codeauth",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
	})
}
