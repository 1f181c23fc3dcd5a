/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/deckofthoughts/apiserver/config"
	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deck",
	Short: "Personal note-card server",
	Long: `deck serves a personal deck of note cards over a JSON API.

	deck server            start the HTTP API
	deck migrate up|down   manage the database schema
	deck user add NAME     create an account from the terminal
	deck events tail       print card events from the message queue
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and returns a logger at the configured level.
func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(cfg.LogLevel), nil
}
