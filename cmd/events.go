/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/deckofthoughts/apiserver/config"
	"github.com/deckofthoughts/apiserver/internal/events"
	"github.com/deckofthoughts/apiserver/internal/mq"
	"github.com/deckofthoughts/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect card events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log card events from the configured channel until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.MQ.Backend == "" || cfg.MQ.Backend == config.BackendNone {
			return errors.New("MQ_BACKEND is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		log.Info("tailing card events", "backend", cfg.MQ.Backend, "channel", queue.Channel())
		err = events.Tail(ctx, queue, log, func(event types.CardEvent) error {
			log.Info("card event",
				"type", string(event.Type),
				"card_id", event.CardID,
				"user_id", event.UserID,
				"occurred_at", event.OccurredAt)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
