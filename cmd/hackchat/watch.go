package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/suPer8Hu/hackchat/internal/config"
	"github.com/suPer8Hu/hackchat/internal/obs"
	"github.com/suPer8Hu/hackchat/internal/store/rabbitmq"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Log change notifications from RABBIT_QUEUE",
		Action: runWatch,
	}
}

func runWatch(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is not set")
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("watching changes", "queue", cfg.RabbitQueue)
	return rabbitmq.Consume(ctx, cfg.RabbitURL, cfg.RabbitQueue, logger, func(m rabbitmq.ChangeMessage) error {
		logger.Info("change",
			"seq", m.Seq,
			"kind", m.Kind,
			"conversation_id", m.ConversationID,
			"message_id", m.MessageID,
			"at", m.At,
		)
		return nil
	})
}
