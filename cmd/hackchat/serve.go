package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/suPer8Hu/hackchat/internal/ai"
	"github.com/suPer8Hu/hackchat/internal/chat"
	"github.com/suPer8Hu/hackchat/internal/config"
	"github.com/suPer8Hu/hackchat/internal/events"
	"github.com/suPer8Hu/hackchat/internal/httpapi"
	"github.com/suPer8Hu/hackchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/hackchat/internal/metrics"
	"github.com/suPer8Hu/hackchat/internal/obs"
	"github.com/suPer8Hu/hackchat/internal/persist"
	"github.com/suPer8Hu/hackchat/internal/reply"
	"github.com/suPer8Hu/hackchat/internal/store/rabbitmq"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat engine and its HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides HTTP_ADDR)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	m := metrics.New()
	adapter := persist.NewAdapter(backend, persist.WithLogger(logger), persist.WithFailureCounter(m))

	loaded := adapter.Load(ctx)
	store := chat.NewStore(chat.InitialState(loaded, time.Now()), chat.WithLogger(logger))
	if loaded == nil {
		adapter.Save(ctx, store.Snapshot())
	}

	seed := cfg.ReplySeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	provider, err := ai.NewDefaultRegistry(seed).Get(ctx, cfg.AIProvider)
	if err != nil {
		return err
	}
	sch := reply.NewScheduler(store, provider,
		reply.WithDelay(reply.UniformDelay(rand.New(rand.NewSource(seed+1)), cfg.ReplyMinDelay, cfg.ReplyMaxDelay)),
		reply.WithLogger(logger),
		reply.WithRecorder(m),
	)
	store.UseScheduler(sch)
	m.WatchPending(sch.Pending)

	hub := events.NewHub(64)
	store.Observe(adapter)
	store.Observe(m)
	store.Observe(hub)

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier := rabbitmq.NewNotifier(pub, 256, logger, m)
		store.Observe(notifier)
		go notifier.Run(ctx)
		logger.Info("change notifications enabled", "queue", cfg.RabbitQueue)
	}

	schDone := make(chan struct{})
	go func() {
		defer close(schDone)
		_ = sch.Run(ctx)
	}()

	router := httpapi.NewRouter(handlers.NewHandler(store, hub, logger), m.Handler(), logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "provider", cfg.AIProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			<-schDone
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	<-schDone
	return nil
}
