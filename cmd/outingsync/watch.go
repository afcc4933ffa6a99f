package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/config"
	"github.com/dgnsrekt/outingsync/internal/metrics"
	"github.com/dgnsrekt/outingsync/internal/notify"
	"github.com/dgnsrekt/outingsync/internal/server"
	"github.com/dgnsrekt/outingsync/internal/sync"
	"github.com/dgnsrekt/outingsync/internal/ws"
)

func watchCmd() *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "watch <activity-id>",
		Short: "Sync an activity until interrupted and serve its state locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID, err := parseActivityID(args[0])
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), activityID, background)
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "start backgrounded; wait for POST /lifecycle to begin polling")

	return cmd
}

func runWatch(ctx context.Context, activityID int64, background bool) error {
	ntfyCfg := notify.LoadConfig()
	if err := ntfyCfg.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()

	hub := ws.NewHub("events", config.EventTopics, logger)
	go hub.Run(hubCtx)

	notifier := notify.Multi{notify.NewHubNotifier(hub), notify.New(ntfyCfg, logger)}
	tgCfg, err := notify.LoadTelegramConfig()
	if err != nil {
		return fmt.Errorf("telegram config: %w", err)
	}
	if tgCfg != nil {
		tg, err := notify.NewTelegram(tgCfg, logger)
		if err != nil {
			return err
		}
		notifier = append(notifier, tg)
		logger.Info("telegram notifications enabled", zap.Int64("chatID", tgCfg.ChatID))
	}
	collector := metrics.NewCollector()

	a, err := buildApp(cfg, activityID, notifier, hub, collector)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.API.Token == "" {
		logger.Warn("no token configured; polling starts after PUT /session")
	}

	var httpServer *http.Server
	if cfg.Server.Enabled {
		httpServer = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.NewRouter(server.NewServer(a, hub, collector, logger), logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("starting control surface", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", zap.Error(err))
			}
		}()
	}

	if !background {
		a.SetLifecycle(sync.Active)
	}

	logger.Info("watching activity",
		zap.Int64("activity_id", activityID),
		zap.Bool("open", a.Gate().Open()),
		zap.Duration("comment_interval", sync.CommentInterval),
		zap.Duration("activity_interval", sync.ActivityInterval),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	a.SetLifecycle(sync.Background)
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}

	comments := a.CommentsLoop().Stats().Snapshot()
	act := a.ActivityLoop().Stats().Snapshot()
	logger.Info("sync stopped",
		zap.Int64("comment_ticks", comments.Ticks),
		zap.Int64("comment_failures", comments.Failures),
		zap.Int64("activity_ticks", act.Ticks),
		zap.Int64("activity_failures", act.Failures),
	)
	return nil
}
