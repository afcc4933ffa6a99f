package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/app"
	"github.com/dgnsrekt/outingsync/internal/config"
	"github.com/dgnsrekt/outingsync/internal/metrics"
	"github.com/dgnsrekt/outingsync/internal/notify"
	"github.com/dgnsrekt/outingsync/internal/session"
)

var errNoToken = errors.New("no token configured (set OUTINGSYNC_TOKEN or api.token)")

// parseActivityID parses a positive activity id argument.
func parseActivityID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid activity id %q: must be a positive integer", arg)
	}
	return id, nil
}

// buildApp wires the API client and the sync controller from config.
func buildApp(cfg *config.Config, activityID int64, notifier notify.Notifier, pub notify.Publisher, collector *metrics.Collector) (*app.App, error) {
	client := api.NewClient(cfg.API.BaseURL, "", cfg.API.RatePerSecond, cfg.API.Timeout(), logger)

	opts := app.Options{
		ActivityID:      activityID,
		Session:         session.New(cfg.API.Token, cfg.Session.UserID, cfg.Session.UserName),
		Timeout:         cfg.API.Timeout(),
		ShowProvisional: cfg.Sync.ShowProvisional,
		Notifier:        notifier,
		Publisher:       pub,
		Logger:          logger,
	}
	if collector != nil {
		client.SetObserver(collector)
		opts.Observer = collector
	}

	return app.New(client, opts)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
