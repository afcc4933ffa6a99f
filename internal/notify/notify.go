package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sony/gobreaker"

	"github.com/dgnsrekt/outingsync/internal/sync"
)

// Notifier surfaces sync events to the user: toasts for changes made by
// others, alerts for failed writes.
type Notifier interface {
	Toast(ctx context.Context, n sync.Notice) error
	Alert(ctx context.Context, title, message string) error
}

// Client implements the ntfy notification client. Sends go through a
// circuit breaker so an unreachable ntfy server is skipped instead of
// retried on every event.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ntfy",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("notification circuit changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
		config:  cfg,
		logger:  logger,
	}
}

// Toast sends a low-priority notification for changes made by others.
func (c *Client) Toast(ctx context.Context, n sync.Notice) error {
	if !c.config.Enabled {
		return nil
	}

	title, message := FormatNotice(n)
	return c.send(ctx, title, message, c.config.Tags, c.config.Priority)
}

// Alert sends a failure notification.
func (c *Client) Alert(ctx context.Context, title, message string) error {
	if !c.config.Enabled {
		return nil
	}

	tags := c.config.Tags + ",warning"
	return c.send(ctx, title, message, tags, c.config.AlertPriority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.post(ctx, title, message, tags, priority)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("notification skipped", zap.String("title", title), zap.Error(err))
	}
	return err
}

func (c *Client) post(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// Publisher delivers an event to live UI connections.
type Publisher interface {
	Publish(topic string, payload any) int
}

// AlertEvent is the payload of an alert event.
type AlertEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Event topics used by HubNotifier.
const (
	TopicToast = "toast"
	TopicAlert = "alert"
)

// HubNotifier pushes toasts and alerts to connected UI clients.
type HubNotifier struct {
	pub Publisher
}

func NewHubNotifier(pub Publisher) *HubNotifier {
	return &HubNotifier{pub: pub}
}

func (h *HubNotifier) Toast(_ context.Context, n sync.Notice) error {
	h.pub.Publish(TopicToast, n)
	return nil
}

func (h *HubNotifier) Alert(_ context.Context, title, message string) error {
	h.pub.Publish(TopicAlert, AlertEvent{Title: title, Message: message})
	return nil
}

// Multi fans out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Toast(ctx context.Context, n sync.Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Toast(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Alert(ctx context.Context, title, message string) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Alert(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

func (n *NoopNotifier) Toast(_ context.Context, _ sync.Notice) error { return nil }

func (n *NoopNotifier) Alert(_ context.Context, _, _ string) error { return nil }

// New creates the ntfy notifier, or a no-op one when ntfy is disabled.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
