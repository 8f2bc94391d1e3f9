// Package notification delivers monitor alerts (policy signals, sink
// outages) to external channels.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Token   string         `json:"token,omitempty"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	At      time.Time      `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger.With("component", "notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Info(alert.Title, "level", string(alert.Level), "token", alert.Token, "message", alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends alerts off the caller's goroutine: a bounded queue,
// a per-minute cap and retries with exponential backoff.
type Dispatcher struct {
	n          Notifier
	queue      chan Alert
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger

	// OnDrop is called when an alert is discarded (optional).
	OnDrop func(Alert)
}

// NewDispatcher wraps n. perMinute <= 0 disables the cap.
func NewDispatcher(n Notifier, queueSize, perMinute int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	return &Dispatcher{
		n:          n,
		queue:      make(chan Alert, queueSize),
		limiter:    lim,
		maxRetries: 3,
		backoff:    time.Second,
		log:        logger.With("component", "notify"),
	}
}

// Notify enqueues an alert without blocking. A full queue drops it.
func (d *Dispatcher) Notify(alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}
	select {
	case d.queue <- alert:
	default:
		d.drop(alert, "queue full")
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-d.queue:
			if !d.limiter.Allow() {
				d.drop(alert, "rate limited")
				continue
			}
			if err := d.sendWithRetry(ctx, alert); err != nil && ctx.Err() == nil {
				d.log.Warn("alert not delivered", "title", alert.Title, "error", err)
			}
		}
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, alert Alert) error {
	var lastErr error
	for i := 0; i <= d.maxRetries; i++ {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		lastErr = d.n.Send(sendCtx, alert)
		cancel()
		if lastErr == nil {
			return nil
		}
		if i == d.maxRetries {
			break
		}
		wait := d.backoff << uint(i)
		d.log.Debug("alert send failed, retrying", "attempt", i+1, "in", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (d *Dispatcher) drop(alert Alert, why string) {
	d.log.Warn("alert dropped", "title", alert.Title, "reason", why)
	if d.OnDrop != nil {
		d.OnDrop(alert)
	}
}
