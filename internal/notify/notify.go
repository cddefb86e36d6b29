// Package notify delivers "your report is ready" messages. Delivery is
// fire-and-forget: callers never see a notification failure.
package notify

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/partnerhealth/report-core/internal/model"
	"github.com/partnerhealth/report-core/internal/monitoring"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelRealtime Channel = "realtime"
	ChannelEmail    Channel = "email"
)

// EventReportReady is sent when a report has been generated.
const EventReportReady = "report_ready"

// Notification is one message for one user on one channel.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Channel   Channel        `json:"channel"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ErrNoRecipient means the channel has nowhere to deliver for this user.
var ErrNoRecipient = errors.New("notify: no recipient")

const defaultTimeout = 10 * time.Second

// Dispatcher routes notifications to the notifier registered for their
// channel.
type Dispatcher struct {
	channels map[Channel]Notifier
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. timeout bounds each async dispatch.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		channels: make(map[Channel]Notifier),
		timeout:  timeout,
	}
}

// Register enables a channel.
func (d *Dispatcher) Register(ch Channel, n Notifier) {
	d.channels[ch] = n
}

// Channels returns the enabled channels in a stable order.
func (d *Dispatcher) Channels() []Channel {
	out := make([]Channel, 0, len(d.channels))
	for ch := range d.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notify delivers n on its channel.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	target, ok := d.channels[n.Channel]
	if !ok {
		return eris.Errorf("notify: channel %q not enabled", n.Channel)
	}
	err := target.Notify(ctx, n)
	monitoring.RecordNotification(string(n.Channel), err)
	if err != nil {
		return eris.Wrapf(err, "notify: %s to %s", n.Channel, n.UserID)
	}
	return nil
}

// ReportReady builds one report-ready notification per enabled channel.
func (d *Dispatcher) ReportReady(ref model.ReportRef) []Notification {
	now := time.Now().UTC()
	var out []Notification
	for _, ch := range d.Channels() {
		out = append(out, Notification{
			ID:      uuid.NewString(),
			UserID:  ref.UserID,
			Channel: ch,
			Event:   EventReportReady,
			Payload: map[string]any{
				"hospital_id": ref.HospitalID,
				"report_url":  ref.ReportURL,
				"analyzed_at": ref.AnalyzedAt,
			},
			CreatedAt: now,
		})
	}
	return out
}

// AnnounceReport dispatches report-ready notifications on every enabled
// channel without blocking.
func (d *Dispatcher) AnnounceReport(ref model.ReportRef) <-chan struct{} {
	return d.DispatchAsync(d.ReportReady(ref)...)
}

// DispatchAsync delivers ns in the background, detached from any request
// context. Failures are logged and dropped. The returned channel closes when
// every delivery has finished.
func (d *Dispatcher) DispatchAsync(ns ...Notification) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		log := zap.L().With(zap.String("component", "notify"))
		for _, n := range ns {
			err := d.Notify(ctx, n)
			switch {
			case err == nil:
				log.Debug("notification delivered",
					zap.String("user_id", n.UserID),
					zap.String("channel", string(n.Channel)),
				)
			case errors.Is(err, ErrNoRecipient):
				log.Debug("notification skipped, no recipient",
					zap.String("user_id", n.UserID),
					zap.String("channel", string(n.Channel)),
				)
			default:
				log.Warn("notification failed",
					zap.String("user_id", n.UserID),
					zap.String("channel", string(n.Channel)),
					zap.Error(err),
				)
			}
		}
	}()
	return done
}
