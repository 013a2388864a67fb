package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/staffhub/backend/core"
)

type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

const (
	titleSuccess = "CASES ETL Completed Successfully"
	titleWarning = "CASES ETL Completed with Warnings"
	titleError   = "CASES ETL Failed"
)

type Notification struct {
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Stats     *Stats           `json:"stats,omitempty"`
	Errors    []string         `json:"errors,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Color is the hex color of the notification type, without '#'.
func (n Notification) Color() string {
	switch n.Type {
	case NotifyError:
		return "FF0000"
	case NotifyWarning:
		return "FFAA00"
	}
	return "00FF00"
}

// Channel delivers notifications somewhere (chat webhook, email, topic).
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier sends each notification to every channel concurrently.
// Channels are best-effort: failures are logged and never returned.
type Notifier struct {
	channels []Channel
	logger   core.Logger
	now      func() time.Time
}

func NewNotifier(logger core.Logger, channels ...Channel) *Notifier {
	return &Notifier{channels: channels, logger: logger, now: time.Now}
}

// Notify waits for every channel to finish.
func (n *Notifier) Notify(ctx context.Context, notif Notification) {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = n.now()
	}
	n.logger.Info(fmt.Sprintf("sending ETL notification %q (%s) to %d channels", notif.Title, notif.Type, len(n.channels)))

	var g errgroup.Group
	for _, ch := range n.channels {
		ch := ch
		g.Go(func() error {
			if err := send(ctx, ch, notif); err != nil {
				n.logger.Error(fmt.Sprintf("sending %s notification: %v", ch.Name(), err), err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func send(ctx context.Context, ch Channel, notif Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return ch.Send(ctx, notif)
}

func (n *Notifier) NotifySuccess(ctx context.Context, stats Stats) {
	n.Notify(ctx, Notification{
		Type:    NotifySuccess,
		Title:   titleSuccess,
		Message: fmt.Sprintf("ETL processed %d students and %d staff members.", stats.Students.Created, stats.Staff.Created),
		Stats:   &stats,
	})
}

func (n *Notifier) NotifyWarning(ctx context.Context, message string, stats *Stats, errs []string) {
	n.Notify(ctx, Notification{
		Type:    NotifyWarning,
		Title:   titleWarning,
		Message: message,
		Stats:   stats,
		Errors:  errs,
	})
}

func (n *Notifier) NotifyError(ctx context.Context, message string, errs []string, stats *Stats) {
	n.Notify(ctx, Notification{
		Type:    NotifyError,
		Title:   titleError,
		Message: message,
		Stats:   stats,
		Errors:  errs,
	})
}
