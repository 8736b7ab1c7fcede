// Package notify fans alert and feedback updates out to realtime
// subscribers and per-severity notification channels.
package notify

import (
	"context"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
)

// Broadcaster pushes realtime updates to event subscribers.
type Broadcaster interface {
	BroadcastAlert(ctx context.Context, alert *domain.Alert) error
	BroadcastFeedback(ctx context.Context, item *domain.FeedbackItem) error
	BroadcastAutoResolveSummary(ctx context.Context, eventID string, count int) error
}

// NopBroadcaster discards all updates. Used when no realtime backend is
// configured.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastAlert(context.Context, *domain.Alert) error           { return nil }
func (NopBroadcaster) BroadcastFeedback(context.Context, *domain.FeedbackItem) error { return nil }
func (NopBroadcaster) BroadcastAutoResolveSummary(context.Context, string, int) error {
	return nil
}

// EmailSender delivers alert emails to the event's operations list.
type EmailSender interface {
	SendAlertEmail(ctx context.Context, alert *domain.Alert) error
}

// SMSSender delivers alert texts for urgent severities.
type SMSSender interface {
	SendAlertSMS(ctx context.Context, alert *domain.Alert) error
}

// DigestSender delivers the hourly per-event alert digest.
type DigestSender interface {
	SendAlertDigest(ctx context.Context, eventID string, byType map[domain.AlertType]int) error
}

// Dispatcher routes a raised alert to its channels by severity. Delivery
// is fire-and-forget: a failed channel is logged and never blocks or
// fails the pipeline.
type Dispatcher struct {
	broadcaster Broadcaster
	email       EmailSender
	sms         SMSSender
	digest      DigestSender
	log         logger.Logger
}

// NewDispatcher creates a dispatcher. Email, SMS, and digest senders are
// optional; nil disables the channel.
func NewDispatcher(broadcaster Broadcaster, email EmailSender, sms SMSSender, digest DigestSender, log logger.Logger) *Dispatcher {
	return &Dispatcher{broadcaster: broadcaster, email: email, sms: sms, digest: digest, log: log}
}

// AlertRaised broadcasts an alert and notifies severity-matched channels.
// High severity adds email; critical adds email and SMS.
func (d *Dispatcher) AlertRaised(ctx context.Context, alert *domain.Alert) {
	if err := d.broadcaster.BroadcastAlert(ctx, alert); err != nil {
		d.log.Warn("alert broadcast failed",
			logger.String("alert_id", alert.ID),
			logger.Error(err))
	}

	if alert.Severity.Rank() >= domain.SeverityHigh.Rank() && d.email != nil {
		if err := d.email.SendAlertEmail(ctx, alert); err != nil {
			d.log.Warn("alert email failed",
				logger.String("alert_id", alert.ID),
				logger.Error(err))
		}
	}
	if alert.Severity == domain.SeverityCritical && d.sms != nil {
		if err := d.sms.SendAlertSMS(ctx, alert); err != nil {
			d.log.Warn("alert sms failed",
				logger.String("alert_id", alert.ID),
				logger.Error(err))
		}
	}
}

// AlertUpdated broadcasts a status change on an existing alert.
func (d *Dispatcher) AlertUpdated(ctx context.Context, alert *domain.Alert) {
	if err := d.broadcaster.BroadcastAlert(ctx, alert); err != nil {
		d.log.Warn("alert update broadcast failed",
			logger.String("alert_id", alert.ID),
			logger.Error(err))
	}
}

// FeedbackProcessed broadcasts a newly classified feedback item.
func (d *Dispatcher) FeedbackProcessed(ctx context.Context, item *domain.FeedbackItem) {
	if err := d.broadcaster.BroadcastFeedback(ctx, item); err != nil {
		d.log.Warn("feedback broadcast failed",
			logger.String("feedback_id", item.ID),
			logger.Error(err))
	}
}

// AutoResolveCompleted broadcasts a count-only summary after the sweep
// resolved alerts for an event.
func (d *Dispatcher) AutoResolveCompleted(ctx context.Context, eventID string, count int) {
	if err := d.broadcaster.BroadcastAutoResolveSummary(ctx, eventID, count); err != nil {
		d.log.Warn("auto-resolve summary broadcast failed",
			logger.String("event_id", eventID),
			logger.Error(err))
	}
}

// Digest sends the hourly alert digest for one event.
func (d *Dispatcher) Digest(ctx context.Context, eventID string, byType map[domain.AlertType]int) {
	if d.digest == nil {
		d.log.Info("alert digest",
			logger.String("event_id", eventID),
			logger.Any("alerts_by_type", byType))
		return
	}
	if err := d.digest.SendAlertDigest(ctx, eventID, byType); err != nil {
		d.log.Warn("alert digest failed",
			logger.String("event_id", eventID),
			logger.Error(err))
	}
}
