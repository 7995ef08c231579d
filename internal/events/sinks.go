package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// LogSink writes one structured log line per event
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through logger
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name returns the sink name
func (s *LogSink) Name() string { return "log" }

// Deliver logs the event
func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	attrs := []any{"type", string(ev.Type), "request_id", ev.RequestID}
	if ev.Ref != "" {
		attrs = append(attrs, "ref", ev.Ref, "old", ev.OldValue, "new", ev.NewValue)
	}
	if ev.Build != "" {
		attrs = append(attrs, "build", ev.Build)
	}
	if len(ev.Changes) > 0 {
		numbers := make([]int, 0, len(ev.Changes))
		for _, c := range ev.Changes {
			numbers = append(numbers, c.Number)
		}
		attrs = append(attrs, "changes", numbers)
	}
	s.logger.InfoContext(ctx, "event", attrs...)
	return nil
}

// RedisSink publishes events as JSON on a redis channel
type RedisSink struct {
	rdb     redis.UniversalClient
	channel string
}

// NewRedisSink creates a sink publishing to channel
func NewRedisSink(rdb redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel}
}

// Name returns the sink name
func (s *RedisSink) Name() string { return "redis" }

// Deliver publishes the event
func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, raw).Err()
}

// Mail is a rendered notification email
type Mail struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends mail. Delivery is outside stageline; the default only logs.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer logs mail instead of sending it
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs the mail
func (m LogMailer) Send(ctx context.Context, mail Mail) error {
	m.Logger.InfoContext(ctx, "mail", "to", strings.Join(mail.To, ","), "subject", mail.Subject)
	return nil
}

// MailSink renders events flagged Email into one mail per change
type MailSink struct {
	mailer Mailer
	owners func(ctx context.Context, number int) string
}

// NewMailSink creates a mail sink; owners maps a change number to its owner address
func NewMailSink(mailer Mailer, owners func(ctx context.Context, number int) string) *MailSink {
	return &MailSink{mailer: mailer, owners: owners}
}

// Name returns the sink name
func (s *MailSink) Name() string { return "mail" }

// Deliver sends merged and build-failed mail
func (s *MailSink) Deliver(ctx context.Context, ev Event) error {
	if !ev.Email {
		return nil
	}
	for _, c := range ev.Changes {
		var subject string
		switch ev.Type {
		case ChangeMerged:
			subject = fmt.Sprintf("Change %d merged into %s: %s", c.Number, ev.Branch, c.Subject)
		case BuildFailed:
			subject = fmt.Sprintf("Change %d failed build %s: %s", c.Number, ev.Build, c.Subject)
		default:
			continue
		}

		var to []string
		if s.owners != nil {
			if owner := s.owners(ctx, c.Number); owner != "" {
				to = append(to, owner)
			}
		}
		body := ev.Message
		if body == "" {
			body = subject
		}
		if err := s.mailer.Send(ctx, Mail{To: to, Subject: subject, Body: body}); err != nil {
			return fmt.Errorf("mail for change %d: %w", c.Number, err)
		}
	}
	return nil
}
