package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Joseda-hg/taskboard/internal/config"
	"github.com/Joseda-hg/taskboard/internal/logging"
	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// MaxTextLength is the size of a single SMS segment.
const MaxTextLength = 160

const sendAttempts = 3

// Notifier sends a text that references a task.
type Notifier interface {
	Notify(ctx context.Context, task model.Task) error
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMSGateway delivers texts through a carrier's email-to-SMS gateway.
type SMSGateway struct {
	sender  sender
	from    string
	to      string
	limiter *rate.Limiter
	log     *logrus.Entry
}

func NewSMSGateway(cfg config.SMSConfig, log *logrus.Entry) *SMSGateway {
	dialer := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	dialer.Timeout = 10 * time.Second
	return newSMSGateway(dialer, cfg.Sender, cfg.Recipient(), cfg.PerMinute, log)
}

func newSMSGateway(s sender, from, to string, perMinute int, log *logrus.Entry) *SMSGateway {
	if perMinute <= 0 {
		perMinute = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	return &SMSGateway{
		sender:  s,
		from:    from,
		to:      to,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		log:     log.WithField("component", "sms_gateway"),
	}
}

func (g *SMSGateway) Notify(ctx context.Context, task model.Task) error {
	msg := mail.NewMessage()
	msg.SetHeader("To", g.to)
	msg.SetHeader("From", g.from)
	msg.SetHeader("Subject", fmt.Sprintf("Task #%d", task.ID))
	msg.SetBody("text/plain", FormatText(task))

	logEntry := g.log.WithField("task_id", task.ID)

	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send text for task %d: %w", task.ID, err)
		}
		err = g.sender.DialAndSend(msg)
		if err == nil {
			logEntry.WithField("attempt", attempt).Info("text sent")
			return nil
		}
		logEntry.WithError(err).WithField("attempt", attempt).Warn("text send failed")
	}
	return fmt.Errorf("send text for task %d: %w", task.ID, err)
}

// LogNotifier stands in for the gateway when no SMTP host is configured.
type LogNotifier struct {
	Log *logrus.Entry
}

func (n LogNotifier) Notify(_ context.Context, task model.Task) error {
	log := n.Log
	if log == nil {
		log = logging.Discard()
	}
	log.WithFields(logrus.Fields{
		"component": "log_notifier",
		"task_id":   task.ID,
		"text":      FormatText(task),
	}).Info("sms gateway not configured, text logged only")
	return nil
}

// FormatText renders the one-line text for task, cut to MaxTextLength runes.
func FormatText(task model.Task) string {
	description := task.Description
	if description == "" {
		description = "(no description)"
	}
	text := fmt.Sprintf("Task #%d: %s (due %s, %s)", task.ID, description, task.DueLabel(), task.State())
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxTextLength-3]) + "..."
}
