package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Joseda-hg/taskboard/internal/logging"
	"github.com/Joseda-hg/taskboard/internal/model"
	"github.com/go-mail/mail/v2"
)

type fakeSender struct {
	failures int
	calls    int
	sent     []*mail.Message
}

func (f *fakeSender) DialAndSend(m ...*mail.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestFormatText(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	text := FormatText(model.Task{ID: 7, Description: "Pay rent", Due: &due})
	if text != "Task #7: Pay rent (due 2024-01-01, open)" {
		t.Fatalf("unexpected text %q", text)
	}

	text = FormatText(model.Task{ID: 8, Completed: true})
	if text != "Task #8: (no description) (due none, done)" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFormatTextTruncates(t *testing.T) {
	text := FormatText(model.Task{ID: 1, Description: strings.Repeat("é", 300)})
	if utf8.RuneCountInString(text) != MaxTextLength {
		t.Fatalf("expected %d runes, got %d", MaxTextLength, utf8.RuneCountInString(text))
	}
	if !strings.HasSuffix(text, "...") {
		t.Fatalf("expected ellipsis, got %q", text)
	}
}

func TestSMSGatewayRetries(t *testing.T) {
	fake := &fakeSender{failures: 2}
	gateway := newSMSGateway(fake, "tasks@example.com", "5551234567@txt.att.net", 600, logging.Discard())

	if err := gateway.Notify(context.Background(), model.Task{ID: 3, Description: "Call dentist"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(fake.sent))
	}
	if to := fake.sent[0].GetHeader("To"); len(to) != 1 || to[0] != "5551234567@txt.att.net" {
		t.Fatalf("unexpected recipient %v", to)
	}
}

func TestSMSGatewayGivesUp(t *testing.T) {
	fake := &fakeSender{failures: 10}
	gateway := newSMSGateway(fake, "tasks@example.com", "5551234567@txt.att.net", 600, logging.Discard())

	err := gateway.Notify(context.Background(), model.Task{ID: 3})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if fake.calls != sendAttempts {
		t.Fatalf("expected %d attempts, got %d", sendAttempts, fake.calls)
	}
}

func TestSMSGatewayHonoursContext(t *testing.T) {
	fake := &fakeSender{}
	gateway := newSMSGateway(fake, "tasks@example.com", "5551234567@txt.att.net", 1, logging.Discard())

	if err := gateway.Notify(context.Background(), model.Task{ID: 1}); err != nil {
		t.Fatalf("first notify: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gateway.Notify(ctx, model.Task{ID: 2}); err == nil {
		t.Fatalf("expected cancelled context to stop the send")
	}
	if fake.calls != 1 {
		t.Fatalf("expected no send after cancellation, got %d calls", fake.calls)
	}
}

func TestLogNotifier(t *testing.T) {
	n := LogNotifier{Log: logging.Discard()}
	if err := n.Notify(context.Background(), model.Task{ID: 1}); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

func TestNilLoggerFallsBack(t *testing.T) {
	if err := (LogNotifier{}).Notify(context.Background(), model.Task{ID: 2}); err != nil {
		t.Fatalf("log notifier: %v", err)
	}

	fake := &fakeSender{}
	gateway := newSMSGateway(fake, "tasks@example.com", "5551234567@txt.att.net", 600, nil)
	if err := gateway.Notify(context.Background(), model.Task{ID: 2}); err != nil {
		t.Fatalf("gateway: %v", err)
	}
}
