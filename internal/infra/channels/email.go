package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	"announcement_dispatcher/internal/domain/subscriber"

	emailaddress "github.com/mcnijman/go-emailaddress"
	"github.com/sirupsen/logrus"
	"gopkg.in/mail.v2"
)

// MailSender is satisfied by *mail.Dialer.
type MailSender interface {
	DialAndSend(m ...*mail.Message) error
}

func NewSMTPDialer(host string, port int, username, password string, timeout time.Duration) *mail.Dialer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = timeout
	return dialer
}

// EmailFanoutDispatcher sends one message per notification, addressed to the
// sender and Bcc'd to every email-enabled resident with a valid address.
type EmailFanoutDispatcher struct {
	sender      MailSender
	from        string
	subscribers subscriber.Repository
	logger      *logrus.Entry
}

func NewEmailFanoutDispatcher(sender MailSender, from string, subscribers subscriber.Repository, logger *logrus.Entry) *EmailFanoutDispatcher {
	return &EmailFanoutDispatcher{
		sender:      sender,
		from:        from,
		subscribers: subscribers,
		logger:      logger,
	}
}

func (d *EmailFanoutDispatcher) Channel() delivery.Channel {
	return delivery.ChannelEmailFanout
}

func (d *EmailFanoutDispatcher) Dispatch(ctx context.Context, n *notification.Notification) delivery.Result {
	subs, err := d.subscribers.ListActive(ctx)
	if err != nil {
		return delivery.Failed(fmt.Sprintf("unable to load email recipients: %v", err))
	}

	recipients := d.recipients(subs)
	if len(recipients) == 0 {
		return delivery.Skipped("no email-enabled subscribers")
	}

	m := mail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", d.from)
	m.SetHeader("Bcc", recipients...)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", n.Body)

	done := make(chan error, 1)
	go func() {
		done <- d.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return delivery.Failed(fmt.Sprintf("smtp: %v", err))
		}
		return delivery.Sent(fmt.Sprintf("email sent to %d recipients", len(recipients)))
	case <-ctx.Done():
		return delivery.Failed(fmt.Sprintf("smtp: %v", ctx.Err()))
	}
}

func (d *EmailFanoutDispatcher) recipients(subs []*subscriber.Subscriber) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		if !s.EmailEnabled {
			continue
		}
		addr := strings.TrimSpace(s.Email)
		if _, err := emailaddress.Parse(addr); err != nil {
			d.logger.WithFields(logrus.Fields{"user_id": s.UserID, "email": s.Email}).Debug("Skipping invalid subscriber email")
			continue
		}
		out = append(out, addr)
	}
	return out
}
