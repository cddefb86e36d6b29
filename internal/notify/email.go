package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/partnerhealth/report-core/internal/config"
	"github.com/partnerhealth/report-core/internal/model"
)

// ContactLookup finds the consent record carrying a user's email address.
type ContactLookup interface {
	GetConsent(ctx context.Context, userID, partnerID string) (*model.ConsentRecord, error)
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender implements Notifier for the email channel over SMTP.
type EmailSender struct {
	contacts ContactLookup
	addr     string
	from     string
	auth     smtp.Auth
	send     sendFunc
}

// NewEmailSender creates an SMTP email notifier.
func NewEmailSender(cfg config.NotifyConfig, contacts ContactLookup) *EmailSender {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &EmailSender{
		contacts: contacts,
		addr:     net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort)),
		from:     cfg.FromAddress,
		auth:     auth,
		send:     smtp.SendMail,
	}
}

// Notify emails the user at the address on their consent record.
func (e *EmailSender) Notify(ctx context.Context, n Notification) error {
	c, err := e.contacts.GetConsent(ctx, n.UserID, "")
	if err != nil {
		return eris.Wrap(err, "notify: lookup contact")
	}
	if c == nil || c.Identity.Email == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "notify: email")
	}

	msg := buildMessage(e.from, c.Identity.Email, c.Identity.Name, n)
	if err := e.send(e.addr, e.auth, e.from, []string{c.Identity.Email}, msg); err != nil {
		return eris.Wrap(err, "notify: send email")
	}
	return nil
}

func buildMessage(from, to, name string, n Notification) []byte {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}
	url, _ := n.Payload["report_url"].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your health report is ready\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s,\r\n\r\nYour health risk report is ready.\r\n", greeting)
	if url != "" {
		fmt.Fprintf(&b, "View it here: %s\r\n", url)
	}
	return []byte(b.String())
}
