package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"thsr-receipts/lib/telemetry"
	"thsr-receipts/lib/thsr"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("thsr.lib.mailer")

var ErrNotConfigured = fmt.Errorf("smtp server is not configured")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

func (c SmtpConfig) Configured() bool {
	return c.Server != "" && c.EmailAddress != ""
}

type Mailer struct {
	config SmtpConfig
}

func NewMailer(config SmtpConfig) Mailer {
	if config.Port == 0 {
		config.Port = 587
	}
	return Mailer{config: config}
}

func (m Mailer) compose(to string, q thsr.Query, receiptPath string) (*email.Email, error) {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("THSR Receipts <%s>", m.config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = fmt.Sprintf("高鐵乘車證明 %s %s-%s", q.DateString(), q.From, q.To)
	mail.Text = []byte(fmt.Sprintf(`Receipt for the THSR trip on %s from %s to %s.

%s: %s`, q.DateString(), q.From, q.To, queryTypeLabel(q.Type()), q.Identifier()))

	f, err := os.Open(receiptPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, err = mail.Attach(f, filepath.Base(receiptPath), "application/pdf")
	if err != nil {
		return nil, err
	}
	return mail, nil
}

func queryTypeLabel(t thsr.QueryType) string {
	if t == thsr.QueryBooking {
		return "Booking code"
	}
	return "Ticket number"
}

// SendReceipt mails the receipt at `receiptPath` to `to` as an attachment.
func (m Mailer) SendReceipt(ctx context.Context, to string, q thsr.Query, receiptPath string) error {
	ctx, span := tracer.Start(ctx, "SendReceipt")
	defer span.End()
	span.SetAttributes(attribute.String("to", to))

	if !m.config.Configured() {
		return ErrNotConfigured
	}

	mail, err := m.compose(to, q, receiptPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compose email")
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err = mail.Send(
		addr,
		smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
