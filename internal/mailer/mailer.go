// Package mailer sends transactional email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/shopspring/decimal"
)

// Sender delivers a single email message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig holds the connection settings for an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send implements the Sender interface.
func (s *SMTPSender) Send(_ context.Context, to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

var _ Sender = (*SMTPSender)(nil)

// BudgetAlert carries the figures rendered into a budget alert email.
type BudgetAlert struct {
	UserName    string
	AccountName string
	PercentUsed decimal.Decimal
	Budget      decimal.Decimal
	Spent       decimal.Decimal
	Remaining   decimal.Decimal
}

var budgetAlertTmpl = template.Must(template.New("budget-alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>Budget Alert for {{.AccountName}}</h2>
  <p>Hello {{.UserName}},</p>
  <p>You have used <strong>{{.PercentUsed}}%</strong> of your monthly budget.</p>
  <table cellpadding="8" style="border-collapse: collapse;">
    <tr><td>Budget</td><td><strong>${{.Budget}}</strong></td></tr>
    <tr><td>Spent so far</td><td><strong>${{.Spent}}</strong></td></tr>
    <tr><td>Remaining</td><td><strong>${{.Remaining}}</strong></td></tr>
  </table>
</body>
</html>`))

// RenderBudgetAlert renders the budget alert email body.
func RenderBudgetAlert(alert BudgetAlert) (string, error) {
	view := struct {
		UserName    string
		AccountName string
		PercentUsed string
		Budget      string
		Spent       string
		Remaining   string
	}{
		UserName:    alert.UserName,
		AccountName: alert.AccountName,
		PercentUsed: alert.PercentUsed.StringFixed(1),
		Budget:      alert.Budget.StringFixed(2),
		Spent:       alert.Spent.StringFixed(2),
		Remaining:   alert.Remaining.StringFixed(2),
	}

	var buf bytes.Buffer
	if err := budgetAlertTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render budget alert: %w", err)
	}
	return buf.String(), nil
}

// NopSender discards mail. Used when SMTP is not configured.
type NopSender struct{}

func (NopSender) Send(context.Context, string, string, string) error { return nil }

var _ Sender = NopSender{}
