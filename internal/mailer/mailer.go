package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"regexp"
	"strings"

	"registration-service/config"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"
)

// Result is the outcome of a dispatch attempt. Delivery failures are carried
// here instead of being returned as errors so a batch of sends can continue
// past individual failures.
type Result struct {
	OK  bool
	Err error
}

// ConfirmationData is everything a registration confirmation needs.
type ConfirmationData struct {
	Name         string
	OrderID      string
	Entitlements []string
	Credential   []byte
	TicketURL    string
}

// OTPData carries a short-lived numeric access code. No entitlement data,
// no attachment.
type OTPData struct {
	Name string
	Code string
}

// Mailer delivers registration and OTP messages over SMTP.
type Mailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	logger   *zap.Logger
}

func New(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   util.GetLogger(),
	}
}

// EntitlementLabel renders the event list for a confirmation message:
// placeholder names are dropped, duplicates collapsed, and an empty result
// falls back to the generic registration label.
func EntitlementLabel(entitlements []string) string {
	seen := make(map[string]bool, len(entitlements))
	valid := make([]string, 0, len(entitlements))
	for _, e := range entitlements {
		e = strings.TrimSpace(e)
		if e == "" || e == models.DemoPaymentItem || e == models.DemoEventItem {
			continue
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return models.GeneralRegistration
	}
	return strings.Join(valid, ", ")
}

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9]`)

// AttachmentFilename derives the credential attachment name from the
// recipient's name.
func AttachmentFilename(name string) string {
	clean := filenameSanitizer.ReplaceAllString(name, "")
	if clean == "" {
		clean = "attendee"
	}
	return fmt.Sprintf("ticket-%s.png", clean)
}

// SendRegistrationConfirmation delivers the confirmation message, attaching
// the credential image when present.
func (m *Mailer) SendRegistrationConfirmation(to string, data ConfirmationData) Result {
	if m.from == "" || m.dialer.Username == "" {
		return Result{Err: fmt.Errorf("mail transport not configured")}
	}

	label := EntitlementLabel(data.Entitlements)

	var html bytes.Buffer
	if err := confirmationTmpl.Execute(&html, map[string]interface{}{
		"Name":      data.Name,
		"Events":    label,
		"TicketURL": data.TicketURL,
	}); err != nil {
		return Result{Err: fmt.Errorf("failed to render confirmation: %w", err)}
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Registration Confirmed")
	msg.SetBody("text/plain", confirmationText(data.Name, label, data.TicketURL))
	msg.AddAlternative("text/html", html.String())

	if len(data.Credential) > 0 {
		img := data.Credential
		msg.Attach(AttachmentFilename(data.Name),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(img)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"image/png"}}),
		)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send confirmation email",
			zap.String("to", to),
			zap.Error(err))
		return Result{Err: err}
	}

	m.logger.Info("Confirmation email sent", zap.String("to", to))
	return Result{OK: true}
}

// SendAccessOTP delivers a ticket-access code.
func (m *Mailer) SendAccessOTP(to string, data OTPData) Result {
	if m.from == "" || m.dialer.Username == "" {
		return Result{Err: fmt.Errorf("mail transport not configured")}
	}

	var html bytes.Buffer
	if err := otpTmpl.Execute(&html, map[string]interface{}{
		"Name": data.Name,
		"Code": data.Code,
	}); err != nil {
		return Result{Err: fmt.Errorf("failed to render otp mail: %w", err)}
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your Ticket Access Code")
	msg.SetBody("text/plain", fmt.Sprintf("Hi %s,\n\nYour ticket access code is %s. It expires in 10 minutes.\n", data.Name, data.Code))
	msg.AddAlternative("text/html", html.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send OTP email",
			zap.String("to", to),
			zap.Error(err))
		return Result{Err: err}
	}

	m.logger.Info("OTP email sent", zap.String("to", to))
	return Result{OK: true}
}

func confirmationText(name, events, ticketURL string) string {
	return fmt.Sprintf(`Registration Confirmed!

Hi %s,

Your registration is confirmed.

Events registered: %s

Your entry ticket is attached to this email as an image. Show it at the
entry gate for quick access. You can also view it online: %s
`, name, events, ticketURL)
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #1e3a8a; color: #ffffff; margin: 0; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto;">
    <div style="background: linear-gradient(135deg, #3b82f6, #1d4ed8); padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
      <h1>Registration Confirmed!</h1>
    </div>
    <div style="background-color: #2563eb; padding: 30px; border-radius: 0 0 10px 10px;">
      <p>Hi <strong>{{.Name}}</strong>,</p>
      <p>Your registration is confirmed.</p>
      <div style="background-color: #3730a3; padding: 15px; border-left: 4px solid #fbbf24; border-radius: 5px;">
        <strong>Events Registered:</strong><br/>{{.Events}}
      </div>
      <div style="text-align: center; margin: 20px 0;">
        <p><strong>Your entry ticket is attached to this email as an image.</strong></p>
        <p>Show it at the entry gate for quick access.</p>
        <a href="{{.TicketURL}}" style="display: inline-block; background: #fbbf24; color: #1e3a8a; padding: 15px 30px; text-decoration: none; border-radius: 25px; font-weight: bold;">View Ticket Online</a>
      </div>
    </div>
  </div>
</body>
</html>`))

var otpTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #1e3a8a; color: #ffffff; margin: 0; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; background-color: #2563eb; padding: 30px; border-radius: 10px;">
    <h2>Ticket Access Code</h2>
    <p>Hi <strong>{{.Name}}</strong>,</p>
    <p>Your one-time access code is:</p>
    <p style="font-size: 32px; letter-spacing: 8px; text-align: center;"><strong>{{.Code}}</strong></p>
    <p>It expires in 10 minutes. If you did not request this code, ignore this email.</p>
  </div>
</body>
</html>`))
