// -----------------------------------------------------------------------
// Mailer Service - SMTP delivery of uploader notices and operator alerts
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

// ErrNotConfigured is returned when mail is enabled but the SMTP settings are incomplete
var ErrNotConfigured = errors.New("SMTP not configured")

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Service sends emails over SMTP, retrying transient failures
type Service struct {
	config *common.MailConfig
	delay  time.Duration
	send   sendFunc
	sleep  func(ctx context.Context, d time.Duration) error
	logger arbor.ILogger
}

var _ interfaces.Mailer = (*Service)(nil)

// NewService creates a new mailer service
func NewService(config *common.MailConfig, logger arbor.ILogger) *Service {
	s := &Service{
		config: config,
		delay:  common.Duration(config.RetryDelay, 3*time.Second),
		sleep:  sleepContext,
		logger: logger,
	}
	if config.UseTLS {
		s.send = sendWithTLS
	} else {
		s.send = smtp.SendMail
	}
	return s
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.From != ""
}

// Send delivers email. A disabled mailer drops the message without error.
func (s *Service) Send(ctx context.Context, email *models.Email) error {
	if !s.config.Enabled {
		s.logger.Debug().
			Strs("to", email.To).
			Str("subject", email.Subject).
			Msg("Mail disabled, email not sent")
		return nil
	}
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(email.To) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}

	msg, err := s.Build(email)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	attempts := s.config.SendAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return err
			}
		}

		lastErr = s.send(addr, auth, s.config.From, email.To, msg)
		if lastErr == nil {
			s.logger.Info().
				Strs("to", email.To).
				Str("subject", email.Subject).
				Int("attachments", len(email.Attachments)).
				Msg("Email sent")
			return nil
		}

		s.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Str("subject", email.Subject).
			Msg("Failed to send email")
	}

	return fmt.Errorf("failed to send email after %d attempts: %w", attempts, lastErr)
}

// Build renders email as a MIME message: a multipart/alternative body
// (text and HTML) followed by the attachments
func (s *Service) Build(email *models.Email) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(email.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: s.config.FromName, Address: s.config.From}})

	to := make([]*mail.Address, 0, len(email.To))
	for _, recipient := range email.To {
		to = append(to, &mail.Address{Address: recipient})
	}
	h.SetAddressList("To", to)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	body, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create message body: %w", err)
	}
	if email.TextBody != "" {
		if err := writeInline(body, "text/plain", email.TextBody); err != nil {
			return nil, err
		}
	}
	if email.HTMLBody != "" {
		if err := writeInline(body, "text/html", email.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message body: %w", err)
	}

	for _, att := range email.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)

		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := w.Write(att.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment %s: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(body *mail.InlineWriter, contentType, content string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	w, err := body.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

// sendWithTLS sends email over an implicit TLS connection, falling back to STARTTLS
func sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := hostOf(addr)

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: host,
	})
	if err != nil {
		return sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return deliver(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade
func sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: hostOf(addr)}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return deliver(client, auth, from, to, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
