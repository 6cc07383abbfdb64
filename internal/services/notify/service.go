package notify

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/metrics"
	"github.com/ternarybob/tcsync/internal/models"
)

const (
	KindCertificate = "certificate"
	KindStudent     = "student"
	KindUnverified  = "unverified"
	KindAlert       = "alert"
)

// Service composes uploader notices and engineering alerts and hands them to the mailer.
// Uploader notices and alerts never share a message.
type Service struct {
	mailer   interfaces.Mailer
	pdf      interfaces.PDFService
	company  common.CompanyConfig
	alerts   []string
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

var _ interfaces.Notifier = (*Service)(nil)

// NewService creates a new notification service
func NewService(mailer interfaces.Mailer, pdf interfaces.PDFService, company common.CompanyConfig, alerts common.AlertsConfig, logger arbor.ILogger) *Service {
	return &Service{
		mailer:   mailer,
		pdf:      pdf,
		company:  company,
		alerts:   alerts.Recipients,
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
		logger:   logger,
	}
}

// CertificateFailures tells the uploader which certificates could not be recorded,
// attaching a zip of the images rendered for them
func (s *Service) CertificateFailures(ctx context.Context, uploader, fileName string, failures []models.FailureRecord, images []models.CertificateImage) error {
	body := s.failureReport("Certificate upload", fileName, failures, true)

	var attachments []models.Attachment
	if len(images) > 0 {
		archive, err := zipImages(images)
		if err != nil {
			return fmt.Errorf("failed to zip certificate images: %w", err)
		}
		attachments = append(attachments, models.Attachment{
			Filename:    "certificates.zip",
			ContentType: "application/zip",
			Content:     archive,
		})
	}

	subject := fmt.Sprintf("%s: %d certificate(s) could not be uploaded", s.companyName(), len(failures))
	return s.send(ctx, KindCertificate, []string{uploader}, subject, body, attachments)
}

// StudentFailures tells the uploader which students could not be registered
func (s *Service) StudentFailures(ctx context.Context, uploader, fileName string, failures []models.FailureRecord) error {
	body := s.failureReport("Student upload", fileName, failures, false)
	subject := fmt.Sprintf("%s: %d student(s) could not be registered", s.companyName(), len(failures))
	return s.send(ctx, KindStudent, []string{uploader}, subject, body, nil)
}

// Unverified tells the uploader that no user of an update batch could be found in the portal
func (s *Service) Unverified(ctx context.Context, uploader string, failures []models.FailureRecord) error {
	var b strings.Builder
	b.WriteString("# User verification\n\n")
	b.WriteString("We could not verify the following user(s) in Training Connect.\n\n")
	b.WriteString("| Name | Email | Phone | Issue | Next Steps |\n")
	b.WriteString("|------|-------|-------|-------|------------|\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			cell(nameOf(f.Unit)), cell(f.Unit.Email), cell(f.Unit.PhoneNumber.String()), cell(f.Reason), cell(f.Solution))
	}
	b.WriteString("\n")
	b.WriteString(s.signature())

	subject := fmt.Sprintf("%s: user details could not be verified", s.companyName())
	return s.send(ctx, KindUnverified, []string{uploader}, subject, b.String(), nil)
}

// SystemAlert sends the batch's system errors to engineering as one message
func (s *Service) SystemAlert(ctx context.Context, records []models.SystemErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if len(s.alerts) == 0 {
		s.logger.Warn().Int("system_errors", len(records)).Msg("No alert recipients configured, system errors not emailed")
		return nil
	}

	var b strings.Builder
	b.WriteString("# Training Connect worker errors\n\n")
	fmt.Fprintf(&b, "The worker recorded **%d** system error(s).\n\n", len(records))
	for i, r := range records {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, r.Reason)
		fmt.Fprintf(&b, "*%s*\n\n", r.OccurredAt.UTC().Format("2006-01-02 15:04:05 MST"))
		if r.Stack != "" {
			b.WriteString("```\n")
			b.WriteString(strings.TrimRight(r.Stack, "\n"))
			b.WriteString("\n```\n\n")
		}
	}

	subject := fmt.Sprintf("Training Connect worker: %d system error(s)", len(records))
	return s.send(ctx, KindAlert, s.alerts, subject, b.String(), nil)
}

func (s *Service) send(ctx context.Context, kind string, to []string, subject, markdown string, attachments []models.Attachment) error {
	html, err := s.toHTML(markdown)
	if err != nil {
		metrics.EmailsSent.WithLabelValues(kind, "error").Inc()
		return err
	}

	report, err := s.pdf.ConvertMarkdownToPDF(markdown, subject)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("Failed to render PDF report, sending without it")
	} else {
		attachments = append([]models.Attachment{{
			Filename:    "report.pdf",
			ContentType: "application/pdf",
			Content:     report,
		}}, attachments...)
	}

	email := &models.Email{
		To:          to,
		Subject:     subject,
		HTMLBody:    html,
		TextBody:    markdown,
		Attachments: attachments,
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		metrics.EmailsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to send %s notification: %w", kind, err)
	}

	metrics.EmailsSent.WithLabelValues(kind, "sent").Inc()
	s.logger.Info().
		Str("kind", kind).
		Strs("to", to).
		Int("attachments", len(attachments)).
		Msg("Notification sent")
	return nil
}

func (s *Service) toHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert notification to HTML: %w", err)
	}
	return buf.String(), nil
}

func (s *Service) failureReport(title, fileName string, failures []models.FailureRecord, certificates bool) string {
	if fileName == "" {
		fileName = "no file name provided"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s report\n\n", title)
	fmt.Fprintf(&b, "We processed your upload **%s**. %d record(s) need your attention.\n\n", mdEscape(fileName), len(failures))

	if certificates {
		b.WriteString("| Student | Certificate | Issue | Next Steps |\n")
		b.WriteString("|---------|-------------|-------|------------|\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(nameOf(f.Unit)), cell(courseOf(f.Unit)), cell(f.Reason), cell(f.Solution))
		}
	} else {
		b.WriteString("| Student | Issue | Next Steps |\n")
		b.WriteString("|---------|-------|------------|\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(nameOf(f.Unit)), cell(f.Reason), cell(f.Solution))
		}
	}

	b.WriteString("\n")
	b.WriteString(s.signature())
	return b.String()
}

func (s *Service) signature() string {
	var b strings.Builder
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Questions? Contact %s", mdEscape(s.companyName()))
	var contact []string
	if s.company.Email != "" {
		contact = append(contact, mdEscape(s.company.Email))
	}
	if s.company.Phone != "" {
		contact = append(contact, mdEscape(s.company.Phone))
	}
	if s.company.URL != "" {
		contact = append(contact, mdEscape(s.company.URL))
	}
	if len(contact) > 0 {
		b.WriteString(" at " + strings.Join(contact, " / "))
	}
	b.WriteString(".\n")
	return b.String()
}

func (s *Service) companyName() string {
	if s.company.Name == "" {
		return "Learning Management System"
	}
	return s.company.Name
}

// zipImages packs certificate images as "<full name>_<tag>.png"
func zipImages(images []models.CertificateImage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, image := range images {
		name := fmt.Sprintf("%s_%s.png", nameOf(image.Unit), uuid.NewString()[:4])
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(image.PNG); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nameOf(unit models.UploadUnit) string {
	first := strings.TrimSpace(unit.FirstName)
	last := strings.TrimSpace(unit.LastName)
	if first == "" {
		first = "First name not provided"
	}
	if last == "" {
		last = "Last name not provided"
	}
	return first + " " + last
}

func courseOf(unit models.UploadUnit) string {
	course := strings.ReplaceAll(unit.CourseName, "&amp;", "")
	return strings.TrimSpace(strings.ReplaceAll(course, "&nbsp;", ""))
}

var mdReplacer = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	"#", `\#`,
)

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

// cell escapes a value for a single markdown table cell
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(mdEscape(s), "|", `\|`)
}
