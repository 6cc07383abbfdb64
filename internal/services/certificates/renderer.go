package certificates

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

//go:embed templates/certificate.html
var templateFS embed.FS

const (
	viewportWidth  = 1300
	viewportHeight = 1000
	renderTimeout  = 60 * time.Second
)

// certificateView is the data the certificate template renders
type certificateView struct {
	Issuer            string
	StudentName       string
	CourseName        string
	InstructorName    string
	CompletionDate    string
	ExpirationDate    string
	CertificateNumber string
}

// Renderer produces PNG certificate images with a short-lived headless browser
type Renderer struct {
	browser  common.BrowserConfig
	issuer   string
	template *template.Template
	logger   arbor.ILogger
}

var _ interfaces.CertificateRenderer = (*Renderer)(nil)

// NewRenderer parses the embedded certificate template
func NewRenderer(browser common.BrowserConfig, company common.CompanyConfig, logger arbor.ILogger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/certificate.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate template: %w", err)
	}
	return &Renderer{
		browser:  browser,
		issuer:   company.Name,
		template: tmpl,
		logger:   logger,
	}, nil
}

// RenderHTML fills the certificate template for unit
func (r *Renderer) RenderHTML(unit *models.UploadUnit) (string, error) {
	view := certificateView{
		Issuer:            r.issuer,
		StudentName:       unit.FullName(),
		CourseName:        strings.TrimSpace(unit.CourseName),
		InstructorName:    strings.TrimSpace(unit.Instructor),
		CompletionDate:    dateOnly(unit.IssueDate),
		ExpirationDate:    dateOnly(unit.ExpiryDate),
		CertificateNumber: unit.CertificateID.String(),
	}

	var buf bytes.Buffer
	if err := r.template.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render certificate template: %w", err)
	}
	return buf.String(), nil
}

// Render returns the certificate for unit as a PNG screenshot
func (r *Renderer) Render(ctx context.Context, unit *models.UploadUnit) ([]byte, error) {
	html, err := r.RenderHTML(unit)
	if err != nil {
		return nil, err
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", r.browser.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-software-rasterizer", true),
	)
	if r.browser.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(r.browser.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	defer allocatorCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, renderTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var image []byte
	err = chromedp.Run(runCtx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&image, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture certificate: %w", err)
	}

	r.logger.Debug().
		Str("certificate", unit.CertificateID.String()).
		Int("bytes", len(image)).
		Msg("Certificate rendered")
	return image, nil
}

func dateOnly(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ' '); i > 0 {
		return value[:i]
	}
	return value
}
