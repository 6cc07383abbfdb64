package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/models"
)

// Launcher starts one headless browser per portal session
type Launcher struct {
	browser common.BrowserConfig
	portal  common.PortalConfig
	logger  arbor.ILogger
}

var _ interfaces.PortalLauncher = (*Launcher)(nil)

// NewLauncher creates a launcher for the configured browser and portal
func NewLauncher(browser common.BrowserConfig, portal common.PortalConfig, logger arbor.ILogger) *Launcher {
	return &Launcher{
		browser: browser,
		portal:  portal,
		logger:  logger,
	}
}

// Launch allocates a browser and an empty page. The browser lives until Close.
func (l *Launcher) Launch(ctx context.Context) (interfaces.RemotePortal, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.browser.Headless),
		chromedp.Flag("no-sandbox", l.browser.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1300, 1000),
	)
	if l.browser.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(l.browser.UserAgent))
	}
	if l.browser.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(l.browser.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// The first Run allocates the browser and binds it to browserCtx.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b := &Browser{
		ctx:             browserCtx,
		cancel:          browserCancel,
		cancelAllocator: allocatorCancel,
		config:          l.portal,
		limiter:         rate.NewLimiter(rate.Every(common.Duration(l.portal.MinInterval, 500*time.Millisecond)), 1),
		loginWait:       common.Duration(l.portal.LoginWait, 30*time.Second),
		selectorTimeout: common.Duration(l.portal.SelectorTimeout, 10*time.Second),
		submitSettle:    common.Duration(l.portal.SubmitSettle, 5*time.Second),
		logger:          l.logger,
	}

	var title string
	if err := b.run(ctx, b.selectorTimeout, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		b.Close()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	l.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Bool("headless", l.browser.Headless).
		Msg("Portal browser started")

	return b, nil
}

// Browser is a single authenticated portal page driven through chromedp
type Browser struct {
	ctx             context.Context
	cancel          context.CancelFunc
	cancelAllocator context.CancelFunc
	config          common.PortalConfig
	limiter         *rate.Limiter
	loginWait       time.Duration
	selectorTimeout time.Duration
	submitSettle    time.Duration
	logger          arbor.ILogger
}

var _ interfaces.RemotePortal = (*Browser)(nil)

// run executes actions on the page, bounded by timeout and by the caller's ctx
func (b *Browser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// navigate loads url, honouring the request rate limit
func (b *Browser) navigate(ctx context.Context, url string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.run(ctx, b.loginWait, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (b *Browser) exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := b.run(ctx, b.selectorTimeout, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &found))
	return found, err
}

// Login signs in unless the portal already shows the logged-in banner
func (b *Browser) Login(ctx context.Context) error {
	sel := b.config.Selectors

	if err := b.navigate(ctx, b.config.LoginURL); err != nil {
		return err
	}
	if err := b.run(ctx, b.loginWait, chromedp.WaitVisible(sel.Username+", "+sel.SuccessBanner, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: login page did not render: %v", ErrLoginFailed, err)
	}

	loggedIn, err := b.exists(ctx, sel.SuccessBanner)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	if !loggedIn {
		err := b.run(ctx, b.loginWait,
			chromedp.SendKeys(sel.Username, b.config.Username, chromedp.ByQuery),
			chromedp.SendKeys(sel.Password, b.config.Password, chromedp.ByQuery),
			chromedp.Click(sel.LoginSubmit, chromedp.ByQuery),
			chromedp.WaitVisible(sel.SuccessBanner, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
	}

	var banner string
	if err := b.run(ctx, b.selectorTimeout, chromedp.Text(sel.SuccessBanner, &banner, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if !strings.Contains(strings.ToLower(banner), strings.ToLower(sel.LoggedInText)) {
		return fmt.Errorf("%w: unexpected banner %q", ErrLoginFailed, strings.TrimSpace(banner))
	}

	b.logger.Debug().Msg("Portal session authenticated")
	return nil
}

// Search runs one lookup and returns the matching profile URLs
func (b *Browser) Search(ctx context.Context, kind models.SearchKind, query string) ([]string, error) {
	sel := b.config.Selectors

	var (
		resultSelector = sel.SearchResult
		textFilter     string
	)

	switch kind {
	case models.SearchRoster:
		if err := b.navigate(ctx, fmt.Sprintf(b.config.DashboardURL, b.config.ProviderID, urlQuery(query))); err != nil {
			return nil, err
		}
		resultSelector = sel.RosterResult
		textFilter = sel.ResultText
	case models.SearchCardID, models.SearchOshaID, models.SearchName:
		if err := b.navigate(ctx, fmt.Sprintf(b.config.StudentLookupURL, b.config.ProviderID, string(kind))); err != nil {
			return nil, err
		}
		err := b.run(ctx, b.selectorTimeout,
			chromedp.WaitVisible("#"+string(kind), chromedp.ByQuery),
			chromedp.SetValue("#"+string(kind), query, chromedp.ByQuery),
			chromedp.Click(sel.LookupSubmit, chromedp.ByQuery),
		)
		if err != nil {
			return nil, fmt.Errorf("submit %s lookup: %w", kind, err)
		}
		if kind == models.SearchName {
			textFilter = sel.ResultText
		}
	default:
		return nil, fmt.Errorf("unsupported search kind %q", kind)
	}

	// No result within the selector timeout means the search came back empty.
	err := b.run(ctx, b.selectorTimeout, chromedp.WaitVisible(resultSelector, chromedp.ByQuery))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			b.logger.Debug().Str("kind", string(kind)).Msg("Portal search returned no results")
			return nil, nil
		}
		return nil, fmt.Errorf("wait for %s results: %w", kind, err)
	}

	html, location, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	links, err := ParseResultLinks(html, location, resultSelector, textFilter)
	if err != nil {
		return nil, err
	}

	b.logger.Debug().
		Str("kind", string(kind)).
		Int("results", len(links)).
		Msg("Portal search completed")
	return links, nil
}

// OpenProfile loads a profile page and waits for its fields
func (b *Browser) OpenProfile(ctx context.Context, profileURL string) error {
	if err := b.navigate(ctx, profileURL); err != nil {
		return err
	}
	if err := b.run(ctx, b.selectorTimeout, chromedp.WaitVisible(b.config.Selectors.ProfileField, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("profile did not render: %w", err)
	}
	return nil
}

// ExtractProfileFields parses the currently open profile page
func (b *Browser) ExtractProfileFields(ctx context.Context) (*models.ProfileFields, error) {
	html, location, err := b.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ParseProfile(html, location, b.config.Selectors, b.config.ProfileFields)
}

// AddToCourseProvider follows the add-to-provider link and confirms it
func (b *Browser) AddToCourseProvider(ctx context.Context, link string) error {
	if err := b.navigate(ctx, link); err != nil {
		return err
	}
	submit := b.config.Selectors.AddToProviderSubmit
	err := b.run(ctx, b.selectorTimeout,
		chromedp.WaitVisible(submit, chromedp.ByQuery),
		chromedp.Click(submit, chromedp.ByQuery),
		chromedp.Sleep(b.submitSettle),
	)
	if err != nil {
		return fmt.Errorf("add to course provider: %w", err)
	}
	b.logger.Debug().Str("link", link).Msg("Student added to course provider")
	return nil
}

// Close shuts down the page and the browser process
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.cancelAllocator != nil {
		b.cancelAllocator()
	}
	return nil
}

func (b *Browser) snapshot(ctx context.Context) (string, string, error) {
	var html, location string
	err := b.run(ctx, b.selectorTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return "", "", fmt.Errorf("read page: %w", err)
	}
	return html, location, nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	quoted, _ := json.Marshal(s)
	return string(quoted)
}
