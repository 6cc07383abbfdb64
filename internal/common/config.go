package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Logging      LoggingConfig      `toml:"logging"`
	Queue        QueueConfig        `toml:"queue"`
	Redis        RedisConfig        `toml:"redis"`
	Storage      StorageConfig      `toml:"storage"`
	Database     DatabaseConfig     `toml:"database"`
	Browser      BrowserConfig      `toml:"browser"`
	Portal       PortalConfig       `toml:"portal"`
	Session      SessionConfig      `toml:"session"`
	Matching     MatchingConfig     `toml:"matching"`
	Mail         MailConfig         `toml:"mail"`
	Alerts       AlertsConfig       `toml:"alerts"`
	Company      CompanyConfig      `toml:"company"`
	Features     FeaturesConfig     `toml:"features"`
	Housekeeping HousekeepingConfig `toml:"housekeeping"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Host    string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type QueueConfig struct {
	Backend         string `toml:"backend"`           // "redis" or "badger"
	Name            string `toml:"name"`              // list / key prefix holding pending batches
	PollInterval    string `toml:"poll_interval"`     // e.g. "1s"
	UnitMaxAttempts int    `toml:"unit_max_attempts"` // remote-phase attempts per unit
}

type RedisConfig struct {
	URL string `toml:"url"` // redis://[:password@]host:port/db
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	Files  FilesConfig  `toml:"files"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	InMemory       bool   `toml:"in_memory"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type FilesConfig struct {
	Photos          string `toml:"photos"`           // local user head shots
	DefaultHeadShot string `toml:"default_headshot"` // file name inside Photos used when a unit has none
	Temp            string `toml:"temp"`             // rendered certificate images awaiting upload
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int    `toml:"max_conns"`
}

type BrowserConfig struct {
	ExecPath  string `toml:"exec_path"`
	Headless  bool   `toml:"headless"`
	NoSandbox bool   `toml:"no_sandbox"`
	UserAgent string `toml:"user_agent"`
}

// PortalConfig holds every URL, selector and timing the portal driver depends on.
// The portal is server-rendered HTML; nothing here is discovered at runtime.
type PortalConfig struct {
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	ProviderID string `toml:"provider_id"`

	LoginURL         string `toml:"login_url"`
	StudentLookupURL string `toml:"student_lookup_url"` // %s = provider id, %s = lookup type
	DashboardURL     string `toml:"dashboard_url"`      // %s = provider id, %s = url-encoded filter
	CreateStudentURL string `toml:"create_student_url"` // %s = provider id

	LoginWait       string `toml:"login_wait"`       // bound on the login page and success banner
	SelectorTimeout string `toml:"selector_timeout"` // bound on result and form selectors
	SubmitSettle    string `toml:"submit_settle"`    // pause after submitting the create form
	MinInterval     string `toml:"min_interval"`     // minimum gap between navigations

	Selectors     PortalSelectors     `toml:"selectors"`
	ProfileFields ProfileFieldIndexes `toml:"profile_fields"`
}

type PortalSelectors struct {
	Username            string `toml:"username"`
	Password            string `toml:"password"`
	LoginSubmit         string `toml:"login_submit"`
	SuccessBanner       string `toml:"success_banner"`
	LoggedInText        string `toml:"logged_in_text"`
	LookupSubmit        string `toml:"lookup_submit"`
	SearchResult        string `toml:"search_result"`
	RosterResult        string `toml:"roster_result"`
	ResultText          string `toml:"result_text"`
	ProfilePhoto        string `toml:"profile_photo"`
	ProfileField        string `toml:"profile_field"`
	MissingPhotoMarker  string `toml:"missing_photo_marker"`
	AddToProvider       string `toml:"add_to_provider"`
	AddToProviderText   string `toml:"add_to_provider_text"`
	AddToProviderSubmit string `toml:"add_to_provider_submit"`
	CreateFormReady     string `toml:"create_form_ready"`
	StateInput          string `toml:"state_input"`
	StateDropdown       string `toml:"state_dropdown"`
	FormSubmit          string `toml:"form_submit"`
	ValidationError     string `toml:"validation_error"`
	CertificateLink     string `toml:"certificate_link"`
	CourseInput         string `toml:"course_input"`
	CourseOption        string `toml:"course_option"`
	CertificateCreated  string `toml:"certificate_created"`
}

// ProfileFieldIndexes maps profile attributes to positions in the list of field values
// rendered on a student profile page.
type ProfileFieldIndexes struct {
	PhotoID   int `toml:"photo_id"`
	EyeColor  int `toml:"eye_color"`
	Height    int `toml:"height"`
	Gender    int `toml:"gender"`
	Phone     int `toml:"phone"`
	Email     int `toml:"email"`
	BirthDate int `toml:"birth_date"`
	Address   int `toml:"address"`
}

type SessionConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	Backoff     string `toml:"backoff"`
}

type MatchingConfig struct {
	MaxCandidates int `toml:"max_candidates"` // name searches returning more than this are ambiguous
}

type MailConfig struct {
	Enabled      bool   `toml:"enabled"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	From         string `toml:"from"`
	FromName     string `toml:"from_name"`
	UseTLS       bool   `toml:"use_tls"`
	SendAttempts int    `toml:"send_attempts"`
	RetryDelay   string `toml:"retry_delay"`
}

type AlertsConfig struct {
	Recipients []string `toml:"recipients"`
}

type CompanyConfig struct {
	Name  string `toml:"name"`
	Phone string `toml:"phone"`
	URL   string `toml:"url"`
	Email string `toml:"email"`
}

type FeaturesConfig struct {
	TrainingConnectEnabled bool `toml:"training_connect_enabled"`
}

type HousekeepingConfig struct {
	Enabled         bool   `toml:"enabled"`
	Schedule        string `toml:"schedule"`
	ReportRetention string `toml:"report_retention"`
	TempFileMaxAge  string `toml:"temp_file_max_age"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Enabled: true,
			Port:    8095,
			Host:    "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Queue: QueueConfig{
			Backend:         "redis",
			Name:            "training_connect",
			PollInterval:    "1s",
			UnitMaxAttempts: 5,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/2",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/tcsync",
			},
			Files: FilesConfig{
				Photos:          "./data/photos",
				DefaultHeadShot: "default_headshot.jpg",
				Temp:            "./data/tmp",
			},
		},
		Database: DatabaseConfig{
			URL:      "postgres://localhost:5432/lms",
			MaxConns: 4,
		},
		Browser: BrowserConfig{
			Headless:  true,
			NoSandbox: true,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Portal: PortalConfig{
			ProviderID:       "36cd1e6e-62b5-4770-ad4f-08d97ed9594c",
			LoginURL:         "https://dob-trainingconnect.cityofnewyork.us/Saml/InitiateSingleSignOn",
			StudentLookupURL: "https://dob-trainingconnect.cityofnewyork.us/CourseProviders/StudentLookup/%s?type=%s",
			DashboardURL:     "https://dob-trainingconnect.cityofnewyork.us/CourseProviders/Dashboard/%s?Filter=%s",
			CreateStudentURL: "https://dob-trainingconnect.cityofnewyork.us/Students/Create?providerId=%s",
			LoginWait:        "30s",
			SelectorTimeout:  "10s",
			SubmitSettle:     "5s",
			MinInterval:      "500ms",
			Selectors: PortalSelectors{
				Username:            `input[name="username"]`,
				Password:            `input[name="password"]`,
				LoginSubmit:         `input[type="submit"]`,
				SuccessBanner:       ".alert.alert-success.alert-dismissible.fade.show",
				LoggedInText:        "logged in",
				LookupSubmit:        `input[type="submit"]`,
				SearchResult:        `a[role='button']`,
				RosterResult:        "table tbody tr a.btn.btn-light",
				ResultText:          "View",
				ProfilePhoto:        "img.sc-header-photo",
				ProfileField:        ".sc-field-value",
				MissingPhotoMarker:  "MissingPerson",
				AddToProvider:       "a.h6.sc-link",
				AddToProviderText:   "Add To Course Provider",
				AddToProviderSubmit: `input[type="submit"]`,
				CreateFormReady:     ".col-auto",
				StateInput:          "input#State-selectized",
				StateDropdown:       ".selectize-dropdown.single.searchable",
				FormSubmit:          `input[type="submit"]`,
				ValidationError:     ".text-danger.field-validation-error",
				CertificateLink:     `//a[contains(@href, "StudentCertificates/Create")]`,
				CourseInput:         "input#CourseId-selectized",
				CourseOption:        "form div.option",
				CertificateCreated:  `//*[contains(text(), "successfully created")]`,
			},
			ProfileFields: ProfileFieldIndexes{
				PhotoID:   0,
				EyeColor:  1,
				Height:    2,
				Gender:    4,
				Phone:     5,
				Email:     6,
				BirthDate: 7,
				Address:   8,
			},
		},
		Session: SessionConfig{
			MaxAttempts: 5,
			Backoff:     "5s",
		},
		Matching: MatchingConfig{
			MaxCandidates: 9,
		},
		Mail: MailConfig{
			Enabled:      true,
			Port:         587,
			UseTLS:       true,
			FromName:     "Training Connect",
			SendAttempts: 3,
			RetryDelay:   "3s",
		},
		Features: FeaturesConfig{
			TrainingConnectEnabled: true,
		},
		Housekeeping: HousekeepingConfig{
			Enabled:         true,
			Schedule:        "15 3 * * *",
			ReportRetention: "720h",
			TempFileMaxAge:  "24h",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// TCSYNC_* names win over the names the LMS deployment already exports.
func applyEnvOverrides(config *Config) {
	if env := firstEnv("TCSYNC_ENV", "GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("TCSYNC_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TCSYNC_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("TCSYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TCSYNC_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Queue
	if backend := os.Getenv("TCSYNC_QUEUE_BACKEND"); backend != "" {
		config.Queue.Backend = backend
	}
	if name := os.Getenv("TCSYNC_QUEUE_NAME"); name != "" {
		config.Queue.Name = name
	}
	if interval := os.Getenv("TCSYNC_QUEUE_POLL_INTERVAL"); interval != "" {
		config.Queue.PollInterval = interval
	}
	if url := firstEnv("TCSYNC_REDIS_URL", "REDIS_URI"); url != "" {
		config.Redis.URL = url
	}

	// Storage
	if path := os.Getenv("TCSYNC_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if photos := os.Getenv("TCSYNC_PHOTOS_DIR"); photos != "" {
		config.Storage.Files.Photos = photos
	}
	if temp := os.Getenv("TCSYNC_TEMP_DIR"); temp != "" {
		config.Storage.Files.Temp = temp
	}
	if dbURL := firstEnv("TCSYNC_DATABASE_URL", "DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}

	// Browser
	if execPath := os.Getenv("TCSYNC_CHROME_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if headless := os.Getenv("TCSYNC_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}

	// Portal credentials
	if user := firstEnv("TCSYNC_PORTAL_USERNAME", "TRAINING_CONNECT_EMAIL"); user != "" {
		config.Portal.Username = user
	}
	if pass := firstEnv("TCSYNC_PORTAL_PASSWORD", "TRAINING_CONNECT_PASSWORD"); pass != "" {
		config.Portal.Password = pass
	}
	if provider := os.Getenv("TCSYNC_PORTAL_PROVIDER_ID"); provider != "" {
		config.Portal.ProviderID = provider
	}

	// Mail
	if enabled := firstEnv("TCSYNC_MAIL_ENABLED", "USE_EMAIL"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Mail.Enabled = b
		}
	}
	if host := firstEnv("TCSYNC_SMTP_HOST", "SMTP_URL"); host != "" {
		config.Mail.Host = host
	}
	if port := firstEnv("TCSYNC_SMTP_PORT", "SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mail.Port = p
		}
	}
	if user := firstEnv("TCSYNC_SMTP_USERNAME", "SMTP_USERNAME"); user != "" {
		config.Mail.Username = user
	}
	if pass := firstEnv("TCSYNC_SMTP_PASSWORD", "SMTP_PASSWORD"); pass != "" {
		config.Mail.Password = pass
	}
	if from := firstEnv("TCSYNC_SMTP_FROM", "SMTP_DOMAIN"); from != "" {
		config.Mail.From = from
	}
	if recipients := os.Getenv("TCSYNC_ALERT_RECIPIENTS"); recipients != "" {
		config.Alerts.Recipients = splitList(recipients)
	}

	// Company
	if name := firstEnv("TCSYNC_COMPANY_NAME", "COMPANY_NAME"); name != "" {
		config.Company.Name = name
	}
	if phone := firstEnv("TCSYNC_COMPANY_PHONE", "COMPANY_PHONE"); phone != "" {
		config.Company.Phone = phone
	}
	if url := firstEnv("TCSYNC_COMPANY_URL", "COMPANY_URL"); url != "" {
		config.Company.URL = url
	}
	if email := firstEnv("TCSYNC_COMPANY_EMAIL", "COMPANY_EMAIL"); email != "" {
		config.Company.Email = email
	}

	// Features
	if enabled := os.Getenv("TCSYNC_TRAINING_CONNECT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Features.TrainingConnectEnabled = b
		}
	}
}

// Validate checks values that would otherwise fail deep inside a batch
func (c *Config) Validate() error {
	durations := map[string]string{
		"queue.poll_interval":            c.Queue.PollInterval,
		"portal.login_wait":              c.Portal.LoginWait,
		"portal.selector_timeout":        c.Portal.SelectorTimeout,
		"portal.submit_settle":           c.Portal.SubmitSettle,
		"portal.min_interval":            c.Portal.MinInterval,
		"session.backoff":                c.Session.Backoff,
		"mail.retry_delay":               c.Mail.RetryDelay,
		"housekeeping.report_retention":  c.Housekeeping.ReportRetention,
		"housekeeping.temp_file_max_age": c.Housekeeping.TempFileMaxAge,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}

	switch c.Queue.Backend {
	case "redis", "badger":
	default:
		return fmt.Errorf("unsupported queue backend %q (expected redis or badger)", c.Queue.Backend)
	}

	if c.Queue.UnitMaxAttempts < 1 {
		return fmt.Errorf("queue.unit_max_attempts must be at least 1, got %d", c.Queue.UnitMaxAttempts)
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be at least 1, got %d", c.Session.MaxAttempts)
	}
	if c.Matching.MaxCandidates < 1 {
		return fmt.Errorf("matching.max_candidates must be at least 1, got %d", c.Matching.MaxCandidates)
	}

	if c.Housekeeping.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Housekeeping.Schedule); err != nil {
			return fmt.Errorf("invalid housekeeping schedule: %w", err)
		}
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Duration parses a duration value already checked by Validate; fallback covers
// configs built in code without going through LoadFromFiles.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
