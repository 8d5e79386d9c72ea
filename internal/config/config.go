// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gsit/alertas/internal/rules"
)

// Dispatch modes.
const (
	DispatchJenkins = "jenkins"
	DispatchQueue   = "queue"
)

// Ledger backends.
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerSheets   = "sheets"
	LedgerNone     = "none"
)

// IMAPConfig holds mailbox credentials and connection tuning.
type IMAPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Folder       string
	DialTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Addr returns host:port.
func (c IMAPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JenkinsConfig holds the Jenkins job trigger settings.
type JenkinsConfig struct {
	URL     string
	User    string
	Token   string
	Job     string
	Timeout time.Duration
}

// RunnerConfig holds how probe scripts are executed.
type RunnerConfig struct {
	Workspace   string
	Interpreter string
	Profile     string
	Timeout     time.Duration
}

// SMTPConfig holds the report mailer settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	To          []string
	TemplateDir string
}

// LedgerConfig selects and configures the alert ledger backend.
type LedgerConfig struct {
	Backend         string
	Path            string // sqlite
	DatabaseURL     string // postgres
	SpreadsheetID   string // sheets
	SheetName       string // sheets
	CredentialsFile string // sheets
	AffectedDefault string
	ScopeDefault    string
	OriginDefault   string
	DescDefault     string
}

// Config holds all configuration for the listener and the runner.
type Config struct {
	Rules   []rules.Rule
	Actions map[string]string // action name → script path relative to the workspace

	IMAP         IMAPConfig
	PollInterval time.Duration

	DispatchMode string
	Jenkins      JenkinsConfig

	// Redis
	RedisURL  string
	JobsQueue string
	DedupTTL  time.Duration

	Runner RunnerConfig

	SlackWebhookURL string
	SMTP            SMTPConfig
	Ledger          LedgerConfig

	// Server (health check and poll trigger)
	Port         int
	TriggerToken string // required by POST /poll when set
	LogLevel     slog.Level
}

// rawRule keeps predicates as pointers so an absent key is distinguishable
// from an empty string.
type rawRule struct {
	Name            string  `yaml:"name"`
	SenderContains  *string `yaml:"sender_contains"`
	SubjectContains *string `yaml:"subject_contains"`
	BodyContains    *string `yaml:"body_contains"`
	Action          string  `yaml:"action"`
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Rules   []rawRule         `yaml:"rules"`
	Actions map[string]string `yaml:"actions"`
	IMAP    struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Folder   string `yaml:"folder"`
	} `yaml:"imap"`
	Dispatch struct {
		Mode string `yaml:"mode"`
	} `yaml:"dispatch"`
	Jenkins struct {
		URL   string `yaml:"url"`
		User  string `yaml:"user"`
		Token string `yaml:"token"`
		Job   string `yaml:"job"`
	} `yaml:"jenkins"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Jobs string `yaml:"jobs"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Runner struct {
		Workspace   string `yaml:"workspace"`
		Interpreter string `yaml:"interpreter"`
		Profile     string `yaml:"profile"`
	} `yaml:"runner"`
	Slack struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"slack"`
	SMTP struct {
		Host        string   `yaml:"host"`
		Port        int      `yaml:"port"`
		Username    string   `yaml:"username"`
		Password    string   `yaml:"password"`
		From        string   `yaml:"from"`
		To          []string `yaml:"to"`
		TemplateDir string   `yaml:"template_dir"`
	} `yaml:"smtp"`
	Ledger struct {
		Backend         string `yaml:"backend"`
		Path            string `yaml:"path"`
		DatabaseURL     string `yaml:"database_url"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
		CredentialsFile string `yaml:"credentials_file"`
		Defaults        struct {
			AffectedTo  string `yaml:"affected_to"`
			Scope       string `yaml:"scope"`
			Origin      string `yaml:"origin"`
			Description string `yaml:"description"`
		} `yaml:"defaults"`
	} `yaml:"ledger"`
}

// InstallLogger sets a JSON slog handler writing to w as the default logger,
// at info level until the returned LevelVar is changed. Mains call it before
// Load so configuration errors are logged as JSON too.
func InstallLogger(w io.Writer) *slog.LevelVar {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
	return level
}

// Load reads a .env file if present, then configuration from config.yaml
// (with env var expansion) and environment variables for non-YAML settings.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. ${VAR} references are expanded
// before unmarshalling.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Actions: make(map[string]string, len(raw.Actions)),
		IMAP: IMAPConfig{
			Host:         firstNonEmpty(raw.IMAP.Host, envOrDefault("IMAP_SERVER", "imap.gmail.com")),
			Port:         firstPositive(raw.IMAP.Port, envOrDefaultInt("IMAP_PORT", 993)),
			Username:     firstNonEmpty(raw.IMAP.Username, os.Getenv("EMAIL_USER")),
			Password:     firstNonEmpty(raw.IMAP.Password, os.Getenv("EMAIL_PASS")),
			Folder:       firstNonEmpty(raw.IMAP.Folder, envOrDefault("IMAP_FOLDER", "INBOX")),
			DialTimeout:  envOrDefaultDuration("IMAP_DIAL_TIMEOUT", 30*time.Second),
			MaxRetries:   envOrDefaultInt("IMAP_MAX_RETRIES", 3),
			RetryBackoff: envOrDefaultDuration("IMAP_RETRY_BACKOFF", 2*time.Second),
		},
		PollInterval: envOrDefaultDuration("POLL_INTERVAL", 60*time.Second),
		DispatchMode: strings.ToLower(firstNonEmpty(raw.Dispatch.Mode, envOrDefault("DISPATCH_MODE", DispatchJenkins))),
		Jenkins: JenkinsConfig{
			URL:     strings.TrimRight(firstNonEmpty(raw.Jenkins.URL, os.Getenv("JENKINS_URL")), "/"),
			User:    firstNonEmpty(raw.Jenkins.User, os.Getenv("JENKINS_USER")),
			Token:   firstNonEmpty(raw.Jenkins.Token, os.Getenv("JENKINS_TOKEN")),
			Job:     firstNonEmpty(raw.Jenkins.Job, envOrDefault("JOB_NAME", "GSIT_alertas")),
			Timeout: envOrDefaultDuration("JENKINS_TIMEOUT", 30*time.Second),
		},
		RedisURL:  firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		JobsQueue: firstNonEmpty(raw.Redis.Queues.Jobs, envOrDefault("JOBS_QUEUE", "alert_jobs")),
		DedupTTL:  envOrDefaultDuration("DEDUP_TTL", 24*time.Hour),
		Runner: RunnerConfig{
			Workspace:   firstNonEmpty(raw.Runner.Workspace, os.Getenv("WORKSPACE"), "."),
			Interpreter: firstNonEmpty(raw.Runner.Interpreter, envOrDefault("RUNNER_INTERPRETER", "python3")),
			Profile:     firstNonEmpty(raw.Runner.Profile, os.Getenv("RUNNER_PROFILE")),
			Timeout:     envOrDefaultDuration("RUNNER_TIMEOUT", 10*time.Minute),
		},
		SlackWebhookURL: firstNonEmpty(raw.Slack.WebhookURL, os.Getenv("SLACK_WEBHOOK_URL")),
		SMTP: SMTPConfig{
			Host:        firstNonEmpty(raw.SMTP.Host, os.Getenv("SMTP_HOST")),
			Port:        firstPositive(raw.SMTP.Port, envOrDefaultInt("SMTP_PORT", 587)),
			Username:    firstNonEmpty(raw.SMTP.Username, os.Getenv("SMTP_USER")),
			Password:    firstNonEmpty(raw.SMTP.Password, os.Getenv("SMTP_PASS")),
			From:        firstNonEmpty(raw.SMTP.From, os.Getenv("SMTP_FROM")),
			To:          raw.SMTP.To,
			TemplateDir: firstNonEmpty(raw.SMTP.TemplateDir, envOrDefault("EMAIL_TEMPLATES_DIR", "email_templates")),
		},
		Ledger: LedgerConfig{
			Backend:         strings.ToLower(firstNonEmpty(raw.Ledger.Backend, envOrDefault("LEDGER_BACKEND", LedgerSQLite))),
			Path:            firstNonEmpty(raw.Ledger.Path, envOrDefault("LEDGER_PATH", "alertas.db")),
			DatabaseURL:     firstNonEmpty(raw.Ledger.DatabaseURL, os.Getenv("DATABASE_URL")),
			SpreadsheetID:   firstNonEmpty(raw.Ledger.SpreadsheetID, os.Getenv("LEDGER_SPREADSHEET_ID")),
			SheetName:       firstNonEmpty(raw.Ledger.SheetName, envOrDefault("LEDGER_SHEET_NAME", "Alertes")),
			CredentialsFile: firstNonEmpty(raw.Ledger.CredentialsFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			AffectedDefault: firstNonEmpty(raw.Ledger.Defaults.AffectedTo, "Ciutadania / Funcionari"),
			ScopeDefault:    firstNonEmpty(raw.Ledger.Defaults.Scope, "PARCIAL"),
			OriginDefault:   firstNonEmpty(raw.Ledger.Defaults.Origin, "CPD4"),
			DescDefault:     firstNonEmpty(raw.Ledger.Defaults.Description, "Generat des de plantilla"),
		},
		Port:         envOrDefaultInt("PORT", 8080),
		TriggerToken: os.Getenv("POLL_TRIGGER_TOKEN"),
		LogLevel:     envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if to := os.Getenv("SMTP_TO"); len(cfg.SMTP.To) == 0 && to != "" {
		for _, addr := range strings.Split(to, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.SMTP.To = append(cfg.SMTP.To, addr)
			}
		}
	}

	for name, path := range raw.Actions {
		key := NormalizeAction(name)
		if key == "" || strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("action %q: name and script path are required", name)
		}
		cfg.Actions[key] = path
	}

	for _, r := range raw.Rules {
		cfg.Rules = append(cfg.Rules, rules.Rule{
			Name:            r.Name,
			SenderContains:  predicate(r.SenderContains),
			SubjectContains: predicate(r.SubjectContains),
			BodyContains:    predicate(r.BodyContains),
			Action:          r.Action,
		})
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Matcher compiles the configured rules. Parse has already validated them.
func (c *Config) Matcher() (*rules.Matcher, error) {
	return rules.NewMatcher(c.Rules)
}

func (c *Config) validate() error {
	if _, err := rules.NewMatcher(c.Rules); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	if len(c.Actions) > 0 {
		for _, r := range c.Rules {
			if _, ok := c.Actions[NormalizeAction(r.Action)]; !ok {
				return fmt.Errorf("rule %q: action %q is not registered", r.Name, r.Action)
			}
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval %s: must be positive", c.PollInterval)
	}

	switch c.DispatchMode {
	case DispatchJenkins, DispatchQueue:
	default:
		return fmt.Errorf("dispatch mode %q: must be %q or %q", c.DispatchMode, DispatchJenkins, DispatchQueue)
	}

	switch c.Ledger.Backend {
	case LedgerSQLite, LedgerNone:
	case LedgerPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("ledger backend postgres requires database_url")
		}
	case LedgerSheets:
		if c.Ledger.SpreadsheetID == "" || c.Ledger.CredentialsFile == "" {
			return fmt.Errorf("ledger backend sheets requires spreadsheet_id and credentials_file")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	return nil
}

// NormalizeAction canonicalizes a public action name.
func NormalizeAction(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func predicate(v *string) rules.Predicate {
	if v == nil {
		return rules.Predicate{}
	}
	return rules.Contains(*v)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOrDefaultLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err == nil {
			return l
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
