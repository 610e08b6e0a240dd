// Package config loads the outreach configuration from the mounted env file.
//
// Loading happens once at process start. The env file's keys are exported into
// the process environment (existing variables win, as with dotenv) and a typed,
// validated Config is returned. Nothing else in the module reads the ambient
// environment; the Config value is passed explicitly to every constructor.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultEnvFile is the mount path of the env file inside the container.
const DefaultEnvFile = "/app/.env"

// Transports supported by MAIL_TRANSPORT.
const (
	TransportGraph = "graph"
	TransportSMTP  = "smtp"
)

// ErrEnvFileMissing is returned when the env file does not exist.
var ErrEnvFileMissing = errors.New("env file not found")

// SMTPConfig holds the settings used when MAIL_TRANSPORT=smtp.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Config is the immutable runtime configuration.
type Config struct {
	// EnvFile is the path the configuration was loaded from.
	EnvFile string
	// Exported lists the env file keys, sorted.
	Exported []string

	TenantID     string
	ClientID     string
	SenderUPN    string
	ClientSecret string

	// CSVPath is the absolute, symlink-resolved recipient list path under DataDir.
	CSVPath    string
	DailyLimit int
	DBPath     string

	DataDir string
	DBDir   string
	LogDir  string

	MaxPerCompanyPerDay int
	SendInterval        time.Duration
	AllowedEmailStatus  []string
	DoNotEmailPath      string
	TokenCachePath      string

	AuthorityHost string
	GraphBaseURL  string
	MailTransport string
	SMTP          SMTPConfig

	CampaignPath string
	LogoPath     string
	SenderName   string
	SenderTitle  string

	Recontact      bool
	WaitForNextDay bool

	TelegramToken  string
	TelegramChatID string
	MetricsAddr    string
}

// rawConfig mirrors the env file keys before parsing and validation.
type rawConfig struct {
	TenantID            string `mapstructure:"TENANT_ID"`
	ClientID            string `mapstructure:"CLIENT_ID"`
	SenderUPN           string `mapstructure:"SENDER_UPN"`
	ClientSecret        string `mapstructure:"CLIENT_SECRET"`
	CSVPath             string `mapstructure:"CSV_PATH"`
	DailyLimit          string `mapstructure:"DAILY_LIMIT"`
	DBPath              string `mapstructure:"DB_PATH"`
	DataDir             string `mapstructure:"DATA_DIR"`
	DBDir               string `mapstructure:"DB_DIR"`
	LogDir              string `mapstructure:"LOG_DIR"`
	MaxPerCompanyPerDay string `mapstructure:"MAX_PER_COMPANY_PER_DAY"`
	SendInterval        string `mapstructure:"SEND_INTERVAL"`
	AllowedEmailStatus  string `mapstructure:"ALLOWED_EMAIL_STATUS"`
	DoNotEmailPath      string `mapstructure:"DO_NOT_EMAIL_PATH"`
	TokenCachePath      string `mapstructure:"TOKEN_CACHE_PATH"`
	AuthorityHost       string `mapstructure:"AUTHORITY_HOST"`
	GraphBaseURL        string `mapstructure:"GRAPH_BASE_URL"`
	MailTransport       string `mapstructure:"MAIL_TRANSPORT"`
	SMTPHost            string `mapstructure:"SMTP_HOST"`
	SMTPPort            string `mapstructure:"SMTP_PORT"`
	SMTPUser            string `mapstructure:"SMTP_USER"`
	SMTPPassword        string `mapstructure:"SMTP_PASSWORD"`
	CampaignPath        string `mapstructure:"CAMPAIGN_PATH"`
	LogoPath            string `mapstructure:"LOGO_PATH"`
	SenderName          string `mapstructure:"SENDER_NAME"`
	SenderTitle         string `mapstructure:"SENDER_TITLE"`
	Recontact           string `mapstructure:"RECONTACT"`
	WaitForNextDay      string `mapstructure:"WAIT_FOR_NEXT_DAY"`
	TelegramToken       string `mapstructure:"TELEGRAM_TOKEN"`
	TelegramChatID      string `mapstructure:"TELEGRAM_CHAT_ID"`
	MetricsAddr         string `mapstructure:"METRICS_ADDR"`
}

// ValidationError describes one invalid configuration key.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

func invalid(key, format string, args ...any) *ValidationError {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TENANT_ID", "")
	v.SetDefault("CLIENT_ID", "")
	v.SetDefault("SENDER_UPN", "")
	v.SetDefault("CLIENT_SECRET", "")
	v.SetDefault("CSV_PATH", "mdg_high_intent.csv")
	v.SetDefault("DAILY_LIMIT", "50")
	v.SetDefault("DB_PATH", "outreach_log.sqlite")
	v.SetDefault("DATA_DIR", "/app/data")
	v.SetDefault("DB_DIR", "/app/db")
	v.SetDefault("LOG_DIR", "/app/logs")
	v.SetDefault("MAX_PER_COMPANY_PER_DAY", "2")
	v.SetDefault("SEND_INTERVAL", "180s")
	v.SetDefault("ALLOWED_EMAIL_STATUS", "verified,likely to engage")
	v.SetDefault("DO_NOT_EMAIL_PATH", "do_not_email.txt")
	v.SetDefault("TOKEN_CACHE_PATH", "token_cache.json")
	v.SetDefault("AUTHORITY_HOST", "https://login.microsoftonline.com")
	v.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("MAIL_TRANSPORT", TransportGraph)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("CAMPAIGN_PATH", "")
	v.SetDefault("LOGO_PATH", "")
	v.SetDefault("SENDER_NAME", "")
	v.SetDefault("SENDER_TITLE", "")
	v.SetDefault("RECONTACT", "false")
	v.SetDefault("WAIT_FOR_NEXT_DAY", "false")
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("TELEGRAM_CHAT_ID", "")
	v.SetDefault("METRICS_ADDR", "")
}

// Load reads the env file at path, exports its keys into the process
// environment and returns the validated Config.
//
// A missing env file is fatal. Every validation problem is reported in a
// single joined error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultEnvFile
	}

	exported, err := exportEnvFile(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	v.AutomaticEnv()
	setDefaults(v)

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Names used by earlier deployments of the notification helper.
	if raw.TelegramToken == "" {
		raw.TelegramToken = v.GetString("notify")
	}
	if raw.TelegramChatID == "" {
		raw.TelegramChatID = v.GetString("chat_id")
	}

	cfg, err := build(raw)
	if err != nil {
		return Config{}, err
	}
	cfg.EnvFile = path
	cfg.Exported = exported
	return cfg, nil
}

// exportEnvFile parses the env file and sets every key that is not already
// present in the process environment. It returns the sorted key list.
func exportEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: %s: %w", path, ErrEnvFileMissing)
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	keys := make([]string, 0, len(env))
	for key, value := range env {
		keys = append(keys, key)
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return nil, fmt.Errorf("config: export %s: %w", key, err)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func build(raw rawConfig) (Config, error) {
	var problems []error
	cfg := Config{
		TenantID:       strings.TrimSpace(raw.TenantID),
		ClientID:       strings.TrimSpace(raw.ClientID),
		SenderUPN:      strings.TrimSpace(raw.SenderUPN),
		ClientSecret:   strings.TrimSpace(raw.ClientSecret),
		DataDir:        filepath.Clean(raw.DataDir),
		DBDir:          filepath.Clean(raw.DBDir),
		LogDir:         filepath.Clean(raw.LogDir),
		AuthorityHost:  strings.TrimRight(raw.AuthorityHost, "/"),
		GraphBaseURL:   strings.TrimRight(raw.GraphBaseURL, "/"),
		MailTransport:  strings.ToLower(strings.TrimSpace(raw.MailTransport)),
		CampaignPath:   raw.CampaignPath,
		LogoPath:       raw.LogoPath,
		SenderName:     raw.SenderName,
		SenderTitle:    raw.SenderTitle,
		TelegramToken:  raw.TelegramToken,
		TelegramChatID: raw.TelegramChatID,
		MetricsAddr:    raw.MetricsAddr,
		SMTP: SMTPConfig{
			Host:     raw.SMTPHost,
			User:     raw.SMTPUser,
			Password: raw.SMTPPassword,
		},
	}

	limit, err := strconv.Atoi(strings.TrimSpace(raw.DailyLimit))
	switch {
	case err != nil:
		problems = append(problems, invalid("DAILY_LIMIT", "must be a positive integer, got %q", raw.DailyLimit))
	case limit <= 0:
		problems = append(problems, invalid("DAILY_LIMIT", "must be a positive integer, got %d", limit))
	default:
		cfg.DailyLimit = limit
	}

	perCompany, err := strconv.Atoi(strings.TrimSpace(raw.MaxPerCompanyPerDay))
	if err != nil || perCompany < 0 {
		problems = append(problems, invalid("MAX_PER_COMPANY_PER_DAY", "must be a non-negative integer, got %q", raw.MaxPerCompanyPerDay))
	}
	cfg.MaxPerCompanyPerDay = perCompany

	interval, err := time.ParseDuration(strings.TrimSpace(raw.SendInterval))
	if err != nil || interval < 0 {
		problems = append(problems, invalid("SEND_INTERVAL", "must be a non-negative duration, got %q", raw.SendInterval))
	}
	cfg.SendInterval = interval

	cfg.Recontact, err = strconv.ParseBool(strings.TrimSpace(raw.Recontact))
	if err != nil {
		problems = append(problems, invalid("RECONTACT", "must be a boolean, got %q", raw.Recontact))
	}
	cfg.WaitForNextDay, err = strconv.ParseBool(strings.TrimSpace(raw.WaitForNextDay))
	if err != nil {
		problems = append(problems, invalid("WAIT_FOR_NEXT_DAY", "must be a boolean, got %q", raw.WaitForNextDay))
	}

	for _, status := range strings.Split(raw.AllowedEmailStatus, ",") {
		if s := strings.ToLower(strings.TrimSpace(status)); s != "" {
			cfg.AllowedEmailStatus = append(cfg.AllowedEmailStatus, s)
		}
	}
	if len(cfg.AllowedEmailStatus) == 0 {
		problems = append(problems, invalid("ALLOWED_EMAIL_STATUS", "must list at least one status"))
	}

	switch cfg.MailTransport {
	case TransportGraph:
		if cfg.TenantID == "" {
			problems = append(problems, invalid("TENANT_ID", "is required"))
		}
		if cfg.ClientID == "" {
			problems = append(problems, invalid("CLIENT_ID", "is required"))
		}
		if cfg.SenderUPN == "" {
			problems = append(problems, invalid("SENDER_UPN", "is required"))
		}
	case TransportSMTP:
		if cfg.SMTP.Host == "" {
			problems = append(problems, invalid("SMTP_HOST", "is required when MAIL_TRANSPORT=smtp"))
		}
		if cfg.SenderUPN == "" {
			problems = append(problems, invalid("SENDER_UPN", "is required"))
		}
		port, err := strconv.Atoi(strings.TrimSpace(raw.SMTPPort))
		if err != nil || port <= 0 {
			problems = append(problems, invalid("SMTP_PORT", "must be a positive integer, got %q", raw.SMTPPort))
		}
		cfg.SMTP.Port = port
	default:
		problems = append(problems, invalid("MAIL_TRANSPORT", "must be %q or %q, got %q", TransportGraph, TransportSMTP, raw.MailTransport))
	}

	csvPath, err := resolveUnder(cfg.DataDir, raw.CSVPath)
	if err != nil {
		problems = append(problems, invalid("CSV_PATH", "%v", err))
	}
	cfg.CSVPath = csvPath

	cfg.DBPath = underDir(cfg.DBDir, raw.DBPath)
	cfg.TokenCachePath = underDir(cfg.DBDir, raw.TokenCachePath)
	cfg.DoNotEmailPath = underDir(cfg.DataDir, raw.DoNotEmailPath)
	if cfg.CampaignPath != "" {
		cfg.CampaignPath = underDir(cfg.DataDir, cfg.CampaignPath)
	}
	if cfg.LogoPath != "" {
		cfg.LogoPath = underDir(cfg.DataDir, cfg.LogoPath)
	}

	if len(problems) > 0 {
		return Config{}, errors.Join(problems...)
	}
	return cfg, nil
}

// underDir joins relative paths onto dir.
func underDir(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// resolveUnder resolves p (relative paths against dir) to an existing,
// readable regular file that lives under dir after symlink resolution.
func resolveUnder(dir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("must not be empty")
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("data directory %s is not accessible: %w", dir, err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", err
	}

	candidate := underDir(dir, p)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s does not exist", candidate)
		}
		return "", fmt.Errorf("%s is not accessible: %w", candidate, err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the data directory %s", candidate, dir)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%s is not accessible: %w", candidate, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", candidate)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("%s is not readable: %w", candidate, err)
	}
	f.Close()

	return resolved, nil
}
