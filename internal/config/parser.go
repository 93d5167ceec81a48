// Package config provides configuration parsing from environment-style settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

// Setting keys, as they appear in the environment.
const (
	KeyPostgresHost          = "POSTGRES_HOST"
	KeyPostgresPort          = "POSTGRES_PORT"
	KeyPostgresUser          = "POSTGRES_USER"
	KeyPostgresPassword      = "POSTGRES_PASSWORD"
	KeyPostgresSSLMode       = "POSTGRES_SSLMODE"
	KeyPostgresMaintenanceDB = "POSTGRES_MAINTENANCE_DB"
	KeyDatabases             = "DATABASES"
	KeyBucket                = "S3_BUCKET"
	KeyPrefix                = "S3_PREFIX"
	KeyEndpoint              = "S3_ENDPOINT"
	KeyRegion                = "AWS_DEFAULT_REGION"
	KeyRetentionDays         = "RETENTION_DAYS"
	KeyWebIdentityTokenFile  = "AWS_WEB_IDENTITY_TOKEN_FILE"
	KeyRoleARN               = "AWS_ROLE_ARN"
	KeyBackupDir             = "BACKUP_DIR"
	KeySourceHost            = "SOURCE_HOST"
	KeyPushgatewayURL        = "PUSHGATEWAY_URL"
	KeyTelegramBotToken      = "TELEGRAM_BOT_TOKEN"
	KeyTelegramChatID        = "TELEGRAM_CHAT_ID"
)

// requiredKeys are checked together so every missing one is reported at once.
var requiredKeys = []string{
	KeyPostgresHost,
	KeyPostgresUser,
	KeyPostgresPassword,
	KeyDatabases,
	KeyBucket,
	KeyRegion,
}

var (
	databaseNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	validSSLModes       = map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
)

// Parser handles configuration parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a parser that reads the process environment.
func NewParser() *Parser {
	return newParser(true)
}

func newParser(useEnv bool) *Parser {
	v := viper.New()
	v.SetConfigType("env")
	if useEnv {
		v.AutomaticEnv()
	}
	return &Parser{v: v}
}

// Load resolves the configuration from the environment.
func (p *Parser) Load() (*models.BackupConfig, error) {
	return p.parse()
}

// LoadFile loads settings from a dotenv file; environment variables still take precedence.
func (p *Parser) LoadFile(path string) (*models.BackupConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}

	return p.parse()
}

// LoadReader loads settings from dotenv content (useful for testing).
func (p *Parser) LoadReader(content string) (*models.BackupConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) get(key string) string {
	return strings.TrimSpace(p.v.GetString(strings.ToLower(key)))
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.BackupConfig, error) {
	var missing []string
	for _, key := range requiredKeys {
		if p.get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, backuperr.Config("missing required settings", missing...)
	}

	port, err := parseNonNegative(p.get(KeyPostgresPort), models.DefaultPort)
	if err != nil || port > 65535 {
		return nil, backuperr.Config("must be a port number between 0 and 65535", KeyPostgresPort)
	}

	retentionDays, err := parseNonNegative(p.get(KeyRetentionDays), models.DefaultRetentionDays)
	if err != nil {
		return nil, backuperr.Config("must be a non-negative integer", KeyRetentionDays)
	}

	databases, err := ParseDatabases(p.get(KeyDatabases))
	if err != nil {
		return nil, err
	}

	cfg := &models.BackupConfig{
		Postgres: models.PostgresConfig{
			Host:          p.get(KeyPostgresHost),
			Port:          port,
			Username:      p.get(KeyPostgresUser),
			Password:      p.v.GetString(strings.ToLower(KeyPostgresPassword)),
			SSLMode:       p.get(KeyPostgresSSLMode),
			MaintenanceDB: p.get(KeyPostgresMaintenanceDB),
		},
		Databases: databases,
		Storage: models.StorageConfig{
			Bucket:   p.get(KeyBucket),
			Prefix:   strings.Trim(p.get(KeyPrefix), "/"),
			Region:   p.get(KeyRegion),
			Endpoint: p.get(KeyEndpoint),
		},
		Identity: models.IdentityConfig{
			WebIdentityTokenFile: p.get(KeyWebIdentityTokenFile),
			RoleARN:              p.get(KeyRoleARN),
		},
		RetentionDays:  retentionDays,
		BackupDir:      p.get(KeyBackupDir),
		SourceHost:     p.get(KeySourceHost),
		PushgatewayURL: p.get(KeyPushgatewayURL),
		Timeouts:       models.DefaultTimeouts(),
	}

	// Set defaults.
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = models.DefaultSSLMode
	}
	if !validSSLModes[cfg.Postgres.SSLMode] {
		return nil, backuperr.Config("must be one of disable, allow, prefer, require, verify-ca, verify-full", KeyPostgresSSLMode)
	}
	if cfg.Postgres.MaintenanceDB == "" {
		cfg.Postgres.MaintenanceDB = models.DefaultMaintenanceDB
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = models.DefaultPrefix
	}
	// S3-compatible endpoints (MinIO, Ceph RGW) generally need path-style addressing.
	cfg.Storage.UsePathStyle = cfg.Storage.Endpoint != ""
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(os.TempDir(), "pgbackup")
	}
	if cfg.SourceHost == "" {
		cfg.SourceHost = cfg.Postgres.Host
	}

	// Parse optional Telegram config.
	botToken, chatID := p.get(KeyTelegramBotToken), p.get(KeyTelegramChatID)
	switch {
	case botToken != "" && chatID != "":
		cfg.Telegram = &models.TelegramConfig{BotToken: botToken, ChatID: chatID}
	case botToken != "":
		return nil, backuperr.Config("required when TELEGRAM_BOT_TOKEN is set", KeyTelegramChatID)
	case chatID != "":
		return nil, backuperr.Config("required when TELEGRAM_CHAT_ID is set", KeyTelegramBotToken)
	}

	return cfg, nil
}

// ParseDatabases splits a comma-separated list, trims entries, drops blanks and
// duplicates, and validates every name. All invalid names are reported together.
func ParseDatabases(list string) ([]string, error) {
	seen := make(map[string]bool)
	var names, invalid []string

	for _, raw := range strings.Split(list, ",") {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if !databaseNamePattern.MatchString(name) {
			invalid = append(invalid, strconv.Quote(name))
			continue
		}
		names = append(names, name)
	}

	if len(invalid) > 0 {
		return nil, backuperr.Config("invalid database names (allowed: letters, digits, underscore, hyphen)", invalid...)
	}
	if len(names) == 0 {
		return nil, backuperr.Config("missing required settings", KeyDatabases)
	}

	return names, nil
}

func parseNonNegative(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.BackupConfig) error {
	if cfg == nil {
		return backuperr.Config("configuration is nil")
	}

	var missing []string
	if cfg.Postgres.Host == "" {
		missing = append(missing, KeyPostgresHost)
	}
	if cfg.Postgres.Username == "" {
		missing = append(missing, KeyPostgresUser)
	}
	if cfg.Postgres.Password == "" {
		missing = append(missing, KeyPostgresPassword)
	}
	if len(cfg.Databases) == 0 {
		missing = append(missing, KeyDatabases)
	}
	if cfg.Storage.Bucket == "" {
		missing = append(missing, KeyBucket)
	}
	if cfg.Storage.Region == "" {
		missing = append(missing, KeyRegion)
	}
	if len(missing) > 0 {
		return backuperr.Config("missing required settings", missing...)
	}

	for _, name := range cfg.Databases {
		if !databaseNamePattern.MatchString(name) {
			return backuperr.Config("invalid database name", strconv.Quote(name))
		}
	}

	if cfg.RetentionDays < 0 {
		return backuperr.Config("must be a non-negative integer", KeyRetentionDays)
	}

	return nil
}
