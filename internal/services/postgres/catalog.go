package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

// Catalog answers the server-level questions a run needs before dumping.
type Catalog interface {
	Version(ctx context.Context, cfg models.PostgresConfig) (string, error)
	DatabaseExists(ctx context.Context, cfg models.PostgresConfig, database string) (bool, error)
}

// Conn is the subset of *pgx.Conn used by the catalog.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Connector opens a connection from a connection string.
type Connector func(ctx context.Context, connString string) (Conn, error)

func pgxConnect(ctx context.Context, connString string) (Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// CatalogImpl implements Catalog with a short-lived connection per query.
type CatalogImpl struct {
	connect Connector
	logger  zerolog.Logger
}

// NewCatalog creates a catalog backed by pgx.
func NewCatalog(logger zerolog.Logger) *CatalogImpl {
	return &CatalogImpl{
		connect: pgxConnect,
		logger:  logger,
	}
}

// NewCatalogWithConnector creates a catalog with a custom connector (for testing).
func NewCatalogWithConnector(logger zerolog.Logger, connect Connector) *CatalogImpl {
	return &CatalogImpl{
		connect: connect,
		logger:  logger,
	}
}

// ConnString builds a connection URL for the maintenance database.
func ConnString(cfg models.PostgresConfig) string {
	query := url.Values{}
	if cfg.SSLMode != "" {
		query.Set("sslmode", cfg.SSLMode)
	}
	query.Set("application_name", "pgbackup")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.MaintenanceDB,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (c *CatalogImpl) queryRow(ctx context.Context, cfg models.PostgresConfig, dest any, sql string, args ...any) error {
	conn, err := c.connect(ctx, ConnString(cfg))
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if err := conn.QueryRow(ctx, sql, args...).Scan(dest); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// Version returns the server version string.
func (c *CatalogImpl) Version(ctx context.Context, cfg models.PostgresConfig) (string, error) {
	var version string
	if err := c.queryRow(ctx, cfg, &version, "SELECT version()"); err != nil {
		return "", err
	}

	c.logger.Debug().Str("version", version).Msg("PostgreSQL server reachable")
	return version, nil
}

// DatabaseExists reports whether the named database is listed in pg_database.
func (c *CatalogImpl) DatabaseExists(ctx context.Context, cfg models.PostgresConfig, database string) (bool, error) {
	var exists bool
	err := c.queryRow(ctx, cfg, &exists,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", database)
	if err != nil {
		return false, err
	}
	return exists, nil
}
