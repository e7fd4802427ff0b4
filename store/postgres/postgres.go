package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/eventflow/store"
)

var (
	_ store.Store = &pgStore{}
)

const (
	pingTimeout = 5 * time.Second

	// one row per prefix/key, flows live under /flow/ and logs under /execution_log/
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS eventflow_store (
			prefix VARCHAR(255) NOT NULL,
			key VARCHAR(255) NOT NULL,
			value BYTEA,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, key)
		);
		CREATE INDEX IF NOT EXISTS idx_eventflow_store_prefix ON eventflow_store(prefix);`

	getSQL    = `SELECT value FROM eventflow_store WHERE prefix = $1 AND key = $2`
	upsertSQL = `INSERT INTO eventflow_store (prefix, key, value, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP`
	deleteSQL = `DELETE FROM eventflow_store WHERE prefix = $1 AND key = $2`
	listSQL   = `SELECT key FROM eventflow_store WHERE prefix = $1 ORDER BY key`
)

var sslModes = map[string]struct{}{
	"disable":     {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Config locates the database holding flow definitions and execution logs.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// DefaultConfig points at a local eventflow database.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "eventflow",
		SSLMode:  "disable",
	}
}

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore connects with config, a nil config means DefaultConfig.
// The store owns the connection and closes it on Close.
func NewPostgresStore(config *Config) (store.Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, errors.Annotatef(err, "open postgres %s:%d", config.Host, config.Port)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "ping postgres %s:%d", config.Host, config.Port)
	}

	s, err := newStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Trace(err)
	}
	log.Infof("eventflow store on postgres %s:%d/%s", config.Host, config.Port, config.Database)
	return s, nil
}

// NewPostgresStoreWithDB shares a connection pool opened elsewhere.
func NewPostgresStoreWithDB(db *sql.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.NotValidf("nil db")
	}
	return newStore(context.Background(), db)
}

func newStore(ctx context.Context, db *sql.DB) (*pgStore, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, errors.Annotatef(err, "create table eventflow_store")
	}
	return &pgStore{db: db}, nil
}

func (p *pgStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, getSQL, prefix, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "get prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (p *pgStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if _, err := p.db.ExecContext(ctx, upsertSQL, prefix, key, value); err != nil {
		return errors.Annotatef(err, "set prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) Remove(ctx context.Context, prefix, key string) error {
	if _, err := p.db.ExecContext(ctx, deleteSQL, prefix, key); err != nil {
		return errors.Annotatef(err, "remove prefix=%s, key=%s", prefix, key)
	}
	return nil
}

func (p *pgStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	rows, err := p.db.QueryContext(ctx, listSQL, prefix)
	if err != nil {
		return errors.Annotatef(err, "list prefix=%s", prefix)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return errors.Annotatef(err, "scan key of prefix=%s", prefix)
		}
		if !iterator(key) {
			return nil
		}
	}
	return errors.Annotatef(rows.Err(), "list prefix=%s", prefix)
}

func (p *pgStore) Close() error {
	return errors.Trace(p.db.Close())
}

// DSN renders config as a libpq keyword/value string, values with spaces or quotes are quoted.
func (c *Config) DSN() string {
	pairs := []string{
		"host=" + dsnValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"user=" + dsnValue(c.User),
		"password=" + dsnValue(c.Password),
		"dbname=" + dsnValue(c.Database),
		"sslmode=" + dsnValue(c.SSLMode),
	}
	return strings.Join(pairs, " ")
}

func dsnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// Validate checks the configuration, an empty SSLMode becomes "disable".
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.NotValidf("empty host")
	case c.Port <= 0 || c.Port > 65535:
		return errors.NotValidf("port %d", c.Port)
	case c.User == "":
		return errors.NotValidf("empty user")
	case c.Database == "":
		return errors.NotValidf("empty database")
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if _, ok := sslModes[c.SSLMode]; !ok {
		return errors.NotValidf("sslmode %s", c.SSLMode)
	}
	return nil
}

/**
 * ParseDSN reads the unquoted keyword/value form produced by DSN, e.g.
 *   host=localhost port=5432 user=postgres password=secret dbname=eventflow sslmode=disable
 * Keywords it does not know are ignored, missing ones keep DefaultConfig values.
 */
func ParseDSN(dsn string) (*Config, error) {
	config := DefaultConfig()
	setters := map[string]func(string) error{
		"host":     func(v string) error { config.Host = v; return nil },
		"user":     func(v string) error { config.User = v; return nil },
		"password": func(v string) error { config.Password = v; return nil },
		"dbname":   func(v string) error { config.Database = v; return nil },
		"sslmode":  func(v string) error { config.SSLMode = v; return nil },
		"port": func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return errors.NotValidf("port %q", v)
			}
			config.Port = port
			return nil
		},
	}

	for _, part := range strings.Fields(dsn) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.NotValidf("dsn term %q", part)
		}
		set, known := setters[key]
		if !known {
			continue
		}
		if err := set(strings.Trim(value, "'")); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return config, errors.Trace(config.Validate())
}

func (c *Config) String() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}
