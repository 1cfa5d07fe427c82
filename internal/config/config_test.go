package config_test

import (
	"embed"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	appconfig "github.com/kadirbelkuyu/dbclone/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*
var configSamples embed.FS

func writeSample(t *testing.T, name string) string {
	t.Helper()

	data, err := configSamples.ReadFile(filepath.Join("testdata", name))
	require.NoErrorf(t, err, "failed to read embedded sample %s", name)

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func TestLoadPostgresConfigDefaults(t *testing.T) {
	path := writeSample(t, "postgres.toml")

	cfg, err := appconfig.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Technology.Category, "postgresql should normalise to postgres")
	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, "Debug", cfg.Log.LogLevel)
	assert.Equal(t, "postgres", cfg.Technology.PgDriver, "lib/pq should be the default driver")
	assert.Equal(t, "disable", cfg.Source.SSLMode, "SSL should default to disable for postgres")
	assert.Equal(t, 5433, int(cfg.Target.Port), "string ports should be accepted")
	assert.Equal(t, []string{"users", "orders"}, cfg.Tables.DataSource)
	assert.Equal(t, []string{"audit_log"}, cfg.Tables.Skip)
	assert.Equal(t, "app", cfg.Source.Schema)
	assert.Equal(t, "app_clone", cfg.Target.Schema)
}

func TestPostgresURLEscapesCredentials(t *testing.T) {
	path := writeSample(t, "postgres.toml")

	cfg, err := appconfig.LoadConfig(path)
	require.NoError(t, err)

	raw := cfg.Source.PostgresURL(map[string]string{"search_path": "pg_catalog"})
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "localhost:5432", parsed.Host)
	assert.Equal(t, "/sampledb", parsed.Path)
	assert.Equal(t, "sample", parsed.User.Username())

	password, ok := parsed.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss word", password)
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
	assert.Equal(t, "pg_catalog", parsed.Query().Get("search_path"))
}

func TestLoadMySQLConfig(t *testing.T) {
	path := writeSample(t, "mysql.toml")

	cfg, err := appconfig.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Technology.Category)
	assert.False(t, cfg.IsPostgres())
	assert.Equal(t, "Info", cfg.Log.LogLevel, "log level should default to Info")
	assert.Empty(t, cfg.Source.SSLMode, "sslmode is a postgres-only setting")
	assert.Empty(t, cfg.Source.Schema)

	dsn := cfg.Target.MySQLDSN()
	assert.Contains(t, dsn, "root:root@tcp(db.internal:3306)/shop_clone")
}

func TestLoadYAMLConfig(t *testing.T) {
	path := writeSample(t, "postgres.yaml")

	cfg, err := appconfig.LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Technology.UsePgDump)
	assert.Equal(t, "pgx", cfg.Technology.PgDriver)
	assert.Equal(t, "Warn", cfg.Log.LogLevel)
	assert.Equal(t, 5432, int(cfg.Target.Port))
	assert.Equal(t, "public_clone", cfg.Target.Schema)
}

func TestLoadConfigRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"unknown-key.toml":        "source.colour",
		"missing-schema.toml":     "source.schema is required",
		"missing-copy-flags.toml": "technology.copy_structure is required",
		"mysql-pgdump.toml":       "use_pg_dump requires the postgres category",
	}

	for name, message := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSample(t, name)

			_, err := appconfig.LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), message)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := appconfig.LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	base := func() appconfig.Config {
		db := appconfig.DatabaseConfig{Host: "localhost", Port: 5432, Database: "db", Schema: "public"}
		return appconfig.Config{
			Source:     db,
			Target:     db,
			Technology: appconfig.TechnologyConfig{Category: "postgres", PgDriver: "postgres"},
			Log:        appconfig.LogConfig{LogLevel: "Info"},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Technology.Category = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "unsupported technology.category")

	cfg = base()
	cfg.Log.LogLevel = "Verbose"
	assert.ErrorContains(t, cfg.Validate(), "unsupported log.log_level")

	cfg = base()
	cfg.Technology.PgDriver = "odbc"
	assert.ErrorContains(t, cfg.Validate(), "unsupported technology.pg_driver")

	cfg = base()
	cfg.Target.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "target.port is required")
}
