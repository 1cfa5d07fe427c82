package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.toml"

const (
	CategoryPostgres = "postgres"
	CategoryMySQL    = "mysql"

	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

var logLevels = map[string]string{
	"trace":   "Trace",
	"debug":   "Debug",
	"info":    "Info",
	"warn":    "Warn",
	"warning": "Warn",
	"error":   "Error",
}

type DatabaseConfig struct {
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	Host     string `toml:"host" yaml:"host"`
	Port     Port   `toml:"port" yaml:"port"`
	Database string `toml:"database" yaml:"database"`
	Schema   string `toml:"schema" yaml:"schema"`
	SSLMode  string `toml:"sslmode" yaml:"sslmode"`
}

type TablesConfig struct {
	DataSource []string `toml:"data_source" yaml:"data_source"`
	Skip       []string `toml:"skip" yaml:"skip"`
}

type TechnologyConfig struct {
	Category          string `toml:"category" yaml:"category"`
	UsePgDump         bool   `toml:"use_pg_dump" yaml:"use_pg_dump"`
	CopyStagingTables bool   `toml:"copy_staging_tables" yaml:"copy_staging_tables"`
	CopyStructure     bool   `toml:"copy_structure" yaml:"copy_structure"`
	CopyData          bool   `toml:"copy_data" yaml:"copy_data"`
	PgDriver          string `toml:"pg_driver" yaml:"pg_driver"`
}

type LogConfig struct {
	LogLevel string `toml:"log_level" yaml:"log_level"`
}

type Config struct {
	Source     DatabaseConfig   `toml:"source" yaml:"source"`
	Target     DatabaseConfig   `toml:"target" yaml:"target"`
	Tables     TablesConfig     `toml:"tables" yaml:"tables"`
	Technology TechnologyConfig `toml:"technology" yaml:"technology"`
	Log        LogConfig        `toml:"log" yaml:"log"`
}

// LoadConfig reads a TOML file, or a YAML file when the extension says so,
// applies defaults and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := decodeYAML(data, &config); err != nil {
			return nil, err
		}
	default:
		if err := decodeTOML(data, &config); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func decodeTOML(data []byte, config *Config) error {
	md, err := toml.Decode(string(data), config)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	for _, key := range []string{"copy_structure", "copy_data"} {
		if !md.IsDefined("technology", key) {
			return fmt.Errorf("technology.%s is required", key)
		}
	}

	return nil
}

func decodeYAML(data []byte, config *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Technology.Category = normalizeCategory(c.Technology.Category)

	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "Info"
	}
	if level, ok := logLevels[strings.ToLower(strings.TrimSpace(c.Log.LogLevel))]; ok {
		c.Log.LogLevel = level
	}

	if c.Technology.PgDriver == "" {
		c.Technology.PgDriver = DriverPQ
	}
	c.Technology.PgDriver = strings.ToLower(strings.TrimSpace(c.Technology.PgDriver))

	for _, db := range []*DatabaseConfig{&c.Source, &c.Target} {
		db.Host = strings.TrimSpace(db.Host)
		db.Schema = strings.TrimSpace(db.Schema)
		if c.Technology.Category == CategoryPostgres && db.SSLMode == "" {
			db.SSLMode = "disable"
		}
	}

	c.Tables.DataSource = trimNames(c.Tables.DataSource)
	c.Tables.Skip = trimNames(c.Tables.Skip)
}

// Validate checks that the configuration describes a runnable clone.
func (c *Config) Validate() error {
	switch c.Technology.Category {
	case CategoryPostgres, CategoryMySQL:
	case "":
		return fmt.Errorf("technology.category is required")
	default:
		return fmt.Errorf("unsupported technology.category %q (use mysql or postgres)", c.Technology.Category)
	}

	if _, ok := logLevels[strings.ToLower(c.Log.LogLevel)]; !ok {
		return fmt.Errorf("unsupported log.log_level %q (use Trace, Debug, Info, Warn or Error)", c.Log.LogLevel)
	}

	switch c.Technology.PgDriver {
	case DriverPQ, DriverPGX:
	default:
		return fmt.Errorf("unsupported technology.pg_driver %q (use postgres or pgx)", c.Technology.PgDriver)
	}

	if c.Technology.UsePgDump && c.Technology.Category != CategoryPostgres {
		return fmt.Errorf("technology.use_pg_dump requires the postgres category")
	}

	if err := c.Source.validate("source", c.Technology.Category); err != nil {
		return err
	}
	if err := c.Target.validate("target", c.Technology.Category); err != nil {
		return err
	}

	return nil
}

func (c *Config) IsPostgres() bool {
	return c.Technology.Category == CategoryPostgres
}

func (d DatabaseConfig) validate(section, category string) error {
	if d.Host == "" {
		return fmt.Errorf("%s.host is required", section)
	}
	if d.Port <= 0 {
		return fmt.Errorf("%s.port is required", section)
	}
	if strings.TrimSpace(d.Database) == "" {
		return fmt.Errorf("%s.database is required", section)
	}
	if category == CategoryPostgres && d.Schema == "" {
		return fmt.Errorf("%s.schema is required for postgres", section)
	}
	return nil
}

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, d.Port.String())
}

// PostgresURL formats a postgres:// URL. Extra entries in params become
// query parameters, which both lib/pq and pgx forward as runtime settings.
func (d DatabaseConfig) PostgresURL(params map[string]string) string {
	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	for key, value := range params {
		query.Set(key, value)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     d.Address(),
		Path:     "/" + d.Database,
		RawQuery: query.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	} else if d.Username != "" {
		u.User = url.User(d.Username)
	}

	return u.String()
}

func (d DatabaseConfig) MySQLDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.Username
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = d.Address()
	cfg.DBName = d.Database
	return cfg.FormatDSN()
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))

	switch category {
	case "postgres", "postgresql", "psql", "pg":
		return CategoryPostgres
	case "mysql", "mariadb":
		return CategoryMySQL
	default:
		return category
	}
}

func trimNames(names []string) []string {
	out := names[:0]
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Port accepts both `port = 5432` and `port = "5432"`.
type Port int

func (p Port) String() string {
	return strconv.Itoa(int(p))
}

func (p *Port) UnmarshalTOML(value any) error {
	switch v := value.(type) {
	case int64:
		*p = Port(v)
		return nil
	case string:
		return p.parse(v)
	default:
		return fmt.Errorf("port must be an integer or string, got %T", value)
	}
}

func (p *Port) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("port must be a scalar")
	}
	return p.parse(node.Value)
}

func (p *Port) parse(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", value, err)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	*p = Port(n)
	return nil
}
