package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const configWalkDepth = 25

// Config is the fieldgate configuration from fieldgate.yaml.
type Config struct {
	// Fixture is the path of the YAML fixture commands resolve against
	// when no database is configured.
	Fixture string `mapstructure:"fixture"`

	Database DatabaseConfig `mapstructure:"database"`
	Smoke    SmokeConfig    `mapstructure:"smoke"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SmokeConfig holds smoke command settings.
type SmokeConfig struct {
	Checks      int    `mapstructure:"checks"`
	Seed        int64  `mapstructure:"seed"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// loadConfig discovers and loads configuration with precedence
// flags > env > config file > defaults.
//
// Returns the loaded config, the path of the config file (empty if none
// was found), and any error encountered.
func loadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FIELDGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fixture", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("smoke.checks", 500)
	v.SetDefault("smoke.seed", 0)
	v.SetDefault("smoke.metrics_addr", "")
}

// findConfigFile finds the config file to use. If explicitPath is provided,
// it validates the file exists. Otherwise it walks up from cwd looking for
// fieldgate.yaml or fieldgate.yml, stopping at a .git directory or after
// configWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < configWalkDepth; i++ {
		for _, name := range []string{"fieldgate.yaml", "fieldgate.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// DSN returns the database connection string. If database.url is set it is
// returned directly; otherwise a postgres:// URL is built from the discrete
// fields.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	q := u.Query()
	if db.SSLMode != "" {
		q.Set("sslmode", db.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// configuredDSN resolves the effective DSN with flag > config precedence.
// An empty string means no database is configured and commands fall back to
// the fixture store.
func configuredDSN() (string, error) {
	if dsnFlag != "" {
		return dsnFlag, nil
	}
	if cfg.Database.URL != "" || cfg.Database.Host != "" {
		return cfg.DSN()
	}
	return "", nil
}
