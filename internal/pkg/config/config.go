package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Cytomine  CytomineConfig  `mapstructure:"cytomine"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// CytomineConfig points at the annotation platform.
type CytomineConfig struct {
	Host       string `mapstructure:"host"`
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key"`
	Timeout    int    `mapstructure:"timeout"`
}

// RequestTimeout returns the per-request HTTP timeout.
func (c CytomineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// AnalysisConfig holds defaults for analysis runs; requests may override them.
type AnalysisConfig struct {
	ClassifierRule    string   `mapstructure:"classifier_rule"`
	OutputFormats     []string `mapstructure:"output_formats"`
	UploadProperties  bool     `mapstructure:"upload_properties"`
	UploadAnnotations bool     `mapstructure:"upload_annotations"`
	CleanupResults    bool     `mapstructure:"cleanup_results"`
	CreateTerms       bool     `mapstructure:"create_terms"`
	OntologyID        int64    `mapstructure:"ontology_id"`
	CacheTTL          int      `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	return LoadWithFlags(service, nil)
}

// LoadWithFlags is Load with command-line flags layered on top. Flag names
// use the platform's script convention (--cytomine_host etc.) and are mapped
// onto config keys by flagKeys; unknown flags are ignored.
func LoadWithFlags(service string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "regionstats")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "regionstats")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("cytomine.host", "demo.cytomine.be")
	v.SetDefault("cytomine.timeout", 60)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "region-stats")
	v.SetDefault("analysis.classifier_rule", string(geometry.RuleWindingAngle))
	v.SetDefault("analysis.output_formats", []string{"json"})
	v.SetDefault("analysis.upload_properties", true)
	v.SetDefault("analysis.upload_annotations", true)
	v.SetDefault("analysis.cleanup_results", true)
	v.SetDefault("analysis.create_terms", false)
	v.SetDefault("analysis.cache_ttl", 3600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: REGIONSTATS_CYTOMINE_HOST → cytomine.host
	v.SetEnvPrefix("REGIONSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"cytomine_host":        "cytomine.host",
	"cytomine_public_key":  "cytomine.public_key",
	"cytomine_private_key": "cytomine.private_key",
	"classifier_rule":      "analysis.classifier_rule",
	"output_formats":       "analysis.output_formats",
	"upload_properties":    "analysis.upload_properties",
	"upload_annotations":   "analysis.upload_annotations",
	"cleanup_results":      "analysis.cleanup_results",
	"create_terms":         "analysis.create_terms",
	"cytomine_id_ontology": "analysis.ontology_id",
	"log_level":            "log.level",
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Cytomine.Host == "" {
		errs = append(errs, "cytomine.host is required")
	}
	if c.Cytomine.Timeout <= 0 {
		errs = append(errs, "cytomine.timeout must be positive")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}
	if _, err := geometry.ParseRule(c.Analysis.ClassifierRule); err != nil {
		errs = append(errs, "analysis.classifier_rule: "+err.Error())
	}
	for _, f := range c.Analysis.OutputFormats {
		if f != "json" && f != "csv" {
			errs = append(errs, fmt.Sprintf("analysis.output_formats: unknown format %q", f))
		}
	}
	if c.Analysis.CreateTerms && c.Analysis.OntologyID == 0 {
		errs = append(errs, "analysis.ontology_id is required when analysis.create_terms is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
