package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for one lasstat run
type Config struct {
	// Processing settings
	Workers                int     `yaml:"workers"` // 0 = derive from available RAM
	DetailedGeometry       bool    `yaml:"detailed_geometry"`
	ExtractClassifications bool    `yaml:"extract_classifications"`
	LowRAM                 bool    `yaml:"low_ram"` // always decimate geometry
	MaxFileSizeGB          float64 `yaml:"max_file_size_gb"`

	// Output settings
	OutputDir   string `yaml:"output_dir"`
	ParquetFile string `yaml:"parquet_file"` // relative to OutputDir, empty = skip
	SummaryFile string `yaml:"summary_file"` // relative to OutputDir, empty = skip
	MetricsFile string `yaml:"metrics_file"` // node_exporter textfile, empty = skip

	// Database settings
	LoadCatalog bool   `yaml:"load_catalog"`
	DBHost      string `yaml:"db_host"`
	DBPort      int    `yaml:"db_port"`
	DBName      string `yaml:"db_name"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBSchema    string `yaml:"db_schema"`
	DBTable     string `yaml:"db_table"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`         // empty = no file logging
	MetricsInterval time.Duration `yaml:"metrics_interval"` // 0 disables the system collector
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:         0,
		MaxFileSizeGB:   20,
		OutputDir:       "./lasstat_out",
		ParquetFile:     "results.parquet",
		SummaryFile:     "summary.yaml",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "lidar",
		DBUser:          "postgres",
		DBSchema:        "public",
		DBTable:         "las_files",
		MetricsInterval: 30 * time.Second,
	}
}

// LoadFile overlays the keys present in a YAML file onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// OutputPath resolves an output file name against OutputDir.
// Returns "" when name is empty.
func (c *Config) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be 0 (auto) or positive")
	}
	if c.MaxFileSizeGB <= 0 {
		return fmt.Errorf("max file size must be positive")
	}
	if c.MetricsInterval < 0 {
		return fmt.Errorf("metrics interval must not be negative")
	}
	if (c.ParquetFile != "" || c.SummaryFile != "") && c.OutputDir == "" {
		return fmt.Errorf("output directory is required when writing outputs")
	}
	if c.LoadCatalog {
		if c.DBName == "" {
			return fmt.Errorf("database name is required to load the catalog")
		}
		if c.DBTable == "" {
			return fmt.Errorf("catalog table name is required")
		}
	}
	return nil
}
