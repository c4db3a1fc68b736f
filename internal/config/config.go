package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Input    Input    `yaml:"input"`
	Pipeline Pipeline `yaml:"pipeline"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Metrics  Metrics  `yaml:"metrics"`
	Logging  Logging  `yaml:"logging"`
}

type Input struct {
	Dir       string `yaml:"dir"`
	Players   string `yaml:"players"`
	Ratings   string `yaml:"ratings"`
	Countries string `yaml:"countries"`
	ISO3      string `yaml:"iso3"`
}

type Pipeline struct {
	StartYear int `yaml:"start_year"`
	// EndYear 0 means the latest year present in the data.
	EndYear       int `yaml:"end_year"`
	TopCountries  int `yaml:"top_countries"`
	MinPeakRating int `yaml:"min_peak_rating"`
}

type Output struct {
	Dir            string `yaml:"dir"`
	RecordsFile    string `yaml:"records_file"`
	AggregatedFile string `yaml:"aggregated_file"`
	ReportFile     string `yaml:"report_file"`
}

type Server struct {
	BasePort int `yaml:"base_port"`
	PortSpan int `yaml:"port_span"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for fidestats.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "fidestats")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/fidestats/config.yaml > ./config.yaml.
// An empty path with a nil error means no file was found and the embedded
// defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the
// embedded defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	data := DefaultConfigYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Input: Input{
			Dir:       "data",
			Players:   "players.tsv",
			Ratings:   "ratings.tsv",
			Countries: "countries.tsv",
			ISO3:      "iso3.tsv",
		},
		Pipeline: Pipeline{
			StartYear:    2010,
			TopCountries: 30,
		},
		Output: Output{
			Dir:            "viz",
			RecordsFile:    "chess_data.json",
			AggregatedFile: "chess_data_aggregated.json",
			ReportFile:     "report.md",
		},
		Server:  Server{BasePort: 8000, PortSpan: 100},
		Metrics: Metrics{Job: "fidestats"},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with FIDESTATS_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FIDESTATS_DATA_DIR"); ok && v != "" {
		c.Input.Dir = v
	}
	if v, ok := lookup("FIDESTATS_OUTPUT_DIR"); ok && v != "" {
		c.Output.Dir = v
	}
	if v, ok := lookup("FIDESTATS_PUSHGATEWAY_URL"); ok {
		c.Metrics.PushgatewayURL = v
	}
	if v, ok := lookup("FIDESTATS_BASE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FIDESTATS_BASE_PORT %q: %v", ErrInvalidConfig, v, err)
		}
		c.Server.BasePort = port
	}
	return nil
}

// Validate reports the first setting the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.EndYear != 0 && p.StartYear > p.EndYear:
		return fmt.Errorf("%w: start_year %d after end_year %d", ErrInvalidConfig, p.StartYear, p.EndYear)
	case p.TopCountries < 0:
		return fmt.Errorf("%w: top_countries must not be negative", ErrInvalidConfig)
	case p.MinPeakRating < 0:
		return fmt.Errorf("%w: min_peak_rating must not be negative", ErrInvalidConfig)
	case c.Output.RecordsFile == "" || c.Output.AggregatedFile == "":
		return fmt.Errorf("%w: output file names must be set", ErrInvalidConfig)
	case c.Server.BasePort < 1 || c.Server.BasePort > 65535:
		return fmt.Errorf("%w: base_port %d out of range", ErrInvalidConfig, c.Server.BasePort)
	case c.Server.PortSpan < 1:
		return fmt.Errorf("%w: port_span must be positive", ErrInvalidConfig)
	}
	return nil
}

// InputPath joins the input directory with a table file name.
func (c *Config) InputPath(name string) string {
	return filepath.Join(c.Input.Dir, name)
}

// OutputPath joins the output directory with an output file name.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Output.Dir, name)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
