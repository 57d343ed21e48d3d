package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"multiview/pkg/common"
)

type Config struct {
	Index IndexConfig `yaml:"index"`
	Log   LogConfig   `yaml:"log"`
}

type IndexConfig struct {
	Name            string       `yaml:"name" validate:"required"`        // table name accepted by queries
	MaxStringLen    int          `yaml:"max_string_len" validate:"gte=0"` // 0 disables truncation
	ExpectedRecords uint         `yaml:"expected_records" validate:"gt=0"`
	BloomFalseProb  float64      `yaml:"bloom_false_prob" validate:"gt=0,lt=1"`
	Views           []ViewConfig `yaml:"views" validate:"required,min=1,dive"`
}

type ViewConfig struct {
	Name   string   `yaml:"name" validate:"required"`
	Fields []string `yaml:"fields" validate:"required,min=1,dive,oneof=id name age nickname language"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// DefaultViews are the five unique views of the sample person set.
func DefaultViews() []ViewConfig {
	return []ViewConfig{
		{Name: "by_name", Fields: []string{"name"}},
		{Name: "by_id", Fields: []string{"id"}},
		{Name: "by_name_nickname", Fields: []string{"name", "nickname"}},
		{Name: "by_age_nickname", Fields: []string{"age", "nickname"}},
		{Name: "by_id_name", Fields: []string{"id", "name"}},
	}
}

func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Name:            "persons",
			MaxStringLen:    int(common.DefaultStringBound),
			ExpectedRecords: 1024,
			BloomFalseProb:  0.01,
			Views:           DefaultViews(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/multiview.yaml", "multiview.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				return cfg, decode(data, cfg)
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}
	return cfg, decode(data, cfg)
}

func decode(data []byte, cfg *Config) error {
	// An explicit views list replaces the defaults instead of merging into them.
	cfg.Index.Views = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Index.Name == "" {
		cfg.Index.Name = "persons"
	}
	if cfg.Index.ExpectedRecords == 0 {
		cfg.Index.ExpectedRecords = 1024
	}
	if cfg.Index.BloomFalseProb <= 0 || cfg.Index.BloomFalseProb >= 1 {
		cfg.Index.BloomFalseProb = 0.01
	}
	if len(cfg.Index.Views) == 0 {
		cfg.Index.Views = DefaultViews()
	}
	// Field names are case-insensitive, as in queries.
	for i := range cfg.Index.Views {
		for j, f := range cfg.Index.Views[i].Fields {
			cfg.Index.Views[i].Fields[j] = strings.ToLower(strings.TrimSpace(f))
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules tags cannot express: unique
// view names and no repeated field inside one view key.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.Index.Views))
	for _, v := range cfg.Index.Views {
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("invalid config: view %q declared twice", v.Name)
		}
		seen[v.Name] = struct{}{}

		fields := make(map[string]struct{}, len(v.Fields))
		for _, f := range v.Fields {
			if _, dup := fields[f]; dup {
				return fmt.Errorf("invalid config: view %q repeats field %q", v.Name, f)
			}
			fields[f] = struct{}{}
		}
	}
	return nil
}

// StringBound returns the configured bound for string key fields.
func (c IndexConfig) StringBound() common.StringBound {
	return common.StringBound(c.MaxStringLen)
}

// ViewFields converts a view's field names to typed fields.
func (v ViewConfig) ViewFields() ([]common.Field, error) {
	if len(v.Fields) == 0 {
		return nil, errors.New("view has no fields")
	}
	out := make([]common.Field, len(v.Fields))
	for i, name := range v.Fields {
		f, err := common.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", v.Name, err)
		}
		out[i] = f
	}
	return out, nil
}
