package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fincast/internal/core"
	"fincast/internal/forecast"

	"github.com/pelletier/go-toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Number decodes from a number or a numeric string in every supported format.
type Number float64

func (n *Number) set(v interface{}) error {
	switch x := v.(type) {
	case float64:
		*n = Number(x)
	case int64:
		*n = Number(x)
	case int:
		*n = Number(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", x)
		}
		*n = Number(f)
	default:
		return fmt.Errorf("invalid number %v (%T)", v, v)
	}
	return nil
}

func (n *Number) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return n.set(v)
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	return n.set(node.Value)
}

func (n *Number) UnmarshalTOML(v interface{}) error {
	return n.set(v)
}

func (n Number) decimal() decimal.Decimal {
	return decimal.NewFromFloat(float64(n))
}

type taxScheduleFile struct {
	Jurisdictions []jurisdictionEntry `json:"jurisdictions" yaml:"jurisdictions" toml:"jurisdictions"`
}

type jurisdictionEntry struct {
	Code       string         `json:"code" yaml:"code" toml:"code"`
	Deductible []string       `json:"deductible" yaml:"deductible" toml:"deductible"`
	Brackets   []bracketEntry `json:"brackets" yaml:"brackets" toml:"brackets"`
}

type bracketEntry struct {
	Threshold Number `json:"threshold" yaml:"threshold" toml:"threshold"`
	// Rate is a percentage, e.g. 20.5 for 20.5%.
	Rate Number `json:"rate" yaml:"rate" toml:"rate"`
}

// LoadTaxSchedules reads jurisdiction overrides from a TOML, YAML or JSON file
// and returns them merged over the built-in schedules.
func LoadTaxSchedules(filePath string) (forecast.ScheduleSet, error) {
	defaults := forecast.DefaultSchedules()
	if filePath == "" {
		return defaults, nil
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error accessing tax schedule file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", filePath)
	}
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading tax schedule file: %w", err)
	}

	var file taxScheduleFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".toml":
		if err := toml.Unmarshal(fileData, &file); err != nil {
			return nil, fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(fileData, &file); err != nil {
			return nil, fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(fileData, &file); err != nil {
			return nil, fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported tax schedule file format: %s", ext)
	}

	overrides := forecast.ScheduleSet{}
	for _, j := range file.Jurisdictions {
		s := j.toSchedule()
		if s.Code == "" {
			return nil, fmt.Errorf("%w: jurisdiction without code", forecast.ErrInvalidSchedule)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		overrides[s.Code] = s
	}
	return defaults.Merge(overrides), nil
}

func (j jurisdictionEntry) toSchedule() forecast.Schedule {
	s := forecast.Schedule{
		Code:       strings.ToUpper(strings.TrimSpace(j.Code)),
		Deductible: j.Deductible,
	}
	hundred := decimal.NewFromInt(100)
	for _, b := range j.Brackets {
		s.Brackets = append(s.Brackets, core.TaxBracket{
			Threshold: b.Threshold.decimal(),
			Rate:      b.Rate.decimal().Div(hundred),
		})
	}
	return s
}
