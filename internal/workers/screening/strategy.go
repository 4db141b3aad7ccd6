// -----------------------------------------------------------------------
// Strategy - Declarative stock screening rules loaded from YAML
// -----------------------------------------------------------------------

package screening

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FilterCondition is one screening rule: an indicator compared to a value.
// Stocks with the indicator missing never match, data gaps are not treated
// as zero.
type FilterCondition struct {
	Field    string  `yaml:"field" validate:"required"`
	Operator string  `yaml:"operator" validate:"required,oneof=gt gte lt lte eq ne"`
	Value    float64 `yaml:"value"`
}

// Match evaluates the condition against a stock's indicators
func (c FilterCondition) Match(stock Stock) bool {
	actual, ok := stock.Indicators[c.Field]
	if !ok {
		return false
	}

	switch c.Operator {
	case "gt":
		return actual > c.Value
	case "gte":
		return actual >= c.Value
	case "lt":
		return actual < c.Value
	case "lte":
		return actual <= c.Value
	case "eq":
		return actual == c.Value
	case "ne":
		return actual != c.Value
	default:
		return false
	}
}

// ScoringWeight contributes one weighted indicator to a stock's score
type ScoringWeight struct {
	Field  string  `yaml:"field" validate:"required"`
	Weight float64 `yaml:"weight"`
}

// Strategy is a named set of filters plus a scoring configuration
type Strategy struct {
	Name        string            `yaml:"name" validate:"required"`
	Description string            `yaml:"description"`
	Filters     []FilterCondition `yaml:"filters" validate:"required,min=1,dive"`
	Scoring     []ScoringWeight   `yaml:"scoring" validate:"dive"`
	TopN        int               `yaml:"top_n"`
}

// Score computes the weighted indicator sum for a stock. Missing indicators
// contribute nothing.
func (s *Strategy) Score(stock Stock) float64 {
	var score float64
	for _, w := range s.Scoring {
		if v, ok := stock.Indicators[w.Field]; ok {
			score += v * w.Weight
		}
	}
	return score
}

// LoadStrategy reads and validates one strategy definition file
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file %s: %w", path, err)
	}

	var strategy Strategy
	if err := yaml.Unmarshal(data, &strategy); err != nil {
		return nil, fmt.Errorf("failed to parse strategy file %s: %w", path, err)
	}

	if err := validator.New().Struct(&strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy %s: %w", path, err)
	}

	if strategy.TopN <= 0 {
		strategy.TopN = 10
	}

	return &strategy, nil
}

// LoadStrategies loads every .yaml strategy in a directory, keyed by name
func LoadStrategies(dir string) (map[string]*Strategy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies directory %s: %w", dir, err)
	}

	strategies := make(map[string]*Strategy)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		strategy, err := LoadStrategy(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		strategies[strategy.Name] = strategy
	}

	return strategies, nil
}
