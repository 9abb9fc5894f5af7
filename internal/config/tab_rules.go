package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TabRules narrows which page URLs are probed for media. Matching is a
// case-insensitive substring test.
type TabRules struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// LoadTabRules reads and validates a tab rules YAML file.
func LoadTabRules(path string) (*TabRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tab rules: %w", err)
	}
	var rules TabRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("tab rules: %w", err)
	}
	for i, s := range rules.Include {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("tab rules: include[%d] is empty", i)
		}
	}
	for i, s := range rules.Exclude {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("tab rules: exclude[%d] is empty", i)
		}
	}
	return &rules, nil
}

// Match reports whether url passes the rules. Exclusions win over inclusions;
// an empty include list admits everything not excluded. A nil receiver admits
// everything.
func (r *TabRules) Match(url string) bool {
	if r == nil {
		return true
	}
	lower := strings.ToLower(url)
	for _, s := range r.Exclude {
		if strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	if len(r.Include) == 0 {
		return true
	}
	for _, s := range r.Include {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
