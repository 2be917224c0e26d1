package ast

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk shape of a rule set document.
type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// ParseRules decodes a rule set from a YAML or JSON document. The document is
// either a bare list of rules or a mapping with a top-level "rules" key. The
// returned rules are validated and sorted into evaluation order.
func ParseRules(data []byte) ([]*Rule, error) {
	var rules []*Rule

	// Try the bare-list form first.
	if err := yaml.Unmarshal(data, &rules); err != nil {
		var file ruleFile
		if err2 := yaml.Unmarshal(data, &file); err2 != nil {
			return nil, fmt.Errorf("failed to parse rule set: %w", err)
		}
		rules = file.Rules
	}

	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	SortRules(rules)
	return rules, nil
}

// MarshalRules encodes a rule set into its YAML document form.
func MarshalRules(rules []*Rule) ([]byte, error) {
	return yaml.Marshal(ruleFile{Rules: rules})
}
