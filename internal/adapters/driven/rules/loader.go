// Package rules loads classification rule sets from YAML files.
//
// Example rules file:
//
//	review_floor: 0.70
//	identifiers:
//	  ClientID: ['\b([A-Z]{2,5}-\d{3,6})\b']
//	rules:
//	  - name: form_adv
//	    signal: filename
//	    glob: "*Form_ADV*"
//	    target: "Clients/{ClientID}/Regulatory/"
//	    confidence: 0.92
//	  - name: engagement_letters
//	    type: content
//	    pattern: '(?i)engagement\s+letter'
//	    target: "Clients/{ClientID}/Engagement/"
//	    confidence: 0.80
//
// "type" is accepted as a synonym for "signal" and "pattern" for "regex".
package rules

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/filer/internal/core/domain"
	"github.com/custodia-labs/filer/internal/core/ports/driven"
)

// Ensure Loader implements the interface.
var _ driven.RuleLoader = (*Loader)(nil)

// ruleSetFile is the on-disk shape of a rule set.
type ruleSetFile struct {
	ReviewFloor *float64            `yaml:"review_floor"`
	Identifiers map[string][]string `yaml:"identifiers"`
	Rules       []ruleEntry         `yaml:"rules"`
}

type ruleEntry struct {
	Name       string   `yaml:"name"`
	Signal     string   `yaml:"signal"`
	Type       string   `yaml:"type"`
	Glob       string   `yaml:"glob"`
	Regex      string   `yaml:"regex"`
	Pattern    string   `yaml:"pattern"`
	Keywords   []string `yaml:"keywords"`
	Extensions []string `yaml:"extensions"`
	Addresses  []string `yaml:"addresses"`
	Attribute  string   `yaml:"attribute"`
	Equals     string   `yaml:"equals"`
	Target     string   `yaml:"target"`
	Confidence float64  `yaml:"confidence"`
}

// Loader reads YAML rule files.
type Loader struct {
	defaultReviewFloor float64
}

// NewLoader creates a loader. defaultReviewFloor applies to files that do
// not set review_floor.
func NewLoader(defaultReviewFloor float64) *Loader {
	return &Loader{defaultReviewFloor: defaultReviewFloor}
}

// Load reads, decodes and validates the rule file at path.
func (l *Loader) Load(_ context.Context, path string) (*domain.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrRuleSet, path, err)
	}
	rs, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes a rule set from YAML bytes. Unknown keys are rejected.
func (l *Loader) Parse(data []byte) (*domain.RuleSet, error) {
	var file ruleSetFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing YAML: %v", domain.ErrRuleSet, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", domain.ErrRuleSet)
	}

	sum := sha256.Sum256(data)
	rs := &domain.RuleSet{
		Version:     hex.EncodeToString(sum[:]),
		Rules:       make([]domain.ClassificationRule, 0, len(file.Rules)),
		Identifiers: domain.DefaultIdentifierPatterns(),
		ReviewFloor: l.defaultReviewFloor,
	}
	if file.ReviewFloor != nil {
		rs.ReviewFloor = *file.ReviewFloor
	}
	for name, patterns := range file.Identifiers {
		rs.Identifiers[name] = patterns
	}

	for i, entry := range file.Rules {
		rule, err := entry.toDomain()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rs.Rules = append(rs.Rules, rule)
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (e ruleEntry) toDomain() (domain.ClassificationRule, error) {
	signal, err := pick("signal", e.Signal, "type", e.Type)
	if err != nil {
		return domain.ClassificationRule{}, err
	}
	regex, err := pick("regex", e.Regex, "pattern", e.Pattern)
	if err != nil {
		return domain.ClassificationRule{}, err
	}

	exts := make([]string, 0, len(e.Extensions))
	for _, ext := range e.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}

	return domain.ClassificationRule{
		Name:       e.Name,
		Signal:     domain.SignalType(strings.ToLower(signal)),
		Glob:       e.Glob,
		Regex:      regex,
		Keywords:   e.Keywords,
		Extensions: exts,
		Addresses:  e.Addresses,
		Attribute:  e.Attribute,
		Equals:     e.Equals,
		Target:     e.Target,
		Confidence: e.Confidence,
	}, nil
}

// pick returns whichever of two synonymous keys is set.
func pick(key, val, alias, aliasVal string) (string, error) {
	if val != "" && aliasVal != "" && val != aliasVal {
		return "", fmt.Errorf("%w: %q and %q disagree", domain.ErrRuleSet, key, alias)
	}
	if val != "" {
		return val, nil
	}
	return aliasVal, nil
}
