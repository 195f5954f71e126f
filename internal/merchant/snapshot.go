// Package merchant resolves raw merchant strings to canonical merchants and categories.
package merchant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default thresholds used when a snapshot does not set them.
const (
	DefaultFuzzyThreshold   = 85
	DefaultMappingThreshold = 0.8
	DefaultMLThreshold      = 0.6
)

// Target is what a merchant resolves to.
type Target struct {
	Canonical   string `yaml:"canonical"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory,omitempty"`
}

// Rule maps every cleaned merchant that contains Pattern (or matches it, when Regex is set)
// to Target.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Regex   bool   `yaml:"regex,omitempty"`
	Target  `yaml:",inline"`

	re *regexp.Regexp
}

func (r *Rule) compile() error {
	if !r.Regex {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		if r.Pattern == "" {
			return fmt.Errorf("rule for %q has an empty pattern", r.Canonical)
		}
		return nil
	}
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return fmt.Errorf("rule for %q: %w", r.Canonical, err)
	}
	r.re = re
	return nil
}

func (r *Rule) matches(cleaned string) bool {
	if r.re != nil {
		return r.re.MatchString(cleaned)
	}
	return strings.Contains(cleaned, r.Pattern)
}

// Snapshot is an immutable, versioned view of the merchant data. Holders swap whole
// snapshots; nothing mutates one after Validate.
type Snapshot struct {
	Version          string
	Exact            map[string]Target
	Rules            []Rule
	FuzzyThreshold   int
	MappingThreshold float64
	MLThreshold      float64

	vocabulary []string // sorted exact keys, the fuzzy-match candidates
}

// document is the YAML layout of a merchant data file.
type document struct {
	Version          string   `yaml:"version"`
	FuzzyThreshold   *int     `yaml:"fuzzy_threshold"`
	MappingThreshold *float64 `yaml:"mapping_threshold"`
	MLThreshold      *float64 `yaml:"ml_threshold"`
	Merchants        []struct {
		Target  `yaml:",inline"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"merchants"`
	Rules []Rule `yaml:"rules"`
}

// Parse decodes a YAML merchant data file into a validated snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode merchant data: %w", err)
	}

	snap := &Snapshot{
		Version:          doc.Version,
		Exact:            make(map[string]Target),
		Rules:            doc.Rules,
		FuzzyThreshold:   DefaultFuzzyThreshold,
		MappingThreshold: DefaultMappingThreshold,
		MLThreshold:      DefaultMLThreshold,
	}
	if doc.FuzzyThreshold != nil {
		snap.FuzzyThreshold = *doc.FuzzyThreshold
	}
	if doc.MappingThreshold != nil {
		snap.MappingThreshold = *doc.MappingThreshold
	}
	if doc.MLThreshold != nil {
		snap.MLThreshold = *doc.MLThreshold
	}
	for _, m := range doc.Merchants {
		snap.Exact[Clean(m.Canonical)] = m.Target
		for _, alias := range m.Aliases {
			snap.Exact[Clean(alias)] = m.Target
		}
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Validate checks thresholds, compiles rules and indexes the fuzzy vocabulary. It must be
// called before a snapshot built by hand is used.
func (s *Snapshot) Validate() error {
	if err := s.CheckThresholds(); err != nil {
		return err
	}
	if s.Exact == nil {
		s.Exact = make(map[string]Target)
	}
	for i := range s.Rules {
		if err := s.Rules[i].compile(); err != nil {
			return err
		}
	}
	s.index()
	return nil
}

// CheckThresholds reports out-of-range thresholds. Unlike Validate it does not modify the
// snapshot.
func (s *Snapshot) CheckThresholds() error {
	if s.FuzzyThreshold < 0 || s.FuzzyThreshold > 100 {
		return fmt.Errorf("fuzzy_threshold %d outside [0,100]", s.FuzzyThreshold)
	}
	if s.MappingThreshold < 0 || s.MappingThreshold > 1 {
		return fmt.Errorf("mapping_threshold %v outside [0,1]", s.MappingThreshold)
	}
	if s.MLThreshold < 0 || s.MLThreshold > 1 {
		return fmt.Errorf("ml_threshold %v outside [0,1]", s.MLThreshold)
	}
	return nil
}

func (s *Snapshot) index() {
	vocab := make([]string, 0, len(s.Exact))
	for k := range s.Exact {
		if k != "" {
			vocab = append(vocab, k)
		}
	}
	sort.Strings(vocab)
	s.vocabulary = vocab
}

// clone returns a deep enough copy for copy-on-write additions.
func (s *Snapshot) clone() *Snapshot {
	c := *s
	c.Exact = make(map[string]Target, len(s.Exact)+1)
	for k, v := range s.Exact {
		c.Exact[k] = v
	}
	c.Rules = append([]Rule(nil), s.Rules...)
	return &c
}
