package conflict

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
)

// Strategy is how one conflict is settled.
type Strategy string

const (
	NewestWins      Strategy = "newest_wins"
	PreserveBoth    Strategy = "preserve_both"
	ConfidenceBased Strategy = "confidence_based"
	ManualReview    Strategy = "manual_review"
)

func (s Strategy) Valid() bool {
	switch s {
	case NewestWins, PreserveBoth, ConfidenceBased, ManualReview:
		return true
	}
	return false
}

// Policy is the configured resolution policy. Strategy names are kept as
// written so that a typo can be reported rather than rejected.
type Policy struct {
	Default    string            `yaml:"default"`
	BySeverity map[string]string `yaml:"by_severity"`
	ByKind     map[string]string `yaml:"by_kind"`
}

// DefaultPolicy sends critical and high conflicts to review, keeps both
// sides of an allergy conflict, and lets the newest fact win otherwise.
func DefaultPolicy() Policy {
	return Policy{
		Default: string(NewestWins),
		BySeverity: map[string]string{
			string(SeverityCritical): string(ManualReview),
			string(SeverityHigh):     string(ManualReview),
			string(SeverityMedium):   string(NewestWins),
			string(SeverityLow):      string(NewestWins),
		},
		ByKind: map[string]string{
			string(extraction.KindAllergy): string(PreserveBoth),
		},
	}
}

// LoadPolicy reads a policy from a YAML file with a top-level "resolution"
// key.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	var wrapper struct {
		Resolution Policy `yaml:"resolution"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	return wrapper.Resolution, nil
}

// Resolver freezes p into the table used for one merge. Unknown strategy
// names, severities and kinds resolve to manual_review and are returned as
// warnings.
func (p Policy) Resolver() (*Resolver, []string) {
	var warnings []string
	parse := func(where, name string) Strategy {
		s := Strategy(strings.ToLower(strings.TrimSpace(name)))
		if s.Valid() {
			return s
		}
		warnings = append(warnings, fmt.Sprintf("%s: unknown strategy %q, using manual_review", where, name))
		return ManualReview
	}

	r := &Resolver{
		def:        NewestWins,
		bySeverity: make(map[Severity]Strategy),
		byKind:     make(map[extraction.Kind]Strategy),
	}
	if p.Default != "" {
		r.def = parse("default", p.Default)
	}
	for _, k := range sortedKeys(p.BySeverity) {
		sev := Severity(strings.ToLower(k))
		if !sev.Valid() {
			warnings = append(warnings, fmt.Sprintf("by_severity: unknown severity %q ignored", k))
			continue
		}
		r.bySeverity[sev] = parse("by_severity."+k, p.BySeverity[k])
	}
	for _, k := range sortedKeys(p.ByKind) {
		kind := extraction.Kind(strings.ToLower(k))
		if !kind.Known() {
			warnings = append(warnings, fmt.Sprintf("by_kind: unknown kind %q ignored", k))
			continue
		}
		r.byKind[kind] = parse("by_kind."+k, p.ByKind[k])
	}
	return r, warnings
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
